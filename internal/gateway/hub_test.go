package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"
)

const testTOTPSecret = "JBSWY3DPEHPK3PXP"

func newTestServer(t *testing.T, hub *Hub, deps Deps) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	RegisterRoutes(mux, hub, nil, deps)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testDeps() Deps {
	params := Params{RetestTolerance: 0.0005, SLPercent: 0.005, RRRatio: 1.5}
	return Deps{
		StateFor:   func(symbol string) (interface{}, bool) { return nil, false },
		GetParams:  func() Params { return params },
		SetParams:  func(p Params) error { params = p; return nil },
		TOTPSecret: testTOTPSecret,
		Start:      time.Now(),
	}
}

func TestHub_BroadcastReachesWSClient(t *testing.T) {
	hub := NewHub(nil, []int{300, 900, 3600}, []string{"BTCUSDT"})
	srv := newTestServer(t, hub, testDeps())

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	defer conn.Close()

	// Wait for the hub to register the client
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	payload := []byte(`{"type":"entry","symbol":"BTCUSDT"}`)
	hub.Broadcast("pub:signals:BTCUSDT", payload)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var env struct {
		Channel    string          `json:"channel"`
		Data       json.RawMessage `json:"data"`
		ChannelSeq int64           `json:"channel_seq"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v\n%s", err, msg)
	}
	if env.Channel != "pub:signals:BTCUSDT" {
		t.Errorf("unexpected channel: %s", env.Channel)
	}
	if !bytes.Equal(env.Data, payload) {
		t.Errorf("payload mismatch: %s", env.Data)
	}
	if env.ChannelSeq != 1 {
		t.Errorf("expected channel_seq 1, got %d", env.ChannelSeq)
	}
}

func TestHub_BroadcastFillsReplayBuffer(t *testing.T) {
	hub := NewHub(nil, []int{300}, []string{"BTCUSDT"})

	for i := 0; i < 3; i++ {
		hub.Broadcast("pub:signals:BTCUSDT", []byte(`{"n":`+string(rune('0'+i))+`}`))
	}

	if got := hub.GetChannelSeq("pub:signals:BTCUSDT"); got != 3 {
		t.Fatalf("expected seq 3, got %d", got)
	}
	envelopes := hub.GetReplayRange("pub:signals:BTCUSDT", 2, 3)
	if len(envelopes) != 2 {
		t.Fatalf("expected 2 replay envelopes, got %d", len(envelopes))
	}
}

func TestClient_MatchesChannel(t *testing.T) {
	c := &Client{filters: ClientFilters{
		TFs:     []int{300, 900},
		Symbols: []string{"BTCUSDT"},
	}}

	cases := []struct {
		channel string
		want    bool
	}{
		{"pub:candle:300s:BTCUSDT", true},
		{"pub:candle:900s:BTCUSDT", true},
		{"pub:candle:3600s:BTCUSDT", false}, // TF not subscribed
		{"pub:candle:300s:ETHUSDT", false},  // symbol not subscribed
		{"pub:signals:BTCUSDT", true},
		{"pub:signals:ETHUSDT", false},
		{"pub:something:else", true}, // non-data channel passes
	}
	for _, tc := range cases {
		if got := c.matchesChannel(tc.channel); got != tc.want {
			t.Errorf("matchesChannel(%q) = %v, want %v", tc.channel, got, tc.want)
		}
	}
}

func TestParseChannel(t *testing.T) {
	p := parseChannel("pub:candle:900s:BTCUSDT")
	if p == nil || p.chType != "candle" || p.tf != 900 || p.symbol != "BTCUSDT" {
		t.Errorf("unexpected parse result: %+v", p)
	}
	p = parseChannel("pub:signals:ETHUSDT")
	if p == nil || p.chType != "signals" || p.symbol != "ETHUSDT" {
		t.Errorf("unexpected parse result: %+v", p)
	}
	if parseChannel("candle:900s:BTCUSDT") != nil {
		t.Error("expected nil for non-pub channel")
	}
}

func TestConfigEndpoint_TOTPGate(t *testing.T) {
	hub := NewHub(nil, []int{300}, []string{"BTCUSDT"})
	deps := testDeps()
	srv := newTestServer(t, hub, deps)

	body := `{"retest_tolerance":0.001,"sl_percent":0.01,"rr_ratio":2}`

	// No code: rejected
	resp, err := http.Post(srv.URL+"/api/config", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without code, got %d", resp.StatusCode)
	}

	// Valid code: accepted
	code, err := totp.GenerateCode(testTOTPSecret, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	req, _ := http.NewRequest("POST", srv.URL+"/api/config", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(authHeader, code)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with valid code, got %d", resp.StatusCode)
	}

	if got := deps.GetParams(); got.RRRatio != 2 {
		t.Errorf("params not applied: %+v", got)
	}
}

func TestConfigEndpoint_DisabledWithoutSecret(t *testing.T) {
	hub := NewHub(nil, []int{300}, []string{"BTCUSDT"})
	deps := testDeps()
	deps.TOTPSecret = ""
	srv := newTestServer(t, hub, deps)

	resp, err := http.Post(srv.URL+"/api/config", "application/json",
		strings.NewReader(`{"rr_ratio":9}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 when secret unset, got %d", resp.StatusCode)
	}
}
