package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// feedServer serves each payload once per connection, then holds the
// connection open until the test finishes.
func feedServer(t *testing.T, payloads []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, p := range payloads {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(p)); err != nil {
				return
			}
		}
		// Keep reading until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClient_StreamsClosedCandles(t *testing.T) {
	srv := feedServer(t, []string{
		`{"symbol":"BTCUSDT","tf":300,"ts":"2025-03-01T10:00:00Z","open":100,"high":101,"low":99,"close":100.5,"volume":10}`,
		`{"symbol":"BTCUSDT","tf":300,"ts":"2025-03-01T10:05:00Z","open":100.5,"high":102,"low":100,"close":101.5,"volume":12,"forming":true}`,
		`{"symbol":"","tf":300,"ts":"2025-03-01T10:05:00Z","open":1,"high":1,"low":1,"close":1}`,
		`not json`,
		`{"symbol":"BTCUSDT","tf":300,"ts":"2025-03-01T10:05:00Z","open":100.5,"high":102,"low":100,"close":101.5,"volume":12}`,
	})

	cl, err := New(Config{URL: wsURL(srv), ReconnectDelay: 50 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	candleCh := make(chan model.Candle, 10)
	go cl.Start(ctx, candleCh)

	var got []model.Candle
	timeout := time.After(3 * time.Second)
	for len(got) < 2 {
		select {
		case c := <-candleCh:
			got = append(got, c)
		case <-timeout:
			t.Fatalf("timed out, got %d candles", len(got))
		}
	}

	if got[0].Close != 100.5 || got[1].Close != 101.5 {
		t.Errorf("unexpected candles: %+v", got)
	}
	for _, c := range got {
		if c.Forming {
			t.Error("forming candle leaked into the pipeline")
		}
	}
	if cl.Overflow() != 0 {
		t.Errorf("unexpected ring overflow: %d", cl.Overflow())
	}
}

func TestClient_ReconnectsAfterServerClose(t *testing.T) {
	var conns int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns++
		if conns == 1 {
			conn.Close() // force a reconnect
			return
		}
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"symbol":"BTCUSDT","tf":300,"ts":"2025-03-01T10:00:00Z","open":100,"high":101,"low":99,"close":100.5,"volume":10}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cl, err := New(Config{URL: wsURL(srv), ReconnectDelay: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	reconnects := make(chan struct{}, 10)
	cl.OnReconnect = func() { reconnects <- struct{}{} }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	candleCh := make(chan model.Candle, 10)
	go cl.Start(ctx, candleCh)

	select {
	case <-reconnects:
	case <-time.After(3 * time.Second):
		t.Fatal("client never reconnected")
	}
	select {
	case c := <-candleCh:
		if c.Symbol != "BTCUSDT" {
			t.Errorf("unexpected candle: %+v", c)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no candle received after reconnect")
	}
}

func TestNew_InvalidURL(t *testing.T) {
	if _, err := New(Config{URL: "://bad"}); err == nil {
		t.Error("expected error for invalid URL")
	}
}
