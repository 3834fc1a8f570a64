package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Params are the runtime-tunable strategy parameters exposed over
// /api/config. Updates apply to new evaluations only.
type Params struct {
	RetestTolerance float64 `json:"retest_tolerance"`
	SLPercent       float64 `json:"sl_percent"`
	RRRatio         float64 `json:"rr_ratio"`
}

// Deps wires the gateway handlers to the rest of the process.
type Deps struct {
	// StateFor returns the live engine state for a symbol.
	StateFor func(symbol string) (interface{}, bool)

	// GetParams / SetParams read and update runtime strategy parameters.
	GetParams func() Params
	SetParams func(Params) error

	// TOTPSecret guards mutating endpoints. Empty disables them.
	TOTPSecret string

	Start time.Time
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Auth-Code")
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, rdb *goredis.Client, deps Deps) {
	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		lastTS := r.URL.Query().Get("last_ts")
		hub.HandleWSRequest(conn, lastTS)
	})

	// REST: live engine state for a symbol
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		symbol := r.URL.Query().Get("symbol")
		if symbol == "" && len(hub.Symbols) > 0 {
			symbol = hub.Symbols[0]
		}
		state, ok := deps.StateFor(symbol)
		if !ok {
			http.Error(w, `{"error":"unknown symbol"}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(state)
	})

	// REST: latest payload per channel
	mux.HandleFunc("/api/latest", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hub.GetLatestAll())
	})

	// REST: historical candles from Redis streams
	mux.HandleFunc("/api/candles", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		symbol := r.URL.Query().Get("symbol")
		if symbol == "" && len(hub.Symbols) > 0 {
			symbol = hub.Symbols[0]
		}

		tfVal, _ := strconv.Atoi(r.URL.Query().Get("tf"))
		if tfVal <= 0 {
			tfVal = 300
		}

		limit := 200
		if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 1000 {
			limit = l
		}

		streamKey := fmt.Sprintf("candle:%ds:%s", tfVal, symbol)

		upperBound := "+"
		if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
			if t, err := time.Parse(time.RFC3339Nano, beforeStr); err == nil {
				upperBound = fmt.Sprintf("%d-0", t.UnixMilli()-1)
			} else if t, err := time.Parse(time.RFC3339, beforeStr); err == nil {
				upperBound = fmt.Sprintf("%d-0", t.UnixMilli()-1)
			}
		}

		msgs, err := rdb.XRevRangeN(r.Context(), streamKey, upperBound, "-", int64(limit)).Result()
		if err != nil {
			json.NewEncoder(w).Encode([]interface{}{})
			return
		}

		// Reverse to chronological order
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}

		candles := make([]json.RawMessage, 0, len(msgs))
		for _, msg := range msgs {
			dataStr, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			candles = append(candles, json.RawMessage(dataStr))
		}

		json.NewEncoder(w).Encode(candles)
	})

	// REST: recent signals from the signal stream
	mux.HandleFunc("/api/signals", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		symbol := r.URL.Query().Get("symbol")
		if symbol == "" && len(hub.Symbols) > 0 {
			symbol = hub.Symbols[0]
		}
		limit := 100
		if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 1000 {
			limit = l
		}

		msgs, err := rdb.XRevRangeN(r.Context(), "signals:"+symbol, "+", "-", int64(limit)).Result()
		if err != nil {
			json.NewEncoder(w).Encode([]interface{}{})
			return
		}
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}

		signals := make([]json.RawMessage, 0, len(msgs))
		for _, msg := range msgs {
			dataStr, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			signals = append(signals, json.RawMessage(dataStr))
		}

		json.NewEncoder(w).Encode(signals)
	})

	// REST: replay missed envelopes for a channel in [from, to]
	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		channel := r.URL.Query().Get("channel")
		fromSeq, _ := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
		toSeq, _ := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
		if channel == "" || fromSeq <= 0 {
			http.Error(w, `{"error":"channel and from are required"}`, http.StatusBadRequest)
			return
		}
		if toSeq <= 0 {
			toSeq = hub.GetChannelSeq(channel)
		}

		envelopes := hub.GetReplayRange(channel, fromSeq, toSeq)
		out := make([]json.RawMessage, len(envelopes))
		for i, e := range envelopes {
			out[i] = e
		}
		json.NewEncoder(w).Encode(out)
	})

	// REST: GET current params / POST update (TOTP-gated)
	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		if r.Method == "POST" {
			if !checkTOTP(r, deps.TOTPSecret) {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			var req Params
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
				return
			}
			if err := deps.SetParams(req); err != nil {
				http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
				return
			}
			log.Printf("[gateway] strategy params updated: tol=%g sl=%g rr=%g",
				req.RetestTolerance, req.SLPercent, req.RRRatio)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			return
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"params":  deps.GetParams(),
			"tfs":     hub.TFs,
			"symbols": hub.Symbols,
		})
	})

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		redisOK := rdb.Ping(r.Context()).Err() == nil
		p50, p95, p99 := hub.Latency.Percentiles()
		s50, s95, s99 := hub.Latency.SignalPercentiles()

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":                "ok",
			"redis":                 redisOK,
			"ws_clients":            hub.ClientCount(),
			"uptime_sec":            int64(time.Since(deps.Start).Seconds()),
			"latency_p50_ms":        p50,
			"latency_p95_ms":        p95,
			"latency_p99_ms":        p99,
			"signal_latency_p50_ms": s50,
			"signal_latency_p95_ms": s95,
			"signal_latency_p99_ms": s99,
			"ts":                    time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
