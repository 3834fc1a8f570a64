// cmd/feedsim — Demo WebSocket candle feed.
// Broadcasts simulated base-TF candles so the signal engine can run
// without a real exchange connection.
//
// Candle JSON shape is identical to model.Candle:
//
//	{"symbol":"BTCUSDT","tf":300,"ts":"...","open":...,"high":...,"low":...,"close":...,"volume":...}
//
// Config (env vars):
//
//	FEED_SERVER_ADDR    — listen address (default: ":8081")
//	FEED_SYMBOLS        — comma-separated SYMBOL:STARTPRICE pairs (default: "BTCUSDT:50000")
//	FEED_TF             — candle timeframe in seconds (default: "300")
//	FEED_INTERVAL_MS    — broadcast interval milliseconds; each interval
//	                      emits one closed candle, so the feed runs at
//	                      accelerated time (default: "1000")
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/marketdata/sim"
)

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client, drop candle
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[feedsim] upgrade error: %v", err)
			return
		}
		log.Printf("[feedsim] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[feedsim] client disconnected: %s", r.RemoteAddr)
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func runGenerator(h *hub, walkers []*sim.Walker, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		for _, w := range walkers {
			c := w.Next()
			h.broadcast(c.JSON())
		}
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[feedsim] starting demo candle feed...")

	addr := envOrDefault("FEED_SERVER_ADDR", ":8081")
	symbolsEnv := envOrDefault("FEED_SYMBOLS", "BTCUSDT:50000")
	tf := envIntOrDefault("FEED_TF", 300)
	intervalMs := envIntOrDefault("FEED_INTERVAL_MS", 1000)

	walkers := parseWalkers(symbolsEnv, tf)
	if len(walkers) == 0 {
		log.Fatalf("[feedsim] no symbols configured via FEED_SYMBOLS")
	}
	log.Printf("[feedsim] tf=%ds interval=%dms symbols=%d", tf, intervalMs, len(walkers))

	h := newHub()
	go runGenerator(h, walkers, intervalMs)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedsim"}`)
	})

	log.Printf("[feedsim] listening on %s (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[feedsim] server error: %v", err)
	}
}

// parseWalkers parses "BTCUSDT:50000,ETHUSDT:3000" into seeded walkers.
// History starts far enough in the past that accelerated emission stays
// behind wall-clock time.
func parseWalkers(s string, tf int) []*sim.Walker {
	start := time.Now().UTC().Add(-90 * 24 * time.Hour)

	var result []*sim.Walker
	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		seg := strings.SplitN(part, ":", 2)
		symbol := strings.TrimSpace(seg[0])
		price := 1000.0
		if len(seg) == 2 {
			if p, err := strconv.ParseFloat(strings.TrimSpace(seg[1]), 64); err == nil && p > 0 {
				price = p
			}
		}
		result = append(result, sim.New(symbol, tf, price, start, time.Now().UnixNano()+int64(i)))
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
