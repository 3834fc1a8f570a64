package gateway

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket peer.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	filters ClientFilters
}

// ClientFilters allows per-client subscription filtering.
type ClientFilters struct {
	TFs     []int    `json:"tfs"`
	Symbols []string `json:"symbols"`
}

func (c *Client) sendInitialState(lastTS string) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}

		envelope, _ := json.Marshal(map[string]interface{}{
			"channel": channel,
			"data":    json.RawMessage(entry.Data),
			"ts":      entry.TS.Format(time.RFC3339Nano),
			"initial": true,
		})
		select {
		case c.send <- envelope:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Write coalescing: batch queued messages into a single
			// WebSocket frame with newline separators
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var base struct {
			Ping int64 `json:"ping"`
		}
		if json.Unmarshal(msg, &base) != nil {
			continue
		}

		if base.Ping > 0 {
			pong, _ := json.Marshal(map[string]interface{}{
				"type":      "pong",
				"ping":      base.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			select {
			case c.send <- pong:
			default:
			}
			continue
		}

		// Filter update
		var filters ClientFilters
		if json.Unmarshal(msg, &filters) == nil {
			c.filters = filters
		}
	}
}

// matchesChannel checks whether a PubSub channel passes this client's
// filters. Non-data channels always pass.
func (c *Client) matchesChannel(channel string) bool {
	parsed := parseChannel(channel)
	if parsed == nil {
		return true
	}

	if !matchesSymbol(c.filters.Symbols, parsed.symbol) {
		return false
	}
	if parsed.chType == "candle" && len(c.filters.TFs) > 0 {
		for _, tf := range c.filters.TFs {
			if tf == parsed.tf {
				return true
			}
		}
		return false
	}
	return true
}

func matchesSymbol(symbols []string, symbol string) bool {
	if len(symbols) == 0 {
		return true
	}
	for _, s := range symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// parsedChannel holds the parsed components of a Redis PubSub channel name.
type parsedChannel struct {
	chType string // "candle" or "signals"
	tf     int    // timeframe in seconds, candle channels only
	symbol string
}

// parseChannel parses a PubSub channel like "pub:candle:900s:BTCUSDT"
// or "pub:signals:BTCUSDT".
func parseChannel(channel string) *parsedChannel {
	parts := strings.Split(channel, ":")
	if len(parts) < 3 || parts[0] != "pub" {
		return nil
	}

	// pub:candle:900s:BTCUSDT  (4 parts)
	if parts[1] == "candle" && len(parts) >= 4 {
		return &parsedChannel{
			chType: "candle",
			tf:     parseTFStr(parts[2]),
			symbol: parts[3],
		}
	}

	// pub:signals:BTCUSDT  (3 parts)
	if parts[1] == "signals" {
		return &parsedChannel{
			chType: "signals",
			symbol: parts[2],
		}
	}

	return nil
}

// parseTFStr parses "900s" → 900.
func parseTFStr(s string) int {
	s = strings.TrimSuffix(s, "s")
	n := 0
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			n = n*10 + int(ch-'0')
		}
	}
	return n
}
