// Package feed provides the WebSocket market-data client. It connects to a
// candle feed server (an exchange bridge or cmd/feedsim) and pushes closed
// trade-timeframe candles into the pipeline.
//
// The expected JSON message format on the wire is model.Candle:
//
//	{"symbol":"BTCUSDT","tf":300,"ts":"...","open":64100.5,...}
package feed

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/ringbuf"
)

// ringCapacity sizes the lock-free buffer between the WS read loop and
// the pipeline drain goroutine.
const ringCapacity = 4096

// Config holds configuration for the feed client.
type Config struct {
	// URL of the candle feed server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Client connects to a JSON candle feed and pushes model.Candle values into
// a channel, reconnecting with exponential backoff on disconnect.
//
// The WS read loop never blocks on the pipeline: candles pass through a
// lock-free SPSC ring, drained by a goroutine that feeds candleCh.
type Client struct {
	cfg    Config
	ring   *ringbuf.Ring[model.Candle]
	notify chan struct{}

	// Optional hooks.
	OnConnect   func()
	OnReconnect func()
	OnDrop      func(c model.Candle)
}

// New creates a feed client. Returns an error if the URL is unparseable.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Client{
		cfg:    cfg,
		ring:   ringbuf.New[model.Candle](ringCapacity),
		notify: make(chan struct{}, 1),
	}, nil
}

// Overflow reports candles dropped because the ring was full.
func (cl *Client) Overflow() uint64 {
	return cl.ring.Overflow()
}

// Start connects to the feed and streams candles into candleCh. Blocks
// until ctx is cancelled. Reconnects automatically on disconnect.
func (cl *Client) Start(ctx context.Context, candleCh chan<- model.Candle) error {
	delay := cl.cfg.ReconnectDelay

	go cl.drain(ctx, candleCh)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := cl.runOnce(ctx)
		if err == nil {
			return nil
		}

		log.Printf("[feed] disconnected (%v), reconnecting in %s...", err, delay)
		if cl.OnReconnect != nil {
			cl.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > cl.cfg.MaxReconnectDelay {
			delay = cl.cfg.MaxReconnectDelay
		}
	}
}

// drain pops buffered candles off the ring and delivers them in order.
func (cl *Client) drain(ctx context.Context, candleCh chan<- model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-cl.notify:
		}
		for {
			c, ok := cl.ring.Pop()
			if !ok {
				break
			}
			select {
			case candleCh <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel.
func (cl *Client) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cl.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[feed] connected to %s", cl.cfg.URL)
	if cl.OnConnect != nil {
		cl.OnConnect()
	}

	// Context watcher: closes the connection when ctx is cancelled so the
	// blocking ReadMessage returns.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var c model.Candle
		if err := json.Unmarshal(raw, &c); err != nil {
			log.Printf("[feed] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if c.Symbol == "" {
			log.Printf("[feed] skipping candle with empty symbol")
			continue
		}
		if c.Forming {
			// The pipeline only operates on closed candles.
			continue
		}

		if !cl.ring.Push(c) {
			if cl.OnDrop != nil {
				cl.OnDrop(c)
			} else {
				log.Println("[feed] ring full, dropping candle")
			}
			continue
		}
		select {
		case cl.notify <- struct{}{}:
		default:
		}
	}
}
