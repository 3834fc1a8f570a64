package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
)

const (
	defaultLatestTTL = 30 * time.Minute
	signalStreamMax  = 1000
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes candles and signal events to Redis: XADD to streams for
// durable consumers, SET for latest-value lookups, PUBLISH for live
// subscribers.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// Run reads candles from candleCh and writes them to Redis. Forming candles
// are published via PubSub only; closed candles get the full pipeline.
// Blocks until ctx is cancelled or candleCh is closed.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-candleCh:
			if !ok {
				return
			}
			w.writeCandle(ctx, c)
		}
	}
}

// writeCandle performs pipelined writes for one candle.
func (w *Writer) writeCandle(ctx context.Context, c model.Candle) {
	jsonData := string(c.JSON())
	pubsubCh := "pub:" + c.StreamKey()

	if c.Forming {
		// Live preview only; streams hold closed candles.
		if err := w.client.Publish(ctx, pubsubCh, jsonData).Err(); err != nil {
			log.Printf("[redis] publish forming %s: %v", c.Symbol, err)
		}
		return
	}

	// Proportional MAXLEN: ~3h of candles per TF, floor 200.
	maxLen := int64(10800/c.TF) + 100
	if maxLen < 200 {
		maxLen = 200
	}

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: c.StreamKey(),
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Set(ctx, "candle:"+itoa(c.TF)+"s:latest:"+c.Symbol, jsonData, defaultLatestTTL)
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] pipeline error for %s tf=%d: %v", c.Symbol, c.TF, err)
	}
}

// PublishSignal writes a signal event to the symbol's signal stream and
// publishes it for live subscribers.
func (w *Writer) PublishSignal(ctx context.Context, ev model.SignalEvent) error {
	jsonData := string(ev.JSON())
	streamKey := model.SignalStreamKey(ev.Symbol())

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: signalStreamMax,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, "pub:"+streamKey, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish signal: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
