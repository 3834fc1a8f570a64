package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the pipeline from concrete storage backends
// (Redis, SQLite). Each implementation satisfies one or more of them.

// CandleWriter persists finalized candles.
type CandleWriter interface {
	// Run reads candles from candleCh and writes them.
	// Blocks until ctx is cancelled or candleCh is closed.
	Run(ctx context.Context, candleCh <-chan Candle)

	// Close releases underlying resources.
	Close() error
}

// CandleReader reads persisted candles for startup backfill.
type CandleReader interface {
	// ReadCandles returns finalized candles for a symbol and timeframe
	// with a bucket time strictly after afterTS (Unix seconds), oldest first.
	ReadCandles(symbol string, tf int, afterTS int64) ([]Candle, error)

	// Close releases underlying resources.
	Close() error
}

// SignalPublisher hands signal events to an external delivery channel.
// The engine has no knowledge of how or whether delivery succeeds.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, ev SignalEvent) error
}

// SignalConsumer consumes signal events from a stream (e.g. Redis Streams).
type SignalConsumer interface {
	// EnsureConsumerGroup creates consumer groups on the given streams.
	EnsureConsumerGroup(ctx context.Context, streams []string) error

	// ConsumeSignals reads signal events via consumer groups.
	// Blocks until ctx is cancelled.
	ConsumeSignals(ctx context.Context, streams []string, out chan<- SignalEvent) error

	// Close releases underlying resources.
	Close() error
}

// SnapshotStore reads and writes engine state snapshots as raw JSON.
// Using []byte avoids a model→strategy→model import cycle.
type SnapshotStore interface {
	// SaveSnapshotJSON persists a JSON-encoded engine snapshot for a symbol.
	SaveSnapshotJSON(symbol string, data []byte) error

	// ReadLatestSnapshotJSON loads the most recent snapshot for a symbol.
	// Returns nil, nil if no snapshot exists.
	ReadLatestSnapshotJSON(symbol string) ([]byte, error)
}
