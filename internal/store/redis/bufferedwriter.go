package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
)

// pendingWrite is a write buffered while the circuit is open.
type pendingWrite struct {
	WriteType string // "candle" or "signal"
	Data      []byte // JSON-encoded payload
}

// BufferedWriter wraps a Redis Writer with a circuit breaker. While the
// circuit is open, writes are buffered locally and replayed when it closes,
// so a Redis outage degrades to delayed delivery instead of data loss.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int

	// Callbacks
	OnBuffer func()          // called when a write is buffered
	OnFlush  func(count int) // called after flushing buffered writes
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]pendingWrite, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Flush buffered writes whenever the circuit closes again.
	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteCandle writes a candle through the circuit breaker. If the circuit is
// open, the candle is buffered locally.
func (bw *BufferedWriter) WriteCandle(c model.Candle) error {
	err := bw.cb.Execute(func() error {
		bw.writer.writeCandle(bw.ctx, c) // logs its own errors
		return nil
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite("candle", c)
		return nil
	}
	return err
}

// PublishSignal publishes a signal event through the circuit breaker,
// buffering it if the circuit is open. Signals are never silently dropped.
func (bw *BufferedWriter) PublishSignal(ctx context.Context, ev model.SignalEvent) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.PublishSignal(ctx, ev)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite("signal", &ev)
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(writeType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[buffered-writer] marshal error: %v", err)
		return
	}

	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full — drop oldest.
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, pendingWrite{WriteType: writeType, Data: data})

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered writes through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]pendingWrite, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, pw := range toFlush {
		switch pw.WriteType {
		case "candle":
			var c model.Candle
			if json.Unmarshal(pw.Data, &c) == nil {
				bw.writer.writeCandle(bw.ctx, c)
			}
		case "signal":
			var ev model.SignalEvent
			if json.Unmarshal(pw.Data, &ev) == nil {
				if err := bw.writer.PublishSignal(bw.ctx, ev); err != nil {
					log.Printf("[buffered-writer] replay signal: %v", err)
				}
			}
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d buffered writes", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the wrapped Redis writer for direct access.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}
