package gateway

import (
	"sort"
	"sync"
)

// Replay retention per stream class. Candles are dense and recoverable
// from /api/candles; signals are sparse and a missed one is a missed
// trade, so their buffer keeps far more history.
const (
	candleReplayDepth = 500
	signalReplayDepth = 4096
)

// replayEntry holds a single broadcasted envelope for replay.
type replayEntry struct {
	Seq  int64
	Data []byte // pre-built envelope JSON
}

// ReplayBuffer keeps recent WS envelopes for one channel so clients can
// backfill sequence gaps. Broadcast assigns strictly increasing
// per-channel sequence numbers, so entries stay seq-sorted and Range
// queries binary-search instead of scanning.
//
// Thread-safe for concurrent writes and reads.
type ReplayBuffer struct {
	mu  sync.RWMutex
	buf []replayEntry // seq-ascending, oldest first
	cap int
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = candleReplayDepth
	}
	return &ReplayBuffer{
		buf: make([]replayEntry, 0, capacity),
		cap: capacity,
	}
}

// newReplayBufferFor sizes a buffer by the channel's stream class.
func newReplayBufferFor(channel string) *ReplayBuffer {
	if classify(channel) == classSignal {
		return NewReplayBuffer(signalReplayDepth)
	}
	return NewReplayBuffer(candleReplayDepth)
}

// Push appends an envelope. The oldest entry is dropped once full.
// seq must be greater than the last pushed seq.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	// Copy: the broadcaster reuses its envelope slice.
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.buf) == rb.cap {
		copy(rb.buf, rb.buf[1:])
		rb.buf = rb.buf[:rb.cap-1]
	}
	rb.buf = append(rb.buf, replayEntry{Seq: seq, Data: cp})
}

// Range returns all entries with seq in [fromSeq, toSeq], oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	start := sort.Search(len(rb.buf), func(i int) bool { return rb.buf[i].Seq >= fromSeq })
	end := sort.Search(len(rb.buf), func(i int) bool { return rb.buf[i].Seq > toSeq })
	if start >= end {
		return nil
	}

	result := make([]replayEntry, end-start)
	copy(result, rb.buf[start:end])
	return result
}

// Len returns the number of buffered entries.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.buf)
}
