package bus

import (
	"context"
	"testing"
	"time"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10)
	out1 := fo.Subscribe()
	out2 := fo.Subscribe()

	input := make(chan model.Candle, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- model.Candle{Symbol: "BTCUSDT", TF: 300, Open: 100, High: 110, Low: 90, Close: 105}

	for i, out := range []<-chan model.Candle{out1, out2} {
		select {
		case c := <-out:
			if c.Symbol != "BTCUSDT" {
				t.Errorf("out%d: got symbol %s", i+1, c.Symbol)
			}
		case <-time.After(time.Second):
			t.Fatalf("out%d: timed out waiting for candle", i+1)
		}
	}
}

func TestFanOut_SlowConsumerDrops(t *testing.T) {
	fo := New(1)
	slow := fo.Subscribe()

	drops := make(chan int, 10)
	fo.OnDrop = func(idx int) { drops <- idx }

	input := make(chan model.Candle, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	// The slow consumer never reads; its 1-slot buffer fills after one candle.
	input <- model.Candle{Symbol: "BTCUSDT", TF: 300, Close: 1}
	input <- model.Candle{Symbol: "BTCUSDT", TF: 300, Close: 2}

	select {
	case idx := <-drops:
		if idx != 0 {
			t.Errorf("dropped for subscriber %d, want 0", idx)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a drop")
	}
	if c := <-slow; c.Close != 1 {
		t.Errorf("slow consumer kept close=%v, want the first candle", c.Close)
	}
}

func TestFanOut_ClosesOutputsOnInputClose(t *testing.T) {
	fo := New(1)
	out := fo.Subscribe()

	input := make(chan model.Candle)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()

	close(input)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after input close")
	}
	if _, ok := <-out; ok {
		t.Error("output channel should be closed")
	}
}
