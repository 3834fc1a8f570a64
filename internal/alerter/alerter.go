// Package alerter consumes trade signal events from the signal stream
// and delivers them to notification backends.
package alerter

import (
	"context"
	"log"
	"time"

	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/notification"
)

const (
	defaultSendTimeout = 10 * time.Second
	defaultRecoverWait = 30 * time.Second
)

// PendingRecoverer is implemented by consumers that can reclaim messages
// left pending by dead consumers.
type PendingRecoverer interface {
	RecoverPending(ctx context.Context, streams []string, out chan<- model.SignalEvent) error
}

// Service routes signal events from a stream consumer to a notifier.
type Service struct {
	consumer model.SignalConsumer
	notifier notification.Notifier
	streams  []string

	// RecoverInterval controls the periodic reclaim of stale pending
	// messages. Zero keeps the default.
	RecoverInterval time.Duration

	// OnDelivered fires after each delivery attempt, nil err on success.
	OnDelivered func(ev *model.SignalEvent, err error)
}

// New creates an alerter consuming the signal streams for the given symbols.
func New(consumer model.SignalConsumer, notifier notification.Notifier, symbols []string) *Service {
	streams := make([]string, len(symbols))
	for i, sym := range symbols {
		streams[i] = model.SignalStreamKey(sym)
	}
	return &Service{
		consumer:        consumer,
		notifier:        notifier,
		streams:         streams,
		RecoverInterval: defaultRecoverWait,
	}
}

// Run consumes signal events and delivers them until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.consumer.EnsureConsumerGroup(ctx, s.streams); err != nil {
		return err
	}

	events := make(chan model.SignalEvent, 100)
	go func() {
		if err := s.consumer.ConsumeSignals(ctx, s.streams, events); err != nil && ctx.Err() == nil {
			log.Printf("[alerter] consumer stopped: %v", err)
		}
	}()

	if rec, ok := s.consumer.(PendingRecoverer); ok {
		go s.runPendingRecovery(ctx, rec, events)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.deliver(ctx, &ev)
		}
	}
}

func (s *Service) deliver(ctx context.Context, ev *model.SignalEvent) {
	alert, ok := notification.SignalAlert(ev)
	if !ok {
		log.Printf("[alerter] skipping unrecognized event type %q", ev.Type)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, defaultSendTimeout)
	err := s.notifier.Send(sendCtx, alert)
	cancel()

	if err != nil {
		log.Printf("[alerter] delivery failed for %s: %v", ev.Symbol(), err)
	}
	if s.OnDelivered != nil {
		s.OnDelivered(ev, err)
	}
}

func (s *Service) runPendingRecovery(ctx context.Context, rec PendingRecoverer, out chan<- model.SignalEvent) {
	interval := s.RecoverInterval
	if interval <= 0 {
		interval = defaultRecoverWait
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rec.RecoverPending(ctx, s.streams, out); err != nil && ctx.Err() == nil {
				log.Printf("[alerter] pending recovery failed: %v", err)
			}
		}
	}
}
