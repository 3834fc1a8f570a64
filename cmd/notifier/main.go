// cmd/notifier — standalone signal delivery service.
// Consumes trade signal events from the Redis signal streams (via a
// consumer group, so restarts never lose messages) and forwards them to
// Telegram and/or a webhook.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/theonlyronsonik-lab/trading-for-btc/config"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/alerter"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/notification"
	redisstore "github.com/theonlyronsonik-lab/trading-for-btc/internal/store/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[notifier] starting...")

	cfg := config.Load()
	symbols := cfg.ParseSymbols()
	if len(symbols) == 0 {
		log.Fatal("[notifier] no symbols configured")
	}

	reader, err := redisstore.NewReader(redisstore.ReaderConfig{
		Addr:          cfg.RedisAddr,
		Password:      cfg.RedisPassword,
		DB:            cfg.RedisDB,
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  cfg.ConsumerName,
	})
	if err != nil {
		log.Fatalf("[notifier] redis init failed: %v", err)
	}
	defer reader.Close()

	backends := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
		log.Println("[notifier] telegram delivery enabled")
	}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
		log.Printf("[notifier] webhook delivery enabled: %s", cfg.WebhookURL)
	}

	svc := alerter.New(reader, notification.NewMulti(backends...), symbols)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[notifier] shutdown signal received")
		cancel()
	}()

	log.Printf("[notifier] consuming signals for %v (group=%s)", symbols, cfg.ConsumerGroup)
	if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("[notifier] stopped: %v", err)
	}
	log.Println("[notifier] shutdown complete.")
}
