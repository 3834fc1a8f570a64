package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Market data feed
	FeedURL string
	Symbols string // comma-separated, e.g. "BTCUSDT,ETHUSDT"
	BaseTF  int    // seconds, the feed's native candle interval

	// Analysis timeframes (seconds)
	LTF int
	MTF int
	HTF int

	// Strategy parameters
	HTFSwingWindow  int
	MTFSRWindow     int
	SwingHistory    int
	RetestTolerance float64
	SLPercent       float64
	RRRatio         float64
	BufferSize      int

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	MetricsAddr   string

	// Snapshotting
	SnapshotInterval time.Duration

	// Signal consumer (notifier service)
	ConsumerGroup string
	ConsumerName  string

	// Notification channels
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string

	// Gateway
	GatewayAddr       string
	GatewayTOTPSecret string
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is loaded first if present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("[config] no .env file loaded: %v", err)
	}

	return &Config{
		FeedURL: getEnv("FEED_URL", "ws://localhost:8081/ws"),
		Symbols: getEnv("SYMBOLS", "BTCUSDT"),
		BaseTF:  getEnvInt("BASE_TF", 300),

		LTF: getEnvInt("LTF_SECONDS", 300),
		MTF: getEnvInt("MTF_SECONDS", 900),
		HTF: getEnvInt("HTF_SECONDS", 3600),

		HTFSwingWindow:  getEnvInt("HTF_SWING_WINDOW", 2),
		MTFSRWindow:     getEnvInt("MTF_SR_WINDOW", 5),
		SwingHistory:    getEnvInt("SWING_HISTORY", 5),
		RetestTolerance: getEnvFloat("RETEST_TOLERANCE", 0.0005),
		SLPercent:       getEnvFloat("SL_PERCENT", 0.005),
		RRRatio:         getEnvFloat("RR_RATIO", 1.5),
		BufferSize:      getEnvInt("CANDLE_BUFFER_SIZE", 100),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		SnapshotInterval: getEnvDuration("SNAPSHOT_INTERVAL", 5*time.Minute),

		ConsumerGroup: getEnv("CONSUMER_GROUP", "notifier"),
		ConsumerName:  getEnv("CONSUMER_NAME", "worker-1"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		GatewayAddr:       getEnv("GATEWAY_ADDR", ":8080"),
		GatewayTOTPSecret: getEnv("GATEWAY_TOTP_SECRET", ""),
	}
}

// ParseSymbols splits the Symbols string into a clean slice.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.Symbols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// TFs returns the enabled analysis timeframes, shortest first.
func (c *Config) TFs() []int {
	return []int{c.LTF, c.MTF, c.HTF}
}

// Validate checks the timeframe configuration for combinations the
// pipeline cannot serve. The LTF is evaluated directly on feed candles,
// so it must equal the feed's native interval; MTF/HTF are resampled
// from it and must be larger multiples.
func (c *Config) Validate() error {
	if c.BaseTF <= 0 {
		return fmt.Errorf("BASE_TF must be positive, got %d", c.BaseTF)
	}
	if c.LTF != c.BaseTF {
		return fmt.Errorf("LTF_SECONDS (%d) must equal BASE_TF (%d): entry evaluation runs on raw feed candles", c.LTF, c.BaseTF)
	}
	if c.MTF <= c.LTF || c.MTF%c.BaseTF != 0 {
		return fmt.Errorf("MTF_SECONDS (%d) must be a multiple of BASE_TF (%d) larger than LTF", c.MTF, c.BaseTF)
	}
	if c.HTF <= c.MTF || c.HTF%c.BaseTF != 0 {
		return fmt.Errorf("HTF_SECONDS (%d) must be a multiple of BASE_TF (%d) larger than MTF", c.HTF, c.BaseTF)
	}
	return nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using default %g", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid duration for %s: %q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}
