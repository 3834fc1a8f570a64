// Package metrics exposes Prometheus instrumentation and a health
// endpoint for the signal engine pipeline.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	CandlesTotal   *prometheus.CounterVec // labels: tf
	FeedReconnects prometheus.Counter
	DroppedCandles prometheus.Counter
	CandleLag      prometheus.Gauge

	// TF resampler metrics
	TFBuildDur           prometheus.Histogram
	StaleCandlesRejected prometheus.Counter

	// Engine metrics
	EngineEvalDur     prometheus.Histogram
	SwingsTotal       *prometheus.CounterVec // labels: tf, kind
	BOSTotal          *prometheus.CounterVec // labels: kind
	RegimeState       *prometheus.GaugeVec   // labels: symbol; 0=ranging, 1=bullish, -1=bearish
	RetestConfirmed   *prometheus.CounterVec // labels: kind
	PendingRTSLevels  *prometheus.GaugeVec   // labels: symbol
	PendingSTRLevels  *prometheus.GaugeVec   // labels: symbol
	OutOfOrderDropped prometheus.Counter

	// Signal metrics
	EntrySignalsTotal *prometheus.CounterVec // labels: side, reason
	ExitSignalsTotal  *prometheus.CounterVec // labels: side, result

	// Backpressure metrics
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name
	RingBufOverflow      prometheus.Counter

	// Store metrics
	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram

	// Circuit breaker metrics
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	// Signal consumer metrics
	PELMessagesReclaimed prometheus.Counter
	NotificationsSent    *prometheus.CounterVec // labels: channel, status
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_candles_total",
			Help: "Total closed candles processed (by timeframe)",
		}, []string{"tf"}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_feed_reconnects_total",
			Help: "Total candle feed reconnection attempts",
		}),
		DroppedCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_dropped_candles_total",
			Help: "Candles dropped because a downstream channel was full",
		}),
		CandleLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_candle_lag_seconds",
			Help: "Lag between candle timestamp and processing time",
		}),

		TFBuildDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_tf_build_duration_seconds",
			Help:    "TF resampler processing latency per candle",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		StaleCandlesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_stale_candles_rejected_total",
			Help: "Candles rejected by the TF builder due to staleness",
		}),

		EngineEvalDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_engine_eval_duration_seconds",
			Help:    "Strategy engine evaluation latency per candle",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		SwingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_swings_total",
			Help: "Swing points detected (by timeframe and kind)",
		}, []string{"tf", "kind"}),
		BOSTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_bos_total",
			Help: "Break-of-structure events detected (by kind)",
		}, []string{"kind"}),
		RegimeState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalbot_regime_state",
			Help: "Current market regime (0=ranging, 1=bullish, -1=bearish)",
		}, []string{"symbol"}),
		RetestConfirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_retests_confirmed_total",
			Help: "Retest levels confirmed (by kind: rts, str)",
		}, []string{"kind"}),
		PendingRTSLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalbot_pending_rts_levels",
			Help: "Unconfirmed RTS breach levels currently tracked",
		}, []string{"symbol"}),
		PendingSTRLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalbot_pending_str_levels",
			Help: "Unconfirmed STR breach levels currently tracked",
		}, []string{"symbol"}),
		OutOfOrderDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_out_of_order_candles_total",
			Help: "Candles dropped by the engine for non-monotonic timestamps",
		}),

		EntrySignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_entry_signals_total",
			Help: "Entry signals generated (by side and reason)",
		}, []string{"side", "reason"}),
		ExitSignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_exit_signals_total",
			Help: "Exit signals generated (by side and result)",
		}, []string{"side", "result"}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_fanout_drops_total",
			Help: "Candles dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalbot_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),
		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_ringbuf_overflow_total",
			Help: "Ring buffer push overflows (dropped candles)",
		}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_redis_buffered_writes_total",
			Help: "Writes buffered locally while the Redis circuit breaker was open",
		}),

		PELMessagesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_pel_messages_reclaimed_total",
			Help: "Signal messages reclaimed from dead consumers via XCLAIM",
		}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_notifications_sent_total",
			Help: "Notifications dispatched (by channel and status)",
		}, []string{"channel", "status"}),
	}

	prometheus.MustRegister(
		m.CandlesTotal,
		m.FeedReconnects,
		m.DroppedCandles,
		m.CandleLag,
		m.TFBuildDur,
		m.StaleCandlesRejected,
		m.EngineEvalDur,
		m.SwingsTotal,
		m.BOSTotal,
		m.RegimeState,
		m.RetestConfirmed,
		m.PendingRTSLevels,
		m.PendingSTRLevels,
		m.OutOfOrderDropped,
		m.EntrySignalsTotal,
		m.ExitSignalsTotal,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.RingBufOverflow,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.PELMessagesReclaimed,
		m.NotificationsSent,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastCandleTime time.Time `json:"last_candle_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	EngineOK       bool      `json:"engine_ok"`
	EnabledTFs     []int     `json:"enabled_tfs"`
	Symbols        []string  `json:"symbols"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetEngineOK(v bool) {
	h.mu.Lock()
	h.EngineOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetEnabledTFs(tfs []int) {
	h.mu.Lock()
	h.EnabledTFs = tfs
	h.mu.Unlock()
}

func (h *HealthStatus) SetSymbols(symbols []string) {
	h.mu.Lock()
	h.Symbols = symbols
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		FeedConnected   bool     `json:"feed_connected"`
		LastCandleTime  string   `json:"last_candle_time"`
		CandleAge       string   `json:"candle_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		EngineOK        bool     `json:"engine_ok"`
		EnabledTFs      []int    `json:"enabled_tfs"`
		Symbols         []string `json:"symbols"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastCandleTime:  h.LastCandleTime.Format(time.RFC3339),
		CandleAge:       candleAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		EngineOK:        h.EngineOK,
		EnabledTFs:      h.EnabledTFs,
		Symbols:         h.Symbols,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
