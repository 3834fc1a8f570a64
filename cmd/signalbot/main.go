// cmd/signalbot — the market structure signal engine.
//
// Pipeline:
//
//	[Feed WS] → [FanOut] → [SQLite writer]
//	                     → [Redis writer (circuit-broken)]
//	                     → [TF resampler → strategy engines → signals]
//
// Signals are published to per-symbol Redis streams and broadcast to
// gateway WebSocket clients. Engine state is checkpointed to SQLite and
// restored (with a candle backfill) on restart.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/theonlyronsonik-lab/trading-for-btc/config"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/gateway"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/logger"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/marketdata/bus"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/marketdata/feed"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/marketdata/replay"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/marketdata/tfbuilder"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/metrics"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/model"
	redisstore "github.com/theonlyronsonik-lab/trading-for-btc/internal/store/redis"
	sqlitestore "github.com/theonlyronsonik-lab/trading-for-btc/internal/store/sqlite"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/strategy"
	"github.com/theonlyronsonik-lab/trading-for-btc/internal/structure"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[signalbot] starting...")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[signalbot] bad configuration: %v", err)
	}
	logger.Init("signalbot", slog.LevelInfo)

	symbols := cfg.ParseSymbols()
	if len(symbols) == 0 {
		log.Fatal("[signalbot] no symbols configured")
	}
	log.Printf("[signalbot] symbols=%v tfs=%v", symbols, cfg.TFs())

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetEnabledTFs(cfg.TFs())
	health.SetSymbols(symbols)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite (candles + snapshots) ----
	os.MkdirAll("data", 0o755)
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[signalbot] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	health.SetSQLiteOK(true)

	// ---- Redis (streams, pubsub, signal delivery) ----
	var redisWriter *redisstore.Writer
	var bufferedRedis *redisstore.BufferedWriter
	redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Printf("[signalbot] WARNING: redis init failed: %v (continuing without redis)", err)
		health.SetRedisConnected(false)
	} else {
		health.SetRedisConnected(true)

		cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
			}
			log.Printf("[signalbot] redis circuit breaker: %s -> %s", from, to)
		}
		bufferedRedis = redisstore.NewBufferedWriter(ctx, redisWriter, cb, 10000)
		bufferedRedis.OnBuffer = func() { prom.RedisBufferedWrites.Inc() }
	}

	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- Strategy engines with snapshot restore + backfill ----
	engCfg := strategy.Config{
		HTFSwingWindow:  cfg.HTFSwingWindow,
		MTFSRWindow:     cfg.MTFSRWindow,
		SwingHistory:    cfg.SwingHistory,
		RetestTolerance: cfg.RetestTolerance,
		SLPercent:       cfg.SLPercent,
		RRRatio:         cfg.RRRatio,
		BufferSize:      cfg.BufferSize,
	}

	p := &pipeline{
		cfg:     cfg,
		engCfg:  engCfg,
		engines: make(map[string]*strategy.Engine),
		tfb:     tfbuilder.New(cfg.BaseTF, []int{cfg.MTF, cfg.HTF}),
		tfCh:    make(chan model.Candle, 1000),
		redis:   bufferedRedis,
		sql:     sqlWriter,
		prom:    prom,
		health:  health,
	}
	p.tfb.OnStaleCandle = func(symbol string, tf int) {
		prom.StaleCandlesRejected.Inc()
	}

	for _, sym := range symbols {
		p.engines[sym] = p.newEngine(sym)
	}
	p.warmup(symbols)

	// ---- Fan-out base candles (SQLite + Redis + pipeline) ----
	fanout := bus.New(5000)
	fanout.OnDrop = func(subscriberIdx int) {
		prom.FanoutDropsTotal.WithLabelValues(strconv.Itoa(subscriberIdx)).Inc()
	}

	sqliteIn := fanout.Subscribe()
	var redisIn <-chan model.Candle
	if bufferedRedis != nil {
		redisIn = fanout.Subscribe()
	}
	pipelineIn := fanout.Subscribe()

	feedCh := make(chan model.Candle, 5000)
	go fanout.Run(ctx, feedCh)

	// SQLite sink merges base candles and resampled TF candles.
	sqliteSink := make(chan model.Candle, 5000)
	p.sqliteSink = sqliteSink
	go sqlWriter.Run(ctx, sqliteSink)
	go forward(ctx, sqliteIn, sqliteSink)

	if bufferedRedis != nil {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case c, ok := <-redisIn:
					if !ok {
						return
					}
					start := time.Now()
					bufferedRedis.WriteCandle(c)
					prom.RedisWriteDur.Observe(time.Since(start).Seconds())
				}
			}
		}()
	}

	go p.run(ctx, pipelineIn)

	// Channel saturation sampling
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := fanout.ChannelStats()
				for i, s := range stats {
					if s.Cap > 0 {
						pct := float64(s.Len) / float64(s.Cap) * 100
						prom.ChannelSaturationPct.WithLabelValues("fanout_" + strconv.Itoa(i)).Set(pct)
					}
				}
			}
		}
	}()

	// ---- Gateway (WS + REST) ----
	if redisWriter != nil {
		hub := gateway.NewHub(redisWriter.Client(), cfg.TFs(), symbols)
		go hub.Run(ctx)

		mux := http.NewServeMux()
		gateway.RegisterRoutes(mux, hub, redisWriter.Client(), gateway.Deps{
			StateFor:   p.stateFor,
			GetParams:  p.getParams,
			SetParams:  p.setParams,
			TOTPSecret: cfg.GatewayTOTPSecret,
			Start:      time.Now(),
		})
		gwSrv := &http.Server{Addr: cfg.GatewayAddr, Handler: mux}
		go func() {
			log.Printf("[signalbot] gateway listening on %s", cfg.GatewayAddr)
			if err := gwSrv.ListenAndServe(); err != http.ErrServerClosed {
				log.Printf("[signalbot] gateway error: %v", err)
			}
		}()
		defer gwSrv.Shutdown(context.Background())
	}

	// ---- Feed ----
	feedClient, err := feed.New(feed.Config{URL: cfg.FeedURL})
	if err != nil {
		log.Fatalf("[signalbot] feed init failed: %v", err)
	}
	feedClient.OnConnect = func() { health.SetFeedConnected(true) }
	feedClient.OnReconnect = func() {
		health.SetFeedConnected(false)
		prom.FeedReconnects.Inc()
	}
	feedClient.OnDrop = func(c model.Candle) { prom.DroppedCandles.Inc() }

	go func() {
		if err := feedClient.Start(ctx, feedCh); err != nil {
			log.Printf("[signalbot] feed stopped: %v", err)
			health.SetFeedConnected(false)
		}
	}()

	health.SetEngineOK(true)
	log.Printf("[signalbot] pipeline ready: feed=%s ltf=%ds mtf=%ds htf=%ds",
		cfg.FeedURL, cfg.LTF, cfg.MTF, cfg.HTF)

	// ---- Shutdown ----
	<-sigCh
	log.Println("[signalbot] shutdown signal received, cleaning up...")
	cancel()

	p.saveSnapshots()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	if redisWriter != nil {
		redisWriter.Close()
	}
	log.Println("[signalbot] shutdown complete.")
}

var errInvalidParams = errors.New("retest_tolerance, sl_percent and rr_ratio must be positive")

// forward copies candles between channels until ctx is cancelled.
func forward(ctx context.Context, in <-chan model.Candle, out chan<- model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

// pipeline owns all strategy engines. A single goroutine calls the
// engine methods; the mutex only serializes REST reads and parameter
// updates against it.
type pipeline struct {
	mu      sync.Mutex
	cfg     *config.Config
	engCfg  strategy.Config
	engines map[string]*strategy.Engine
	tfb     *tfbuilder.Builder
	tfCh    chan model.Candle

	redis      *redisstore.BufferedWriter
	sql        *sqlitestore.Writer
	sqliteSink chan<- model.Candle
	prom       *metrics.Metrics
	health     *metrics.HealthStatus
}

func (p *pipeline) newEngine(symbol string) *strategy.Engine {
	eng := strategy.NewEngine(symbol, p.engCfg)
	eng.OnSwing = func(tf int, kind string, sp structure.SwingPoint) {
		p.prom.SwingsTotal.WithLabelValues(strconv.Itoa(tf), kind).Inc()
	}
	eng.OnRegime = func(r structure.Regime) {
		p.prom.RegimeState.WithLabelValues(symbol).Set(regimeValue(r))
	}
	eng.OnBOS = func(bos structure.BOS, c model.Candle) {
		p.prom.BOSTotal.WithLabelValues(string(bos)).Inc()
		slog.Info("break of structure", "symbol", symbol, "kind", string(bos), "close", c.Close)
	}
	eng.OnRetest = func(sig structure.RetestSignal) {
		p.prom.RetestConfirmed.WithLabelValues(string(sig.Kind)).Inc()
	}
	eng.OnDrop = func(tf int, c model.Candle) {
		p.prom.OutOfOrderDropped.Inc()
	}
	return eng
}

// warmup refills engine candle buffers from SQLite and restores the
// latest snapshot on top. Signals produced during replay are discarded.
func (p *pipeline) warmup(symbols []string) {
	reader, err := sqlitestore.NewReader(p.cfg.SQLitePath)
	if err != nil {
		log.Printf("[signalbot] warmup skipped, sqlite reader: %v", err)
		return
	}
	defer reader.Close()

	backfiller := replay.New(reader)
	afterTS := time.Now().Add(-time.Duration(p.cfg.BufferSize*p.cfg.HTF) * time.Second).Unix()

	for _, sym := range symbols {
		eng := p.engines[sym]
		err := backfiller.Run(sym, p.cfg.TFs(), afterTS, func(c model.Candle) {
			switch c.TF {
			case p.cfg.HTF:
				eng.OnHTFCandle(c)
			case p.cfg.MTF:
				eng.OnMTFCandle(c)
			case p.cfg.LTF:
				eng.OnLTFCandle(c)
			}
		})
		if err != nil {
			log.Printf("[signalbot] backfill failed for %s: %v", sym, err)
		}

		snap, err := p.sql.ReadLatestSnapshotJSON(sym)
		if err != nil {
			log.Printf("[signalbot] snapshot read failed for %s: %v", sym, err)
			continue
		}
		if snap == nil {
			continue
		}
		if err := eng.RestoreJSON(snap); err != nil {
			log.Printf("[signalbot] snapshot restore failed for %s: %v (starting fresh)", sym, err)
			continue
		}
		log.Printf("[signalbot] restored snapshot for %s (regime=%s)", sym, eng.Regime())
	}
}

func (p *pipeline) run(ctx context.Context, in <-chan model.Candle) {
	snapTicker := time.NewTicker(p.cfg.SnapshotInterval)
	defer snapTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-snapTicker.C:
			p.saveSnapshots()
		case c, ok := <-in:
			if !ok {
				return
			}
			p.handleBaseCandle(c)
		}
	}
}

func (p *pipeline) handleBaseCandle(c model.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	p.prom.CandlesTotal.WithLabelValues(strconv.Itoa(c.TF)).Inc()
	p.prom.CandleLag.Set(time.Since(c.TS).Seconds())
	p.health.SetLastCandleTime(c.TS)

	// Resample into MTF/HTF; closed buckets arrive before the base
	// candle is evaluated, so higher-timeframe context is always fresh.
	tfStart := time.Now()
	p.tfb.Process(c, p.tfCh)
	p.prom.TFBuildDur.Observe(time.Since(tfStart).Seconds())
	p.drainTF()

	eng, ok := p.engines[c.Symbol]
	if !ok {
		eng = p.newEngine(c.Symbol)
		p.engines[c.Symbol] = eng
		log.Printf("[signalbot] new symbol from feed: %s", c.Symbol)
	}

	entry, exit := eng.OnLTFCandle(c)
	p.prom.EngineEvalDur.Observe(time.Since(start).Seconds())

	if entry != nil {
		p.prom.EntrySignalsTotal.WithLabelValues(string(entry.Side), entry.Reason).Inc()
		p.publish(model.SignalEvent{Type: model.EventEntry, Entry: entry})
		slog.Info("entry signal",
			"trace_id", logger.GenerateTraceID(entry.Symbol, entry.TS),
			"symbol", entry.Symbol, "side", entry.Side, "reason", entry.Reason,
			"entry", entry.EntryPrice, "sl", entry.StopLoss, "tp", entry.TakeProfit)
	}
	if exit != nil {
		p.prom.ExitSignalsTotal.WithLabelValues(string(exit.Side), string(exit.Result)).Inc()
		p.publish(model.SignalEvent{Type: model.EventExit, Exit: exit})
		slog.Info("exit signal",
			"trace_id", logger.GenerateTraceID(exit.Symbol, exit.TS),
			"symbol", exit.Symbol, "side", exit.Side, "result", exit.Result,
			"exit", exit.ExitPrice, "pnl", exit.PnL)
	}

	rts, str := eng.PendingLevels()
	p.prom.PendingRTSLevels.WithLabelValues(c.Symbol).Set(float64(rts))
	p.prom.PendingSTRLevels.WithLabelValues(c.Symbol).Set(float64(str))
}

// drainTF consumes every resampled candle the last Process produced.
func (p *pipeline) drainTF() {
	for {
		select {
		case tfc := <-p.tfCh:
			p.handleTFCandle(tfc)
		default:
			return
		}
	}
}

func (p *pipeline) handleTFCandle(tfc model.Candle) {
	if p.redis != nil {
		p.redis.WriteCandle(tfc) // forming snapshots go to pubsub only
	}
	if tfc.Forming {
		return
	}

	p.prom.CandlesTotal.WithLabelValues(strconv.Itoa(tfc.TF)).Inc()
	select {
	case p.sqliteSink <- tfc:
	default:
		p.prom.DroppedCandles.Inc()
	}

	eng, ok := p.engines[tfc.Symbol]
	if !ok {
		return
	}
	switch tfc.TF {
	case p.cfg.HTF:
		eng.OnHTFCandle(tfc)
	case p.cfg.MTF:
		eng.OnMTFCandle(tfc)
	}
}

func (p *pipeline) publish(ev model.SignalEvent) {
	if p.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.redis.PublishSignal(ctx, ev); err != nil {
		log.Printf("[signalbot] signal publish failed: %v", err)
	}
}

func (p *pipeline) saveSnapshots() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sym, eng := range p.engines {
		data, err := eng.SnapshotJSON()
		if err != nil {
			log.Printf("[signalbot] snapshot marshal failed for %s: %v", sym, err)
			continue
		}
		if err := p.sql.SaveSnapshotJSON(sym, data); err != nil {
			log.Printf("[signalbot] snapshot save failed for %s: %v", sym, err)
		}
	}
}

func (p *pipeline) stateFor(symbol string) (interface{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	eng, ok := p.engines[symbol]
	if !ok {
		return nil, false
	}
	rts, str := eng.PendingLevels()
	return map[string]interface{}{
		"symbol":      symbol,
		"regime":      eng.Regime(),
		"levels":      eng.Levels(),
		"position":    eng.Position(),
		"pending_rts": rts,
		"pending_str": str,
	}, true
}

func (p *pipeline) getParams() gateway.Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	tol, sl, rr := p.engCfg.RetestTolerance, p.engCfg.SLPercent, p.engCfg.RRRatio
	return gateway.Params{RetestTolerance: tol, SLPercent: sl, RRRatio: rr}
}

func (p *pipeline) setParams(params gateway.Params) error {
	if params.RetestTolerance <= 0 || params.SLPercent <= 0 || params.RRRatio <= 0 {
		return errInvalidParams
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engCfg.RetestTolerance = params.RetestTolerance
	p.engCfg.SLPercent = params.SLPercent
	p.engCfg.RRRatio = params.RRRatio
	for _, eng := range p.engines {
		eng.SetRiskParams(params.RetestTolerance, params.SLPercent, params.RRRatio)
	}
	return nil
}

func regimeValue(r structure.Regime) float64 {
	switch r {
	case structure.RegimeBullish:
		return 1
	case structure.RegimeBearish:
		return -1
	}
	return 0
}
