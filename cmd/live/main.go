// cmd/live runs the streaming indicator engine: WebSocket bar feed → ring
// buffer → engine → SQLite persistence, with periodic snapshot checkpoints
// to Redis and SQLite and a Prometheus metrics endpoint.
//
// Usage:
//
//	go run ./cmd/live --config=config.yaml
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"tickcore/config"
	"tickcore/internal/engine"
	"tickcore/internal/feed"
	"tickcore/internal/logger"
	"tickcore/internal/metrics"
	"tickcore/internal/ringbuf"
	redisstore "tickcore/internal/store/redis"
	sqlitestore "tickcore/internal/store/sqlite"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.Init(cfg.Service, logger.ParseLevel(cfg.LogLevel))
	if cfg.Feed.URL == "" {
		log.Error("feed.url is required for live mode")
		os.Exit(1)
	}
	mx := metrics.NewMetrics()
	health := metrics.NewHealthStatus()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	// Storage. SQLite is required; Redis is the fast checkpoint path and the
	// system degrades without it.
	store, err := sqlitestore.Open(sqlitestore.Config{Path: cfg.SQLite.Path}, log)
	if err != nil {
		log.Error("sqlite open failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer store.Close()
	health.SetSQLiteOK(true)

	var checkpoint *redisstore.Checkpoint
	if cp, err := redisstore.New(redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, log); err != nil {
		log.Warn("redis unavailable, checkpoints go to sqlite only", slog.Any("err", err))
	} else {
		checkpoint = cp
		defer checkpoint.Close()
		health.SetRedisConnected(true)
	}

	// Indicator specs from config.
	specs := make([]engine.Spec, 0, len(cfg.Indicators))
	for _, is := range cfg.Indicators {
		kind, icfg, err := is.Build()
		if err != nil {
			log.Error("bad indicator config", slog.Any("err", err))
			os.Exit(1)
		}
		specs = append(specs, engine.Spec{Kind: kind, Config: icfg})
	}

	// Restore chain: Redis → SQLite → cold start.
	sources := make([]engine.SnapshotSource, 0, 2)
	if checkpoint != nil {
		sources = append(sources, engine.SnapshotSource{Name: "redis", Load: checkpoint.Load})
	}
	sources = append(sources, engine.SnapshotSource{
		Name: "sqlite",
		Load: func(context.Context) ([]byte, error) { return store.LoadLatestSnapshot() },
	})

	eng, err := engine.NewRestorer(specs, log, mx).Restore(ctx, sources...)
	if err != nil {
		log.Error("engine init failed", slog.Any("err", err))
		os.Exit(1)
	}
	health.SetEngineOK(true)

	// Catch up from bars recorded after the checkpoint. The restored clock
	// bounds the read per instrument; replay skips anything the snapshot
	// already reflects, so the catch-up is idempotent either way.
	for _, inst := range eng.Instruments() {
		after, _ := eng.Clock(inst)
		bars, err := store.ReadBars(inst, after)
		if err != nil {
			log.Warn("backfill read failed", slog.String("instrument", inst), slog.Any("err", err))
			continue
		}
		engine.ReplayBars(eng, inst, bars)
	}

	// Metrics and health endpoint.
	srv := metrics.NewServer(cfg.Metrics.Addr, health)
	srv.Start()
	defer srv.Stop(context.Background())
	health.StartLivenessChecker(ctx, redisClient(checkpoint), store.DB(), 15*time.Second)

	// Feed → ring buffer → engine.
	ring := ringbuf.New[engine.InstrumentBar](cfg.Feed.RingSize)
	ws := feed.NewWS(feed.WSConfig{URL: cfg.Feed.URL}, log)
	ws.OnConnect = func() { health.SetFeedConnected(true) }
	ws.OnReconnect = func() {
		health.SetFeedConnected(false)
		mx.WSReconnects.Inc()
	}
	ws.OnBar = func(ib engine.InstrumentBar) { health.SetLastBarTime(ib.Bar.TS) }
	go ws.Run(ctx, ring)

	pumpCh := make(chan engine.InstrumentBar, 1024)
	go ringbuf.Drain(ctx, ring, pumpCh, func(dropped uint64) {
		mx.RingBufOverflow.Add(float64(dropped))
	})

	// Tee each bar to the engine and to the bar journal: the journal is what
	// the next restart replays to cover the gap since the last checkpoint.
	barCh := make(chan engine.InstrumentBar, 1024)
	barRowCh := make(chan sqlitestore.BarRow, 4096)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ib := <-pumpCh:
				select {
				case barCh <- ib:
				case <-ctx.Done():
					return
				}
				select {
				case barRowCh <- sqlitestore.BarRow{Instrument: ib.Instrument, Bar: ib.Bar}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	go store.RunBars(ctx, barRowCh, nil)

	resultCh := make(chan engine.Result, 4096)
	go eng.Run(ctx, barCh, resultCh)

	// Persist results.
	rowCh := make(chan sqlitestore.ValueRow, 4096)
	go func() {
		for r := range resultCh {
			rowCh <- sqlitestore.ValueRow{
				Instrument: r.Instrument,
				Name:       r.Name,
				TS:         r.TS,
				Value:      r.Value,
			}
		}
	}()
	go store.Run(ctx, rowCh, mx.SQLiteCommitDur.Observe)

	// Periodic checkpoints.
	runCheckpoints(ctx, cfg, eng, checkpoint, store, mx, log)
}

// runCheckpoints snapshots the engine on a timer until shutdown, then takes a
// final snapshot.
func runCheckpoints(ctx context.Context, cfg *config.Config, eng *engine.Engine,
	checkpoint *redisstore.Checkpoint, store *sqlitestore.Store,
	mx *metrics.Metrics, log *slog.Logger) {

	ticker := time.NewTicker(cfg.Checkpoint.Interval)
	defer ticker.Stop()

	save := func() {
		start := time.Now()
		snap, err := eng.Snapshot()
		if err != nil {
			log.Error("snapshot failed", slog.Any("err", err))
			return
		}
		data, err := snap.Marshal()
		if err != nil {
			log.Error("snapshot marshal failed", slog.Any("err", err))
			return
		}
		if checkpoint != nil {
			saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := checkpoint.Save(saveCtx, data); err != nil {
				log.Warn("redis checkpoint failed", slog.Any("err", err))
			}
			cancel()
		}
		if err := store.SaveSnapshot(data); err != nil {
			log.Warn("sqlite checkpoint failed", slog.Any("err", err))
		} else if err := store.PruneSnapshots(cfg.Checkpoint.Keep); err != nil {
			log.Warn("snapshot prune failed", slog.Any("err", err))
		}
		mx.CheckpointDur.Observe(time.Since(start).Seconds())
		log.Debug("checkpoint saved",
			slog.Int("instruments", len(snap.Instruments)),
			slog.Duration("took", time.Since(start)))
	}

	for {
		select {
		case <-ctx.Done():
			save()
			return
		case <-ticker.C:
			save()
		}
	}
}

func redisClient(cp *redisstore.Checkpoint) *goredis.Client {
	if cp == nil {
		return nil
	}
	return cp.Client()
}
