// cmd/backfill evaluates indicators over a historical CSV file and prints a
// summary report, optionally persisting bars and indicator values to SQLite.
//
// Usage:
//
//	go run ./cmd/backfill --csv=data/nifty_1m.csv --indicators=sma:20,ema:12,rsi:14
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"tickcore/internal/batch"
	"tickcore/internal/feed"
	"tickcore/internal/indicator"
	"tickcore/internal/logger"
	sqlitestore "tickcore/internal/store/sqlite"
)

func main() {
	csvPath := flag.String("csv", "", "Path to OHLCV CSV file (required)")
	instrument := flag.String("instrument", "default", "Instrument key for persisted rows")
	specsFlag := flag.String("indicators", "sma:20,ema:9,rsi:14", "Indicator specs: kind:period,... (macd uses fast/slow/signal)")
	dbPath := flag.String("db", "", "SQLite path to persist bars and values (optional)")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	flag.Parse()

	log := logger.Init("backfill", logger.ParseLevel(*logLevel))

	if *csvPath == "" {
		fmt.Fprintln(os.Stderr, "missing required --csv flag")
		flag.Usage()
		os.Exit(2)
	}

	jobs, err := parseJobs(*specsFlag)
	if err != nil {
		log.Error("bad indicator specs", slog.Any("err", err))
		os.Exit(2)
	}

	bars, err := feed.LoadCSV(*csvPath)
	if err != nil {
		log.Error("csv load failed", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("series loaded", slog.String("path", *csvPath), slog.Int("bars", len(bars)))

	results, err := batch.EvaluateAll(bars, jobs)
	if err != nil {
		log.Error("evaluation failed", slog.Any("err", err))
		os.Exit(1)
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println()
	fmt.Printf("%-16s %8s %8s %8s %12s %12s %12s %12s\n",
		"indicator", "points", "warmup", "defined", "mean", "stddev", "min", "max")
	for _, name := range names {
		rep := batch.Summarize(results[name])
		fmt.Printf("%-16s %8d %8d %8d %12.4f %12.4f %12.4f %12.4f\n",
			name, rep.Points, rep.Warmup, rep.Defined,
			rep.Stats.Mean, rep.Stats.StdDev, rep.Stats.Min, rep.Stats.Max)
	}
	fmt.Println()

	if *dbPath == "" {
		return
	}

	store, err := sqlitestore.Open(sqlitestore.Config{Path: *dbPath}, log)
	if err != nil {
		log.Error("sqlite open failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer store.Close()

	if err := store.WriteBars(*instrument, bars); err != nil {
		log.Error("bar persist failed", slog.Any("err", err))
		os.Exit(1)
	}
	for name, out := range results {
		rows := make([]sqlitestore.ValueRow, 0, len(out))
		for _, p := range out {
			rows = append(rows, sqlitestore.ValueRow{
				Instrument: *instrument,
				Name:       name,
				TS:         p.TS,
				Value:      p.Value,
			})
		}
		if err := store.WriteValues(rows); err != nil {
			log.Error("value persist failed", slog.String("indicator", name), slog.Any("err", err))
			os.Exit(1)
		}
	}
	log.Info("results persisted",
		slog.String("db", *dbPath),
		slog.String("instrument", *instrument),
		slog.Int("indicators", len(results)))
}

func parseJobs(s string) ([]batch.Job, error) {
	var jobs []batch.Job
	for _, spec := range strings.Split(s, ",") {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		kind, cfg, err := indicator.ParseSpec(spec)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, batch.Job{Kind: kind, Config: cfg})
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no indicator specs given")
	}
	return jobs, nil
}
