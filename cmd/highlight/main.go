// cmd/highlight runs the highlight-centric orchestrator over one ticker's
// OHLCV history within a date range and prints the assembled patterns.
//
// Usage:
//
//	go run ./cmd/highlight --ticker=RELIANCE --from=2023-01-01 --to=2023-12-31
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"patterngraph/config"
	"patterngraph/internal/funcs"
	"patterngraph/internal/graph"
	"patterngraph/internal/highlight"
	"patterngraph/internal/logger"
	"patterngraph/internal/metrics"
	csvsource "patterngraph/internal/store/csv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	ticker := flag.String("ticker", "", "Ticker to scan (required)")
	from := flag.String("from", "", "Range start, YYYY-MM-DD (required)")
	to := flag.String("to", "", "Range end, YYYY-MM-DD (required)")
	flag.Parse()
	if *ticker == "" || *from == "" || *to == "" {
		log.Fatal("[highlight] --ticker, --from, and --to are required")
	}
	fromDate, err := time.Parse("2006-01-02", *from)
	if err != nil {
		log.Fatalf("[highlight] --from: %v", err)
	}
	toDate, err := time.Parse("2006-01-02", *to)
	if err != nil {
		log.Fatalf("[highlight] --to: %v", err)
	}

	cfg := config.Load()
	slogLog := logger.Init("highlight", parseLevel(cfg.LogLevel))

	graphData, err := os.ReadFile(cfg.GraphPath)
	if err != nil {
		log.Fatalf("[highlight] read graph %s: %v", cfg.GraphPath, err)
	}
	registry := funcs.NewRegistry()
	g, err := graph.Load(graphData, registry)
	if err != nil {
		log.Fatalf("[highlight] load graph: %v", err)
	}

	series, err := csvsource.Load(*ticker, cfg.DataPath)
	if err != nil {
		log.Fatalf("[highlight] load candles: %v", err)
	}
	slogLog.Info("loaded candle history", "ticker", *ticker, "candles", len(series))

	m := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetTickersRunning([]string{*ticker})
	server := metrics.NewServer(cfg.MetricsAddr, health)
	server.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("highlight", time.Now()))
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	hCfg := highlight.Config{
		BackwardWindow: cfg.BackwardWindowDays,
		ForwardWindow:  cfg.ForwardWindowDays,
		SRTolerancePct: cfg.SRTolerancePct,
	}
	o := highlight.New(g, registry, hCfg, m)

	slogLog.Info(fmt.Sprintf("starting highlight-centric scan for %s from %s to %s", *ticker, *from, *to),
		logger.LogWithTrace(ctx)...)
	patterns, err := o.Run(ctx, *ticker, series, fromDate, toDate)
	if err != nil {
		log.Fatalf("[highlight] run: %v", err)
	}
	slogLog.Info(fmt.Sprintf("highlight scan finished: %d patterns assembled", len(patterns)),
		logger.LogWithTrace(ctx)...)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, p := range patterns {
		if err := enc.Encode(p); err != nil {
			log.Printf("[highlight] encode pattern %s: %v", p.PatternID, err)
		}
	}
	fmt.Fprintf(os.Stderr, "highlight scan complete: %d patterns assembled\n", len(patterns))
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
