// cmd/detect runs the sequential orchestrator over one ticker's full OHLCV
// history and persists every completed pattern to SQLite.
//
// Usage:
//
//	go run ./cmd/detect --ticker=RELIANCE
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"patterngraph/config"
	"patterngraph/internal/detect"
	"patterngraph/internal/funcs"
	"patterngraph/internal/graph"
	"patterngraph/internal/logger"
	"patterngraph/internal/metrics"
	csvsource "patterngraph/internal/store/csv"
	sqlitestore "patterngraph/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	ticker := flag.String("ticker", "", "Ticker to run the sequential scan for (required)")
	flag.Parse()
	if *ticker == "" {
		log.Fatal("[detect] --ticker is required")
	}

	cfg := config.Load()
	slogLog := logger.Init("detect", parseLevel(cfg.LogLevel))

	graphData, err := os.ReadFile(cfg.GraphPath)
	if err != nil {
		log.Fatalf("[detect] read graph %s: %v", cfg.GraphPath, err)
	}
	registry := funcs.NewRegistry()
	g, err := graph.Load(graphData, registry)
	if err != nil {
		log.Fatalf("[detect] load graph: %v", err)
	}

	series, err := csvsource.Load(*ticker, cfg.DataPath)
	if err != nil {
		log.Fatalf("[detect] load candles: %v", err)
	}
	slogLog.Info("loaded candle history", "ticker", *ticker, "candles", len(series))

	repo, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[detect] open repository: %v", err)
	}
	defer repo.Close()

	m := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetTickersRunning([]string{*ticker})
	server := metrics.NewServer(cfg.MetricsAddr, health)
	server.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("detect", time.Now()))
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	health.StartLivenessChecker(ctx, repo.DB(), 30*time.Second)

	o := detect.New(g, registry, *ticker, m)
	slogLog.Info(fmt.Sprintf("starting sequential scan for %s over %d candles", *ticker, len(series)),
		logger.LogWithTrace(ctx)...)
	if err := o.Run(ctx, series); err != nil {
		slogLog.Error("scan aborted", append([]any{"error", err}, logger.LogWithTrace(ctx)...)...)
	}
	health.AddCandlesIngested(int64(len(series)))

	drained := o.Drain()
	var patterns []*patternSummary
	for _, pc := range drained {
		if err := repo.Save(pc.Pattern); err != nil {
			slogLog.Error("save pattern failed", "pattern_id", pc.Pattern.PatternID, "error", err)
			continue
		}
		patterns = append(patterns, &patternSummary{ID: pc.Pattern.PatternID, Status: string(pc.Pattern.Status)})
	}
	slogLog.Info(fmt.Sprintf("scan finished: %d patterns persisted", len(patterns)), logger.LogWithTrace(ctx)...)

	fmt.Printf("scan complete: %d patterns completed, %d candles processed\n", len(patterns), len(series))
	for _, p := range patterns {
		fmt.Printf("  %s [%s]\n", p.ID, p.Status)
	}
}

type patternSummary struct {
	ID     string
	Status string
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
