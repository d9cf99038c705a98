package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jirevwe/litejob"
	"github.com/jirevwe/litejob/ledger"
	"github.com/jirevwe/litejob/playground"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	defaults := playground.DefaultOptions()

	workers := flag.Int("workers", 5, "number of worker goroutines, negative for cpus-1")
	minSleep := flag.Duration("min-sleep", defaults.MinSleep, "shortest job duration")
	maxSleep := flag.Duration("max-sleep", defaults.MaxSleep, "longest job duration")
	frame := flag.Duration("frame", 50*time.Millisecond, "time between frames")
	ledgerPath := flag.String("ledger", "", "sqlite file to journal job transitions to")
	color := flag.Bool("color", true, "render tiles with ANSI colors")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := litejob.DefaultConfig()
	cfg.NumWorkers = *workers

	opts := []litejob.Option{litejob.WithLogger(logger)}

	var journal *ledger.Ledger
	if *ledgerPath != "" {
		l, err := ledger.Open(*ledgerPath, logger)
		if err != nil {
			return fmt.Errorf("cannot open ledger: %w", err)
		}
		journal = l
		journal.Start()
		opts = append(opts, litejob.WithObserver(journal))
	}

	js, err := litejob.New(cfg, opts...)
	if err != nil {
		return err
	}
	if err = js.Startup(); err != nil {
		return err
	}

	game := playground.NewGame(js, playground.Options{
		MinSleep: *minSleep,
		MaxSleep: *maxSleep,
		Color:    *color,
	})
	if err = game.CreateTestJobs(); err != nil {
		js.Shutdown()
		return err
	}

	start := time.Now()
	ticker := time.NewTicker(*frame)
	defer ticker.Stop()

loop:
	for !game.Done() {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}

		game.Update()
		fmt.Print("\033[H\033[2J")
		if err = game.Render(os.Stdout); err != nil {
			break loop
		}
	}

	js.Shutdown()
	stats := js.Stats()
	fmt.Printf("retrieved %d/%d jobs in %s with %d workers\n",
		stats.Retrieved, stats.Submitted, time.Since(start).Round(time.Millisecond), cfg.WorkerCount())

	if journal != nil {
		if closeErr := journal.Close(); closeErr != nil {
			return closeErr
		}
		if err == nil {
			err = printLedgerCounts(*ledgerPath, logger)
		}
	}

	return err
}

func printLedgerCounts(path string, logger *slog.Logger) error {
	l, err := ledger.Open(path, logger)
	if err != nil {
		return err
	}
	defer l.Close()

	counts, err := l.CountByStatus(context.Background())
	if err != nil {
		return err
	}

	for s := litejob.StatusQueued; s <= litejob.StatusRetrievedAndRetired; s++ {
		fmt.Printf("ledger %-22s %d\n", s, counts[s])
	}
	return nil
}
