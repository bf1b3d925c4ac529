// Command usage-report prints a usage summary of the recorded proxy traffic
// and optionally saves it as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/threadlog-gateway/internal/analysis"
	"github.com/tjfontaine/threadlog-gateway/internal/config"
	"github.com/tjfontaine/threadlog-gateway/internal/storage/sqlite"
	"github.com/tjfontaine/threadlog-gateway/internal/threads"
	"github.com/tjfontaine/threadlog-gateway/internal/tokens"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config.yaml")
	dbPath := flag.String("db", "", "sqlite database to read (defaults to storage.sqlite.path)")
	outPath := flag.String("out", "", "write the report as JSON to this file")
	model := flag.String("model", "", "model whose tokenizer estimates thread tokens (defaults to tokens.model)")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if err := run(*configPath, *dbPath, *outPath, *model, logger); err != nil {
		fmt.Fprintf(os.Stderr, "usage-report: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, dbPath, outPath, model string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dbPath == "" {
		dbPath = cfg.Storage.SQLite.Path
	}
	if model == "" {
		model = cfg.Tokens.Model
	}

	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no log database at %s: %w", dbPath, err)
	}

	store, err := sqlite.New(dbPath, sqlite.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open %s: %w", dbPath, err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	records, err := store.ListLogs(ctx)
	if err != nil {
		return fmt.Errorf("read logs: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No log records found.")
		return nil
	}

	list, err := threads.NewService(store, logger).GetThreads(ctx)
	if err != nil {
		return fmt.Errorf("reconstruct threads: %w", err)
	}

	report := analysis.Analyze(records, list.Threads, tokens.New(model))
	if err := analysis.Render(os.Stdout, report); err != nil {
		return err
	}

	if outPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	fmt.Printf("\nAnalysis saved to: %s\n", outPath)
	return nil
}
