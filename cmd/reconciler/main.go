package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"tuition-reconciliation/internal/config"
	"tuition-reconciliation/internal/domain"
	"tuition-reconciliation/internal/gateway"
	"tuition-reconciliation/internal/store"
	"tuition-reconciliation/internal/usecase"
)

func main() {
	// Define command-line flags
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	receiptsFile := flag.String("receipts", "", "Path to the payment receipts CSV export (overrides config)")
	enrollmentsFile := flag.String("enrollments", "", "Path to the enrollments CSV export (overrides config)")
	rulesFile := flag.String("rules", "", "Path to the pricing rules CSV export (overrides config)")
	resultsDB := flag.String("results", "", "Path to the results SQLite database, or 'memory' (overrides config)")
	termID := flag.String("term", "", "Only reconcile receipts for this term")
	studentFrom := flag.String("student-from", "", "Lowest student ID to include, inclusive")
	studentTo := flag.String("student-to", "", "Highest student ID to include, inclusive")
	fromStr := flag.String("from", "", "Earliest paid-at date to include (YYYY-MM-DD)")
	toStr := flag.String("to", "", "Latest paid-at date to include (YYYY-MM-DD)")
	workers := flag.Int("workers", 0, "Number of worker goroutines (overrides config)")
	batchSize := flag.Int("batch-size", 0, "Receipts per batch (overrides config)")
	dryRun := flag.Bool("dry-run", false, "Compute and report without writing results")
	force := flag.Bool("force", false, "Recompute results even when inputs are unchanged")
	flag.Parse()

	// Load configuration and apply flag overrides
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if *receiptsFile != "" {
		cfg.Inputs.Receipts = *receiptsFile
	}
	if *enrollmentsFile != "" {
		cfg.Inputs.Enrollments = *enrollmentsFile
	}
	if *rulesFile != "" {
		cfg.Inputs.Rules = *rulesFile
	}
	if *resultsDB != "" {
		cfg.Results.SQLitePath = *resultsDB
	}
	if *workers > 0 {
		cfg.Run.Workers = *workers
	}
	if *batchSize > 0 {
		cfg.Run.BatchSize = *batchSize
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Error: invalid configuration: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	// Parse run scope
	params := domain.RunParams{
		TermID:      *termID,
		StudentFrom: *studentFrom,
		StudentTo:   *studentTo,
	}
	if *fromStr != "" {
		params.From, err = time.Parse("2006-01-02", *fromStr)
		if err != nil {
			log.Fatalf("Error parsing -from date: %v", err)
		}
	}
	if *toStr != "" {
		params.To, err = time.Parse("2006-01-02", *toStr)
		if err != nil {
			log.Fatalf("Error parsing -to date: %v", err)
		}
	}

	// --- Dependency Injection (Wiring the application) ---
	// In a larger app, this might be done with a DI container.
	// Here, we do it manually, which is clear and simple.

	// 1. Create the repository over the SIS exports (the outermost layer)
	csvRepo := gateway.NewCSVRepository(cfg.Inputs.Receipts, cfg.Inputs.Enrollments, cfg.Inputs.Rules)

	// 2. Open the result store ("memory" keeps results in process, useful
	// with -dry-run and in scratch environments)
	var sink usecase.ResultSink
	if cfg.Results.SQLitePath == "memory" {
		sink = store.NewMemory()
	} else {
		db, err := store.NewSQLite(cfg.Results.SQLitePath)
		if err != nil {
			log.Fatalf("Error opening result store: %v", err)
		}
		defer db.Close()
		sink = db
	}

	// 3. Create the orchestrator and inject both (the core logic layer)
	engine := usecase.NewOrchestrator(csvRepo, csvRepo, csvRepo, sink, usecase.Config{
		Workers:   cfg.Run.Workers,
		BatchSize: cfg.Run.BatchSize,
		Currency:  cfg.Run.Currency,
		DryRun:    *dryRun,
		Force:     *force,
	})

	// Cancel the run cleanly on Ctrl+C so completed receipts stay written.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Execute the Usecase ---
	report, err := engine.Run(ctx, params)
	if err != nil {
		if report == nil {
			log.Fatalf("Reconciliation failed: %v", err)
		}
		// A partial report is still worth printing when the run stopped early.
		log.Printf("[WARN] run ended early: %v", err)
	}

	log.Printf("[INFO] processed %s receipts: %s reconciled, %s flagged, %s rejected, %s skipped",
		humanize.Comma(int64(report.Processed)),
		humanize.Comma(int64(report.Reconciled)),
		humanize.Comma(int64(report.Flagged)),
		humanize.Comma(int64(report.Rejected)),
		humanize.Comma(int64(report.Skipped)),
	)

	// --- Present the Output ---
	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("Failed to generate JSON report: %v", err)
	}

	fmt.Println(string(output))
}
