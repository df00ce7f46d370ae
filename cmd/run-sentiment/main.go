package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/halcyonbridge/earnings-sentiment/internal/logger"
	"github.com/halcyonbridge/earnings-sentiment/sentiment"
	"github.com/halcyonbridge/earnings-sentiment/transcript/tabular"
)

func main() {
	_ = godotenv.Load()

	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
		os.Exit(2)
	}

	runID := uuid.NewString()
	log := logger.New().WithComponent("run-sentiment").WithField("run_id", runID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, err := tabular.ReadEventDocuments(cfg.InPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.WithField("path", cfg.InPath).Fatal("input file not found; run aggregate-events first")
		}
		log.WithError(err).Fatal("read event documents")
	}
	if cfg.MaxEvents > 0 && len(docs) > cfg.MaxEvents {
		docs = docs[:cfg.MaxEvents]
	}
	log.WithFields(logrus.Fields{"events": len(docs), "model": cfg.Model}).Info("loaded event documents")

	client, err := sentiment.NewOpenAIClient(apiKey)
	if err != nil {
		log.WithError(err).Fatal("init client")
	}

	costs, err := sentiment.OpenCostLog(cfg.CostLogPath)
	if err != nil {
		log.WithError(err).Fatal("open cost log")
	}
	defer costs.Close()

	analyzer := sentiment.NewAnalyzer(client, costs, log, sentiment.AnalyzerConfig{
		Model:      cfg.Model,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		RunID:      runID,
	})

	if err := os.MkdirAll(filepath.Dir(cfg.OutPath), 0o755); err != nil {
		log.WithError(err).Fatal("mkdir output dir")
	}

	runner := sentiment.NewRunner(analyzer, sentiment.TableCheckpoint{Path: cfg.OutPath}, log, sentiment.RunnerConfig{
		BatchSize: cfg.BatchSize,
		SaveEvery: cfg.SaveEvery,
	})

	results, stats, runErr := runner.Run(ctx, docs)
	if runErr != nil {
		log.WithError(runErr).WithField("processed", len(results)).Warn("run stopped early; partial results saved")
	}
	log.WithFields(logrus.Fields{"path": cfg.OutPath, "rows": len(results)}).Info("results written")

	session := costs.SessionSummary()
	log.WithFields(logrus.Fields{
		"requests":      session.TotalRequests,
		"input_tokens":  session.TotalInputTokens,
		"output_tokens": session.TotalOutputTokens,
		"cost":          fmt.Sprintf("$%.4f", session.TotalCost),
	}).Info("session usage")

	projectTotal, byModel, err := sentiment.ProjectCost(cfg.CostLogPath)
	if err != nil {
		log.WithError(err).Warn("project cost rollup failed")
	} else {
		for model, s := range byModel {
			log.WithFields(logrus.Fields{
				"model":    model,
				"requests": s.TotalRequests,
				"cost":     fmt.Sprintf("$%.4f", s.TotalCost),
			}).Info("project usage by model")
		}
		log.WithFields(logrus.Fields{
			"requests": projectTotal.TotalRequests,
			"cost":     fmt.Sprintf("$%.4f", projectTotal.TotalCost),
		}).Info("project usage total")
	}

	if stats.Failed > 0 {
		log.WithFields(logrus.Fields{"failed": stats.Failed, "processed": stats.Processed}).
			Warn("some events fell back to the neutral placeholder")
	}
	if runErr != nil {
		os.Exit(1)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Path to the event documents spreadsheet")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Output path for the classification results spreadsheet")
	fs.StringVar(&cfg.CostLogPath, "cost-log", cfg.CostLogPath, "Path to the append-only JSONL usage log")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Model to classify with (e.g. gpt-4.1, gpt-4o-mini)")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Events classified concurrently per batch")
	fs.IntVar(&cfg.SaveEvery, "save-every", cfg.SaveEvery, "Checkpoint results after this many processed events")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Attempts per event before recording a failure")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-attempt request timeout")
	fs.IntVar(&cfg.MaxEvents, "max-events", 0, "Process only the first N events (0 = all)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.InPath = filepath.Clean(cfg.InPath)
	cfg.OutPath = filepath.Clean(cfg.OutPath)
	return cfg, nil
}
