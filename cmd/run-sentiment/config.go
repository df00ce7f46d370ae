package main

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	InPath      string
	OutPath     string
	CostLogPath string

	Model      string
	APIKey     string
	BatchSize  int
	SaveEvery  int
	MaxRetries int
	Timeout    time.Duration
	MaxEvents  int
}

func (c Config) Validate() error {
	if c.InPath == "" {
		return errors.New("missing -in")
	}
	if c.OutPath == "" {
		return errors.New("missing -out")
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	if c.BatchSize <= 0 {
		return errors.New("batch-size must be > 0")
	}
	if c.SaveEvery <= 0 {
		return errors.New("save-every must be > 0")
	}
	if c.MaxRetries <= 0 {
		return errors.New("max-retries must be > 0")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	if c.MaxEvents < 0 {
		return errors.New("max-events must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	model := os.Getenv("SENTIMENT_MODEL")
	if model == "" {
		model = "gpt-4.1"
	}
	return Config{
		InPath:      filepath.FromSlash("data/event_documents.xlsx"),
		OutPath:     filepath.FromSlash("data/sentiment_results.xlsx"),
		CostLogPath: filepath.FromSlash("data/cost_log.jsonl"),
		Model:       model,
		BatchSize:   50,
		SaveEvery:   100,
		MaxRetries:  3,
		Timeout:     45 * time.Second,
	}
}
