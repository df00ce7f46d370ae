package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/halcyonbridge/earnings-sentiment/internal/logger"
	"github.com/halcyonbridge/earnings-sentiment/transcript"
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

	log := logger.New().WithComponent("clean-transcripts")

	components, err := tabular.ReadComponents(cfg.InPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.WithField("path", cfg.InPath).Fatal("input file not found; export the raw transcript components first")
		}
		log.WithError(err).Fatal("read components")
	}
	log.WithField("rows", len(components)).Info("loaded raw components")

	cleaned, stats, err := transcript.Clean(components)
	if err != nil {
		log.WithError(err).Fatal("clean failed")
	}
	if err := transcript.VerifyCanonicalMapping(cleaned); err != nil {
		log.WithError(err).Fatal("canonical mapping check failed on output")
	}

	logStage(log, "within-transcript dedup", stats.Stage1)
	logStage(log, "cross-transcript version merge", stats.Stage2)
	logStage(log, "company-level dedup", stats.Stage3)
	log.WithFields(logrus.Fields{
		"multi_version_events": stats.MultiVersionEvents,
		"companies":            stats.Companies,
		"events":               stats.Events,
		"transcripts":          stats.Transcripts,
		"unique_texts":         stats.UniqueTexts,
		"total_words":          stats.TotalWords,
		"total_removed":        stats.TotalRemoved(),
	}).Info("clean complete")

	if err := os.MkdirAll(filepath.Dir(cfg.OutPath), 0o755); err != nil {
		log.WithError(err).Fatal("mkdir output dir")
	}
	if err := tabular.WriteComponents(cfg.OutPath, cleaned); err != nil {
		log.WithError(err).Fatal("write cleaned components")
	}
	log.WithFields(logrus.Fields{"path": cfg.OutPath, "rows": len(cleaned)}).Info("wrote cleaned components")

	if cfg.StatsPath != "" {
		if err := writeStats(cfg.StatsPath, stats); err != nil {
			log.WithError(err).Fatal("write stats")
		}
		log.WithField("path", cfg.StatsPath).Info("wrote clean stats")
	}
}

func logStage(log *logrus.Entry, name string, s transcript.StageStats) {
	log.WithFields(logrus.Fields{
		"before":  s.Before,
		"after":   s.After,
		"removed": s.Removed,
		"pct":     fmt.Sprintf("%.2f%%", s.RemovedPercent()),
	}).Info(name)
}

func writeStats(path string, stats transcript.CleanStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("writeStats: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writeStats: %w", err)
	}
	return nil
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Path to the raw transcript components spreadsheet")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Output path for the cleaned components spreadsheet")
	fs.StringVar(&cfg.StatsPath, "stats", "", "Optional path for a JSON audit of the dedup stages")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.InPath = filepath.Clean(cfg.InPath)
	cfg.OutPath = filepath.Clean(cfg.OutPath)
	return cfg, nil
}
