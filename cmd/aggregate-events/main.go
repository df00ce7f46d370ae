package main

import (
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

	log := logger.New().WithComponent("aggregate-events")

	components, err := tabular.ReadComponents(cfg.InPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.WithField("path", cfg.InPath).Fatal("input file not found; run clean-transcripts first")
		}
		log.WithError(err).Fatal("read components")
	}
	log.WithField("rows", len(components)).Info("loaded cleaned components")

	filter := transcript.Filter{SpeakerType: cfg.SpeakerType, ComponentType: cfg.ComponentType}
	docs := transcript.AggregateEvents(components, filter)
	if len(docs) == 0 {
		log.WithFields(logrus.Fields{
			"speaker_type":   cfg.SpeakerType,
			"component_type": cfg.ComponentType,
		}).Fatal("no components matched the filter")
	}

	var totalWords, totalSpeeches int
	for _, d := range docs {
		totalWords += d.TotalWordCount
		totalSpeeches += d.NumSpeeches
	}
	log.WithFields(logrus.Fields{
		"events":         len(docs),
		"speeches":       totalSpeeches,
		"total_words":    totalWords,
		"avg_words":      totalWords / len(docs),
		"speaker_type":   cfg.SpeakerType,
		"component_type": cfg.ComponentType,
	}).Info("aggregated event documents")

	if err := os.MkdirAll(filepath.Dir(cfg.OutPath), 0o755); err != nil {
		log.WithError(err).Fatal("mkdir output dir")
	}
	if err := tabular.WriteEventDocuments(cfg.OutPath, docs); err != nil {
		log.WithError(err).Fatal("write event documents")
	}
	log.WithFields(logrus.Fields{"path": cfg.OutPath, "rows": len(docs)}).Info("wrote event documents")
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Path to the cleaned components spreadsheet")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Output path for the event documents spreadsheet")
	fs.StringVar(&cfg.SpeakerType, "speaker-type", cfg.SpeakerType, "Speaker type to keep (empty keeps all)")
	fs.StringVar(&cfg.ComponentType, "component-type", cfg.ComponentType, "Component type to keep (empty keeps all)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.InPath = filepath.Clean(cfg.InPath)
	cfg.OutPath = filepath.Clean(cfg.OutPath)
	return cfg, nil
}
