package main

import (
	"errors"
	"path/filepath"
)

type Config struct {
	InPath    string
	OutPath   string
	StatsPath string
}

func (c Config) Validate() error {
	if c.InPath == "" {
		return errors.New("missing -in")
	}
	if c.OutPath == "" {
		return errors.New("missing -out")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InPath:  filepath.FromSlash("data/raw_components.xlsx"),
		OutPath: filepath.FromSlash("data/cleaned_components.xlsx"),
	}
}
