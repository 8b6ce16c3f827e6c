// Package config loads runtime settings from the environment, an optional
// .env file and an optional YAML scoring profile.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"proofcheck/logging"
)

// Weights are the per-metric contributions to the aggregated score
type Weights struct {
	Structural float64 `yaml:"structural" env:"WEIGHT_STRUCTURAL" envDefault:"0.30"`
	Histogram  float64 `yaml:"histogram" env:"WEIGHT_HISTOGRAM" envDefault:"0.25"`
	Hash       float64 `yaml:"hash" env:"WEIGHT_HASH" envDefault:"0.20"`
	Features   float64 `yaml:"features" env:"WEIGHT_FEATURES" envDefault:"0.25"`
}

// DefaultWeights returns the stock metric weights
func DefaultWeights() Weights {
	return Weights{Structural: 0.30, Histogram: 0.25, Hash: 0.20, Features: 0.25}
}

// Sum returns the total of all weights
func (w Weights) Sum() float64 {
	return w.Structural + w.Histogram + w.Hash + w.Features
}

// Validate checks the weights are non-negative and sum to 1.0
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"structural": w.Structural,
		"histogram":  w.Histogram,
		"hash":       w.Hash,
		"features":   w.Features,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight %s must be non-negative, got %v", name, v)
		}
	}
	if math.Abs(w.Sum()-1.0) > 1e-6 {
		return fmt.Errorf("weights must sum to 1.0, got %.4f", w.Sum())
	}
	return nil
}

// Scoring holds the tunables of the verification pipeline
type Scoring struct {
	Threshold     float64 `yaml:"threshold" env:"AUTO_APPROVE_THRESHOLD" envDefault:"0.50"`
	CanonicalSize int     `yaml:"canonical_size" env:"CANONICAL_SIZE" envDefault:"512"`
	Weights       Weights `yaml:"weights"`
}

// DefaultScoring returns the stock scoring settings
func DefaultScoring() Scoring {
	return Scoring{Threshold: 0.50, CanonicalSize: 512, Weights: DefaultWeights()}
}

// Validate checks threshold, size and weights
func (s Scoring) Validate() error {
	if s.Threshold < 0 || s.Threshold > 1 || math.IsNaN(s.Threshold) {
		return fmt.Errorf("threshold must be within [0,1], got %v", s.Threshold)
	}
	if s.CanonicalSize < 16 {
		return fmt.Errorf("canonical size must be at least 16, got %d", s.CanonicalSize)
	}
	return s.Weights.Validate()
}

// Config is the full application configuration
type Config struct {
	DatabasePath   string `env:"DATABASE_PATH" envDefault:"data/proofcheck.db"`
	UploadDir      string `env:"UPLOAD_DIR" envDefault:"static/uploads"`
	MaxFileSize    int64  `env:"MAX_FILE_SIZE" envDefault:"5242880"`
	ScoringProfile string `env:"SCORING_PROFILE"`
	Scoring        Scoring
}

// Load reads .env (if present), the environment, and the scoring profile (if set)
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.LogWarning("Could not load .env file: %v", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.ScoringProfile != "" {
		if err := LoadScoringProfile(cfg.ScoringProfile, &cfg.Scoring); err != nil {
			return nil, err
		}
	}

	if err := cfg.Scoring.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring configuration: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", cfg.MaxFileSize)
	}
	return &cfg, nil
}

// LoadScoringProfile overlays the YAML profile at path onto scoring.
// Fields missing from the file keep their current values.
func LoadScoringProfile(path string, scoring *Scoring) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read scoring profile %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, scoring); err != nil {
		return fmt.Errorf("parse scoring profile %s: %w", path, err)
	}
	logging.DebugLog("Loaded scoring profile %s: threshold=%.2f weights=%+v", path, scoring.Threshold, scoring.Weights)
	return nil
}
