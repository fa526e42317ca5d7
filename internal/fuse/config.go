package fuse

import (
	"fmt"

	"github.com/plantwise-cloud/pestsearch/internal/domain/document"
)

// Config carries every fusion knob as an explicit per-call value. Weights and
// cutoffs are deployment tuning, never engine semantics, and never live in a
// mutable process-wide singleton.
type Config struct {
	NameWeight    float64
	TopicalWeight float64
	DamageWeight  float64

	ScoreCutoff     float64 // minimum weighted score for non-debug inclusion
	HardcodedCutoff float64 // stricter cutoff for results merged next to canned answers

	TopN int

	DownweightSource document.Source // lower-trust source kind, optional
	DownweightFactor float64         // multiplier < 1.0 applied after fusion
}

// DefaultConfig returns the empirically tuned deployment defaults.
func DefaultConfig() Config {
	return Config{
		NameWeight:       0.9,
		TopicalWeight:    0.05,
		DamageWeight:     0.05,
		ScoreCutoff:      0.4,
		HardcodedCutoff:  0.6,
		TopN:             10,
		DownweightSource: document.SourceCommunity,
		DownweightFactor: 0.8,
	}
}

// Validate checks the configuration for correctness.
func (c Config) Validate() error {
	if c.NameWeight < 0 || c.TopicalWeight < 0 || c.DamageWeight < 0 {
		return fmt.Errorf("category weights must be non-negative")
	}
	if c.NameWeight+c.TopicalWeight+c.DamageWeight <= 0 {
		return fmt.Errorf("at least one category weight must be positive")
	}
	if c.TopN <= 0 {
		return fmt.Errorf("top_n must be positive, got %d", c.TopN)
	}
	if c.DownweightFactor < 0 || c.DownweightFactor > 1 {
		return fmt.Errorf("downweight factor must be in [0, 1], got %g", c.DownweightFactor)
	}
	if c.HardcodedCutoff < c.ScoreCutoff {
		return fmt.Errorf("hardcoded cutoff %g must not be below score cutoff %g",
			c.HardcodedCutoff, c.ScoreCutoff)
	}
	return nil
}
