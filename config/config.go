// Package config holds the process-wide knobs the original mutation
// generator read from environment variables, threaded here as an explicit
// record per the re-architecture notes rather than read from the
// environment inside the search package itself.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config controls the equivalence regime and depth of a single Run call.
type Config struct {
	// EnableEquivalent, together with EnableNonequivalent, decides whether
	// Run searches at all: Run returns an empty result only when both are
	// false. On its own it does not change the threshold. Corresponds to the
	// original's absence of PET_DISABLE_EQ_OPT.
	EnableEquivalent bool `yaml:"enable_equivalent"`

	// EnableNonequivalent gates mutants found under the looser regime.
	// When false, the threshold used by the verifier is forced to 0.99
	// (the "disallow non-equivalent" mode). Corresponds to the original's
	// absence of PET_DISABLE_NO_NEQ_OPT.
	EnableNonequivalent bool `yaml:"enable_nonequivalent"`

	// MaxDepthOverride, when nonzero, overrides the depth argument passed
	// to Run. Corresponds to the original's PET_MUTATION_DEPTH.
	MaxDepthOverride int `yaml:"max_depth_override"`
}

// Default returns the permissive configuration: both regimes enabled, no
// depth override.
func Default() Config {
	return Config{EnableEquivalent: true, EnableNonequivalent: true}
}

// Threshold resolves the effective acceptance threshold given the
// caller-supplied default, applying the disallow-non-equivalent tightening
// when EnableNonequivalent is false.
func (c Config) Threshold(requested float64) float64 {
	if !c.EnableNonequivalent {
		return 0.99
	}
	return requested
}

// Disabled reports whether both regimes are off, in which case Run must
// return an empty result without doing any search work.
func (c Config) Disabled() bool {
	return !c.EnableEquivalent && !c.EnableNonequivalent
}

// EffectiveDepth resolves the depth argument against MaxDepthOverride.
func (c Config) EffectiveDepth(requested int) int {
	if c.MaxDepthOverride != 0 {
		return c.MaxDepthOverride
	}
	return requested
}

// FromEnv reconstructs a Config from the recognized environment variables,
// for callers that still want the original's process-wide toggle surface:
// DISABLE_EQUIVALENT_OPT, DISABLE_NONEQUIVALENT_OPT, MUTATION_DEPTH.
func FromEnv() Config {
	cfg := Default()
	if os.Getenv("DISABLE_EQUIVALENT_OPT") != "" {
		cfg.EnableEquivalent = false
	}
	if os.Getenv("DISABLE_NONEQUIVALENT_OPT") != "" {
		cfg.EnableNonequivalent = false
	}
	if v := os.Getenv("MUTATION_DEPTH"); v != "" {
		if depth, err := strconv.Atoi(v); err == nil {
			cfg.MaxDepthOverride = depth
		}
	}
	return cfg
}

// Load reads a Config from a YAML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}
