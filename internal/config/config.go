// Package config loads piverif's run configuration: the search budgets
// QueryEngine and NessionManager operate under, and the logging options
// cmd/piverif applies before running a model.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable a piverif run consults. Zero values are
// replaced by Default's values during Load.
type Config struct {
	// MaximumTerms bounds a single QueryEngine.Verify call's node budget.
	MaximumTerms int `yaml:"maximum_terms"`
	// ElaborationLimit bounds how many nession-elaboration passes a
	// NessionManager may run before giving up on reaching a fixpoint. A
	// value of 0 selects 2*(len(STRs))+len(SCRs), computed once the
	// translated rule set is known.
	ElaborationLimit int `yaml:"elaboration_limit"`
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
	// Verbose forces debug-level logging regardless of LogLevel.
	Verbose bool `yaml:"verbose"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		MaximumTerms:     300,
		ElaborationLimit: 0,
		LogLevel:         "info",
	}
}

// Load reads a YAML config file at path and overlays it onto Default.
// A missing path is not an error; Default is returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ElaborationLimitFor resolves cfg's ElaborationLimit against a
// translated rule set's size, applying the 2*|STRs|+|SCRs| default when
// the config does not pin an explicit value.
func ElaborationLimitFor(cfg Config, numSCRs, numSTRs int) int {
	if cfg.ElaborationLimit > 0 {
		return cfg.ElaborationLimit
	}
	return numSCRs + 2*numSTRs
}
