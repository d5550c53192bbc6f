// Package config loads engine configuration from the environment and from
// optional YAML rules files.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the engine process configuration.
type Config struct {
	// DataDir is where embedded stores keep their files.
	DataDir string `env:"TTA_DATA_DIR" envDefault:".tta"`

	// TruthStore selects the truth-store backend: "memory" or "dolt".
	TruthStore string `env:"TTA_TRUTH_STORE" envDefault:"memory"`

	// GraphStore selects the graph-store backend: "memory" or "sqlite".
	GraphStore string `env:"TTA_GRAPH_STORE" envDefault:"memory"`

	// StateStore selects the combat-state backend: "memory" or "bbolt".
	StateStore string `env:"TTA_STATE_STORE" envDefault:"memory"`

	// PlayerName names the starter-world player character.
	PlayerName string `env:"TTA_PLAYER_NAME" envDefault:"Hero"`

	// AnthropicAPIKey enables LLM-backed GM moves when set. Empty means
	// template fallbacks only.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`

	// LLMModel is the model used for generative GM moves.
	LLMModel string `env:"TTA_LLM_MODEL" envDefault:"claude-3-5-haiku-latest"`

	// RulesFile is an optional YAML file overriding solo-combat rules.
	RulesFile string `env:"TTA_RULES_FILE"`

	// Seed fixes the session RNG seed when positive. Zero draws a
	// cryptographic seed per session; negative seeds are rejected.
	Seed int64 `env:"TTA_SEED" envDefault:"0"`
}

// Load parses engine configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
