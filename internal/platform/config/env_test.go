package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type envTestConfig struct {
	Port int `env:"TTA_TEST_PORT" envDefault:"123"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("TTA_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TruthStore != "memory" {
		t.Fatalf("expected memory truth store default, got %q", cfg.TruthStore)
	}
	if cfg.GraphStore != "memory" {
		t.Fatalf("expected memory graph store default, got %q", cfg.GraphStore)
	}
	if cfg.StateStore != "memory" {
		t.Fatalf("expected memory state store default, got %q", cfg.StateStore)
	}
	if cfg.Seed != 0 {
		t.Fatalf("expected zero seed default, got %d", cfg.Seed)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("fray_enabled: true\nmax_defy_death: 5\n"), 0o644); err != nil {
		t.Fatalf("write rules file: %v", err)
	}

	var rules struct {
		FrayEnabled  bool `yaml:"fray_enabled"`
		MaxDefyDeath int  `yaml:"max_defy_death"`
	}
	if err := LoadYAML(path, &rules); err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if !rules.FrayEnabled {
		t.Fatal("expected fray_enabled true")
	}
	if rules.MaxDefyDeath != 5 {
		t.Fatalf("expected max_defy_death 5, got %d", rules.MaxDefyDeath)
	}
}

func TestLoadYAMLMissingFile(t *testing.T) {
	var rules struct{}
	if err := LoadYAML(filepath.Join(t.TempDir(), "absent.yaml"), &rules); err == nil {
		t.Fatal("expected error for missing rules file")
	}
}
