// Package engine boots a solo play session: it opens the configured
// store backends, seeds the starter world on first run, and hands the
// terminal to a slash-command loop.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tta-solo/engine/internal/content"
	"github.com/tta-solo/engine/internal/engine/dice"
	"github.com/tta-solo/engine/internal/engine/effect"
	"github.com/tta-solo/engine/internal/engine/move"
	"github.com/tta-solo/engine/internal/engine/multiverse"
	"github.com/tta-solo/engine/internal/engine/router"
	"github.com/tta-solo/engine/internal/engine/solo"
	"github.com/tta-solo/engine/internal/llm"
	"github.com/tta-solo/engine/internal/platform/config"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
	"github.com/tta-solo/engine/internal/platform/random"
	"github.com/tta-solo/engine/internal/storage"
	"github.com/tta-solo/engine/internal/storage/bbolt"
	"github.com/tta-solo/engine/internal/storage/dolt"
	"github.com/tta-solo/engine/internal/storage/memory"
	"github.com/tta-solo/engine/internal/storage/sqlite"
)

// Run opens the configured backends, seeds the world if it is not there
// yet, and drives the interactive loop until /quit or EOF.
func Run(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer) error {
	if in == nil {
		in = strings.NewReader("")
	}
	if out == nil {
		out = io.Discard
	}

	truth, closeTruth, err := openTruth(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTruth()

	graph, closeGraph, err := openGraph(cfg)
	if err != nil {
		return err
	}
	defer closeGraph()

	states, closeStates, err := openStates(cfg)
	if err != nil {
		return err
	}
	defer closeStates()

	roller, err := newRoller(cfg)
	if err != nil {
		return err
	}

	rules := solo.DefaultConfig()
	if cfg.RulesFile != "" {
		if err := config.LoadYAML(cfg.RulesFile, &rules); err != nil {
			return err
		}
	}

	var gen llm.Client = llm.NewScripted()
	if cfg.AnthropicAPIKey != "" {
		gen = llm.NewAnthropic(cfg.AnthropicAPIKey, cfg.LLMModel)
	}

	r := router.New(router.Deps{
		Truth:  truth,
		Graph:  graph,
		States: states,
		Moves:  move.NewExecutor(truth, graph, states, gen),
		Multi:  multiverse.NewService(truth, graph),
		Roller: roller,
		Config: rules,
	})
	kit := content.StarterAbilities()
	for _, ab := range kit {
		if err := r.RegisterAbility(ab); err != nil {
			return err
		}
	}

	world, err := ensureWorld(ctx, truth, graph, cfg.PlayerName)
	if err != nil {
		return err
	}

	s := &session{
		router:   r,
		truth:    truth,
		graph:    graph,
		states:   states,
		out:      out,
		universe: world.UniverseID,
		actor:    world.PlayerID,
		kit:      kit,
	}
	s.greet(ctx)
	return s.loop(ctx, in)
}

// ensureWorld seeds the starter world on first run. Persistent backends
// carry it across sessions, so the seed is skipped once the root
// universe exists.
func ensureWorld(ctx context.Context, truth storage.TruthRepo, graph storage.GraphRepo, playerName string) (*content.World, error) {
	_, err := truth.Universe(ctx, content.UniverseID)
	if err == nil {
		return &content.World{
			UniverseID: content.UniverseID,
			PlayerID:   content.PlayerID,
			StartID:    content.StartLocationID,
		}, nil
	}
	if apperrors.KindOf(err) != apperrors.KindNotFound {
		return nil, err
	}
	return content.SeedStarterWorld(ctx, truth, graph, playerName, time.Now())
}

func openTruth(ctx context.Context, cfg config.Config) (storage.TruthRepo, func() error, error) {
	switch cfg.TruthStore {
	case "memory":
		return memory.NewTruthStore(), noClose, nil
	case "dolt":
		dir, err := dataPath(cfg, "truth")
		if err != nil {
			return nil, nil, err
		}
		st, err := dolt.Open(ctx, dolt.Config{Path: dir})
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	}
	return nil, nil, apperrors.New(apperrors.CodeRepoUnready, fmt.Sprintf("unknown truth store %q", cfg.TruthStore))
}

func openGraph(cfg config.Config) (storage.GraphRepo, func() error, error) {
	switch cfg.GraphStore {
	case "memory":
		return memory.NewGraphStore(), noClose, nil
	case "sqlite":
		path, err := dataPath(cfg, "graph.db")
		if err != nil {
			return nil, nil, err
		}
		st, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	}
	return nil, nil, apperrors.New(apperrors.CodeRepoUnready, fmt.Sprintf("unknown graph store %q", cfg.GraphStore))
}

func openStates(cfg config.Config) (effect.StateStore, func() error, error) {
	switch cfg.StateStore {
	case "memory":
		return memory.NewStateStore(), noClose, nil
	case "bbolt":
		path, err := dataPath(cfg, "state.db")
		if err != nil {
			return nil, nil, err
		}
		st, err := bbolt.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	}
	return nil, nil, apperrors.New(apperrors.CodeRepoUnready, fmt.Sprintf("unknown state store %q", cfg.StateStore))
}

func noClose() error { return nil }

// dataPath joins a store file onto the data dir, creating the dir on
// first use.
func dataPath(cfg config.Config, name string) (string, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return filepath.Join(cfg.DataDir, name), nil
}

// newRoller fixes the session RNG when a seed is configured and draws a
// cryptographic seed otherwise, so a transcript can be replayed by
// re-running with the same seed.
func newRoller(cfg config.Config) (dice.Roller, error) {
	seed := cfg.Seed
	if seed < 0 {
		return nil, apperrors.New(apperrors.CodeSeedOutOfRange, fmt.Sprintf("seed %d is negative", seed))
	}
	if seed == 0 {
		drawn, err := random.NewSeed()
		if err != nil {
			return nil, err
		}
		seed = drawn
	}
	return dice.NewSeeded(seed), nil
}
