// Package main starts an interactive solo session in the terminal.
//
// The process is a thin shell around the session core: configuration
// comes from the environment with flags layered on top, and all game
// state is owned by the engine packages behind the router.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	enginecmd "github.com/tta-solo/engine/internal/cmd/engine"
	"github.com/tta-solo/engine/internal/platform/config"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "engine",
	Short: "Solo text adventure with real dice",
	Long: `engine runs a solo tabletop session in the terminal: d20 resolution
with a narrative overlay, GM moves, quests, and forkable timelines.
State lives in memory by default; choose the dolt, sqlite, and bbolt
backends to keep a world between sessions.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return enginecmd.Run(cmd.Context(), cfg, os.Stdin, os.Stdout)
	},
}

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		config.Exitf("load config: %v", err)
	}
	f := rootCmd.Flags()
	f.StringVar(&cfg.PlayerName, "name", cfg.PlayerName, "player character name")
	f.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for embedded store files")
	f.StringVar(&cfg.TruthStore, "truth-store", cfg.TruthStore, "truth store backend (memory|dolt)")
	f.StringVar(&cfg.GraphStore, "graph-store", cfg.GraphStore, "graph store backend (memory|sqlite)")
	f.StringVar(&cfg.StateStore, "state-store", cfg.StateStore, "combat state backend (memory|bbolt)")
	f.StringVar(&cfg.RulesFile, "rules", cfg.RulesFile, "YAML file overriding solo-combat rules")
	f.Int64Var(&cfg.Seed, "seed", cfg.Seed, "fixed RNG seed (0 draws one per session)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		config.ExitErr(err)
	}
}
