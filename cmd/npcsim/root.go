package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zeusync/npcbrain/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "npcsim",
	Short:         "npcsim compiles and runs behavior trees for simulated agents",
	Long:          `npcsim validates behavior tree assets, prints their compiled layout, and runs headless or served simulations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Simulation config file (.yaml or .toml)")
}

// loadConfig reads --config, falling back to defaults, then applies the
// simulation flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("tree") {
		cfg.Sim.Tree, _ = flags.GetString("tree")
	}
	if flags.Changed("agents") {
		cfg.Sim.Agents, _ = flags.GetInt("agents")
	}
	if flags.Changed("ticks") {
		cfg.Sim.Ticks, _ = flags.GetInt("ticks")
	}
	if flags.Changed("dt") {
		cfg.Sim.Dt, _ = flags.GetDuration("dt")
	}
	if flags.Changed("assets") {
		cfg.Assets.Dir, _ = flags.GetString("assets")
	}
	if flags.Changed("restart") {
		cfg.Sim.Restart, _ = flags.GetBool("restart")
	}
	if flags.Changed("addr") {
		cfg.Server.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	return cfg, cfg.Validate()
}

func simFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("tree", "t", "", "Tree to run")
	cmd.Flags().IntP("agents", "n", 1, "Number of agents to spawn")
	cmd.Flags().Duration("dt", 0, "Simulated time per tick")
	cmd.Flags().String("assets", "", "Directory of tree assets")
	cmd.Flags().Bool("restart", false, "Restart trees after they conclude")
	cmd.Flags().String("log-level", "", "Log level (debug, info, warn, error, silent)")
}
