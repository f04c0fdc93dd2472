package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zeusync/npcbrain/internal/core/observability/log"
	"github.com/zeusync/npcbrain/internal/injector"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulation in real time behind the debug server",
	Long:  `Ticks agents every dt of wall time and exposes /agents, /trees, /metrics and the /ws trace stream.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, cleanup, err := injector.InitializeApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		defer app.Close()

		if cfg.Sim.Tree != "" {
			if err := spawnAll(ctx, app, cfg); err != nil {
				return err
			}
		}
		if err := app.Server.Start(cfg.Server.Addr); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "serving on %s\n", app.Server.Addr())

		ticker := time.NewTicker(cfg.Sim.Dt)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				if err := app.Agents.Update(ctx, cfg.Sim.Dt); err != nil && ctx.Err() == nil {
					app.Log.Error("update failed", log.Error(err))
				}
			}
		}

		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return app.Server.Stop(shutdown)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	simFlags(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address of the debug server")
}
