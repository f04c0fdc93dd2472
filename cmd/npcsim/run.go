package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/cobra"

	"github.com/zeusync/npcbrain/internal/config"
	"github.com/zeusync/npcbrain/internal/core/agents"
	"github.com/zeusync/npcbrain/internal/core/events/bus"
	"github.com/zeusync/npcbrain/internal/injector"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a headless simulation and print outcome counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		app, cleanup, err := injector.InitializeApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		defer app.Close()

		outcomes, err := simulate(cmd.Context(), app, cfg)
		if err != nil {
			return err
		}
		printOutcomes(cmd, outcomes)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	simFlags(runCmd)
	runCmd.Flags().Int("ticks", 0, "Number of ticks to simulate")
}

// tally counts agent.finished events by status.
type tally struct {
	mu     sync.Mutex
	counts map[string]int
}

func newTally(events bus.EventBus) (*tally, bus.Subscription, error) {
	t := &tally{counts: make(map[string]int)}
	sub, err := events.Subscribe(agents.EventFinished, func(ev bus.Event) error {
		f, ok := ev.Data().(agents.Finished)
		if !ok {
			return nil
		}
		t.mu.Lock()
		t.counts[f.Status]++
		t.mu.Unlock()
		return nil
	})
	return t, sub, err
}

func (t *tally) snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

func spawnAll(ctx context.Context, app *injector.App, cfg *config.Config) error {
	if cfg.Sim.Tree == "" {
		return errors.New("no tree selected: set sim.tree or --tree")
	}
	doc, ok := app.Library.Document(cfg.Sim.Tree)
	if !ok {
		return fmt.Errorf("unknown tree %q (have %v)", cfg.Sim.Tree, app.Library.Names())
	}
	for i := 0; i < cfg.Sim.Agents; i++ {
		if _, err := app.Agents.Spawn(ctx, cfg.Sim.Tree, doc.Variables); err != nil {
			return err
		}
	}
	return nil
}

// simulate spawns the configured agents and ticks them cfg.Sim.Ticks times.
// The result counts finished trees by status plus agents still running.
func simulate(ctx context.Context, app *injector.App, cfg *config.Config) (map[string]int, error) {
	t, sub, err := newTally(app.Agents.Session().Events())
	if err != nil {
		return nil, err
	}
	defer sub.Cancel()

	if err := spawnAll(ctx, app, cfg); err != nil {
		return nil, err
	}
	for i := 0; i < cfg.Sim.Ticks; i++ {
		if err := app.Agents.Update(ctx, cfg.Sim.Dt); err != nil {
			return nil, err
		}
	}

	out := t.snapshot()
	for _, a := range app.Agents.List() {
		if a.Player.Running() {
			out["running"]++
		}
	}
	return out, nil
}

func printOutcomes(cmd *cobra.Command, outcomes map[string]int) {
	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "%-10s %d\n", k, outcomes[k])
	}
}
