package injector

import (
	"context"
	"fmt"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"

	"github.com/zeusync/npcbrain/internal/assets"
	"github.com/zeusync/npcbrain/internal/config"
	"github.com/zeusync/npcbrain/internal/core/actuator"
	"github.com/zeusync/npcbrain/internal/core/agents"
	"github.com/zeusync/npcbrain/internal/core/bt"
	"github.com/zeusync/npcbrain/internal/core/bt/nodes"
	"github.com/zeusync/npcbrain/internal/core/events/bus"
	"github.com/zeusync/npcbrain/internal/core/logic"
	"github.com/zeusync/npcbrain/internal/core/memory"
	"github.com/zeusync/npcbrain/internal/core/observability/log"
	"github.com/zeusync/npcbrain/internal/core/observability/metrics"
	"github.com/zeusync/npcbrain/internal/server"
)

// App is everything a simulation process needs.
type App struct {
	Config  *config.Config
	Log     *log.Logger
	Metrics *metrics.Metrics
	Library *assets.Library
	Agents  *agents.Manager
	Server  *server.Server
}

// Close stops every agent and releases the compiled trees.
func (a *App) Close() error {
	a.Agents.Close()
	err := a.Library.Release()
	_ = a.Log.Sync()
	return err
}

var ProviderSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	nodes.NewRegistry,
	ProvideLibrary,
	wire.Bind(new(agents.Trees), new(*assets.Library)),
	logic.NewRegistry,
	ProvideEvents,
	agents.NewSession,
	metrics.New,
	server.NewTracer,
	actuator.NewDispatcher,
	ProvideSnapshots,
	ProvideManager,
	server.New,
	wire.Struct(new(App), "*"),
)

func ProvideLogger(cfg *config.Config) *log.Logger {
	return log.New(cfg.Level())
}

// ProvideLibrary loads every tree under the configured assets directory.
func ProvideLibrary(cfg *config.Config, reg *bt.Registry, logger log.Log) (*assets.Library, error) {
	lib := assets.NewLibrary(reg, logger)
	if cfg.Assets.Dir == "" {
		return lib, nil
	}
	if err := lib.LoadDir(cfg.Assets.Dir); err != nil {
		return nil, fmt.Errorf("load assets: %w", err)
	}
	return lib, nil
}

// ProvideEvents creates the session bus with its deliveries counted by m.
func ProvideEvents(m *metrics.Metrics) (bus.EventBus, func()) {
	events := bus.New()
	events.AddObserver(m)
	return events, func() { events.RemoveObserver(m) }
}

// ProvideSnapshots connects to redis when an address is configured and
// returns nil otherwise.
func ProvideSnapshots(ctx context.Context, cfg *config.Config) (*memory.RedisSnapshots, func(), error) {
	if cfg.Redis.Addr == "" {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
	}
	cleanup := func() { _ = client.Close() }
	return memory.NewRedisSnapshots(client, cfg.Redis.Prefix, cfg.Redis.TTL), cleanup, nil
}

func ProvideManager(
	cfg *config.Config,
	session *agents.Session,
	trees agents.Trees,
	logger log.Log,
	m *metrics.Metrics,
	tracer *server.Tracer,
	dispatcher *actuator.Dispatcher,
	snapshots *memory.RedisSnapshots,
) *agents.Manager {
	opts := []agents.Option{
		agents.WithWorkers(cfg.Sim.Workers),
		agents.WithRestart(cfg.Sim.Restart),
		agents.WithObserver(m),
		agents.WithObserver(tracer),
		agents.WithFrameObserver(m),
		agents.WithDispatcher(dispatcher),
	}
	if snapshots != nil {
		opts = append(opts, agents.WithSnapshots(snapshots))
	}
	return agents.NewManager(session, trees, logger, opts...)
}
