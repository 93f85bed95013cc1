package main

import (
	"log/slog"
	"os"

	"github.com/go-redis/redis/v8"

	"github.com/fleetstats/fleetstats/engine/internal/alerts"
	"github.com/fleetstats/fleetstats/engine/internal/config"
	"github.com/fleetstats/fleetstats/engine/internal/export"
	"github.com/fleetstats/fleetstats/engine/internal/metrics"
	"github.com/fleetstats/fleetstats/engine/internal/runner"
	"github.com/fleetstats/fleetstats/engine/internal/statcache"
)

// app bundles the components shared by the run and serve commands.
type app struct {
	cfg     *config.Config
	level   *slog.LevelVar
	store   *statcache.Store
	metrics *metrics.Metrics
	alerts  *alerts.Engine
	runner  *runner.Runner
	redis   *redis.Client
}

// loadConfig loads the dotenv file and the YAML config, then installs the
// JSON logger at the configured level.
func loadConfig(flags *rootFlags) (*config.Config, *slog.LevelVar, error) {
	if err := config.LoadDotEnv(flags.envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, err
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Log.SlogLevel())
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("config loaded",
		"path", flags.configPath,
		"snapshots", cfg.Inputs.Snapshots,
		"histories", cfg.Inputs.Histories,
		"periods", cfg.Engine.Periods,
		"role_analysis", cfg.Engine.RoleAnalysis,
		"redis", cfg.Redis.Enabled,
		"textfile", cfg.Export.Textfile,
	)
	return cfg, level, nil
}

// newApp wires the store, metrics, alert engine and runner. The textfile and
// Redis sinks are attached when configured.
func newApp(cfg *config.Config, level *slog.LevelVar) (*app, error) {
	a := &app{
		cfg:     cfg,
		level:   level,
		store:   statcache.NewStore(cfg.Engine.RetainRuns),
		metrics: metrics.New(),
	}

	alertEngine, err := alerts.New(cfg.Alerts)
	if err != nil {
		return nil, err
	}
	a.alerts = alertEngine

	a.runner = runner.New(
		runner.FileLoader(cfg.Inputs.Snapshots, cfg.Inputs.Histories),
		a.store,
		cfg.StatOptions(),
		a.metrics,
	)

	if cfg.Export.Textfile != "" {
		a.runner.AddSink(export.NewTextfile(cfg.Export.Textfile))
	}
	if cfg.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password(),
			DB:       cfg.Redis.DB,
		})
		a.runner.AddSink(statcache.NewRedisPublisher(a.redis, cfg.Redis.KeyPrefix, cfg.Redis.TTL))
	}
	a.runner.AddSink(a.alerts)
	return a, nil
}

// reload applies a hot-reloaded config. Only the statistical options and the
// log level change at runtime; inputs, sinks and the listener need a restart.
func (a *app) reload(cfg *config.Config) {
	a.runner.SetOptions(cfg.StatOptions())
	if a.level != nil {
		a.level.Set(cfg.Log.SlogLevel())
	}
	slog.Info("config reloaded", "min_samples", cfg.Engine.MinSamples, "inclusion_threshold", cfg.Engine.InclusionThreshold)
}

func (a *app) close() {
	a.alerts.Wait()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("redis close failed", "err", err)
		}
	}
}
