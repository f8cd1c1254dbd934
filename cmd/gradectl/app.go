package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/unigrade/grade-analytics/config"
	"github.com/unigrade/grade-analytics/internal/application/query"
	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/infrastructure/cache"
	"github.com/unigrade/grade-analytics/internal/infrastructure/persistence/postgres"
	"github.com/unigrade/grade-analytics/internal/infrastructure/persistence/redis"
	"github.com/unigrade/grade-analytics/pkg/logger"
	"github.com/unigrade/grade-analytics/pkg/retry"
	"github.com/unigrade/grade-analytics/pkg/workerpool"
)

// ══════════════════════════════════════════════════════════════════════════════
// WIRING
// ══════════════════════════════════════════════════════════════════════════════

type globalOpts struct {
	configPath string
	logLevel   string
	pretty     bool

	// open builds the application for one command run.
	open func(cmd *cobra.Command, g *globalOpts) (*app, error)
}

// app is everything a command needs. close releases it.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	svc    *query.Services
	close  func()

	// health reports on the score database; nil when there is none.
	health func(ctx context.Context) (*postgres.HealthStatus, error)
}

// run opens the application, bounds the command by the configured query
// timeout and closes everything afterwards.
func (g *globalOpts) run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := g.open(cmd, g)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.cfg.Database.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Database.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	err = fn(ctx, a)
	a.logger.Debug("command finished",
		logger.Operation(cmd.Name()),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("ok", err == nil),
	)
	return err
}

func (g *globalOpts) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Observability.LogLevel = g.logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return logger.New(logger.Options{
		Output: w,
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
		Attrs: []slog.Attr{
			slog.String("service", cfg.App.Name),
			slog.String("version", cfg.App.Version),
			slog.String("env", string(cfg.App.Environment)),
		},
	})
}

// openApp connects to PostgreSQL and, when enabled, Redis. An unreachable
// Redis leaves the cache in-process only; an unreachable database fails.
func openApp(cmd *cobra.Command, g *globalOpts) (*app, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg, cmd.ErrOrStderr())
	slog.SetDefault(log)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	conn, err := postgres.NewConnection(ctx, cfg.PostgresConfig())
	if err != nil {
		return nil, fmt.Errorf("connect to score database: %w", err)
	}

	retrier := retry.New(
		retry.WithMaxAttempts(3),
		retry.WithInitialDelay(50*time.Millisecond),
		retry.WithMaxDelay(time.Second),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("retrying score query", slog.Int("attempt", attempt), slog.Duration("delay", delay), slog.Any("error", err))
		}),
	)
	repo := postgres.NewScoreRepository(conn.DB(), postgres.WithRetrier(retrier), postgres.WithLogger(log))

	c := openCache(ctx, cfg, log)

	svc, err := newServices(cfg, repo, c, log)
	if err != nil {
		if c != nil {
			_ = c.Close()
		}
		conn.Close()
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: log,
		svc:    svc,
		health: conn.Health,
		close: func() {
			if c != nil {
				if err := c.Close(); err != nil {
					log.Warn("cache close failed", slog.Any("error", err))
				}
			}
			conn.Close()
		},
	}, nil
}

func openCache(ctx context.Context, cfg *config.Config, log *slog.Logger) *cache.Cache {
	if !cfg.Cache.Enabled {
		return nil
	}
	opts := append(cfg.CacheOptions(), cache.WithLogger(log))
	if cfg.Redis.Enabled {
		backend, err := redis.New(ctx, cfg.RedisBackendConfig())
		if err != nil {
			log.Warn("redis unavailable, caching in process only", slog.Any("error", err))
		} else {
			opts = append(opts, cache.WithBackend(backend))
		}
	}
	return cache.New(opts...)
}

// newServices builds the query services from a loaded config.
func newServices(cfg *config.Config, repo grading.ScoreRepository, c *cache.Cache, log *slog.Logger) (*query.Services, error) {
	scale, err := cfg.Scale()
	if err != nil {
		return nil, err
	}
	svc, err := query.NewServices(repo, scale, cfg.DistributionConfig(), cfg.TrendConfig(), c,
		workerpool.New(cfg.Batch.Workers), log, grading.WithRetakePolicy(cfg.RetakePolicy()))
	if err != nil {
		return nil, err
	}
	svc.TTL = query.TTLs{Student: cfg.Cache.StudentTTL, Cohort: cfg.Cache.CohortTTL}
	return svc, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTPUT
// ══════════════════════════════════════════════════════════════════════════════

func (g *globalOpts) print(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if g.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// addFilterFlags binds the record filter shared by every query command.
func addFilterFlags(cmd *cobra.Command, f *grading.Filter) {
	cmd.Flags().StringVar(&f.AcademicYear, "year", "", "Academic year, e.g. 2023-2024")
	cmd.Flags().StringVar(&f.Semester, "semester", "", "Semester within the academic year")
	cmd.Flags().StringSliceVar(&f.CourseTypes, "course-type", nil, "Course types to include (repeatable)")
}
