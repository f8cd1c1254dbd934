package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/unigrade/grade-analytics/internal/application/command"
	"github.com/unigrade/grade-analytics/internal/infrastructure/persistence/postgres"
	"github.com/unigrade/grade-analytics/internal/infrastructure/scheduler"
	"github.com/unigrade/grade-analytics/internal/infrastructure/scheduler/jobs"
)

// serveReport is printed when serve exits.
type serveReport struct {
	Jobs     []scheduler.JobInfo    `json:"jobs"`
	History  []scheduler.JobResult  `json:"history"`
	Database *postgres.HealthStatus `json:"database,omitempty"`
}

// report collects job state and, when the app has a database, its health.
func (a *app) report(ctx context.Context, s *scheduler.Scheduler) serveReport {
	r := serveReport{Jobs: s.ListJobs(), History: s.History(0)}
	if a.health == nil {
		return r
	}
	status, err := a.health(ctx)
	if err != nil {
		a.logger.Warn("database health check failed", slog.Any("error", err))
		return r
	}
	r.Database = status
	return r
}

func newServeCmd(g *globalOpts) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep the result cache warm until interrupted",
		Long: `Runs the cache maintenance scheduler: configured students and cohorts are
recomputed every scheduler.warm_interval and expired in-process entries are
dropped every scheduler.purge_interval. With --once every job runs a single
time and the command exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd, g)
			if err != nil {
				return err
			}
			defer a.close()

			if a.svc.Cache == nil {
				return errors.New("serve requires cache.enabled")
			}

			sc := a.cfg.Scheduler
			s := scheduler.New(
				scheduler.WithLogger(a.logger),
				scheduler.WithTick(sc.Tick),
				scheduler.WithRunOnStart(sc.RunOnStart),
			)
			warm := jobs.NewWarmCacheJob(command.NewWarmCacheHandler(a.svc), jobs.WarmCacheConfig{
				StudentIDs:  sc.WarmStudents,
				CohortIDs:   sc.WarmCohorts,
				MaxStudents: a.cfg.Batch.MaxWarmStudents,
				MaxCohorts:  a.cfg.Batch.MaxWarmCohorts,
				Timeout:     sc.WarmTimeout,
			}, a.logger)
			if err := s.Register(warm, scheduler.NewIntervalSchedule(sc.WarmInterval)); err != nil {
				return err
			}
			if err := s.Register(jobs.NewPurgeCacheJob(a.svc.Cache, a.logger), scheduler.NewIntervalSchedule(sc.PurgeInterval)); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if once {
				var errs []error
				for _, job := range s.ListJobs() {
					if _, err := s.RunNow(ctx, job.Name); err != nil {
						errs = append(errs, err)
					}
				}
				if err := g.print(cmd, a.report(ctx, s)); err != nil {
					return err
				}
				return errors.Join(errs...)
			}

			if err := s.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			if err := s.Stop(); err != nil {
				return err
			}
			// ctx is done; the health check gets a short context of its own.
			hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return g.print(cmd, a.report(hctx, s))
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run every job once and exit")

	return cmd
}
