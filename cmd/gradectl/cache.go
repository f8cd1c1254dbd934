package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unigrade/grade-analytics/internal/application/command"
)

func newWarmCmd(g *globalOpts) *cobra.Command {
	var c command.WarmCacheCommand

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Precompute and cache results for students and cohorts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				if !cmd.Flags().Changed("max-students") {
					c.MaxStudents = a.cfg.Batch.MaxWarmStudents
				}
				if !cmd.Flags().Changed("max-cohorts") {
					c.MaxCohorts = a.cfg.Batch.MaxWarmCohorts
				}
				res, err := command.NewWarmCacheHandler(a.svc).Handle(ctx, c)
				if err != nil {
					return err
				}
				return g.print(cmd, res)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&c.StudentIDs, "student", "s", nil, "Student ID to warm (repeatable)")
	cmd.Flags().StringSliceVar(&c.CohortIDs, "cohort", nil, "Cohort ID to warm (repeatable)")
	cmd.Flags().IntVar(&c.MaxStudents, "max-students", command.DefaultMaxWarmStudents, "Cap on warmed students")
	cmd.Flags().IntVar(&c.MaxCohorts, "max-cohorts", command.DefaultMaxWarmCohorts, "Cap on warmed cohorts")
	cmd.Flags().BoolVar(&c.Refresh, "refresh", false, "Recompute targets that are already cached")
	addFilterFlags(cmd, &c.Filter)
	cmd.MarkFlagsOneRequired("student", "cohort")

	return cmd
}

func newInvalidateCmd(g *globalOpts) *cobra.Command {
	var c command.InvalidateCacheCommand

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Drop cached results",
		Long:  `Drops cached results of the given families from both cache tiers. Without --prefix every family is dropped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				res, err := command.NewInvalidateCacheHandler(a.svc).Handle(ctx, c)
				if err != nil {
					return err
				}
				return g.print(cmd, res)
			})
		},
	}

	cmd.Flags().StringSliceVar(&c.Prefixes, "prefix", nil, "Result family to drop (repeatable): "+strings.Join(command.Prefixes, ", "))

	return cmd
}
