package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unigrade/grade-analytics/internal/application/query"
	"github.com/unigrade/grade-analytics/internal/domain/grading"
)

func newGPACmd(g *globalOpts) *cobra.Command {
	var (
		students []string
		filter   grading.Filter
	)

	cmd := &cobra.Command{
		Use:   "gpa",
		Short: "Compute student GPAs",
		Long:  `Computes the credit-weighted GPA of one student, or of several with a single batch fetch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				if len(students) == 1 {
					res, err := query.NewStudentGPAHandler(a.svc).Handle(ctx, query.StudentGPAQuery{StudentID: students[0], Filter: filter})
					if err != nil {
						return err
					}
					return g.print(cmd, res)
				}
				res, err := query.NewBatchGPAHandler(a.svc).Handle(ctx, query.BatchGPAQuery{StudentIDs: students, Filter: filter})
				if err != nil {
					return err
				}
				return g.print(cmd, res)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&students, "student", "s", nil, "Student ID (repeatable)")
	addFilterFlags(cmd, &filter)
	_ = cmd.MarkFlagRequired("student")

	return cmd
}

func newRankCmd(g *globalOpts) *cobra.Command {
	var q query.CohortRankingQuery

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank a cohort by GPA",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				res, err := query.NewCohortRankingHandler(a.svc).Handle(ctx, q)
				if err != nil {
					return err
				}
				return g.print(cmd, res)
			})
		},
	}

	cmd.Flags().StringVar(&q.CohortID, "cohort", "", "Cohort (class) ID (required)")
	cmd.Flags().IntVar(&q.Top, "top", 0, "Only print the top N entries")
	cmd.Flags().StringVar(&q.StudentID, "student", "", "Report this student's position and neighbors")
	cmd.Flags().IntVar(&q.NeighborRange, "neighbors", 2, "Entries on each side of --student")
	addFilterFlags(cmd, &q.Filter)
	_ = cmd.MarkFlagRequired("cohort")

	return cmd
}

func newTrendCmd(g *globalOpts) *cobra.Command {
	var (
		q            query.StudentTrendQuery
		upToYear     string
		upToSemester string
	)

	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Analyze one student's GPA trend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (upToYear == "") != (upToSemester == "") {
				return fmt.Errorf("--up-to-year and --up-to-semester must be given together")
			}
			if upToYear != "" {
				q.UpTo = &grading.Term{AcademicYear: upToYear, Semester: upToSemester}
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				res, err := query.NewStudentTrendHandler(a.svc).Handle(ctx, q)
				if err != nil {
					return err
				}
				return g.print(cmd, res)
			})
		},
	}

	cmd.Flags().StringVarP(&q.StudentID, "student", "s", "", "Student ID (required)")
	cmd.Flags().StringVar(&upToYear, "up-to-year", "", "Ignore terms after this academic year")
	cmd.Flags().StringVar(&upToSemester, "up-to-semester", "", "Ignore terms after this semester")
	addFilterFlags(cmd, &q.Filter)
	_ = cmd.MarkFlagRequired("student")

	return cmd
}

func newCohortTrendCmd(g *globalOpts) *cobra.Command {
	var q query.CohortTrendQuery

	cmd := &cobra.Command{
		Use:   "cohort-trend",
		Short: "Analyze a cohort's term-by-term GPA trend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				res, err := query.NewCohortTrendHandler(a.svc).Handle(ctx, q)
				if err != nil {
					return err
				}
				return g.print(cmd, res)
			})
		},
	}

	cmd.Flags().StringVar(&q.CohortID, "cohort", "", "Cohort (class) ID (required)")
	addFilterFlags(cmd, &q.Filter)
	_ = cmd.MarkFlagRequired("cohort")

	return cmd
}

func newCourseTrendCmd(g *globalOpts) *cobra.Command {
	var q query.CourseTrendQuery

	cmd := &cobra.Command{
		Use:   "course-trend",
		Short: "Analyze how a course's results move across offerings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				res, err := query.NewCourseTrendHandler(a.svc).Handle(ctx, q)
				if err != nil {
					return err
				}
				return g.print(cmd, res)
			})
		},
	}

	cmd.Flags().StringVar(&q.CourseID, "course", "", "Course ID (required)")
	addFilterFlags(cmd, &q.Filter)
	_ = cmd.MarkFlagRequired("course")

	return cmd
}

func newDistributionCmd(g *globalOpts) *cobra.Command {
	var (
		cohort string
		course string
		filter grading.Filter
	)

	cmd := &cobra.Command{
		Use:   "distribution",
		Short: "Describe the score distribution of a cohort or course",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := query.DistributionQuery{Scope: query.ScopeCohort, ID: cohort, Filter: filter}
			if course != "" {
				q.Scope, q.ID = query.ScopeCourse, course
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				res, err := query.NewDistributionHandler(a.svc).Handle(ctx, q)
				if err != nil {
					return err
				}
				return g.print(cmd, res)
			})
		},
	}

	cmd.Flags().StringVar(&cohort, "cohort", "", "Cohort (class) ID")
	cmd.Flags().StringVar(&course, "course", "", "Course ID")
	addFilterFlags(cmd, &filter)
	cmd.MarkFlagsMutuallyExclusive("cohort", "course")
	cmd.MarkFlagsOneRequired("cohort", "course")

	return cmd
}

func newCompareCmd(g *globalOpts) *cobra.Command {
	var q query.CompareCohortsQuery

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Rank cohorts against each other by average score",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				res, err := query.NewCompareCohortsHandler(a.svc).Handle(ctx, q)
				if err != nil {
					return err
				}
				return g.print(cmd, res)
			})
		},
	}

	cmd.Flags().StringSliceVar(&q.CohortIDs, "cohort", nil, "Cohort (class) ID (repeatable)")
	cmd.Flags().BoolVar(&q.Refresh, "refresh", false, "Recompute and overwrite the cached comparison")
	addFilterFlags(cmd, &q.Filter)
	_ = cmd.MarkFlagRequired("cohort")

	return cmd
}

func newPredictCmd(g *globalOpts) *cobra.Command {
	var (
		q       query.PredictionQuery
		assumed float64
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Forecast a student's graduation GPA",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("assumed-gpa") {
				q.AssumedGPA = &assumed
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				res, err := query.NewPredictionHandler(a.svc).Handle(ctx, q)
				if err != nil {
					return err
				}
				return g.print(cmd, res)
			})
		},
	}

	cmd.Flags().StringVarP(&q.StudentID, "student", "s", "", "Student ID (required)")
	cmd.Flags().Float64Var(&q.RemainingCredits, "remaining-credits", 0, "Credits still to be earned")
	cmd.Flags().Float64Var(&assumed, "assumed-gpa", 0, "GPA expected over the remaining credits (default: current GPA)")
	_ = cmd.MarkFlagRequired("student")

	return cmd
}
