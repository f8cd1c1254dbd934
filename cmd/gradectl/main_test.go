package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/domain/shared"
	"github.com/unigrade/grade-analytics/internal/infrastructure/cache"
	"github.com/unigrade/grade-analytics/internal/infrastructure/persistence/postgres"
	"github.com/unigrade/grade-analytics/internal/infrastructure/scheduler"
)

// staticScores serves one fixed cohort.
type staticScores struct{}

func (staticScores) records() []grading.ScoreRecord {
	rec := grading.NewScoreRecord
	return []grading.ScoreRecord{
		rec("S1", "C1", 95, 100, 3, "2023-2024", "1"),
		rec("S1", "C2", 85, 100, 2, "2023-2024", "2"),
		rec("S2", "C1", 80, 100, 3, "2023-2024", "1"),
		rec("S2", "C2", 70, 100, 2, "2023-2024", "2"),
	}
}

func (s staticScores) FindByStudent(_ context.Context, id string, _ grading.Filter) ([]grading.ScoreRecord, error) {
	return grading.GroupByStudent(s.records())[id], nil
}

func (s staticScores) FindByStudents(_ context.Context, ids []string, _ grading.Filter) (map[string][]grading.ScoreRecord, error) {
	all := grading.GroupByStudent(s.records())
	out := map[string][]grading.ScoreRecord{}
	for _, id := range ids {
		if rs, ok := all[id]; ok {
			out[id] = rs
		}
	}
	return out, nil
}

func (s staticScores) FindByCohort(_ context.Context, cohort string, _ grading.Filter) (map[string][]grading.ScoreRecord, error) {
	if cohort != "CS1" {
		return map[string][]grading.ScoreRecord{}, nil
	}
	return grading.GroupByStudent(s.records()), nil
}

func (s staticScores) FindByCourse(_ context.Context, course string, _ grading.Filter) ([]grading.ScoreRecord, error) {
	var out []grading.ScoreRecord
	for _, r := range s.records() {
		if r.CourseID == course {
			out = append(out, r)
		}
	}
	return out, nil
}

func openStatic(_ *cobra.Command, g *globalOpts) (*app, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := cache.New(append(cfg.CacheOptions(), cache.WithLogger(log))...)
	svc, err := newServices(cfg, staticScores{}, c, log)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: log, svc: svc, close: func() { _ = c.Close() }, health: staticHealth}, nil
}

func staticHealth(context.Context) (*postgres.HealthStatus, error) {
	return &postgres.HealthStatus{Healthy: true, TotalConns: 2, IdleConns: 2, MaxConns: 10}, nil
}

// execute runs the CLI against staticScores and an in-process cache.
func execute(t *testing.T, args ...string) ([]byte, error) {
	t.Helper()

	root := newRootCmdWith(&globalOpts{open: openStatic})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.Bytes(), err
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m), string(data))
	return m
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"gpa", "rank", "trend", "cohort-trend", "course-trend", "distribution", "compare", "predict", "warm", "invalidate", "serve", "config"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	for _, flag := range []string{"config", "log-level", "pretty"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRankCmdFlags(t *testing.T) {
	cmd := newRankCmd(&globalOpts{})
	f := cmd.Flags()

	neighbors, _ := f.GetInt("neighbors")
	assert.Equal(t, 2, neighbors)
	for _, flag := range []string{"cohort", "top", "student", "year", "semester", "course-type"} {
		assert.NotNil(t, f.Lookup(flag), flag)
	}
}

func TestGPACmd(t *testing.T) {
	out, err := execute(t, "gpa", "--student", "S1")
	require.NoError(t, err)

	res := decode(t, out)
	assert.Equal(t, "S1", res["student_id"])
	assert.Equal(t, 3.88, res["total_gpa"])

	out, err = execute(t, "gpa", "-s", "S1", "-s", "S2")
	require.NoError(t, err)

	batch := decode(t, out)
	assert.Len(t, batch["results"], 2)
	assert.NotEmpty(t, batch["run_id"])
}

func TestGPACmd_RequiresStudent(t *testing.T) {
	_, err := execute(t, "gpa")

	assert.ErrorContains(t, err, "student")
}

func TestRankCmd(t *testing.T) {
	out, err := execute(t, "rank", "--cohort", "CS1", "--top", "1", "--pretty")
	require.NoError(t, err)

	assert.Contains(t, string(out), "\n  ")
	res := decode(t, out)
	assert.Equal(t, 2.0, res["total_students"])
	require.Len(t, res["rankings"], 1)
	top := res["rankings"].([]any)[0].(map[string]any)
	assert.Equal(t, "S1", top["student_id"])
}

func TestTrendCmds(t *testing.T) {
	out, err := execute(t, "trend", "-s", "S1")
	require.NoError(t, err)
	assert.Len(t, decode(t, out)["semester_trends"], 2)

	_, err = execute(t, "trend", "-s", "S1", "--up-to-year", "2023-2024")
	assert.ErrorContains(t, err, "together")

	out, err = execute(t, "cohort-trend", "--cohort", "CS1")
	require.NoError(t, err)
	assert.Len(t, decode(t, out)["class_trends"], 2)

	out, err = execute(t, "course-trend", "--course", "C1")
	require.NoError(t, err)
	assert.Equal(t, "C1", decode(t, out)["course_id"])
}

func TestDistributionCmd(t *testing.T) {
	out, err := execute(t, "distribution", "--course", "C2")
	require.NoError(t, err)

	res := decode(t, out)
	assert.Equal(t, "course", res["scope"])
	assert.Equal(t, "C2", res["id"])

	_, err = execute(t, "distribution", "--course", "C2", "--cohort", "CS1")
	assert.Error(t, err)
}

func TestCompareCmd(t *testing.T) {
	out, err := execute(t, "compare", "--cohort", "CS1", "--cohort", "EE2")
	require.NoError(t, err)

	res := decode(t, out)
	assert.Equal(t, "CS1", res["best_cohort"])
	assert.Equal(t, 82.5, res["overall_average"])
	assert.Equal(t, 0.0, res["performance_gap"])
	assert.Equal(t, "high", res["performance_consistency"])
	assert.Equal(t, []any{"EE2"}, res["unscored_cohorts"])
	require.Len(t, res["ranked_cohorts"], 1)

	_, err = execute(t, "compare")
	assert.Error(t, err)
}

func TestPredictCmd(t *testing.T) {
	out, err := execute(t, "predict", "-s", "S1", "--remaining-credits", "5", "--assumed-gpa", "2")
	require.NoError(t, err)

	res := decode(t, out)
	assert.Equal(t, 2.94, res["predicted_gpa"])
	assert.Equal(t, 2.0, res["assumed_gpa"])

	_, err = execute(t, "predict", "-s", "S1", "--assumed-gpa", "9")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestWarmAndInvalidateCmds(t *testing.T) {
	out, err := execute(t, "warm", "-s", "S1", "-s", "S2", "--cohort", "CS1", "--max-students", "1")
	require.NoError(t, err)

	res := decode(t, out)
	assert.Equal(t, 1.0, res["students_warmed"])
	assert.Equal(t, 1.0, res["cohorts_warmed"])
	assert.Equal(t, 1.0, res["truncated"])

	out, err = execute(t, "invalidate", "--prefix", cache.PrefixStudentGPA)
	require.NoError(t, err)
	assert.Equal(t, []any{cache.PrefixPattern(cache.PrefixStudentGPA)}, decode(t, out)["patterns"])

	_, err = execute(t, "invalidate", "--prefix", "bogus")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestConfigCmd_RedactsSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grades.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  password: hunter2\n"), 0o644))

	out, err := execute(t, "config", "--config", path)
	require.NoError(t, err)

	assert.NotContains(t, string(out), "hunter2")
	assert.Contains(t, string(out), redacted)
}

func TestConfigCmd_InvalidConfig(t *testing.T) {
	t.Setenv("GRADE_OBSERVABILITY__LOG_FORMAT", "xml")

	_, err := execute(t, "config")

	assert.True(t, shared.IsConfiguration(err))
}

func TestServeCmd_Once(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grades.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  warm_students: [S1]\n  warm_cohorts: [CS1]\n"), 0o644))

	out, err := execute(t, "serve", "--once", "--config", path)
	require.NoError(t, err)

	res := decode(t, out)
	jobs := res["jobs"].([]any)
	require.Len(t, jobs, 2)
	assert.Equal(t, "purge_cache", jobs[0].(map[string]any)["name"])
	assert.Equal(t, "warm_cache", jobs[1].(map[string]any)["name"])
	for _, h := range res["history"].([]any) {
		assert.Equal(t, true, h.(map[string]any)["success"])
	}
	db := res["database"].(map[string]any)
	assert.Equal(t, true, db["healthy"])
	assert.Equal(t, 10.0, db["max_conns"])
}

func TestServeCmd_ReportWithoutDatabase(t *testing.T) {
	a := &app{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	s := scheduler.New(scheduler.WithLogger(a.logger))

	r := a.report(context.Background(), s)
	assert.Nil(t, r.Database)

	a.health = func(context.Context) (*postgres.HealthStatus, error) { return nil, postgres.ErrConnectionClosed }
	r = a.report(context.Background(), s)
	assert.Nil(t, r.Database)
}

func TestServeCmd_StopsOnCancel(t *testing.T) {
	root := newRootCmdWith(&globalOpts{open: openStatic})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"serve"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, root.ExecuteContext(ctx))
	assert.Len(t, decode(t, out.Bytes())["jobs"], 2)
}
