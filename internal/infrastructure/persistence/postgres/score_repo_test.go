package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/domain/shared"
	"github.com/unigrade/grade-analytics/pkg/retry"
)

func scoreColumns() []string {
	return []string{
		"student_id", "course_id", "course_name",
		"score", "max_score", "credits",
		"academic_year", "semester", "course_type",
		"is_retake", "submitted_at",
	}
}

// arrayConverter lets text array arguments through to the mock the way the
// pgx driver accepts them.
type arrayConverter struct{}

func (arrayConverter) ConvertValue(v any) (driver.Value, error) {
	if s, ok := v.([]string); ok {
		return s, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func newTestRepo(t *testing.T) (*ScoreRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(arrayConverter{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewScoreRepository(db,
		WithRetrier(retry.New(retry.WithMaxAttempts(3), retry.WithInitialDelay(time.Millisecond), retry.WithJitter(0))),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return repo, mock
}

func TestScoreRepository_FindByStudent(t *testing.T) {
	repo, mock := newTestRepo(t)
	submitted := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("g.is_published = TRUE AND g.status = 'approved' AND g.student_id::text = $1 AND g.academic_year = $2")).
		WithArgs("S1", "2023-2024").
		WillReturnRows(sqlmock.NewRows(scoreColumns()).
			AddRow("S1", "C1", "Calculus", 91.5, 100.0, 4.0, "2023-2024", "1", "core", false, submitted).
			AddRow("S1", "C2", nil, nil, 100.0, 2.0, "2023-2024", "1", nil, true, nil))

	records, err := repo.FindByStudent(context.Background(), "S1", grading.Filter{AcademicYear: "2023-2024"})

	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Calculus", records[0].CourseName)
	require.NotNil(t, records[0].Score)
	assert.Equal(t, 91.5, *records[0].Score)
	assert.Equal(t, 4.0, records[0].Credits)
	assert.Equal(t, "core", records[0].CourseType)
	assert.Equal(t, submitted, records[0].SubmittedAt)

	assert.Nil(t, records[1].Score)
	assert.Empty(t, records[1].CourseName)
	assert.True(t, records[1].IsRetakeCandidate)
	assert.True(t, records[1].SubmittedAt.IsZero())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreRepository_FindByStudents_SingleQuery(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("g.student_id::text = ANY($1) AND c.course_type = ANY($2)")).
		WithArgs([]string{"S1", "S2", "S3"}, []string{"core", "elective"}).
		WillReturnRows(sqlmock.NewRows(scoreColumns()).
			AddRow("S1", "C1", "A", 80.0, 100.0, 3.0, "2023-2024", "1", "core", false, nil).
			AddRow("S1", "C2", "B", 70.0, 100.0, 3.0, "2023-2024", "1", "core", false, nil).
			AddRow("S3", "C1", "A", 60.0, 100.0, 3.0, "2023-2024", "1", "elective", false, nil))

	grouped, err := repo.FindByStudents(context.Background(),
		[]string{"S3", "S1", "S2", "S1"},
		grading.Filter{CourseTypes: []string{"core", "elective"}},
	)

	require.NoError(t, err)
	assert.Len(t, grouped["S1"], 2)
	assert.Len(t, grouped["S3"], 1)
	assert.NotContains(t, grouped, "S2")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreRepository_FindByStudents_Empty(t *testing.T) {
	repo, mock := newTestRepo(t)

	grouped, err := repo.FindByStudents(context.Background(), nil, grading.Filter{})

	require.NoError(t, err)
	assert.Empty(t, grouped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreRepository_FindByCohort(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("JOIN students s ON s.id = g.student_id WHERE g.is_published = TRUE AND g.status = 'approved' AND s.class_name = $1 AND s.is_active = $2 AND g.semester = $3")).
		WithArgs("CS-2021", true, "2").
		WillReturnRows(sqlmock.NewRows(scoreColumns()).
			AddRow("S1", "C1", "A", 88.0, 100.0, 3.0, "2023-2024", "2", "core", false, nil).
			AddRow("S2", "C1", "A", 58.0, 100.0, 3.0, "2023-2024", "2", "core", false, nil))

	grouped, err := repo.FindByCohort(context.Background(), "CS-2021", grading.Filter{Semester: "2"})

	require.NoError(t, err)
	assert.Len(t, grouped, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreRepository_FindByCourse(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("g.course_id::text = $1")).
		WithArgs("C9").
		WillReturnRows(sqlmock.NewRows(scoreColumns()))

	records, err := repo.FindByCourse(context.Background(), "C9", grading.Filter{})

	require.NoError(t, err)
	assert.Empty(t, records)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreRepository_RetriesConnectionErrors(t *testing.T) {
	repo, mock := newTestRepo(t)
	connErr := &pgconn.PgError{Code: "08006", Message: "connection failure"}

	mock.ExpectQuery("FROM grades g").WithArgs("S1").WillReturnError(connErr)
	mock.ExpectQuery("FROM grades g").WithArgs("S1").
		WillReturnRows(sqlmock.NewRows(scoreColumns()).
			AddRow("S1", "C1", "A", 75.0, 100.0, 3.0, "2023-2024", "1", "core", false, nil))

	records, err := repo.FindByStudent(context.Background(), "S1", grading.Filter{})

	require.NoError(t, err)
	assert.Len(t, records, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreRepository_SQLErrorsAreNotRetried(t *testing.T) {
	repo, mock := newTestRepo(t)
	syntaxErr := &pgconn.PgError{Code: "42703", Message: "column does not exist"}

	mock.ExpectQuery("FROM grades g").WithArgs("S1").WillReturnError(syntaxErr)

	_, err := repo.FindByStudent(context.Background(), "S1", grading.Filter{})

	assert.ErrorIs(t, err, shared.ErrSourceUnavailable)
	var pgErr *pgconn.PgError
	assert.True(t, errors.As(err, &pgErr))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreRepository_GivesUpAfterRetries(t *testing.T) {
	repo, mock := newTestRepo(t)
	connErr := &pgconn.PgError{Code: "57P01", Message: "terminating connection"}

	for i := 0; i < 3; i++ {
		mock.ExpectQuery("FROM grades g").WillReturnError(connErr)
	}

	_, err := repo.FindByCourse(context.Background(), "C1", grading.Filter{})

	assert.ErrorIs(t, err, shared.ErrSourceUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"connection exception", &pgconn.PgError{Code: "08001"}, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"undefined column", &pgconn.PgError{Code: "42703"}, false},
		{"canceled", context.Canceled, false},
		{"no rows", sql.ErrNoRows, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, retry.IsRetryable(classify(tt.err)))
		})
	}
}

func TestScoreQuery_Placeholders(t *testing.T) {
	q := newScoreQuery().
		eq("g.student_id::text", "S1").
		filter(grading.Filter{AcademicYear: "2023-2024", Semester: "1", CourseTypes: []string{"core"}})

	assert.Equal(t, []any{"S1", "2023-2024", "1", []string{"core"}}, q.args)
	assert.Contains(t, q.String(), "g.semester = $3 AND c.course_type = ANY($4)")
	assert.Contains(t, q.String(), "ORDER BY g.student_id")
}

func TestScoreQuery_AnyOfBindsOneArray(t *testing.T) {
	ids := make([]string, 500)
	for i := range ids {
		ids[i] = fmt.Sprintf("S%03d", i)
	}

	q := newScoreQuery().anyOf("g.student_id::text", ids)

	require.Len(t, q.args, 1)
	assert.Equal(t, ids, q.args[0])
	assert.Contains(t, q.String(), "g.student_id::text = ANY($1)")
	assert.NotContains(t, q.String(), "$2")
}

func TestConnection_HealthAfterClose(t *testing.T) {
	conn := &Connection{closed: true}

	status, err := conn.Health(context.Background())

	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.Nil(t, status)
}

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	assert.Contains(t, cfg.DSN(), "host=localhost port=5432 dbname=grades")

	cfg.URL = "postgres://u:p@db:5432/grades"
	assert.Equal(t, "postgres://u:p@db:5432/grades", cfg.DSN())

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(10), pc.MaxConns)
}
