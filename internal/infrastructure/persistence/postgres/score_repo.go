package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"slices"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/domain/shared"
	"github.com/unigrade/grade-analytics/pkg/retry"
)

// Compile-time check that ScoreRepository implements grading.ScoreRepository.
var _ grading.ScoreRepository = (*ScoreRepository)(nil)

// ScoreRepository implements grading.ScoreRepository on PostgreSQL. Every
// method issues exactly one query.
type ScoreRepository struct {
	db      *sql.DB
	retrier *retry.Retrier
	logger  *slog.Logger
}

// RepositoryOption configures a ScoreRepository.
type RepositoryOption func(*ScoreRepository)

// WithRetrier replaces the retry policy for transient failures.
func WithRetrier(r *retry.Retrier) RepositoryOption {
	return func(repo *ScoreRepository) {
		if r != nil {
			repo.retrier = r
		}
	}
}

// WithLogger sets the repository logger.
func WithLogger(l *slog.Logger) RepositoryOption {
	return func(repo *ScoreRepository) {
		if l != nil {
			repo.logger = l
		}
	}
}

// NewScoreRepository creates a repository over db.
func NewScoreRepository(db *sql.DB, opts ...RepositoryOption) *ScoreRepository {
	repo := &ScoreRepository{
		db:      db,
		retrier: retry.SourceRetrier(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(repo)
	}
	repo.logger = repo.logger.With(slog.String("component", "score_repository"))
	return repo
}

// FindByStudent returns every record of one student.
func (r *ScoreRepository) FindByStudent(ctx context.Context, studentID string, filter grading.Filter) ([]grading.ScoreRecord, error) {
	q := newScoreQuery().eq("g.student_id::text", studentID).filter(filter)
	return r.query(ctx, "FindByStudent", q)
}

// FindByStudents returns records for many students in one IN query.
func (r *ScoreRepository) FindByStudents(ctx context.Context, studentIDs []string, filter grading.Filter) (map[string][]grading.ScoreRecord, error) {
	ids := slices.Clone(studentIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 {
		return map[string][]grading.ScoreRecord{}, nil
	}

	q := newScoreQuery().anyOf("g.student_id::text", ids).filter(filter)
	records, err := r.query(ctx, "FindByStudents", q)
	if err != nil {
		return nil, err
	}
	return grading.GroupByStudent(records), nil
}

// FindByCohort returns records for every active student of a class.
func (r *ScoreRepository) FindByCohort(ctx context.Context, cohortID string, filter grading.Filter) (map[string][]grading.ScoreRecord, error) {
	q := newScoreQuery(queryCohortJoin).
		eq("s.class_name", cohortID).
		eq("s.is_active", true).
		filter(filter)

	records, err := r.query(ctx, "FindByCohort", q)
	if err != nil {
		return nil, err
	}
	return grading.GroupByStudent(records), nil
}

// FindByCourse returns every record of one course.
func (r *ScoreRepository) FindByCourse(ctx context.Context, courseID string, filter grading.Filter) ([]grading.ScoreRecord, error) {
	q := newScoreQuery().eq("g.course_id::text", courseID).filter(filter)
	return r.query(ctx, "FindByCourse", q)
}

func (r *ScoreRepository) query(ctx context.Context, op string, q *scoreQuery) ([]grading.ScoreRecord, error) {
	records, err := retry.DoWithData(ctx, r.retrier, func(ctx context.Context) ([]grading.ScoreRecord, error) {
		rows, err := r.db.QueryContext(ctx, q.String(), q.args...)
		if err != nil {
			return nil, classify(err)
		}
		defer rows.Close()

		var out []grading.ScoreRecord
		for rows.Next() {
			rec, err := scanScoreRecord(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		if err := rows.Err(); err != nil {
			return nil, classify(err)
		}
		return out, nil
	})
	if err != nil {
		r.logger.Error("score query failed", slog.String("op", op), slog.Any("error", err))
		return nil, shared.WrapError("postgres", op, shared.ErrSourceUnavailable, "query score records", err)
	}

	r.logger.Debug("score query", slog.String("op", op), slog.Int("records", len(records)))
	return records, nil
}

func scanScoreRecord(rows *sql.Rows) (grading.ScoreRecord, error) {
	var (
		rec         grading.ScoreRecord
		courseName  sql.NullString
		score       sql.NullFloat64
		courseType  sql.NullString
		submittedAt sql.NullTime
	)

	err := rows.Scan(
		&rec.StudentID,
		&rec.CourseID,
		&courseName,
		&score,
		&rec.MaxScore,
		&rec.Credits,
		&rec.AcademicYear,
		&rec.Semester,
		&courseType,
		&rec.IsRetakeCandidate,
		&submittedAt,
	)
	if err != nil {
		return grading.ScoreRecord{}, err
	}

	rec.CourseName = courseName.String
	rec.CourseType = courseType.String
	if score.Valid {
		rec.Score = &score.Float64
	}
	if submittedAt.Valid {
		rec.SubmittedAt = submittedAt.Time
	}
	return rec, nil
}

// classify marks connection-level failures as retryable. Context errors and
// SQL errors are returned as is and not retried.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08", // connection exception
			pgErr.Code == "40001", // serialization_failure
			pgErr.Code == "40P01", // deadlock_detected
			pgErr.Code == "57P01": // admin_shutdown
			return retry.Retryable(err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.SafeToRetry(err) {
		return retry.Retryable(err)
	}
	return err
}
