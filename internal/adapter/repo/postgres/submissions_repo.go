package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/vjudge/internal/domain"
)

// SubmissionRepo persists and loads submissions using a minimal pgx pool.
//
// Verdict and result updates carry the stored verdict in their WHERE clause
// so a terminal verdict can never be overwritten, no matter how late a
// worker commits.
type SubmissionRepo struct{ Pool PgxPool }

// NewSubmissionRepo constructs a SubmissionRepo with the given pool.
func NewSubmissionRepo(p PgxPool) *SubmissionRepo { return &SubmissionRepo{Pool: p} }

const transientVerdicts = `('Queuing', 'Being Judged', 'Compiling', 'Running')`

// Create inserts a new submission and returns its assigned id.
func (r *SubmissionRepo) Create(ctx domain.Context, s domain.Submission) (int64, error) {
	tracer := otel.Tracer("repo.submissions")
	ctx, span := tracer.Start(ctx, "submissions.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "submissions"),
	)
	verdict := s.Verdict
	if verdict == "" {
		verdict = domain.VerdictQueuing
	}
	ts := s.TimeStamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	q := `INSERT INTO submissions (oj_name, problem_id, language, source_code, verdict, time_stamp)
	      VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`
	var id int64
	if err := r.Pool.QueryRow(ctx, q, s.OJName, s.ProblemID, s.Language, s.SourceCode, verdict, ts).Scan(&id); err != nil {
		return 0, fmt.Errorf("op=submission.create: %w", err)
	}
	return id, nil
}

// Get loads a submission by id.
func (r *SubmissionRepo) Get(ctx domain.Context, id int64) (domain.Submission, error) {
	tracer := otel.Tracer("repo.submissions")
	ctx, span := tracer.Start(ctx, "submissions.Get")
	defer span.End()
	q := `SELECT id, COALESCE(user_id,''), oj_name, problem_id, language, source_code,
	             COALESCE(run_id,''), verdict, COALESCE(exe_time,0), COALESCE(exe_mem,0), time_stamp
	      FROM submissions WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var s domain.Submission
	if err := row.Scan(&s.ID, &s.UserID, &s.OJName, &s.ProblemID, &s.Language, &s.SourceCode,
		&s.RunID, &s.Verdict, &s.ExeTime, &s.ExeMem, &s.TimeStamp); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Submission{}, fmt.Errorf("op=submission.get id=%d: %w", id, domain.ErrNotFound)
		}
		return domain.Submission{}, fmt.Errorf("op=submission.get: %w", err)
	}
	return s, nil
}

// MarkSubmitted stamps run id and account and moves the row to Being Judged.
func (r *SubmissionRepo) MarkSubmitted(ctx domain.Context, id int64, runID, userID string) error {
	tracer := otel.Tracer("repo.submissions")
	ctx, span := tracer.Start(ctx, "submissions.MarkSubmitted")
	defer span.End()
	q := `UPDATE submissions SET run_id=$2, user_id=$3, verdict=$4
	      WHERE id=$1 AND verdict IN ` + transientVerdicts
	if _, err := r.Pool.Exec(ctx, q, id, runID, userID, domain.VerdictBeingJudged); err != nil {
		return fmt.Errorf("op=submission.mark_submitted: %w", err)
	}
	return nil
}

// SetVerdict commits a verdict without execution stats.
func (r *SubmissionRepo) SetVerdict(ctx domain.Context, id int64, v domain.Verdict) error {
	tracer := otel.Tracer("repo.submissions")
	ctx, span := tracer.Start(ctx, "submissions.SetVerdict")
	defer span.End()
	q := `UPDATE submissions SET verdict=$2 WHERE id=$1 AND verdict IN ` + transientVerdicts
	if _, err := r.Pool.Exec(ctx, q, id, v); err != nil {
		return fmt.Errorf("op=submission.set_verdict: %w", err)
	}
	return nil
}

// SetResult commits a terminal verdict together with execution time and memory.
func (r *SubmissionRepo) SetResult(ctx domain.Context, id int64, v domain.Verdict, exeTime, exeMem int) error {
	tracer := otel.Tracer("repo.submissions")
	ctx, span := tracer.Start(ctx, "submissions.SetResult")
	defer span.End()
	q := `UPDATE submissions SET verdict=$2, exe_time=$3, exe_mem=$4
	      WHERE id=$1 AND verdict IN ` + transientVerdicts
	if _, err := r.Pool.Exec(ctx, q, id, v, exeTime, exeMem); err != nil {
		return fmt.Errorf("op=submission.set_result: %w", err)
	}
	return nil
}

// ListUnfinished returns ids of all submissions still awaiting a terminal
// verdict, oldest first.
func (r *SubmissionRepo) ListUnfinished(ctx domain.Context) ([]int64, error) {
	tracer := otel.Tracer("repo.submissions")
	ctx, span := tracer.Start(ctx, "submissions.ListUnfinished")
	defer span.End()
	q := `SELECT id FROM submissions WHERE verdict IN ($1, $2) ORDER BY id`
	rows, err := r.Pool.Query(ctx, q, domain.VerdictQueuing, domain.VerdictBeingJudged)
	if err != nil {
		return nil, fmt.Errorf("op=submission.list_unfinished: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("op=submission.list_unfinished: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
