package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/vjudge/internal/domain"
)

// ProblemRepo persists crawled problem metadata keyed by (oj_name, problem_id).
type ProblemRepo struct{ Pool PgxPool }

// NewProblemRepo constructs a ProblemRepo with the given pool.
func NewProblemRepo(p PgxPool) *ProblemRepo { return &ProblemRepo{Pool: p} }

// Upsert writes a problem record, replacing any previous crawl of the same key.
func (r *ProblemRepo) Upsert(ctx domain.Context, p domain.Problem) error {
	tracer := otel.Tracer("repo.problems")
	ctx, span := tracer.Start(ctx, "problems.Upsert")
	defer span.End()
	lu := p.LastUpdate
	if lu.IsZero() {
		lu = time.Now().UTC()
	}
	q := `INSERT INTO problems (oj_name, problem_id, last_update, title, description, input, output,
	                            sample_input, sample_output, time_limit, mem_limit)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	      ON CONFLICT (oj_name, problem_id) DO UPDATE SET
	        last_update=EXCLUDED.last_update, title=EXCLUDED.title,
	        description=EXCLUDED.description, input=EXCLUDED.input, output=EXCLUDED.output,
	        sample_input=EXCLUDED.sample_input, sample_output=EXCLUDED.sample_output,
	        time_limit=EXCLUDED.time_limit, mem_limit=EXCLUDED.mem_limit`
	_, err := r.Pool.Exec(ctx, q, p.OJName, p.ProblemID, lu, p.Title, p.Description, p.Input,
		p.Output, p.SampleInput, p.SampleOutput, p.TimeLimit, p.MemLimit)
	if err != nil {
		return fmt.Errorf("op=problem.upsert: %w", err)
	}
	return nil
}

// Get loads one problem.
func (r *ProblemRepo) Get(ctx domain.Context, ojName, problemID string) (domain.Problem, error) {
	tracer := otel.Tracer("repo.problems")
	ctx, span := tracer.Start(ctx, "problems.Get")
	defer span.End()
	q := `SELECT oj_name, problem_id, last_update, COALESCE(title,''), COALESCE(description,''),
	             COALESCE(input,''), COALESCE(output,''), COALESCE(sample_input,''),
	             COALESCE(sample_output,''), COALESCE(time_limit,0), COALESCE(mem_limit,0)
	      FROM problems WHERE oj_name=$1 AND problem_id=$2`
	var p domain.Problem
	row := r.Pool.QueryRow(ctx, q, ojName, problemID)
	if err := row.Scan(&p.OJName, &p.ProblemID, &p.LastUpdate, &p.Title, &p.Description, &p.Input,
		&p.Output, &p.SampleInput, &p.SampleOutput, &p.TimeLimit, &p.MemLimit); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Problem{}, fmt.Errorf("op=problem.get %s/%s: %w", ojName, problemID, domain.ErrNotFound)
		}
		return domain.Problem{}, fmt.Errorf("op=problem.get: %w", err)
	}
	return p, nil
}

// List returns a page of problems matching the filter plus the total count.
// Filter fields are SQL LIKE patterns; empty means match-all.
func (r *ProblemRepo) List(ctx domain.Context, f domain.ProblemFilter, limit, offset int) ([]domain.Problem, int, error) {
	tracer := otel.Tracer("repo.problems")
	ctx, span := tracer.Start(ctx, "problems.List")
	defer span.End()
	oj := f.OJName
	if oj == "" {
		oj = "%"
	}
	pid := f.ProblemID
	if pid == "" {
		pid = "%"
	}
	var total int
	if err := r.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM problems WHERE oj_name LIKE $1 AND problem_id LIKE $2`, oj, pid).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("op=problem.list count: %w", err)
	}
	q := `SELECT oj_name, problem_id, last_update, COALESCE(title,''), COALESCE(description,''),
	             COALESCE(input,''), COALESCE(output,''), COALESCE(sample_input,''),
	             COALESCE(sample_output,''), COALESCE(time_limit,0), COALESCE(mem_limit,0)
	      FROM problems WHERE oj_name LIKE $1 AND problem_id LIKE $2
	      ORDER BY oj_name, problem_id LIMIT $3 OFFSET $4`
	rows, err := r.Pool.Query(ctx, q, oj, pid, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("op=problem.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Problem
	for rows.Next() {
		var p domain.Problem
		if err := rows.Scan(&p.OJName, &p.ProblemID, &p.LastUpdate, &p.Title, &p.Description, &p.Input,
			&p.Output, &p.SampleInput, &p.SampleOutput, &p.TimeLimit, &p.MemLimit); err != nil {
			return nil, 0, fmt.Errorf("op=problem.list: %w", err)
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// ListStale returns keys of problems last crawled before cutoff.
func (r *ProblemRepo) ListStale(ctx domain.Context, cutoff time.Time) ([]domain.ProblemKey, error) {
	tracer := otel.Tracer("repo.problems")
	ctx, span := tracer.Start(ctx, "problems.ListStale")
	defer span.End()
	rows, err := r.Pool.Query(ctx,
		`SELECT oj_name, problem_id FROM problems WHERE last_update < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("op=problem.list_stale: %w", err)
	}
	defer rows.Close()
	var keys []domain.ProblemKey
	for rows.Next() {
		var k domain.ProblemKey
		if err := rows.Scan(&k.OJName, &k.ProblemID); err != nil {
			return nil, fmt.Errorf("op=problem.list_stale: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ListIDs returns every problem id known for an OJ.
func (r *ProblemRepo) ListIDs(ctx domain.Context, ojName string) ([]string, error) {
	tracer := otel.Tracer("repo.problems")
	ctx, span := tracer.Start(ctx, "problems.ListIDs")
	defer span.End()
	rows, err := r.Pool.Query(ctx,
		`SELECT problem_id FROM problems WHERE oj_name=$1 ORDER BY problem_id`, ojName)
	if err != nil {
		return nil, fmt.Errorf("op=problem.list_ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("op=problem.list_ids: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MaxIDs returns the numerically largest problem id per OJ. Ids that do not
// parse as integers are ignored, matching the forward-prefetch semantics.
func (r *ProblemRepo) MaxIDs(ctx domain.Context) (map[string]string, error) {
	tracer := otel.Tracer("repo.problems")
	ctx, span := tracer.Start(ctx, "problems.MaxIDs")
	defer span.End()
	q := `SELECT oj_name, MAX(problem_id::bigint)::text FROM problems
	      WHERE problem_id ~ '^[0-9]+$' GROUP BY oj_name`
	rows, err := r.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=problem.max_ids: %w", err)
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var oj, max string
		if err := rows.Scan(&oj, &max); err != nil {
			return nil, fmt.Errorf("op=problem.max_ids: %w", err)
		}
		out[oj] = max
	}
	return out, rows.Err()
}
