package postgres

import (
	"context"
	"fmt"
)

// Statements are executed one by one because the extended query protocol
// rejects multi-statement batches.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS submissions (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT,
		oj_name TEXT NOT NULL,
		problem_id TEXT NOT NULL,
		language TEXT NOT NULL,
		source_code TEXT NOT NULL,
		run_id TEXT,
		verdict TEXT NOT NULL DEFAULT 'Queuing',
		exe_time INTEGER,
		exe_mem INTEGER,
		time_stamp TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_verdict ON submissions(verdict)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_oj_problem ON submissions(oj_name, problem_id)`,
	`CREATE TABLE IF NOT EXISTS problems (
		oj_name TEXT NOT NULL,
		problem_id TEXT NOT NULL,
		last_update TIMESTAMPTZ NOT NULL DEFAULT now(),
		title TEXT,
		description TEXT,
		input TEXT,
		output TEXT,
		sample_input TEXT,
		sample_output TEXT,
		time_limit INTEGER,
		mem_limit INTEGER,
		PRIMARY KEY (oj_name, problem_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_problems_last_update ON problems(last_update)`,
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
// Every statement is idempotent, so running it on each boot is safe.
func EnsureSchema(ctx context.Context, pool PgxPool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("op=schema.ensure: %w", err)
		}
	}
	return nil
}
