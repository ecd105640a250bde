package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertImportRun = `-- name: InsertImportRun :exec
INSERT INTO import_runs (
    run_id, stage, file, processed, skipped, errors, rejected, commits,
    duration_ms, finished_at, triggered_by, remote_addr
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

type InsertImportRunParams struct {
	RunID       pgtype.UUID
	Stage       string
	File        string
	Processed   int32
	Skipped     int32
	Errors      int32
	Rejected    int32
	Commits     int32
	DurationMs  int64
	FinishedAt  pgtype.Timestamptz
	TriggeredBy string
	RemoteAddr  pgtype.Text
}

func (q *Queries) InsertImportRun(ctx context.Context, arg InsertImportRunParams) error {
	_, err := q.db.Exec(ctx, insertImportRun,
		arg.RunID,
		arg.Stage,
		arg.File,
		arg.Processed,
		arg.Skipped,
		arg.Errors,
		arg.Rejected,
		arg.Commits,
		arg.DurationMs,
		arg.FinishedAt,
		arg.TriggeredBy,
		arg.RemoteAddr,
	)
	return err
}

const listImportRuns = `-- name: ListImportRuns :many
SELECT id, run_id, stage, file, processed, skipped, errors, rejected, commits,
       duration_ms, finished_at, triggered_by, remote_addr
FROM import_runs
ORDER BY finished_at DESC, id DESC
LIMIT $1
`

func (q *Queries) ListImportRuns(ctx context.Context, limit int32) ([]ImportRun, error) {
	rows, err := q.db.Query(ctx, listImportRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ImportRun
	for rows.Next() {
		var i ImportRun
		if err := rows.Scan(
			&i.ID,
			&i.RunID,
			&i.Stage,
			&i.File,
			&i.Processed,
			&i.Skipped,
			&i.Errors,
			&i.Rejected,
			&i.Commits,
			&i.DurationMs,
			&i.FinishedAt,
			&i.TriggeredBy,
			&i.RemoteAddr,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteImportRunsBefore = `-- name: DeleteImportRunsBefore :execrows
DELETE FROM import_runs
WHERE finished_at < $1
`

func (q *Queries) DeleteImportRunsBefore(ctx context.Context, before pgtype.Timestamptz) (int64, error) {
	result, err := q.db.Exec(ctx, deleteImportRunsBefore, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const resetImportRuns = `-- name: ResetImportRuns :exec
TRUNCATE import_runs RESTART IDENTITY
`

func (q *Queries) ResetImportRuns(ctx context.Context) error {
	_, err := q.db.Exec(ctx, resetImportRuns)
	return err
}
