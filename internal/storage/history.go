package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/korhy/cookbook/internal/core"
	db "github.com/korhy/cookbook/internal/database"
)

// RecordStage stores one stage summary. The trigger and remote address come
// from ctx.
func (s *Store) RecordStage(ctx context.Context, runID string, r *core.StageResult) error {
	params, err := runParams(ctx, runID, r)
	if err != nil {
		return err
	}
	if err := s.q.InsertImportRun(ctx, params); err != nil {
		return fmt.Errorf("record stage %s: %w", r.Stage, err)
	}
	return nil
}

func (s *Store) RecentStages(ctx context.Context, limit int) ([]core.RecordedStage, error) {
	rows, err := s.q.ListImportRuns(ctx, int32(core.NormalizeLimit(limit)))
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	out := make([]core.RecordedStage, 0, len(rows))
	for _, r := range rows {
		out = append(out, stageFromRow(r))
	}
	return out, nil
}

// PruneStages deletes stage summaries finished before the cutoff.
func (s *Store) PruneStages(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.q.DeleteImportRunsBefore(ctx, pgtype.Timestamptz{Time: before, Valid: true})
	if err != nil {
		return 0, fmt.Errorf("prune import runs: %w", err)
	}
	return n, nil
}

func runParams(ctx context.Context, runID string, r *core.StageResult) (db.InsertImportRunParams, error) {
	id, err := toUUID(runID)
	if err != nil {
		return db.InsertImportRunParams{}, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	var remote pgtype.Text
	if addr := core.RemoteAddrFromContext(ctx); addr != "" {
		remote = pgtype.Text{String: addr, Valid: true}
	}
	return db.InsertImportRunParams{
		RunID:       id,
		Stage:       string(r.Stage),
		File:        r.File,
		Processed:   int32(r.Processed),
		Skipped:     int32(r.Skipped),
		Errors:      int32(r.Errors),
		Rejected:    int32(r.Rejected),
		Commits:     int32(r.Commits),
		DurationMs:  r.Duration.Milliseconds(),
		FinishedAt:  toTimestamptz(r.EndTime),
		TriggeredBy: core.TriggerFromContext(ctx),
		RemoteAddr:  remote,
	}, nil
}

func stageFromRow(r db.ImportRun) core.RecordedStage {
	return core.RecordedStage{
		RunID:      fromUUID(r.RunID),
		Stage:      core.Stage(r.Stage),
		File:       r.File,
		Processed:  int(r.Processed),
		Skipped:    int(r.Skipped),
		Errors:     int(r.Errors),
		Rejected:   int(r.Rejected),
		Commits:    int(r.Commits),
		Duration:   time.Duration(r.DurationMs) * time.Millisecond,
		FinishedAt: fromTimestamptz(r.FinishedAt),
		Trigger:    r.TriggeredBy,
		RemoteAddr: r.RemoteAddr.String,
	}
}
