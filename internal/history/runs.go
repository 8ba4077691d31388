package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/pipeline/internal/orchestrator"
)

// SaveRun stores a finished run and every task result. Saving the same run
// ID again replaces it.
func (s *SQLiteStore) SaveRun(ctx context.Context, pipeline string, res *orchestrator.RunResult) error {
	if res == nil {
		return errors.New("nil run result")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	wavesPlanned := 0
	if res.Plan != nil {
		wavesPlanned = len(res.Plan.Waves)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, pipeline, status, quality_score, abort_reason, waves_run, waves_planned, peak_parallel, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			pipeline = excluded.pipeline,
			status = excluded.status,
			quality_score = excluded.quality_score,
			abort_reason = excluded.abort_reason,
			waves_run = excluded.waves_run,
			waves_planned = excluded.waves_planned,
			peak_parallel = excluded.peak_parallel,
			started_at = excluded.started_at,
			duration_ms = excluded.duration_ms
	`, res.RunID, pipeline, string(res.Status), res.QualityScore, res.AbortReason,
		res.WavesRun, wavesPlanned, res.PeakParallel, res.StartedAt.UnixNano(), res.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_results WHERE run_id = ?`, res.RunID); err != nil {
		return fmt.Errorf("failed to delete old task results: %w", err)
	}

	for i, r := range res.Results {
		var started sql.NullInt64
		if !r.StartedAt.IsZero() {
			started = sql.NullInt64{Int64: r.StartedAt.UnixNano(), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_results (run_id, position, name, status, skip_reason, attempts, wave, critical, exit_code, error, started_at, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, res.RunID, i, r.Name, string(r.Status), string(r.SkipReason), r.Attempts, r.Wave,
			r.Critical, r.Output.ExitCode, r.ErrString(), started, r.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to insert result for %s: %w", r.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const runColumns = `id, pipeline, status, quality_score, abort_reason, waves_run, waves_planned, peak_parallel, started_at, duration_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run         Run
		status      string
		abortReason sql.NullString
		startedAt   int64
		durationMS  int64
	)
	err := row.Scan(&run.ID, &run.Pipeline, &status, &run.QualityScore, &abortReason,
		&run.WavesRun, &run.WavesPlanned, &run.PeakParallel, &startedAt, &durationMS)
	if err != nil {
		return Run{}, err
	}
	run.Status = orchestrator.RunStatus(status)
	run.AbortReason = abortReason.String
	run.StartedAt = time.Unix(0, startedAt)
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return run, nil
}

// GetRun returns a run with its task results in declaration order.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, status, skip_reason, attempts, wave, critical, exit_code, error, started_at, duration_ms
		FROM task_results
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec        TaskRecord
			status     string
			skipReason sql.NullString
			errText    sql.NullString
			startedAt  sql.NullInt64
			durationMS int64
		)
		if err := rows.Scan(&rec.Name, &status, &skipReason, &rec.Attempts, &rec.Wave, &rec.Critical,
			&rec.ExitCode, &errText, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan task result: %w", err)
		}
		rec.Status = orchestrator.Status(status)
		rec.SkipReason = orchestrator.SkipReason(skipReason.String)
		rec.Error = errText.String
		if startedAt.Valid {
			rec.StartedAt = time.Unix(0, startedAt.Int64)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		run.Tasks = append(run.Tasks, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task results: %w", err)
	}

	return &run, nil
}

// ListRuns returns up to limit runs, newest first, without task results.
// A limit of zero or less returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}
