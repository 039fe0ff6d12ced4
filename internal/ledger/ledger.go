package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const maxStderrBytes = 64 * 1024

// Ledger persists run history in SQLite.
type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// StartRun records a running run and its pending datasets. The returned
// dataset ids follow the order of req.Datasets.
func (l *Ledger) StartRun(ctx context.Context, req StartRunRequest) (string, []string, error) {
	if req.RunDir == "" {
		return "", nil, fmt.Errorf("run_dir is empty")
	}
	if req.SubmittedBy == "" {
		return "", nil, fmt.Errorf("submitted_by is empty")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	runID := uuid.NewString()
	now := formatTime(time.Now())

	_, err = tx.ExecContext(ctx, `
INSERT INTO runs(id, output_root, run_dir, status, submitted_by, total, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, runID, req.OutputRoot, req.RunDir, StatusRunning, req.SubmittedBy, len(req.Datasets), now)
	if err != nil {
		return "", nil, fmt.Errorf("insert run: %w", err)
	}

	ids := make([]string, len(req.Datasets))
	for i, d := range req.Datasets {
		ids[i] = uuid.NewString()
		_, err := tx.ExecContext(ctx, `
INSERT INTO datasets(id, run_id, position, definition, command, status)
VALUES(?, ?, ?, ?, ?, ?);
`, ids[i], runID, i, d.Definition, d.Command, StatusPending)
		if err != nil {
			return "", nil, fmt.Errorf("insert dataset %q: %w", d.Definition, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("commit run: %w", err)
	}
	return runID, ids, nil
}

// MarkDatasetRunning flags a pending dataset as started.
func (l *Ledger) MarkDatasetRunning(ctx context.Context, datasetID string) error {
	res, err := l.db.ExecContext(ctx, `
UPDATE datasets SET status = ?, started_at = ? WHERE id = ?;
`, StatusRunning, formatTime(time.Now()), datasetID)
	if err != nil {
		return fmt.Errorf("mark dataset running: %w", err)
	}
	return requireRow(res, ErrDatasetNotFound)
}

// CompleteDataset stores the terminal outcome of a dataset.
func (l *Ledger) CompleteDataset(ctx context.Context, datasetID string, out DatasetOutcome) error {
	if out.Status != StatusSucceeded && out.Status != StatusFailed {
		return fmt.Errorf("invalid terminal status: %q", out.Status)
	}

	var stderrVal any
	if out.Stderr != nil {
		s := *out.Stderr
		if len(s) > maxStderrBytes {
			s = s[:maxStderrBytes]
		}
		stderrVal = s
	}

	res, err := l.db.ExecContext(ctx, `
UPDATE datasets
SET status = ?, output_path = ?, digest = ?, relabeled = ?, last_error = ?, stderr = ?, completed_at = ?
WHERE id = ?;
`, out.Status, nullString(out.OutputPath), nullString(out.Digest), out.Relabeled, out.LastError, stderrVal,
		formatTime(time.Now()), datasetID)
	if err != nil {
		return fmt.Errorf("complete dataset: %w", err)
	}
	return requireRow(res, ErrDatasetNotFound)
}

// CompleteRun marks a run terminal and fills its counters from the datasets.
func (l *Ledger) CompleteRun(ctx context.Context, runID string, status Status, elapsed time.Duration, lastError *string) error {
	if status != StatusCompleted && status != StatusFailed {
		return fmt.Errorf("invalid terminal status: %q", status)
	}

	res, err := l.db.ExecContext(ctx, `
UPDATE runs
SET status = ?,
    elapsed_ms = ?,
    last_error = ?,
    completed_at = ?,
    succeeded = (SELECT COUNT(*) FROM datasets WHERE run_id = runs.id AND status = ?),
    failed = (SELECT COUNT(*) FROM datasets WHERE run_id = runs.id AND status = ?)
WHERE id = ?;
`, status, elapsed.Milliseconds(), lastError, formatTime(time.Now()), StatusSucceeded, StatusFailed, runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return requireRow(res, ErrRunNotFound)
}

const runColumns = `id, output_root, run_dir, status, submitted_by, total, succeeded, failed,
  elapsed_ms, last_error, created_at, completed_at`

// GetRun loads a run by id.
func (l *Ledger) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?;`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT `+runColumns+`
FROM runs
ORDER BY rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListDatasets returns the datasets of a run in submission order.
func (l *Ledger) ListDatasets(ctx context.Context, runID string) ([]Dataset, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT id, run_id, position, definition, command, status, output_path, digest, relabeled,
  last_error, stderr, started_at, completed_at
FROM datasets
WHERE run_id = ?
ORDER BY position ASC;
`, runID)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var out []Dataset
	for rows.Next() {
		var (
			d                    Dataset
			statusS              string
			outputPath, digest   sql.NullString
			lastError, stderr    sql.NullString
			startedAt, completed sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.RunID, &d.Position, &d.Definition, &d.Command, &statusS,
			&outputPath, &digest, &d.Relabeled, &lastError, &stderr, &startedAt, &completed); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		d.Status = Status(statusS)
		d.OutputPath = stringPtr(outputPath)
		d.Digest = stringPtr(digest)
		d.LastError = stringPtr(lastError)
		d.Stderr = stringPtr(stderr)
		d.StartedAt = parseTime(startedAt)
		d.CompletedAt = parseTime(completed)
		out = append(out, d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r          Run
		statusS    string
		elapsedMS  sql.NullInt64
		lastError  sql.NullString
		createdAtS string
		completed  sql.NullString
	)
	if err := s.Scan(&r.ID, &r.OutputRoot, &r.RunDir, &statusS, &r.SubmittedBy, &r.Total, &r.Succeeded,
		&r.Failed, &elapsedMS, &lastError, &createdAtS, &completed); err != nil {
		return nil, err
	}
	r.Status = Status(statusS)
	if elapsedMS.Valid {
		d := time.Duration(elapsedMS.Int64) * time.Millisecond
		r.Elapsed = &d
	}
	r.LastError = stringPtr(lastError)
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		r.CreatedAt = t
	}
	r.CompletedAt = parseTime(completed)
	return &r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
