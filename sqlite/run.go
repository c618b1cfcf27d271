package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/fwojciec/harvest"
	"github.com/google/uuid"
)

// Compile-time interface verification.
var _ harvest.RunService = (*RunService)(nil)

// RunService implements harvest.RunService using SQLite.
type RunService struct {
	db *DB
}

// NewRunService creates a new RunService.
func NewRunService(db *DB) *RunService {
	return &RunService{db: db}
}

// CreateRun records a running run and assigns its ID and start time.
func (s *RunService) CreateRun(ctx context.Context, run *harvest.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	run.ID = uuid.New().String()
	run.Status = harvest.RunRunning
	run.StartedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, source, status, started_at)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.Source, run.Status, formatTime(run.StartedAt))

	return err
}

// FinishRun stores the terminal status, stats and error of a run.
func (s *RunService) FinishRun(ctx context.Context, id string, status string, stats harvest.Stats, runErr error) error {
	switch status {
	case harvest.RunCompleted, harvest.RunStopped, harvest.RunFailed:
	default:
		return harvest.Errorf(harvest.EINVALID, "invalid run status %q", status)
	}

	var msg string
	if runErr != nil {
		msg = runErr.Error()
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, pages = ?, items = ?, success = ?, failed = ?, skipped = ?,
			discarded = ?, units_delivered = ?, units_failed = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, status, stats.Pages, stats.Items, stats.Success, stats.Failed, stats.Skipped,
		stats.Discarded, stats.UnitsDelivered, stats.UnitsFailed, msg, formatTime(time.Now()), id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return harvest.Errorf(harvest.ENOTFOUND, "run not found")
	}
	return nil
}

// FindRuns retrieves runs matching the filter, newest first.
func (s *RunService) FindRuns(ctx context.Context, filter harvest.RunFilter) ([]*harvest.Run, error) {
	var query strings.Builder
	var args []any

	query.WriteString(`SELECT id, source, status, pages, items, success, failed, skipped,
		discarded, units_delivered, units_failed, error, started_at, finished_at
		FROM runs WHERE 1=1`)

	if filter.Source != nil {
		query.WriteString(" AND source = ?")
		args = append(args, *filter.Source)
	}

	query.WriteString(" ORDER BY started_at DESC, rowid DESC")
	appendLimit(&query, &args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*harvest.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func scanRun(rows *sql.Rows) (*harvest.Run, error) {
	var run harvest.Run
	var startedAt, finishedAt string
	st := &run.Stats

	if err := rows.Scan(&run.ID, &run.Source, &run.Status, &st.Pages, &st.Items, &st.Success,
		&st.Failed, &st.Skipped, &st.Discarded, &st.UnitsDelivered, &st.UnitsFailed,
		&run.Error, &startedAt, &finishedAt); err != nil {
		return nil, err
	}

	var err error
	if run.StartedAt, err = parseRFC3339(startedAt, "started_at"); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseRFC3339(finishedAt, "finished_at"); err != nil {
		return nil, err
	}
	return &run, nil
}
