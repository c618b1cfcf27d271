package sqlite

import (
	"context"
	"time"

	"github.com/fwojciec/harvest"
	"github.com/google/uuid"
)

// Compile-time interface verification.
var (
	_ harvest.DeliveryLedger   = (*Ledger)(nil)
	_ harvest.DeliveryRecorder = (*Recorder)(nil)
)

// Ledger implements harvest.DeliveryLedger using SQLite. Every delivery
// attempt is a row; an item counts as delivered once any attempt succeeded.
type Ledger struct {
	db *DB
}

// NewLedger creates a new Ledger.
func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db}
}

// DeliveredIDs returns the distinct item IDs delivered for source.
func (l *Ledger) DeliveredIDs(ctx context.Context, source string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT DISTINCT item_id FROM deliveries
		WHERE source = ? AND success = 1
		ORDER BY item_id
	`, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Attempts returns the number of recorded delivery attempts for an item.
func (l *Ledger) Attempts(ctx context.Context, source, itemID string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM deliveries WHERE source = ? AND item_id = ?
	`, source, itemID).Scan(&n)
	return n, err
}

// Recorder returns a recorder writing attempts of run runID.
func (l *Ledger) Recorder(source, runID string) harvest.DeliveryRecorder {
	return &Recorder{db: l.db, source: source, runID: runID}
}

// Recorder writes delivery attempts for one source and run.
type Recorder struct {
	db     *DB
	source string
	runID  string
}

// RecordDelivery stores one delivery attempt.
func (r *Recorder) RecordDelivery(ctx context.Context, item *harvest.Item, outcome harvest.Outcome) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, source, run_id, item_id, url, content_hash, success,
			units_delivered, units_failed, error, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), r.source, r.runID, item.ID, item.URL, contentHash(item),
		boolInt(outcome.Success), outcome.Delivered, outcome.Failed, outcome.Err,
		formatTime(time.Now()))
	return err
}
