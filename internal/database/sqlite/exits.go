package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/gatewatch/internal/database"
)

// ExitRepository provides SQLite-backed exit log storage
type ExitRepository struct {
	db *DB
}

// NewExitRepository creates a new SQLite exit repository
func NewExitRepository(db *DB) *ExitRepository {
	return &ExitRepository{db: db}
}

// RecordExits checks the trailing window and inserts new exits in one
// serialized transaction.
func (r *ExitRepository) RecordExits(ctx context.Context, names []string, at time.Time, window time.Duration) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}

	since := at.Add(-window).UnixMilli()
	var inserted []string
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		seen := make(map[string]bool)
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true

			var exists bool
			err := tx.QueryRowContext(ctx, `
				SELECT EXISTS (
					SELECT 1 FROM exit_events WHERE identity = ? AND recorded_at >= ?
				)`, name, since).Scan(&exists)
			if err != nil {
				return fmt.Errorf("query recent exit %q: %w", name, err)
			}
			if exists {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO exit_events (identity, recorded_at) VALUES (?, ?)", name, at.UnixMilli()); err != nil {
				return fmt.Errorf("insert exit %q: %w", name, err)
			}
			inserted = append(inserted, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// ListExits returns every recorded exit ordered by time
func (r *ExitRepository) ListExits(ctx context.Context) ([]database.ExitEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, identity, recorded_at FROM exit_events
		ORDER BY recorded_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list exits: %w", err)
	}
	defer rows.Close()

	var events []database.ExitEvent
	for rows.Next() {
		var e database.ExitEvent
		var ms int64
		if err := rows.Scan(&e.ID, &e.Identity, &ms); err != nil {
			return nil, fmt.Errorf("scan exit: %w", err)
		}
		e.RecordedAt = time.UnixMilli(ms).UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exits: %w", err)
	}
	return events, nil
}

// RecentExits returns the distinct identities recorded at or after since
func (r *ExitRepository) RecentExits(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT identity FROM exit_events
		WHERE recorded_at >= ?
		ORDER BY identity
	`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("recent exits: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan exit identity: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exit identities: %w", err)
	}
	return names, nil
}

// CountExits returns the number of recorded exits
func (r *ExitRepository) CountExits(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM exit_events").Scan(&count); err != nil {
		return 0, fmt.Errorf("count exits: %w", err)
	}
	return count, nil
}
