package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/gatewatch/internal/database"
	"github.com/lib/pq"
)

// exitLogLockKey is the advisory lock serializing exit log writers.
const exitLogLockKey = 0x6761746577 // "gatew"

// ExitRepository provides PostgreSQL-backed exit log storage
type ExitRepository struct {
	pool *Pool
}

// NewExitRepository creates a new PostgreSQL exit repository
func NewExitRepository(pool *Pool) *ExitRepository {
	return &ExitRepository{pool: pool}
}

// RecordExits checks the trailing window and inserts new exits in one
// transaction holding a transaction-scoped advisory lock.
func (r *ExitRepository) RecordExits(ctx context.Context, names []string, at time.Time, window time.Duration) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", exitLogLockKey); err != nil {
		return nil, fmt.Errorf("acquire exit log lock: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT DISTINCT identity FROM exit_events
		WHERE identity = ANY($1) AND recorded_at >= $2
	`, pq.Array(names), at.Add(-window))
	if err != nil {
		return nil, fmt.Errorf("query recent exits: %w", err)
	}
	recent := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan recent exit: %w", err)
		}
		recent[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent exits: %w", err)
	}

	var inserted []string
	for _, name := range names {
		if recent[name] {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO exit_events (identity, recorded_at) VALUES ($1, $2)", name, at); err != nil {
			return nil, fmt.Errorf("insert exit %q: %w", name, err)
		}
		recent[name] = true
		inserted = append(inserted, name)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit exits: %w", err)
	}
	return inserted, nil
}

// ListExits returns every recorded exit ordered by time
func (r *ExitRepository) ListExits(ctx context.Context) ([]database.ExitEvent, error) {
	rows, err := r.pool.Query(ctx, `
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
		if err := rows.Scan(&e.ID, &e.Identity, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan exit: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exits: %w", err)
	}
	return events, nil
}

// RecentExits returns the distinct identities recorded at or after since
func (r *ExitRepository) RecentExits(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT identity FROM exit_events
		WHERE recorded_at >= $1
		ORDER BY identity
	`, since)
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
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM exit_events").Scan(&count); err != nil {
		return 0, fmt.Errorf("count exits: %w", err)
	}
	return count, nil
}
