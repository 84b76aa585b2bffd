package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/gatewatch/internal/database"
	"github.com/pgvector/pgvector-go"
)

// GalleryRepository provides PostgreSQL-backed storage of enrolled identities
type GalleryRepository struct {
	pool *Pool
}

// NewGalleryRepository creates a new PostgreSQL gallery repository
func NewGalleryRepository(pool *Pool) *GalleryRepository {
	return &GalleryRepository{pool: pool}
}

const identityColumns = `id, name, key, embedding, sample_count, model, dim, created_at, updated_at`

func scanIdentity(scan func(dest ...any) error) (database.GalleryIdentity, error) {
	var identity database.GalleryIdentity
	var vec pgvector.Vector
	err := scan(
		&identity.ID,
		&identity.Name,
		&identity.Key,
		&vec,
		&identity.SampleCount,
		&identity.Model,
		&identity.Dim,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return identity, err
	}
	identity.Embedding = vec.Slice()
	return identity, nil
}

// UpsertIdentity inserts or replaces the identity with the same key
func (r *GalleryRepository) UpsertIdentity(ctx context.Context, identity *database.GalleryIdentity) (int64, error) {
	if identity.Key == "" {
		return 0, errors.New("identity key is required")
	}
	if len(identity.Embedding) == 0 {
		return 0, errors.New("identity embedding is required")
	}

	query := `
		INSERT INTO gallery_identities (name, key, embedding, sample_count, model, dim)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE SET
			name = EXCLUDED.name,
			embedding = EXCLUDED.embedding,
			sample_count = EXCLUDED.sample_count,
			model = EXCLUDED.model,
			dim = EXCLUDED.dim,
			updated_at = NOW()
		RETURNING id
	`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		identity.Name,
		identity.Key,
		pgvector.NewVector(identity.Embedding),
		identity.SampleCount,
		identity.Model,
		len(identity.Embedding),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert identity %q: %w", identity.Key, err)
	}
	identity.ID = id
	return id, nil
}

// ListIdentities returns all identities ordered by ID
func (r *GalleryRepository) ListIdentities(ctx context.Context) ([]database.GalleryIdentity, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+identityColumns+" FROM gallery_identities ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []database.GalleryIdentity
	for rows.Next() {
		identity, err := scanIdentity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// GetIdentity retrieves an identity by key, returns nil if not found
func (r *GalleryRepository) GetIdentity(ctx context.Context, key string) (*database.GalleryIdentity, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+identityColumns+" FROM gallery_identities WHERE key = $1", key)
	identity, err := scanIdentity(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity %q: %w", key, err)
	}
	return &identity, nil
}

// CountIdentities returns the number of enrolled identities
func (r *GalleryRepository) CountIdentities(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM gallery_identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// DeleteIdentity removes an identity by key
func (r *GalleryRepository) DeleteIdentity(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM gallery_identities WHERE key = $1", key); err != nil {
		return fmt.Errorf("delete identity %q: %w", key, err)
	}
	return nil
}
