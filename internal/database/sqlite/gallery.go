package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kozaktomas/gatewatch/internal/database"
)

// GalleryRepository provides SQLite-backed storage of enrolled identities.
// Embeddings are stored as little-endian float32 blobs.
type GalleryRepository struct {
	db *DB
	// now is overridable in tests
	now func() time.Time
}

// NewGalleryRepository creates a new SQLite gallery repository
func NewGalleryRepository(db *DB) *GalleryRepository {
	return &GalleryRepository{db: db, now: time.Now}
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}

const identityColumns = `id, name, key, embedding, sample_count, model, dim, created_at, updated_at`

func scanIdentity(scan func(dest ...any) error) (database.GalleryIdentity, error) {
	var identity database.GalleryIdentity
	var blob []byte
	var created, updated int64
	err := scan(
		&identity.ID,
		&identity.Name,
		&identity.Key,
		&blob,
		&identity.SampleCount,
		&identity.Model,
		&identity.Dim,
		&created,
		&updated,
	)
	if err != nil {
		return identity, err
	}
	if identity.Embedding, err = decodeEmbedding(blob); err != nil {
		return identity, err
	}
	identity.CreatedAt = time.UnixMilli(created).UTC()
	identity.UpdatedAt = time.UnixMilli(updated).UTC()
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

	now := r.now().UnixMilli()
	var id int64
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO gallery_identities (name, key, embedding, sample_count, model, dim, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET
				name = excluded.name,
				embedding = excluded.embedding,
				sample_count = excluded.sample_count,
				model = excluded.model,
				dim = excluded.dim,
				updated_at = excluded.updated_at
			RETURNING id
		`,
			identity.Name,
			identity.Key,
			encodeEmbedding(identity.Embedding),
			identity.SampleCount,
			identity.Model,
			len(identity.Embedding),
			now,
			now,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert identity %q: %w", identity.Key, err)
	}
	identity.ID = id
	return id, nil
}

// ListIdentities returns all identities ordered by ID
func (r *GalleryRepository) ListIdentities(ctx context.Context) ([]database.GalleryIdentity, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+identityColumns+" FROM gallery_identities ORDER BY id")
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
	row := r.db.QueryRowContext(ctx, "SELECT "+identityColumns+" FROM gallery_identities WHERE key = ?", key)
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
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM gallery_identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// DeleteIdentity removes an identity by key
func (r *GalleryRepository) DeleteIdentity(ctx context.Context, key string) error {
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM gallery_identities WHERE key = ?", key)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete identity %q: %w", key, err)
	}
	return nil
}
