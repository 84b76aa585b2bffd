package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/gatewatch/internal/config"
	"github.com/kozaktomas/gatewatch/internal/database"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "gatewatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordExits_DedupWindow(t *testing.T) {
	repo := NewExitRepository(openTestDB(t))
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	inserted, err := repo.RecordExits(ctx, []string{"Alice"}, t0, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, inserted)

	inserted, err = repo.RecordExits(ctx, []string{"Alice"}, t0.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	assert.Empty(t, inserted)

	inserted, err = repo.RecordExits(ctx, []string{"Alice"}, t0.Add(90*time.Second), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, inserted)

	count, err := repo.CountExits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRecordExits_BatchAndEmpty(t *testing.T) {
	repo := NewExitRepository(openTestDB(t))
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	inserted, err := repo.RecordExits(ctx, nil, t0, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, inserted)

	inserted, err = repo.RecordExits(ctx, []string{"Bob", "Alice", "Bob"}, t0, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob", "Alice"}, inserted)
}

func TestRecordExits_ConcurrentWriters(t *testing.T) {
	repo := NewExitRepository(openTestDB(t))
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.RecordExits(ctx, []string{"Alice"}, t0.Add(time.Duration(i)*time.Second), time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := repo.CountExits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListAndRecentExits(t *testing.T) {
	repo := NewExitRepository(openTestDB(t))
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.RecordExits(ctx, []string{"Carol"}, t0.Add(2*time.Hour), time.Minute)
	require.NoError(t, err)
	_, err = repo.RecordExits(ctx, []string{"Alice", "Bob"}, t0, time.Minute)
	require.NoError(t, err)

	events, err := repo.ListExits(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "Alice", events[0].Identity)
	assert.Equal(t, "Carol", events[2].Identity)
	assert.True(t, events[2].RecordedAt.Equal(t0.Add(2*time.Hour)))

	names, err := repo.RecentExits(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"Carol"}, names)
}

func TestGalleryRepository(t *testing.T) {
	repo := NewGalleryRepository(openTestDB(t))
	ctx := context.Background()

	identity := &database.GalleryIdentity{
		Name:        "Jan Novák",
		Key:         "jan novak",
		Embedding:   []float32{0.6, 0.8, 0},
		SampleCount: 3,
		Model:       "buffalo_l",
	}
	id, err := repo.UpsertIdentity(ctx, identity)
	require.NoError(t, err)
	assert.NotZero(t, id)

	identity.Embedding = []float32{0, 1, -0.5}
	identity.SampleCount = 4
	again, err := repo.UpsertIdentity(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, id, again, "re-enrollment keeps the ID")

	got, err := repo.GetIdentity(ctx, "jan novak")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Jan Novák", got.Name)
	assert.Equal(t, []float32{0, 1, -0.5}, got.Embedding)
	assert.Equal(t, 4, got.SampleCount)
	assert.Equal(t, 3, got.Dim)

	missing, err := repo.GetIdentity(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = repo.UpsertIdentity(ctx, &database.GalleryIdentity{Name: "Eva", Key: "eva", Embedding: []float32{1}})
	require.NoError(t, err)

	all, err := repo.ListIdentities(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, id, all[0].ID)

	require.NoError(t, repo.DeleteIdentity(ctx, "eva"))
	count, err := repo.CountIdentities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGalleryRepository_Validation(t *testing.T) {
	repo := NewGalleryRepository(openTestDB(t))
	ctx := context.Background()

	_, err := repo.UpsertIdentity(ctx, &database.GalleryIdentity{Name: "X", Embedding: []float32{1}})
	assert.Error(t, err)
	_, err = repo.UpsertIdentity(ctx, &database.GalleryIdentity{Name: "X", Key: "x"})
	assert.Error(t, err)
}

func TestDecodeEmbedding_BadLength(t *testing.T) {
	_, err := decodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestInitialize_RegistersBackend(t *testing.T) {
	cfg := &config.DatabaseConfig{SQLitePath: filepath.Join(t.TempDir(), "nested", "gatewatch.db")}
	require.NoError(t, Initialize(cfg))
	t.Cleanup(func() { database.Close() })

	assert.Equal(t, database.BackendSQLite, database.BackendName())

	exits, err := database.GetExitWriter(context.Background())
	require.NoError(t, err)
	count, err := exits.CountExits(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}
