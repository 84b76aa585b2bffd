//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/kozaktomas/gatewatch/internal/config"
	"github.com/kozaktomas/gatewatch/internal/database"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	// Run migrations
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestExitRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewExitRepository(pool)
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("DedupWindow", func(t *testing.T) {
		steps := []struct {
			offset time.Duration
			want   int
		}{
			{0, 1},
			{30 * time.Second, 0},
			{90 * time.Second, 1},
		}
		for _, step := range steps {
			inserted, err := repo.RecordExits(ctx, []string{"Alice"}, t0.Add(step.offset), time.Minute)
			if err != nil {
				t.Fatalf("RecordExits at +%v: %v", step.offset, err)
			}
			if len(inserted) != step.want {
				t.Errorf("at +%v inserted %v, want %d rows", step.offset, inserted, step.want)
			}
		}
	})

	t.Run("DuplicateNamesInBatch", func(t *testing.T) {
		inserted, err := repo.RecordExits(ctx, []string{"Bob", "Bob"}, t0, time.Minute)
		if err != nil {
			t.Fatalf("RecordExits: %v", err)
		}
		if len(inserted) != 1 {
			t.Errorf("Expected Bob once, got %v", inserted)
		}
	})

	t.Run("Count", func(t *testing.T) {
		count, err := repo.CountExits(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 3 {
			t.Errorf("Expected 3, got %d", count)
		}
	})

	t.Run("ListAndRecent", func(t *testing.T) {
		events, err := repo.ListExits(ctx)
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(events) != 3 {
			t.Fatalf("Expected 3 events, got %d", len(events))
		}
		for i := 1; i < len(events); i++ {
			if events[i].RecordedAt.Before(events[i-1].RecordedAt) {
				t.Error("Events not ordered by time")
			}
		}

		names, err := repo.RecentExits(ctx, t0.Add(time.Minute))
		if err != nil {
			t.Fatalf("Failed to get recent: %v", err)
		}
		if len(names) != 1 || names[0] != "Alice" {
			t.Errorf("Expected [Alice], got %v", names)
		}
	})
}

func TestGalleryRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewGalleryRepository(pool)

	identity := &database.GalleryIdentity{
		Name:        "Jan Novák",
		Key:         "jan novak",
		Embedding:   []float32{0.6, 0.8, 0},
		SampleCount: 3,
		Model:       "buffalo_l",
	}

	var firstID int64
	t.Run("Upsert", func(t *testing.T) {
		id, err := repo.UpsertIdentity(ctx, identity)
		if err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		if id == 0 {
			t.Fatal("Expected non-zero ID")
		}
		firstID = id

		identity.Embedding = []float32{0, 1, 0}
		identity.SampleCount = 5
		id, err = repo.UpsertIdentity(ctx, identity)
		if err != nil {
			t.Fatalf("Failed to re-upsert: %v", err)
		}
		if id != firstID {
			t.Errorf("Expected stable ID %d, got %d", firstID, id)
		}
	})

	t.Run("Get", func(t *testing.T) {
		got, err := repo.GetIdentity(ctx, "jan novak")
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}
		if got == nil {
			t.Fatal("Expected identity, got nil")
		}
		if got.Name != "Jan Novák" || got.SampleCount != 5 || got.Dim != 3 {
			t.Errorf("Unexpected identity: %+v", got)
		}
		if len(got.Embedding) != 3 || got.Embedding[1] != 1 {
			t.Errorf("Unexpected embedding: %v", got.Embedding)
		}

		missing, err := repo.GetIdentity(ctx, "nobody")
		if err != nil {
			t.Fatalf("Failed to get missing: %v", err)
		}
		if missing != nil {
			t.Errorf("Expected nil, got %+v", missing)
		}
	})

	t.Run("ListAndDelete", func(t *testing.T) {
		if _, err := repo.UpsertIdentity(ctx, &database.GalleryIdentity{
			Name: "Eva", Key: "eva", Embedding: []float32{1, 0, 0}, SampleCount: 1,
		}); err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}

		all, err := repo.ListIdentities(ctx)
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(all) != 2 || all[0].ID != firstID {
			t.Errorf("Unexpected list: %+v", all)
		}

		if err := repo.DeleteIdentity(ctx, "eva"); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		count, err := repo.CountIdentities(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 1 {
			t.Errorf("Expected 1, got %d", count)
		}
	})

	t.Run("RejectsMissingEmbedding", func(t *testing.T) {
		if _, err := repo.UpsertIdentity(ctx, &database.GalleryIdentity{Name: "X", Key: "x"}); err == nil {
			t.Error("Expected error for empty embedding")
		}
	})
}
