package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kozaktomas/gatewatch/internal/config"
	"github.com/kozaktomas/gatewatch/internal/database"
	"github.com/kozaktomas/gatewatch/internal/database/postgres"
	"github.com/kozaktomas/gatewatch/internal/database/sqlite"
	"github.com/kozaktomas/gatewatch/internal/gallery"
	"github.com/kozaktomas/gatewatch/internal/inference"
)

// initStorage opens the configured backend: PostgreSQL when DATABASE_URL is
// set, the local SQLite file otherwise. Callers must defer database.Close.
func initStorage(cfg *config.Config) error {
	if cfg.Database.UsePostgres() {
		fmt.Printf("Connecting to PostgreSQL database...\n")
		if err := postgres.Initialize(&cfg.Database); err != nil {
			return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		fmt.Printf("Using PostgreSQL backend\n")
		return nil
	}
	if err := sqlite.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize SQLite: %w", err)
	}
	fmt.Printf("Using SQLite backend (%s)\n", cfg.Database.SQLitePath)
	return nil
}

// loadRecognizer builds the gallery recognizer and loads every enrolled
// identity from the active backend.
func loadRecognizer(ctx context.Context, cfg *config.Config, client *inference.EmbeddingClient) (*gallery.Recognizer, error) {
	reader, err := database.GetGalleryReader(ctx)
	if err != nil {
		return nil, err
	}
	recognizer := gallery.NewRecognizer(client, cfg.Engine.SimilarityThreshold, cfg.Gallery.ExactSearchLimit)
	n, err := recognizer.Load(ctx, reader, cfg.Gallery.HNSWIndexPath)
	if err != nil {
		return nil, fmt.Errorf("loading gallery: %w", err)
	}
	if n == 0 {
		fmt.Println("Warning: gallery is empty, every face will be reported as Unknown")
	} else {
		fmt.Printf("Gallery loaded with %d identities\n", n)
	}
	return recognizer, nil
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
