package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/gatewatch/internal/config"
	"github.com/kozaktomas/gatewatch/internal/database"
	"github.com/kozaktomas/gatewatch/internal/facematch"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Recognition gallery commands",
	Long:  `Commands for inspecting and pruning the enrolled identity gallery.`,
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities",
	Args:  cobra.NoArgs,
	RunE:  runGalleryList,
}

var galleryDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove an identity from the gallery",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryDelete,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryListCmd)
	galleryCmd.AddCommand(galleryDeleteCmd)

	galleryListCmd.Flags().Bool("json", false, "Output as JSON")
}

// GalleryRow describes one enrolled identity.
type GalleryRow struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Key         string `json:"key"`
	SampleCount int    `json:"sample_count"`
	Model       string `json:"model"`
	Dim         int    `json:"dim"`
	UpdatedAt   string `json:"updated_at"`
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	cfg := config.Load()
	if err := initStorage(cfg); err != nil {
		return err
	}
	defer database.Close()

	reader, err := database.GetGalleryReader(ctx)
	if err != nil {
		return err
	}
	identities, err := reader.ListIdentities(ctx)
	if err != nil {
		return fmt.Errorf("listing gallery: %w", err)
	}

	rows := make([]GalleryRow, 0, len(identities))
	for _, g := range identities {
		rows = append(rows, GalleryRow{
			ID:          g.ID,
			Name:        g.Name,
			Key:         g.Key,
			SampleCount: g.SampleCount,
			Model:       g.Model,
			Dim:         g.Dim,
			UpdatedAt:   g.UpdatedAt.In(cfg.Exits.Location()).Format("2006-01-02 15:04"),
		})
	}
	if jsonOutput {
		return outputJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Println("Gallery is empty. Run 'gatewatch enroll <dataset-dir>' first.")
		return nil
	}
	fmt.Printf("%-5s %-24s %-8s %-5s %s\n", "ID", "NAME", "SAMPLES", "DIM", "UPDATED")
	for _, r := range rows {
		fmt.Printf("%-5d %-24s %-8d %-5d %s\n", r.ID, r.Name, r.SampleCount, r.Dim, r.UpdatedAt)
	}
	return nil
}

func runGalleryDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()
	if err := initStorage(cfg); err != nil {
		return err
	}
	defer database.Close()

	writer, err := database.GetGalleryWriter(ctx)
	if err != nil {
		return err
	}
	key := facematch.IdentityKey(args[0])
	existing, err := writer.GetIdentity(ctx, key)
	if err != nil {
		return fmt.Errorf("looking up %s: %w", args[0], err)
	}
	if existing == nil {
		return fmt.Errorf("no enrolled identity named %q", args[0])
	}
	if err := writer.DeleteIdentity(ctx, key); err != nil {
		return fmt.Errorf("deleting %s: %w", existing.Name, err)
	}
	fmt.Printf("Removed %s (id %d) from the gallery\n", existing.Name, existing.ID)
	if cfg.Gallery.HNSWIndexPath != "" {
		fmt.Println("The persisted HNSW index will be rebuilt on next start")
	}
	return nil
}
