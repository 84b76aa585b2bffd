package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/gatewatch/internal/config"
	"github.com/kozaktomas/gatewatch/internal/database"
	"github.com/kozaktomas/gatewatch/internal/facematch"
	"github.com/kozaktomas/gatewatch/internal/gallery"
	"github.com/kozaktomas/gatewatch/internal/inference"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <dataset-dir>",
	Short: "Enroll people into the recognition gallery",
	Long: `Enroll people from a dataset directory into the recognition gallery.

The dataset holds one sub-directory per person; the directory name is the
display name. Every image is embedded through the embedding server, the
embeddings are averaged per person and the normalized mean is stored.
Re-enrolling a person replaces their gallery entry and keeps their ID.

Examples:
  # Enroll everybody
  gatewatch enroll ./dataset

  # Enroll only two people
  gatewatch enroll ./dataset --only "Jan Novak" --only eva

  # JSON output for scripting
  gatewatch enroll ./dataset --json`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().StringSlice("only", nil, "Enroll only these people (directory names)")
	enrollCmd.Flags().String("model", "adaface_ir101_webface12m", "Model name stored with the embeddings")
	enrollCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

// EnrollSummary represents the result of an enrollment run
type EnrollSummary struct {
	Enrolled      []gallery.EnrollResult `json:"enrolled"`
	Failed        map[string]string      `json:"failed,omitempty"`
	GallerySize   int                    `json:"gallery_size"`
	DurationMs    int64                  `json:"duration_ms"`
	DurationHuman string                 `json:"duration_human,omitempty"`
}

// filterPeople keeps the people whose identity key is in only. An empty
// filter keeps everybody.
func filterPeople(people []gallery.Person, only []string) []gallery.Person {
	if len(only) == 0 {
		return people
	}
	keys := make([]string, 0, len(only))
	for _, name := range only {
		keys = append(keys, facematch.IdentityKey(name))
	}
	var out []gallery.Person
	for _, p := range people {
		if slices.Contains(keys, p.Key) {
			out = append(out, p)
		}
	}
	return out
}

func runEnroll(cmd *cobra.Command, args []string) error {
	only := mustGetStringSlice(cmd, "only")
	model := mustGetString(cmd, "model")
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	cfg := config.Load()
	startTime := time.Now()

	people, err := gallery.ScanDataset(args[0])
	if err != nil {
		return err
	}
	people = filterPeople(people, only)
	if len(people) == 0 {
		return errors.New("no people found in dataset")
	}

	if err := initStorage(cfg); err != nil {
		return err
	}
	defer database.Close()

	writer, err := database.GetGalleryWriter(ctx)
	if err != nil {
		return err
	}
	client := inference.NewEmbeddingClient(cfg.Embedding.URL)
	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("embedding server not reachable: %w", err)
	}
	enroller := gallery.NewEnroller(client, writer, model)

	if !jsonOutput {
		fmt.Printf("Found %d people to enroll\n\n", len(people))
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(people),
			progressbar.OptionSetDescription("Enrolling"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("people"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	summary := EnrollSummary{Failed: make(map[string]string)}
	for _, p := range people {
		res, err := enroller.Enroll(ctx, p)
		if err != nil {
			summary.Failed[p.Name] = err.Error()
		} else {
			summary.Enrolled = append(summary.Enrolled, res)
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	if summary.GallerySize, err = writer.CountIdentities(ctx); err != nil {
		return fmt.Errorf("counting gallery: %w", err)
	}
	duration := time.Since(startTime)
	summary.DurationMs = duration.Milliseconds()
	summary.DurationHuman = duration.Round(time.Millisecond).String()

	if jsonOutput {
		return outputJSON(summary)
	}

	fmt.Println("Enrollment complete!")
	for _, r := range summary.Enrolled {
		fmt.Printf("  %-24s id=%-4d samples=%d skipped=%d\n", r.Name, r.ID, r.Samples, r.Skipped)
	}
	for name, reason := range summary.Failed {
		fmt.Printf("  %-24s FAILED: %s\n", name, reason)
	}
	fmt.Printf("  Gallery size: %d\n", summary.GallerySize)
	fmt.Printf("  Duration:     %s\n", summary.DurationHuman)
	return nil
}
