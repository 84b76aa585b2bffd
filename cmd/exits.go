package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/gatewatch/internal/config"
	"github.com/kozaktomas/gatewatch/internal/database"
)

var exitsCmd = &cobra.Command{
	Use:   "exits",
	Short: "Show the recorded exit history",
	Long: `Print the persisted exit log with timestamps in the configured timezone
(GATEWATCH_TIMEZONE, default Asia/Kolkata).

Examples:
  # Full history
  gatewatch exits

  # People who left within the last 15 minutes
  gatewatch exits --since 15m`,
	Args: cobra.NoArgs,
	RunE: runExits,
}

func init() {
	rootCmd.AddCommand(exitsCmd)

	exitsCmd.Flags().String("since", "", "Only list distinct identities recorded within this duration (e.g. 1h)")
	exitsCmd.Flags().Bool("json", false, "Output as JSON")
}

// ExitRow is one history line.
type ExitRow struct {
	Identity   string `json:"identity"`
	RecordedAt string `json:"recorded_at"`
}

func runExits(cmd *cobra.Command, args []string) error {
	since := mustGetString(cmd, "since")
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	cfg := config.Load()
	loc := cfg.Exits.Location()

	if err := initStorage(cfg); err != nil {
		return err
	}
	defer database.Close()

	reader, err := database.GetExitReader(ctx)
	if err != nil {
		return err
	}

	if since != "" {
		window, err := time.ParseDuration(since)
		if err != nil || window <= 0 {
			return fmt.Errorf("invalid --since duration %q", since)
		}
		names, err := reader.RecentExits(ctx, time.Now().Add(-window))
		if err != nil {
			return fmt.Errorf("querying recent exits: %w", err)
		}
		if jsonOutput {
			if names == nil {
				names = []string{}
			}
			return outputJSON(names)
		}
		fmt.Printf("Exits within the last %s: %d\n", window, len(names))
		for _, name := range names {
			fmt.Printf("  %s\n", name)
		}
		return nil
	}

	events, err := reader.ListExits(ctx)
	if err != nil {
		return fmt.Errorf("listing exits: %w", err)
	}
	rows := make([]ExitRow, 0, len(events))
	for _, e := range events {
		rows = append(rows, ExitRow{
			Identity:   e.Identity,
			RecordedAt: e.RecordedAt.In(loc).Format(time.RFC3339),
		})
	}

	if jsonOutput {
		return outputJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Println("No exits recorded.")
		return nil
	}
	fmt.Printf("Exit history (%s):\n", loc)
	for _, r := range rows {
		fmt.Printf("  %s  %s\n", r.RecordedAt, r.Identity)
	}
	fmt.Printf("Total: %d\n", len(rows))
	return nil
}
