package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/gatewatch/internal/config"
	"github.com/kozaktomas/gatewatch/internal/constants"
	"github.com/kozaktomas/gatewatch/internal/database"
	"github.com/kozaktomas/gatewatch/internal/engine"
	"github.com/kozaktomas/gatewatch/internal/inference"
	"github.com/kozaktomas/gatewatch/internal/tracker"
	"github.com/kozaktomas/gatewatch/internal/video"
)

var replayCmd = &cobra.Command{
	Use:   "replay <source>",
	Short: "Run the exit engine over recorded frames",
	Long: `Run a fresh session over a directory of frames or a video file and
record the resulting exits in the configured exit log.

Frames in a directory are read in lexical file name order. Video files
require a build with -tags gocv.

Examples:
  # Replay a directory of JPEG frames
  gatewatch replay ./captures/2024-05-01

  # Process every second frame, JSON summary
  gatewatch replay gate.mp4 --skip-frames 2 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().Int("skip-frames", 0, "Process every Nth frame (default from configuration)")
	replayCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

// ReplayExit is an exit decision made while replaying.
type ReplayExit struct {
	Frame      int      `json:"frame"`
	Identities []string `json:"identities"`
}

// ReplayResult summarizes a replay run.
type ReplayResult struct {
	Source        string       `json:"source"`
	Frames        int          `json:"frames"`
	Processed     int          `json:"processed"`
	Dropped       int          `json:"dropped"`
	Exits         []ReplayExit `json:"exits"`
	Final         []string     `json:"final"`
	Recorded      []string     `json:"recorded"`
	DurationMs    int64        `json:"duration_ms"`
	DurationHuman string       `json:"duration_human,omitempty"`
}

func runReplay(cmd *cobra.Command, args []string) error {
	sourcePath := args[0]
	skipFrames := mustGetInt(cmd, "skip-frames")
	jsonOutput := mustGetBool(cmd, "json")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	if skipFrames > 0 {
		cfg.Engine.SkipFrames = skipFrames
	}
	if err := cfg.Engine.Validate(); err != nil {
		return err
	}

	source, err := video.Open(sourcePath)
	if err != nil {
		return err
	}
	defer source.Close()

	if err := initStorage(cfg); err != nil {
		return err
	}
	defer database.Close()

	client := inference.NewEmbeddingClient(cfg.Embedding.URL)
	recognizer, err := loadRecognizer(ctx, cfg, client)
	if err != nil {
		return err
	}
	exitLog, err := database.GetExitWriter(ctx)
	if err != nil {
		return err
	}

	session, err := engine.NewSession(
		engine.OptionsFromConfig(cfg.Engine, cfg.Exits),
		inference.NewFaceDetector(client, cfg.Engine.DetectorMinConfidence, cfg.Engine.DetectorPadding),
		recognizer,
		tracker.NewFactory(tracker.ConfigFromEngine(cfg.Engine)),
		exitLog,
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(source.Len(),
			progressbar.OptionSetDescription("Replaying"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("frames"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}

	startTime := time.Now()
	result := ReplayResult{Source: sourcePath, Exits: []ReplayExit{}}

	for {
		frame, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if ctx.Err() != nil {
			fmt.Println("\nInterrupted, finalizing...")
			break
		}
		result.Frames++
		if bar != nil {
			_ = bar.Add(1)
		}
		if err != nil {
			result.Dropped++
			continue
		}

		res, err := session.ProcessFrame(ctx, frame)
		if err != nil {
			if bar != nil {
				_ = bar.Clear()
			}
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		if res == nil {
			continue
		}
		result.Processed++
		if len(res.ExitIDs) > 0 {
			result.Exits = append(result.Exits, ReplayExit{Frame: res.Frame, Identities: res.ExitIDs})
			if bar != nil {
				_ = bar.Clear()
				fmt.Printf("Frame %d: exit %v\n", res.Frame, res.ExitIDs)
			}
		}
		if jsonOutput && result.Processed%constants.ReplayLogInterval == 0 {
			log.Printf("Replay: %d frames processed, %d exits", result.Processed, len(result.Exits))
		}
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	// The run context may already be canceled; finalize on a fresh one.
	finalCtx, cancel := context.WithTimeout(context.Background(), constants.FinalizeTimeout)
	defer cancel()
	final, err := session.FinalizeAndReset(finalCtx)
	if err != nil {
		return fmt.Errorf("finalizing session: %w", err)
	}
	result.Final = final.Exits
	result.Recorded = final.Recorded

	duration := time.Since(startTime)
	result.DurationMs = duration.Milliseconds()
	result.DurationHuman = duration.Round(time.Millisecond).String()

	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Println("Replay complete!")
	fmt.Printf("  Frames read:      %d\n", result.Frames)
	fmt.Printf("  Frames processed: %d\n", result.Processed)
	if result.Dropped > 0 {
		fmt.Printf("  Frames dropped:   %d\n", result.Dropped)
	}
	fmt.Printf("  Exits in stream:  %d\n", len(result.Exits))
	fmt.Printf("  Final vote:       %v\n", result.Final)
	fmt.Printf("  Recorded at end:  %v\n", result.Recorded)
	fmt.Printf("  Duration:         %s\n", result.DurationHuman)
	return nil
}
