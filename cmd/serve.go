package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/gatewatch/internal/config"
	"github.com/kozaktomas/gatewatch/internal/database"
	"github.com/kozaktomas/gatewatch/internal/engine"
	"github.com/kozaktomas/gatewatch/internal/inference"
	"github.com/kozaktomas/gatewatch/internal/tracker"
	"github.com/kozaktomas/gatewatch/internal/web"
	"github.com/kozaktomas/gatewatch/internal/web/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the frame ingestion server",
	Long: `Start the gatewatch server.
Frames are streamed over a WebSocket at /ws/frames. Each processed frame is
answered with the current predictions and any exits recorded for it. The
exit log is exposed over JSON endpoints and as a server-sent event feed.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default WEB_PORT or 8080)")
	serveCmd.Flags().String("host", "", "Host to bind to (default WEB_HOST or 0.0.0.0)")
}

// resolveServeHostPort lets flags override the environment.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")
	if port == 0 {
		port = cfg.Web.Port
	}
	if host == "" {
		host = cfg.Web.Host
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := cfg.Engine.Validate(); err != nil {
		return err
	}

	if err := initStorage(cfg); err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	client := inference.NewEmbeddingClient(cfg.Embedding.URL)
	if err := client.Health(ctx); err != nil {
		fmt.Printf("Warning: embedding server not reachable: %v\n", err)
	}

	recognizer, err := loadRecognizer(ctx, cfg, client)
	if err != nil {
		return err
	}

	exitLog, err := database.GetExitWriter(ctx)
	if err != nil {
		return err
	}
	feed := handlers.NewExitFeed()

	session, err := engine.NewSession(
		engine.OptionsFromConfig(cfg.Engine, cfg.Exits),
		inference.NewFaceDetector(client, cfg.Engine.DetectorMinConfidence, cfg.Engine.DetectorPadding),
		recognizer,
		tracker.NewFactory(tracker.ConfigFromEngine(cfg.Engine)),
		feed.Wrap(exitLog),
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	port, host := resolveServeHostPort(cmd, cfg)
	server := web.NewServer(cfg, port, host, web.Deps{
		Session:   session,
		Exits:     exitLog,
		Feed:      feed,
		Gallery:   recognizer,
		Inference: client,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
		if res, err := session.FinalizeAndReset(shutdownCtx); err != nil {
			fmt.Printf("Error finalizing session: %v\n", err)
		} else if len(res.Recorded) > 0 {
			fmt.Printf("Recorded exits on shutdown: %v\n", res.Recorded)
		}
	}()

	fmt.Printf("Starting gatewatch on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-shutdownDone
	return nil
}
