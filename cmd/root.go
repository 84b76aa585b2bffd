package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gatewatch",
	Short: "Face-tracking exit detector for gate cameras",
	Long: `Gatewatch ingests a camera stream frame by frame, tracks faces across
frames, recognizes them against an enrolled gallery and records an exit
when a recognized person crosses the gate line.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
