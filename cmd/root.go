package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/miavo090821/dissertation/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "adscan",
	Short: "Ad-presence detection for YouTube videos",
	Long:  "Drives stealth browser sessions against video watch pages, probes DOM, network, and UI ad signals at playback checkpoints, and aggregates repeated runs into per-video monetisation verdicts.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
