package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/miavo090821/dissertation/internal/model"
)

var detectRuns int

var detectCmd = &cobra.Command{
	Use:   "detect <video-id>",
	Short: "Run ad detection for a single video",
	Long:  "Runs the configured number of detection runs against one video and prints the aggregated verdict.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if detectRuns > 0 {
			cfg.Detect.RunsPerVideo = detectRuns
		}

		env, err := initDetection(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		agg, err := env.coord.Detect(ctx, args[0])
		if err != nil {
			return err
		}

		printAggregate(agg)
		return nil
	},
}

func printAggregate(agg model.VideoAggregate) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "VIDEO\t%s\n", agg.VideoID)
	fmt.Fprintf(w, "VERDICT\t%s\n", agg.FinalVerdict)
	fmt.Fprintf(w, "CONFIDENCE\t%s\n", agg.FinalConfidence)
	fmt.Fprintf(w, "RUNS COMPLETED\t%d\n", agg.RunsCompleted)
	fmt.Fprintf(w, "RUNS WITH ADS\t%d\n", agg.RunsWithAds)
	if agg.NeedsReview {
		fmt.Fprintf(w, "NEEDS REVIEW\tyes\n")
	}
	w.Flush()
}

func init() {
	detectCmd.Flags().IntVar(&detectRuns, "runs", 0, "override configured runs per video")
	rootCmd.AddCommand(detectCmd)
}
