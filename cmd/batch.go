package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	batchInput        string
	batchLimit        int
	batchSkipExisting bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run ad detection for a list of videos",
	Long:  "Reads video IDs from a file (one per line, # comments allowed) and processes them strictly in order. Interrupting the batch reports the last fully processed video so it can be resumed with --skip-existing.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		videoIDs, err := readVideoIDs(batchInput)
		if err != nil {
			return err
		}
		if batchLimit > 0 && len(videoIDs) > batchLimit {
			videoIDs = videoIDs[:batchLimit]
		}
		if len(videoIDs) == 0 {
			return eris.New("batch: no video IDs to process")
		}

		env, err := initDetection(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, batchErr := env.coord.DetectBatch(ctx, videoIDs, batchSkipExisting)

		fmt.Printf("requested %d, processed %d, skipped %d, failed %d\n",
			res.Requested, res.Processed, res.Skipped, res.Failed)
		if res.LastVideoID != "" {
			fmt.Printf("last completed video: %s\n", res.LastVideoID)
		}

		if batchErr != nil && ctx.Err() != nil {
			zap.L().Warn("batch interrupted", zap.String("last_video_id", res.LastVideoID))
			return nil
		}
		return batchErr
	},
}

// readVideoIDs loads one video ID per line; blank lines and # comments are
// skipped.
func readVideoIDs(path string) ([]string, error) {
	if path == "" {
		return nil, eris.New("batch: --input is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open %s", path)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "batch: read %s", path)
	}
	return ids, nil
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "path to file with one video ID per line")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of videos to process (0 = all)")
	batchCmd.Flags().BoolVar(&batchSkipExisting, "skip-existing", false, "skip videos that already have results")
	rootCmd.AddCommand(batchCmd)
}
