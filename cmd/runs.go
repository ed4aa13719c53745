package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/miavo090821/dissertation/internal/model"
	"github.com/miavo090821/dissertation/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect detection run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List detection runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		videoID, _ := cmd.Flags().GetString("video")
		verdict, _ := cmd.Flags().GetString("verdict")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			VideoID: videoID,
			Verdict: model.Verdict(verdict),
			Limit:   limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func formatRunsList(out io.Writer, runs []model.RunRecord) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VIDEO\tRUN\tSTATUS\tVERDICT\tCONFIDENCE\tCHECKPOINT\tNET\tERROR")
	for _, r := range runs {
		errMsg := r.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.VideoID, r.RunIndex, r.Status, r.Verdict, r.Confidence,
			r.CheckpointReached, r.NetworkMatches, errMsg)
	}
	w.Flush()
}

func init() {
	runsListCmd.Flags().String("video", "", "filter by video ID")
	runsListCmd.Flags().String("verdict", "", "filter by verdict (has_ads, no_ads, uncertain)")
	runsListCmd.Flags().Int("limit", 100, "max rows")
	runsCmd.AddCommand(runsListCmd)
	rootCmd.AddCommand(runsCmd)
}
