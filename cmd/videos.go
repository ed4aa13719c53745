package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/miavo090821/dissertation/internal/model"
)

var videosCmd = &cobra.Command{
	Use:   "videos",
	Short: "Inspect per-video verdicts",
}

var videosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List video verdicts",
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

		videos, err := st.ListVideos(ctx)
		if err != nil {
			return eris.Wrap(err, "videos list")
		}

		if len(videos) == 0 {
			fmt.Fprintln(os.Stderr, "No videos found.")
			return nil
		}

		formatVideosList(os.Stdout, videos)
		return nil
	},
}

var videosShowCmd = &cobra.Command{
	Use:   "show <video-id>",
	Short: "Show one video's aggregate as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		agg, err := st.GetVideo(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "videos show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(agg)
	},
}

func formatVideosList(out io.Writer, videos []model.VideoAggregate) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VIDEO\tVERDICT\tCONFIDENCE\tCOMPLETED\tWITH ADS\tREVIEW")
	for _, v := range videos {
		review := ""
		if v.NeedsReview {
			review = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			v.VideoID, v.FinalVerdict, v.FinalConfidence,
			v.RunsCompleted, v.RunsWithAds, review)
	}
	w.Flush()
}

func init() {
	videosCmd.AddCommand(videosListCmd)
	videosCmd.AddCommand(videosShowCmd)
	rootCmd.AddCommand(videosCmd)
}
