package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/miavo090821/dissertation/internal/export"
	"github.com/miavo090821/dissertation/internal/store"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export results as CSV",
}

var exportRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Export per-run signal rows",
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

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 1_000_000})
		if err != nil {
			return eris.Wrap(err, "export runs")
		}

		out, closeFn, err := openOutput(exportOut)
		if err != nil {
			return err
		}
		defer closeFn()

		return export.WriteRuns(out, runs, cfg.Signals.DOMVars)
	},
}

var exportVideosCmd = &cobra.Command{
	Use:   "videos",
	Short: "Export per-video verdict rows",
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
			return eris.Wrap(err, "export videos")
		}

		out, closeFn, err := openOutput(exportOut)
		if err != nil {
			return err
		}
		defer closeFn()

		return export.WriteVideos(out, videos)
	},
}

func openOutput(path string) (*os.File, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "export: create %s", path)
	}
	return f, func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close %s: %v\n", path, err)
		}
	}, nil
}

func init() {
	exportCmd.PersistentFlags().StringVar(&exportOut, "out", "-", "output path (- for stdout)")
	exportCmd.AddCommand(exportRunsCmd)
	exportCmd.AddCommand(exportVideosCmd)
	rootCmd.AddCommand(exportCmd)
}
