// Package export writes detection results as CSV for the downstream
// statistical analysis.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/miavo090821/dissertation/internal/model"
)

// WriteRuns writes one row per detection run. Signal columns are expanded
// per configured DOM variable (dom:<name>) and per UI marker (ui:<name>) so
// the sheet needs no JSON parsing.
func WriteRuns(w io.Writer, runs []model.RunRecord, domVars []string) error {
	cw := csv.NewWriter(w)

	header := []string{
		"video_id", "run_index", "run_status", "verdict", "confidence",
		"checkpoint_reached", "network_matches",
	}
	for _, v := range domVars {
		header = append(header, "dom:"+v)
	}
	for _, m := range model.MarkerNames() {
		header = append(header, "ui:"+m)
	}
	header = append(header, "error", "created_at")

	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write header")
	}

	for _, r := range runs {
		row := []string{
			r.VideoID,
			strconv.Itoa(r.RunIndex),
			string(r.Status),
			string(r.Verdict),
			string(r.Confidence),
			string(r.CheckpointReached),
			strconv.Itoa(r.NetworkMatches),
		}
		for _, v := range domVars {
			row = append(row, formatBool(r.DOMSignals[v]))
		}
		for _, m := range model.MarkerNames() {
			row = append(row, formatBool(r.UIMarkers[m]))
		}
		row = append(row, r.Error, r.CreatedAt.UTC().Format(time.RFC3339))

		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "export: write run %s/%d", r.VideoID, r.RunIndex)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush runs")
}

// WriteVideos writes one row per video aggregate.
func WriteVideos(w io.Writer, videos []model.VideoAggregate) error {
	cw := csv.NewWriter(w)

	header := []string{
		"video_id", "final_verdict", "final_confidence",
		"runs_completed", "runs_with_ads", "needs_review", "updated_at",
	}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write header")
	}

	for _, v := range videos {
		row := []string{
			v.VideoID,
			string(v.FinalVerdict),
			string(v.FinalConfidence),
			strconv.Itoa(v.RunsCompleted),
			strconv.Itoa(v.RunsWithAds),
			formatBool(v.NeedsReview),
			v.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "export: write video %s", v.VideoID)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush videos")
}

func formatBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
