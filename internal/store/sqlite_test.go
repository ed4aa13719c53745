package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miavo090821/dissertation/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testRunRecord(videoID string, runIndex int, verdict model.Verdict) model.RunRecord {
	return model.RunRecord{
		ID:                fmt.Sprintf("run-%s-%d", videoID, runIndex),
		VideoID:           videoID,
		RunIndex:          runIndex,
		CheckpointReached: model.CheckpointSeek75,
		DOMSignals:        map[string]bool{"playerAds": true, "adPlacements": false},
		NetworkMatches:    2,
		UIMarkers:         map[string]bool{model.MarkerSkipButton: verdict == model.VerdictHasAds},
		Status:            model.RunCompleted,
		Verdict:           verdict,
		Confidence:        model.ConfidenceHigh,
		CreatedAt:         time.Now().UTC(),
	}
}

func testAggregate(videoID string, verdict model.Verdict, completed, withAds int) model.VideoAggregate {
	return model.VideoAggregate{
		VideoID:         videoID,
		FinalVerdict:    verdict,
		FinalConfidence: model.ConfidenceMedium,
		RunsCompleted:   completed,
		RunsWithAds:     withAds,
		UpdatedAt:       time.Now().UTC(),
	}
}

func TestSQLite_RecordRunAndGetVideo(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := testRunRecord("vid-1", 0, model.VerdictHasAds)
	agg := testAggregate("vid-1", model.VerdictHasAds, 1, 1)
	require.NoError(t, st.RecordRun(ctx, rec, agg))

	got, err := st.GetVideo(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictHasAds, got.FinalVerdict)
	assert.Equal(t, 1, got.RunsCompleted)
	assert.Equal(t, 1, got.RunsWithAds)
	assert.False(t, got.NeedsReview)
}

func TestSQLite_GetVideo_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetVideo(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_RecordRun_RetryReplacesRow(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := testRunRecord("vid-2", 0, model.VerdictUncertain)
	first.Status = model.RunFailed
	first.Error = "navigation timeout"
	require.NoError(t, st.RecordRun(ctx, first, testAggregate("vid-2", model.VerdictUncertain, 0, 0)))

	second := testRunRecord("vid-2", 0, model.VerdictNoAds)
	require.NoError(t, st.RecordRun(ctx, second, testAggregate("vid-2", model.VerdictNoAds, 1, 0)))

	runs, err := st.ListRuns(ctx, RunFilter{VideoID: "vid-2"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunCompleted, runs[0].Status)
	assert.Equal(t, model.VerdictNoAds, runs[0].Verdict)
	assert.Empty(t, runs[0].Error)
}

func TestSQLite_ListRuns_SignalsRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := testRunRecord("vid-3", 0, model.VerdictHasAds)
	require.NoError(t, st.RecordRun(ctx, rec, testAggregate("vid-3", model.VerdictHasAds, 1, 1)))

	runs, err := st.ListRuns(ctx, RunFilter{VideoID: "vid-3"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rec.DOMSignals, runs[0].DOMSignals)
	assert.Equal(t, rec.UIMarkers, runs[0].UIMarkers)
	assert.Equal(t, 2, runs[0].NetworkMatches)
	assert.Equal(t, model.CheckpointSeek75, runs[0].CheckpointReached)
}

func TestSQLite_ListRuns_VerdictFilter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.RecordRun(ctx,
		testRunRecord("vid-4", 0, model.VerdictNoAds),
		testAggregate("vid-4", model.VerdictNoAds, 1, 0)))
	require.NoError(t, st.RecordRun(ctx,
		testRunRecord("vid-4", 1, model.VerdictHasAds),
		testAggregate("vid-4", model.VerdictHasAds, 2, 1)))

	runs, err := st.ListRuns(ctx, RunFilter{VideoID: "vid-4", Verdict: model.VerdictHasAds})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].RunIndex)
}

func TestSQLite_NextRunIndex(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	next, err := st.NextRunIndex(ctx, "vid-5")
	require.NoError(t, err)
	assert.Equal(t, 0, next)

	require.NoError(t, st.RecordRun(ctx,
		testRunRecord("vid-5", 0, model.VerdictNoAds),
		testAggregate("vid-5", model.VerdictNoAds, 1, 0)))
	require.NoError(t, st.RecordRun(ctx,
		testRunRecord("vid-5", 1, model.VerdictNoAds),
		testAggregate("vid-5", model.VerdictNoAds, 2, 0)))

	next, err = st.NextRunIndex(ctx, "vid-5")
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	// Other videos are not affected.
	next, err = st.NextRunIndex(ctx, "vid-6")
	require.NoError(t, err)
	assert.Equal(t, 0, next)
}

func TestSQLite_ListVideos(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.RecordRun(ctx,
		testRunRecord("vid-b", 0, model.VerdictNoAds),
		testAggregate("vid-b", model.VerdictNoAds, 1, 0)))
	require.NoError(t, st.RecordRun(ctx,
		testRunRecord("vid-a", 0, model.VerdictHasAds),
		testAggregate("vid-a", model.VerdictHasAds, 1, 1)))

	videos, err := st.ListVideos(ctx)
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, "vid-a", videos[0].VideoID)
	assert.Equal(t, "vid-b", videos[1].VideoID)
}

func TestSQLite_AggregateUpsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.RecordRun(ctx,
		testRunRecord("vid-7", 0, model.VerdictNoAds),
		testAggregate("vid-7", model.VerdictNoAds, 1, 0)))

	agg := testAggregate("vid-7", model.VerdictHasAds, 2, 1)
	agg.NeedsReview = true
	require.NoError(t, st.RecordRun(ctx, testRunRecord("vid-7", 1, model.VerdictHasAds), agg))

	got, err := st.GetVideo(ctx, "vid-7")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictHasAds, got.FinalVerdict)
	assert.Equal(t, 2, got.RunsCompleted)
	assert.True(t, got.NeedsReview)
}
