package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miavo090821/dissertation/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

// anyArgs returns n pgxmock.AnyArg() matchers; pgxmock requires the
// expected argument count to match even when values are not asserted.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresStore_GetVideo_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT video_id, final_verdict, final_confidence`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetVideo(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetVideo(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT video_id, final_verdict, final_confidence`).
		WithArgs("vid-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"video_id", "final_verdict", "final_confidence",
			"runs_completed", "runs_with_ads", "needs_review", "updated_at",
		}).AddRow("vid-1", "has_ads", "high", 3, 1, false, now))

	got, err := s.GetVideo(context.Background(), "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictHasAds, got.FinalVerdict)
	assert.Equal(t, model.ConfidenceHigh, got.FinalConfidence)
	assert.Equal(t, 3, got.RunsCompleted)
	assert.Equal(t, 1, got.RunsWithAds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordRun_Transactional(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO run_records`).
		WithArgs(anyArgs(12)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO video_records`).
		WithArgs(anyArgs(7)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	rec := model.RunRecord{
		ID:                "run-1",
		VideoID:           "vid-1",
		RunIndex:          0,
		CheckpointReached: model.CheckpointSeek75,
		DOMSignals:        map[string]bool{"playerAds": true},
		UIMarkers:         map[string]bool{model.MarkerSkipButton: true},
		NetworkMatches:    4,
		Status:            model.RunCompleted,
		Verdict:           model.VerdictHasAds,
		Confidence:        model.ConfidenceHigh,
		CreatedAt:         time.Now().UTC(),
	}
	agg := model.VideoAggregate{
		VideoID:         "vid-1",
		FinalVerdict:    model.VerdictHasAds,
		FinalConfidence: model.ConfidenceHigh,
		RunsCompleted:   1,
		RunsWithAds:     1,
		UpdatedAt:       time.Now().UTC(),
	}

	require.NoError(t, s.RecordRun(context.Background(), rec, agg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordRun_RollsBackOnRunInsertFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO run_records`).
		WithArgs(anyArgs(12)...).
		WillReturnError(pgx.ErrTxClosed)
	mock.ExpectRollback()

	rec := model.RunRecord{ID: "run-1", VideoID: "vid-1", Status: model.RunFailed,
		Verdict: model.VerdictUncertain, Confidence: model.ConfidenceLow, CreatedAt: time.Now().UTC()}
	agg := model.VideoAggregate{VideoID: "vid-1", FinalVerdict: model.VerdictUncertain,
		FinalConfidence: model.ConfidenceLow, UpdatedAt: time.Now().UTC()}

	err := s.RecordRun(context.Background(), rec, agg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_NextRunIndex(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COALESCE\(MAX\(run_index\) \+ 1, 0\) FROM run_records`).
		WithArgs("vid-1").
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(5))

	next, err := s.NextRunIndex(context.Background(), "vid-1")
	require.NoError(t, err)
	assert.Equal(t, 5, next)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListVideos(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT video_id, final_verdict, final_confidence`).
		WillReturnRows(pgxmock.NewRows([]string{
			"video_id", "final_verdict", "final_confidence",
			"runs_completed", "runs_with_ads", "needs_review", "updated_at",
		}).
			AddRow("vid-a", "no_ads", "high", 3, 0, false, now).
			AddRow("vid-b", "uncertain", "low", 0, 0, true, now))

	videos, err := s.ListVideos(context.Background())
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, model.VerdictNoAds, videos[0].FinalVerdict)
	assert.True(t, videos[1].NeedsReview)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filtered(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, video_id, run_index`).
		WithArgs("vid-1", "has_ads", 1000).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "video_id", "run_index", "checkpoint_reached", "dom_signals", "network_matches",
			"ui_markers", "run_status", "verdict", "confidence", "error", "created_at",
		}).AddRow("run-1", "vid-1", 0, "seek_75", `{"playerAds":true}`, 2,
			`{"skip_button":true}`, "completed", "has_ads", "high", "", now))

	runs, err := s.ListRuns(context.Background(), RunFilter{VideoID: "vid-1", Verdict: model.VerdictHasAds})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].DOMSignals["playerAds"])
	assert.True(t, runs[0].UIMarkers[model.MarkerSkipButton])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_New_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), "oracle", "dsn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
