package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/miavo090821/dissertation/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS run_records (
	id                 TEXT PRIMARY KEY,
	video_id           TEXT NOT NULL,
	run_index          INTEGER NOT NULL,
	checkpoint_reached TEXT NOT NULL DEFAULT '',
	dom_signals        TEXT NOT NULL DEFAULT '{}',
	network_matches    INTEGER NOT NULL DEFAULT 0,
	ui_markers         TEXT NOT NULL DEFAULT '{}',
	run_status         TEXT NOT NULL,
	verdict            TEXT NOT NULL,
	confidence         TEXT NOT NULL,
	error              TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL,
	UNIQUE (video_id, run_index)
);

CREATE TABLE IF NOT EXISTS video_records (
	video_id         TEXT PRIMARY KEY,
	final_verdict    TEXT NOT NULL,
	final_confidence TEXT NOT NULL,
	runs_completed   INTEGER NOT NULL DEFAULT 0,
	runs_with_ads    INTEGER NOT NULL DEFAULT 0,
	needs_review     INTEGER NOT NULL DEFAULT 0,
	updated_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_records_video ON run_records(video_id, run_index);
CREATE INDEX IF NOT EXISTS idx_run_records_verdict ON run_records(verdict);
CREATE INDEX IF NOT EXISTS idx_video_records_verdict ON video_records(final_verdict);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordRun writes the run record and the video aggregate in one
// transaction. A retried run re-uses its run index, so the run insert is an
// upsert on (video_id, run_index).
func (s *SQLiteStore) RecordRun(ctx context.Context, rec model.RunRecord, agg model.VideoAggregate) error {
	domJSON, uiJSON, err := marshalSignals(rec)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO run_records
			(id, video_id, run_index, checkpoint_reached, dom_signals, network_matches,
			 ui_markers, run_status, verdict, confidence, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (video_id, run_index) DO UPDATE SET
			id = excluded.id,
			checkpoint_reached = excluded.checkpoint_reached,
			dom_signals = excluded.dom_signals,
			network_matches = excluded.network_matches,
			ui_markers = excluded.ui_markers,
			run_status = excluded.run_status,
			verdict = excluded.verdict,
			confidence = excluded.confidence,
			error = excluded.error,
			created_at = excluded.created_at`,
		rec.ID, rec.VideoID, rec.RunIndex, string(rec.CheckpointReached), domJSON, rec.NetworkMatches,
		uiJSON, string(rec.Status), string(rec.Verdict), string(rec.Confidence), rec.Error, rec.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s/%d", rec.VideoID, rec.RunIndex)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO video_records
			(video_id, final_verdict, final_confidence, runs_completed, runs_with_ads, needs_review, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (video_id) DO UPDATE SET
			final_verdict = excluded.final_verdict,
			final_confidence = excluded.final_confidence,
			runs_completed = excluded.runs_completed,
			runs_with_ads = excluded.runs_with_ads,
			needs_review = excluded.needs_review,
			updated_at = excluded.updated_at`,
		agg.VideoID, string(agg.FinalVerdict), string(agg.FinalConfidence),
		agg.RunsCompleted, agg.RunsWithAds, agg.NeedsReview, agg.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert video %s", agg.VideoID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) GetVideo(ctx context.Context, videoID string) (model.VideoAggregate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT video_id, final_verdict, final_confidence, runs_completed, runs_with_ads, needs_review, updated_at
		 FROM video_records WHERE video_id = ?`,
		videoID,
	)
	return scanVideo(row)
}

func (s *SQLiteStore) ListVideos(ctx context.Context) ([]model.VideoAggregate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT video_id, final_verdict, final_confidence, runs_completed, runs_with_ads, needs_review, updated_at
		 FROM video_records ORDER BY video_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list videos")
	}
	defer rows.Close()

	var videos []model.VideoAggregate
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, eris.Wrap(rows.Err(), "sqlite: list videos iterate")
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunRecord, error) {
	query := `SELECT id, video_id, run_index, checkpoint_reached, dom_signals, network_matches,
		ui_markers, run_status, verdict, confidence, error, created_at
		FROM run_records WHERE 1=1`
	var args []any

	if filter.VideoID != "" {
		query += ` AND video_id = ?`
		args = append(args, filter.VideoID)
	}
	if filter.Verdict != "" {
		query += ` AND verdict = ?`
		args = append(args, string(filter.Verdict))
	}
	query += ` ORDER BY video_id, run_index`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) NextRunIndex(ctx context.Context, videoID string) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(run_index) + 1, 0) FROM run_records WHERE video_id = ?`,
		videoID,
	).Scan(&next)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: next run index %s", videoID)
	}
	return next, nil
}

// helpers shared with the Postgres backend

type scannable interface {
	Scan(dest ...any) error
}

func marshalSignals(rec model.RunRecord) (string, string, error) {
	domJSON, err := json.Marshal(rec.DOMSignals)
	if err != nil {
		return "", "", eris.Wrap(err, "store: marshal dom signals")
	}
	uiJSON, err := json.Marshal(rec.UIMarkers)
	if err != nil {
		return "", "", eris.Wrap(err, "store: marshal ui markers")
	}
	return string(domJSON), string(uiJSON), nil
}

func scanVideo(row scannable) (model.VideoAggregate, error) {
	var v model.VideoAggregate
	err := row.Scan(&v.VideoID, &v.FinalVerdict, &v.FinalConfidence,
		&v.RunsCompleted, &v.RunsWithAds, &v.NeedsReview, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.VideoAggregate{}, ErrNotFound
	}
	if err != nil {
		return model.VideoAggregate{}, eris.Wrap(err, "store: scan video")
	}
	return v, nil
}

func scanRun(row scannable) (model.RunRecord, error) {
	var r model.RunRecord
	var checkpoint, domJSON, uiJSON string
	err := row.Scan(&r.ID, &r.VideoID, &r.RunIndex, &checkpoint, &domJSON, &r.NetworkMatches,
		&uiJSON, &r.Status, &r.Verdict, &r.Confidence, &r.Error, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return model.RunRecord{}, ErrNotFound
	}
	if err != nil {
		return model.RunRecord{}, eris.Wrap(err, "store: scan run")
	}
	r.CheckpointReached = model.Checkpoint(checkpoint)
	if err := json.Unmarshal([]byte(domJSON), &r.DOMSignals); err != nil {
		return model.RunRecord{}, eris.Wrap(err, "store: unmarshal dom signals")
	}
	if err := json.Unmarshal([]byte(uiJSON), &r.UIMarkers); err != nil {
		return model.RunRecord{}, eris.Wrap(err, "store: unmarshal ui markers")
	}
	return r, nil
}
