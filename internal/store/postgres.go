package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/miavo090821/dissertation/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. Declared as an
// interface so tests can substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wires an existing pool; used by tests with pgxmock.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS run_records (
	id                 TEXT PRIMARY KEY,
	video_id           TEXT NOT NULL,
	run_index          INTEGER NOT NULL,
	checkpoint_reached TEXT NOT NULL DEFAULT '',
	dom_signals        JSONB NOT NULL DEFAULT '{}',
	network_matches    INTEGER NOT NULL DEFAULT 0,
	ui_markers         JSONB NOT NULL DEFAULT '{}',
	run_status         TEXT NOT NULL,
	verdict            TEXT NOT NULL,
	confidence         TEXT NOT NULL,
	error              TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (video_id, run_index)
);

CREATE TABLE IF NOT EXISTS video_records (
	video_id         TEXT PRIMARY KEY,
	final_verdict    TEXT NOT NULL,
	final_confidence TEXT NOT NULL,
	runs_completed   INTEGER NOT NULL DEFAULT 0,
	runs_with_ads    INTEGER NOT NULL DEFAULT 0,
	needs_review     BOOLEAN NOT NULL DEFAULT false,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_run_records_video ON run_records(video_id, run_index);
CREATE INDEX IF NOT EXISTS idx_run_records_verdict ON run_records(verdict);
CREATE INDEX IF NOT EXISTS idx_video_records_verdict ON video_records(final_verdict);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// RecordRun writes the run record and the video aggregate in one
// transaction.
func (s *PostgresStore) RecordRun(ctx context.Context, rec model.RunRecord, agg model.VideoAggregate) error {
	domJSON, uiJSON, err := marshalSignals(rec)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO run_records
			(id, video_id, run_index, checkpoint_reached, dom_signals, network_matches,
			 ui_markers, run_status, verdict, confidence, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (video_id, run_index) DO UPDATE SET
			id = EXCLUDED.id,
			checkpoint_reached = EXCLUDED.checkpoint_reached,
			dom_signals = EXCLUDED.dom_signals,
			network_matches = EXCLUDED.network_matches,
			ui_markers = EXCLUDED.ui_markers,
			run_status = EXCLUDED.run_status,
			verdict = EXCLUDED.verdict,
			confidence = EXCLUDED.confidence,
			error = EXCLUDED.error,
			created_at = EXCLUDED.created_at`,
		rec.ID, rec.VideoID, rec.RunIndex, string(rec.CheckpointReached), []byte(domJSON), rec.NetworkMatches,
		[]byte(uiJSON), string(rec.Status), string(rec.Verdict), string(rec.Confidence), rec.Error, rec.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert run %s/%d", rec.VideoID, rec.RunIndex)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO video_records
			(video_id, final_verdict, final_confidence, runs_completed, runs_with_ads, needs_review, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (video_id) DO UPDATE SET
			final_verdict = EXCLUDED.final_verdict,
			final_confidence = EXCLUDED.final_confidence,
			runs_completed = EXCLUDED.runs_completed,
			runs_with_ads = EXCLUDED.runs_with_ads,
			needs_review = EXCLUDED.needs_review,
			updated_at = EXCLUDED.updated_at`,
		agg.VideoID, string(agg.FinalVerdict), string(agg.FinalConfidence),
		agg.RunsCompleted, agg.RunsWithAds, agg.NeedsReview, agg.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert video %s", agg.VideoID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func (s *PostgresStore) GetVideo(ctx context.Context, videoID string) (model.VideoAggregate, error) {
	var v model.VideoAggregate
	err := s.pool.QueryRow(ctx,
		`SELECT video_id, final_verdict, final_confidence, runs_completed, runs_with_ads, needs_review, updated_at
		 FROM video_records WHERE video_id = $1`,
		videoID,
	).Scan(&v.VideoID, &v.FinalVerdict, &v.FinalConfidence, &v.RunsCompleted, &v.RunsWithAds, &v.NeedsReview, &v.UpdatedAt)
	if eris.Is(err, pgx.ErrNoRows) {
		return model.VideoAggregate{}, ErrNotFound
	}
	if err != nil {
		return model.VideoAggregate{}, eris.Wrapf(err, "postgres: get video %s", videoID)
	}
	return v, nil
}

func (s *PostgresStore) ListVideos(ctx context.Context) ([]model.VideoAggregate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT video_id, final_verdict, final_confidence, runs_completed, runs_with_ads, needs_review, updated_at
		 FROM video_records ORDER BY video_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list videos")
	}
	defer rows.Close()

	var videos []model.VideoAggregate
	for rows.Next() {
		var v model.VideoAggregate
		if err := rows.Scan(&v.VideoID, &v.FinalVerdict, &v.FinalConfidence,
			&v.RunsCompleted, &v.RunsWithAds, &v.NeedsReview, &v.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan video")
		}
		videos = append(videos, v)
	}
	return videos, eris.Wrap(rows.Err(), "postgres: list videos iterate")
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunRecord, error) {
	query := `SELECT id, video_id, run_index, checkpoint_reached, dom_signals, network_matches,
		ui_markers, run_status, verdict, confidence, error, created_at
		FROM run_records WHERE true`
	args := []any{}
	argIdx := 1

	if filter.VideoID != "" {
		query += fmt.Sprintf(` AND video_id = $%d`, argIdx)
		args = append(args, filter.VideoID)
		argIdx++
	}
	if filter.Verdict != "" {
		query += fmt.Sprintf(` AND verdict = $%d`, argIdx)
		args = append(args, string(filter.Verdict))
		argIdx++
	}
	query += ` ORDER BY video_id, run_index`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
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
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) NextRunIndex(ctx context.Context, videoID string) (int, error) {
	var next int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(run_index) + 1, 0) FROM run_records WHERE video_id = $1`,
		videoID,
	).Scan(&next)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: next run index %s", videoID)
	}
	return next, nil
}
