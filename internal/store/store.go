// Package store persists detection results. Two backends are provided:
// SQLite for single-machine dissertation runs and Postgres for shared
// deployments. Both write the same two tables: one append-only run record
// per detection run and one upserted aggregate row per video.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/miavo090821/dissertation/internal/model"
)

// ErrNotFound is returned when a requested video has no aggregate row.
var ErrNotFound = eris.New("store: not found")

// RunFilter narrows ListRuns output.
type RunFilter struct {
	VideoID string
	Verdict model.Verdict
	Limit   int
}

// Store is the result sink. RecordRun must persist the run record and the
// video aggregate in one transaction so a crash can never leave a run
// without its aggregate update.
type Store interface {
	Migrate(ctx context.Context) error
	RecordRun(ctx context.Context, rec model.RunRecord, agg model.VideoAggregate) error
	GetVideo(ctx context.Context, videoID string) (model.VideoAggregate, error)
	ListVideos(ctx context.Context) ([]model.VideoAggregate, error)
	ListRuns(ctx context.Context, f RunFilter) ([]model.RunRecord, error)
	NextRunIndex(ctx context.Context, videoID string) (int, error)
	Close() error
}

// New creates a store for the configured driver.
func New(ctx context.Context, driver, databaseURL string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(databaseURL)
	case "postgres":
		return NewPostgres(ctx, databaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
