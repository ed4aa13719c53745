// Package detect drives detection runs: it walks one browser session per run
// through the checkpoint sequence, turns the observations into verdicts, and
// aggregates evidence across runs into the per-video conclusion.
package detect

import (
	"context"

	"github.com/miavo090821/dissertation/internal/model"
)

// Session is one isolated browser context driving one video page. The
// coordinator owns the session from Acquire to Close; Close is idempotent.
type Session interface {
	ID() string
	Navigate(ctx context.Context) error
	DismissConsent(ctx context.Context)
	Play(ctx context.Context) error
	SeekTo(ctx context.Context, fraction float64) error
	AdActive(ctx context.Context) bool
	Collect(ctx context.Context, cp model.Checkpoint) model.SignalSet
	Close() error
}

// Factory hands out fresh sessions. Implemented by the browser manager.
type Factory interface {
	Acquire(ctx context.Context, videoID string) (Session, error)
}

// Sink is the slice of the result store the coordinator needs.
type Sink interface {
	NextRunIndex(ctx context.Context, videoID string) (int, error)
	RecordRun(ctx context.Context, rec model.RunRecord, agg model.VideoAggregate) error
	GetVideo(ctx context.Context, videoID string) (model.VideoAggregate, error)
}
