package detect

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/miavo090821/dissertation/internal/config"
	"github.com/miavo090821/dissertation/internal/model"
	"github.com/miavo090821/dissertation/internal/store"
	"github.com/miavo090821/dissertation/internal/verdict"
)

// Coordinator runs the per-video detection protocol: N sequential runs, each
// persisted as it finishes, folded into a monotonic aggregate. Videos are
// processed strictly one at a time; the only concurrency in the system is the
// per-checkpoint probe fan-out inside a run.
type Coordinator struct {
	factory Factory
	sink    Sink
	cfg     config.DetectConfig
	limiter *rate.Limiter
}

// New creates a Coordinator. The inter-video delay doubles as a politeness
// rate limit across a batch.
func New(factory Factory, sink Sink, cfg config.DetectConfig) *Coordinator {
	every := rate.Inf
	if d := cfg.InterVideoDelay(); d > 0 {
		every = rate.Every(d)
	}
	return &Coordinator{
		factory: factory,
		sink:    sink,
		cfg:     cfg,
		limiter: rate.NewLimiter(every, 1),
	}
}

// tally accumulates per-run verdicts for one video, including evidence from
// earlier invocations loaded from the store.
type tally struct {
	completed int
	hasAds    int
	noAds     int
	uncertain int
}

func (t *tally) add(eval model.Evaluation, obs model.RunObservation) {
	// A rendered-ad observation is conclusive however the run ended; only
	// the clean-run counters require a completed checkpoint sequence.
	if eval.Verdict == model.VerdictHasAds {
		t.hasAds++
		if obs.Completed() {
			t.completed++
		}
		return
	}
	if !obs.Completed() {
		return
	}
	t.completed++
	if eval.Verdict == model.VerdictNoAds {
		t.noAds++
	} else {
		t.uncertain++
	}
}

// aggregate applies the fusion rules: one observed ad is conclusive and
// permanent, a clean result needs repetition to gain confidence, and a video
// whose runs all failed is flagged for manual review.
func (t tally) aggregate(videoID string) model.VideoAggregate {
	agg := model.VideoAggregate{
		VideoID:       videoID,
		RunsCompleted: t.completed,
		RunsWithAds:   t.hasAds,
		UpdatedAt:     time.Now().UTC(),
	}
	switch {
	case t.hasAds > 0:
		agg.FinalVerdict = model.VerdictHasAds
		agg.FinalConfidence = model.ConfidenceHigh
	case t.completed == 0:
		agg.FinalVerdict = model.VerdictUncertain
		agg.FinalConfidence = model.ConfidenceLow
		agg.NeedsReview = true
	case t.uncertain > 0:
		agg.FinalVerdict = model.VerdictUncertain
		agg.FinalConfidence = model.ConfidenceMedium
	default:
		agg.FinalVerdict = model.VerdictNoAds
		switch {
		case t.noAds >= 3:
			agg.FinalConfidence = model.ConfidenceHigh
		case t.noAds == 2:
			agg.FinalConfidence = model.ConfidenceMedium
		default:
			agg.FinalConfidence = model.ConfidenceLow
		}
	}
	return agg
}

// seedTally reconstructs the tally from a prior aggregate so repeated
// invocations keep accumulating evidence instead of starting over.
func seedTally(prior model.VideoAggregate) tally {
	t := tally{completed: prior.RunsCompleted, hasAds: prior.RunsWithAds}
	if t.hasAds > 0 || t.completed == 0 {
		return t
	}
	switch prior.FinalVerdict {
	case model.VerdictNoAds:
		t.noAds = t.completed
	default:
		// At least one earlier run was uncertain; the exact split does not
		// change any aggregation rule.
		t.uncertain = 1
		t.noAds = t.completed - 1
	}
	return t
}

// Detect runs the configured number of detection runs for one video and
// returns the resulting aggregate. Every run is persisted together with the
// aggregate state as of that run, so an abort loses at most the run in
// flight.
func (c *Coordinator) Detect(ctx context.Context, videoID string) (model.VideoAggregate, error) {
	base, err := c.sink.NextRunIndex(ctx, videoID)
	if err != nil {
		return model.VideoAggregate{}, err
	}

	var t tally
	prior, err := c.sink.GetVideo(ctx, videoID)
	switch {
	case err == nil:
		t = seedTally(prior)
	case eris.Is(err, store.ErrNotFound):
	default:
		return model.VideoAggregate{}, err
	}

	zap.L().Info("detecting video",
		zap.String("video_id", videoID),
		zap.Int("runs", c.cfg.RunsPerVideo),
		zap.Int("base_run_index", base),
	)

	agg := t.aggregate(videoID)
	for i := 0; i < c.cfg.RunsPerVideo; i++ {
		obs := c.runWithRetry(ctx, videoID, base+i)
		eval := verdict.Evaluate(obs)
		t.add(eval, obs)
		agg = t.aggregate(videoID)

		rec := model.NewRunRecord(uuid.New().String(), obs, eval)
		if err := c.sink.RecordRun(ctx, rec, agg); err != nil {
			return agg, eris.Wrapf(err, "detect: persist run %s/%d", videoID, obs.RunIndex)
		}

		zap.L().Info("run recorded",
			zap.String("video_id", videoID),
			zap.Int("run_index", obs.RunIndex),
			zap.String("run_status", string(obs.Status)),
			zap.String("verdict", string(eval.Verdict)),
			zap.String("confidence", string(eval.Confidence)),
		)

		if ctx.Err() != nil {
			return agg, ctx.Err()
		}
	}
	return agg, nil
}

// runWithRetry re-attempts a run that did not complete, re-using its run
// index so the final attempt is the one persisted.
func (c *Coordinator) runWithRetry(ctx context.Context, videoID string, runIndex int) model.RunObservation {
	attempts := c.cfg.RunRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var obs model.RunObservation
	for attempt := 1; attempt <= attempts; attempt++ {
		obs = c.runOnce(ctx, videoID, runIndex)
		if obs.Completed() || ctx.Err() != nil {
			return obs
		}
		// A failed attempt that already saw a rendered ad is terminal:
		// retrying would discard conclusive positive evidence.
		if verdict.Evaluate(obs).Verdict == model.VerdictHasAds {
			return obs
		}
		if attempt < attempts {
			zap.L().Warn("retrying run",
				zap.String("video_id", videoID),
				zap.Int("run_index", runIndex),
				zap.Int("attempt", attempt),
			)
			c.sleep(ctx, time.Second)
		}
	}
	return obs
}

// BatchResult summarizes a batch invocation.
type BatchResult struct {
	Requested   int
	Processed   int
	Skipped     int
	Failed      int
	LastVideoID string
}

// DetectBatch processes video IDs strictly in order. With skipExisting set,
// videos that already have an aggregate row are not re-run. An aborted batch
// reports the last fully processed video so it can be resumed behind it.
func (c *Coordinator) DetectBatch(ctx context.Context, videoIDs []string, skipExisting bool) (BatchResult, error) {
	res := BatchResult{Requested: len(videoIDs)}

	for _, videoID := range videoIDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if skipExisting {
			_, err := c.sink.GetVideo(ctx, videoID)
			switch {
			case err == nil:
				zap.L().Debug("skipping video with existing results", zap.String("video_id", videoID))
				res.Skipped++
				continue
			case eris.Is(err, store.ErrNotFound):
			default:
				return res, err
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return res, err
		}

		agg, err := c.Detect(ctx, videoID)
		if err != nil {
			if ctx.Err() != nil {
				return res, err
			}
			res.Failed++
			zap.L().Error("video detection failed", zap.String("video_id", videoID), zap.Error(err))
			continue
		}

		res.Processed++
		res.LastVideoID = videoID
		zap.L().Info("video aggregated",
			zap.String("video_id", videoID),
			zap.String("final_verdict", string(agg.FinalVerdict)),
			zap.String("final_confidence", string(agg.FinalConfidence)),
			zap.Int("runs_completed", agg.RunsCompleted),
			zap.Int("runs_with_ads", agg.RunsWithAds),
		)
	}
	return res, nil
}
