package detect

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/miavo090821/dissertation/internal/browser"
	"github.com/miavo090821/dissertation/internal/model"
)

// runOnce executes one full detection run: fresh session, navigate, pre-roll
// probe, then the seek checkpoints. The session is always released before
// returning, whatever happened inside the run.
func (c *Coordinator) runOnce(ctx context.Context, videoID string, runIndex int) model.RunObservation {
	obs := model.RunObservation{
		VideoID:   videoID,
		RunIndex:  runIndex,
		StartedAt: time.Now().UTC(),
	}

	sess, err := c.factory.Acquire(ctx, videoID)
	if err != nil {
		return c.finishFailed(obs, err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			zap.L().Warn("session close", zap.String("video_id", videoID), zap.Error(err))
		}
	}()
	obs.SessionID = sess.ID()

	navCtx, cancel := context.WithTimeout(ctx, c.cfg.NavigationTimeout())
	err = sess.Navigate(navCtx)
	cancel()
	if err != nil {
		return c.finishFailed(obs, err)
	}

	consentCtx, cancel := context.WithTimeout(ctx, c.cfg.CheckpointTimeout())
	sess.DismissConsent(consentCtx)
	cancel()

	set, err := c.probePreroll(ctx, sess)
	if err != nil {
		return c.finishFailed(obs, err)
	}
	obs.Append(set)

	if err := sess.Play(ctx); err != nil {
		return c.finishFailed(obs, err)
	}
	// A pre-roll that is actively playing hides the mid-roll markers; let it
	// run out (bounded) before seeking.
	c.awaitAdEnd(ctx, sess)

	for _, cp := range []model.Checkpoint{model.CheckpointSeek25, model.CheckpointSeek50, model.CheckpointSeek75} {
		if err := ctx.Err(); err != nil {
			return c.finishFailed(obs, err)
		}
		if err := sess.SeekTo(ctx, cp.SeekFraction()); err != nil {
			return c.finishFailed(obs, err)
		}
		c.sleep(ctx, c.cfg.SettleDelay())

		cpCtx, cancel := context.WithTimeout(ctx, c.cfg.CheckpointTimeout())
		set := sess.Collect(cpCtx, cp)
		cancel()
		obs.Append(set)

		if set.UI.Status == model.ProbeOK && set.UI.Markers[model.MarkerAdShowing] {
			c.awaitAdEnd(ctx, sess)
		}
	}

	obs.Status = model.RunCompleted
	obs.FinishedAt = time.Now().UTC()
	return obs
}

// probePreroll polls the checkpoint several times: pre-roll markers appear
// with variable delay after the page settles. The polls are merged into one
// signal set; a positive at any poll counts.
func (c *Coordinator) probePreroll(ctx context.Context, sess Session) (model.SignalSet, error) {
	polls := c.cfg.PrerollPolls
	if polls < 1 {
		polls = 1
	}

	merged := model.SignalSet{
		Checkpoint: model.CheckpointPreroll,
		DOM:        model.DOMSignals{Status: model.ProbeUnknown},
		Network:    model.NetworkSignals{Status: model.ProbeUnknown},
		UI:         model.UISignals{Status: model.ProbeUnknown},
	}
	for i := 0; i < polls; i++ {
		if err := ctx.Err(); err != nil {
			return merged, err
		}
		cpCtx, cancel := context.WithTimeout(ctx, c.cfg.CheckpointTimeout())
		set := sess.Collect(cpCtx, model.CheckpointPreroll)
		cancel()

		merged = mergeSets(merged, set)
		if merged.UI.Positive() {
			break
		}
		if i < polls-1 {
			c.sleep(ctx, c.cfg.SettleDelay())
		}
	}
	return merged, nil
}

// mergeSets unions two observations of the same checkpoint: a channel is OK
// if either poll read it, and a positive at either poll sticks.
func mergeSets(a, b model.SignalSet) model.SignalSet {
	out := model.SignalSet{Checkpoint: a.Checkpoint}

	out.DOM.Vars = unionFlags(a.DOM.Vars, b.DOM.Vars)
	if a.DOM.Status == model.ProbeOK || b.DOM.Status == model.ProbeOK {
		out.DOM.Status = model.ProbeOK
	} else {
		out.DOM.Status = model.ProbeUnknown
	}

	out.Network.Matches = a.Network.Matches
	if b.Network.Matches > out.Network.Matches {
		out.Network.Matches = b.Network.Matches
	}
	if a.Network.Status == model.ProbeOK || b.Network.Status == model.ProbeOK {
		out.Network.Status = model.ProbeOK
	} else {
		out.Network.Status = model.ProbeUnknown
	}

	out.UI.Markers = unionFlags(a.UI.Markers, b.UI.Markers)
	if a.UI.Status == model.ProbeOK || b.UI.Status == model.ProbeOK {
		out.UI.Status = model.ProbeOK
	} else {
		out.UI.Status = model.ProbeUnknown
	}

	return out
}

func unionFlags(a, b map[string]bool) map[string]bool {
	if a == nil && b == nil {
		return nil
	}
	out := make(map[string]bool, len(a)+len(b))
	for k, v := range a {
		out[k] = out[k] || v
	}
	for k, v := range b {
		out[k] = out[k] || v
	}
	return out
}

// awaitAdEnd waits (bounded) while the player is actively rendering an ad.
func (c *Coordinator) awaitAdEnd(ctx context.Context, sess Session) {
	deadline := time.Now().Add(c.cfg.AdWait())
	for sess.AdActive(ctx) {
		if ctx.Err() != nil || time.Now().After(deadline) {
			return
		}
		c.sleep(ctx, time.Second)
	}
}

func (c *Coordinator) finishFailed(obs model.RunObservation, err error) model.RunObservation {
	obs.Error = err.Error()
	obs.FinishedAt = time.Now().UTC()
	if eris.Is(err, browser.ErrNavigationTimeout) || errors.Is(err, context.DeadlineExceeded) {
		obs.Status = model.RunTimedOut
	} else {
		obs.Status = model.RunFailed
	}
	zap.L().Warn("detection run did not complete",
		zap.String("video_id", obs.VideoID),
		zap.Int("run_index", obs.RunIndex),
		zap.String("status", string(obs.Status)),
		zap.Error(err),
	)
	return obs
}

// sleep pauses for d, returning early when ctx is done.
func (c *Coordinator) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
