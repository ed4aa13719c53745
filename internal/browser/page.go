package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"github.com/miavo090821/dissertation/internal/model"
	"github.com/miavo090821/dissertation/internal/signals"
)

// playerSelector is the playback surface waited on during navigation.
const playerSelector = "video"

// Navigate loads the video watch page and waits for the playback surface to
// become interactive. The caller bounds the wait through ctx; on deadline
// the error wraps ErrNavigationTimeout.
func (s *Session) Navigate(ctx context.Context) error {
	url := fmt.Sprintf(s.cfg.WatchURL, s.videoID)
	page := s.page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		return s.navError(ctx, err, "navigate")
	}
	if err := page.WaitLoad(); err != nil {
		return s.navError(ctx, err, "wait load")
	}
	if _, err := page.Element(playerSelector); err != nil {
		return s.navError(ctx, err, "wait for player")
	}
	return nil
}

func (s *Session) navError(ctx context.Context, err error, op string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return eris.Wrap(ErrNavigationTimeout, op)
	}
	return eris.Wrapf(err, "browser: %s %s", op, s.videoID)
}

// consentJS clicks the cookie-consent button when one is shown. Different
// sessions may or may not get the prompt, so a miss is not an error.
const consentJS = `() => {
	const accepted = ['accept all', 'agree to all', 'i agree', 'accept the use of cookies'];
	const candidates = document.querySelectorAll('button, [role="button"]');
	for (const el of candidates) {
		const text = (el.textContent || el.getAttribute('aria-label') || '').trim().toLowerCase();
		if (accepted.some(a => text.includes(a))) {
			el.click();
			return true;
		}
	}
	return false;
}`

// DismissConsent clears the consent prompt if present. Best effort: absence
// of the prompt, or a page that cannot be scripted yet, is a no-op.
func (s *Session) DismissConsent(ctx context.Context) {
	obj, err := s.page.Context(ctx).Eval(consentJS)
	if err != nil {
		zap.L().Debug("consent check failed", zap.String("video_id", s.videoID), zap.Error(err))
		return
	}
	if obj.Value.Bool() {
		zap.L().Info("dismissed consent prompt", zap.String("video_id", s.videoID))
		// Give the overlay a moment to clear before the player is touched.
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
		}
	}
}

const playJS = `() => {
	const v = document.querySelector('video');
	if (!v) return false;
	v.muted = true;
	const p = v.play();
	if (p && p.catch) p.catch(() => {});
	return true;
}`

// Play starts muted playback, which is what triggers pre-roll serving.
func (s *Session) Play(ctx context.Context) error {
	obj, err := s.page.Context(ctx).Eval(playJS)
	if err != nil {
		return eris.Wrapf(err, "browser: play %s", s.videoID)
	}
	if !obj.Value.Bool() {
		return eris.Errorf("browser: play %s: no video element", s.videoID)
	}
	return nil
}

const seekJS = `(frac) => {
	const v = document.querySelector('video');
	if (!v || !v.duration) return false;
	v.currentTime = v.duration * frac;
	return true;
}`

// SeekTo jumps playback to a fraction of the video duration. Crossing an
// ad-break boundary is what surfaces mid-roll ads; the caller waits the
// settle delay before collecting signals.
func (s *Session) SeekTo(ctx context.Context, fraction float64) error {
	obj, err := s.page.Context(ctx).Eval(seekJS, fraction)
	if err != nil {
		return eris.Wrapf(err, "browser: seek %s to %.2f", s.videoID, fraction)
	}
	if !obj.Value.Bool() {
		return eris.Errorf("browser: seek %s: duration not available", s.videoID)
	}
	return nil
}

const adActiveJS = `() => {
	const player = document.querySelector('.html5-video-player');
	return !!(player && player.classList.contains('ad-showing'));
}`

// AdActive reports whether the player is currently rendering an ad. Used to
// let a pre-roll finish before the seek sequence starts.
func (s *Session) AdActive(ctx context.Context) bool {
	obj, err := s.page.Context(ctx).Eval(adActiveJS)
	if err != nil {
		return false
	}
	return obj.Value.Bool()
}

const domFlagsJS = `(names) => {
	const r = {};
	let pr = {};
	try { pr = window.ytInitialPlayerResponse || {}; } catch (e) {}
	for (const name of names) {
		let hit = false;
		try { hit = !!(pr && pr[name]) || !!window[name]; } catch (e) {}
		r[name] = hit;
	}
	return r;
}`

// DOMFlags implements signals.Prober. Absent variables read as false.
func (s *Session) DOMFlags(ctx context.Context, names []string) (map[string]bool, error) {
	obj, err := s.page.Context(ctx).Eval(domFlagsJS, names)
	if err != nil {
		return nil, eris.Wrap(err, "browser: dom probe")
	}
	return decodeFlags(obj.Value), nil
}

func decodeFlags(v gson.JSON) map[string]bool {
	m := v.Map()
	out := make(map[string]bool, len(m))
	for name, f := range m {
		out[name] = f.Bool()
	}
	return out
}

const uiStateJS = `(selectors) => {
	const flags = {};
	for (const name of Object.keys(selectors)) {
		try { flags[name] = !!document.querySelector(selectors[name]); } catch (e) { flags[name] = false; }
	}
	const player = document.querySelector('.html5-video-player');
	flags['ad_showing'] = !!(player && player.classList.contains('ad-showing'));
	const badgeTexts = [];
	const badges = document.querySelectorAll('.ytp-ad-badge__text, .ytp-ad-simple-ad-badge, .badge-style-type-ad');
	for (const el of badges) {
		const t = (el.textContent || '').trim();
		if (t) badgeTexts.push(t);
	}
	// The sponsored pill sometimes renders outside the badge elements.
	if (player) {
		const pill = player.querySelector('.ytp-ad-avatar-lockup-card, .ytp-visit-advertiser-link');
		if (pill) {
			const t = (pill.textContent || '').trim();
			if (t) badgeTexts.push(t);
		}
	}
	return { flags: flags, badgeTexts: badgeTexts };
}`

// UIState implements signals.Prober.
func (s *Session) UIState(ctx context.Context, selectors map[string]string) (signals.UIState, error) {
	obj, err := s.page.Context(ctx).Eval(uiStateJS, selectors)
	if err != nil {
		return signals.UIState{}, eris.Wrap(err, "browser: ui probe")
	}

	state := signals.UIState{Flags: decodeFlags(obj.Value.Get("flags"))}
	for _, v := range obj.Value.Get("badgeTexts").Arr() {
		state.BadgeTexts = append(state.BadgeTexts, v.Str())
	}
	return state, nil
}

// NetworkMatches implements signals.Prober. The rolling request log lives in
// this process, so the probe cannot be lost to page teardown.
func (s *Session) NetworkMatches(ctx context.Context) (int, error) {
	return s.netlog.Matches(), nil
}

// Collect gathers one checkpoint's signal set from this session.
func (s *Session) Collect(ctx context.Context, cp model.Checkpoint) model.SignalSet {
	return signals.Collect(ctx, s, s.signals, cp)
}
