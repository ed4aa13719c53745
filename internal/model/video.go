package model

import "time"

// Checkpoint is an observation point during playback. Pre-roll is probed
// before playback starts; the seek checkpoints are probed after jumping to a
// fraction of the video duration, which is what surfaces mid-roll ads.
type Checkpoint string

const (
	CheckpointPreroll Checkpoint = "preroll"
	CheckpointSeek25  Checkpoint = "seek_25"
	CheckpointSeek50  Checkpoint = "seek_50"
	CheckpointSeek75  Checkpoint = "seek_75"
)

// Checkpoints returns all checkpoints in probe order.
func Checkpoints() []Checkpoint {
	return []Checkpoint{CheckpointPreroll, CheckpointSeek25, CheckpointSeek50, CheckpointSeek75}
}

// Order returns the temporal position of the checkpoint, or -1 if unknown.
func (c Checkpoint) Order() int {
	switch c {
	case CheckpointPreroll:
		return 0
	case CheckpointSeek25:
		return 1
	case CheckpointSeek50:
		return 2
	case CheckpointSeek75:
		return 3
	}
	return -1
}

// SeekFraction returns the playback position (fraction of duration) the
// player must be at before this checkpoint is probed.
func (c Checkpoint) SeekFraction() float64 {
	switch c {
	case CheckpointSeek25:
		return 0.25
	case CheckpointSeek50:
		return 0.50
	case CheckpointSeek75:
		return 0.75
	}
	return 0
}

// ProbeStatus records whether a signal channel could be read at a checkpoint.
// A probe that cannot complete yields StatusUnknown for that channel only;
// the other channels' evidence is kept.
type ProbeStatus string

const (
	ProbeOK      ProbeStatus = "ok"
	ProbeUnknown ProbeStatus = "unknown"
)

// UI marker names. These correspond to on-screen elements that the platform
// injects only while an ad is actively rendered.
const (
	MarkerSponsoredLabel = "sponsored_label"
	MarkerAdBadge        = "ad_badge"
	MarkerSkipButton     = "skip_button"
	MarkerAdCountdown    = "ad_countdown"
	MarkerAdOverlay      = "ad_overlay"
	MarkerAdShowing      = "ad_showing"
)

// MarkerNames returns all UI marker names in stable (export) order.
func MarkerNames() []string {
	return []string{
		MarkerSponsoredLabel,
		MarkerAdBadge,
		MarkerSkipButton,
		MarkerAdCountdown,
		MarkerAdOverlay,
		MarkerAdShowing,
	}
}

// DOMSignals holds page-embedded ad-configuration flags. These indicate ad
// infrastructure, not delivery: non-monetised videos routinely carry them.
type DOMSignals struct {
	Status ProbeStatus     `json:"status"`
	Vars   map[string]bool `json:"vars,omitempty"`
}

// Positive reports whether any embedded variable was present.
func (d DOMSignals) Positive() bool {
	if d.Status != ProbeOK {
		return false
	}
	for _, v := range d.Vars {
		if v {
			return true
		}
	}
	return false
}

// NetworkSignals summarizes intercepted requests matching known ad-serving
// endpoint patterns since session start.
type NetworkSignals struct {
	Status  ProbeStatus `json:"status"`
	Matches int         `json:"matches"`
}

// Positive reports whether any ad-endpoint request was observed.
func (n NetworkSignals) Positive() bool {
	return n.Status == ProbeOK && n.Matches > 0
}

// UISignals holds on-screen ad marker observations. This is the only channel
// tied to an ad actually being rendered to the viewer.
type UISignals struct {
	Status  ProbeStatus     `json:"status"`
	Markers map[string]bool `json:"markers,omitempty"`
}

// Positive reports whether any UI marker was seen.
func (u UISignals) Positive() bool {
	if u.Status != ProbeOK {
		return false
	}
	for _, v := range u.Markers {
		if v {
			return true
		}
	}
	return false
}

// SignalSet is one checkpoint's observation across the three channels.
type SignalSet struct {
	Checkpoint Checkpoint     `json:"checkpoint"`
	DOM        DOMSignals     `json:"dom"`
	Network    NetworkSignals `json:"network"`
	UI         UISignals      `json:"ui"`
}

// FullyProbed reports whether all three channels were read successfully.
func (s SignalSet) FullyProbed() bool {
	return s.DOM.Status == ProbeOK && s.Network.Status == ProbeOK && s.UI.Status == ProbeOK
}

// RunStatus is the terminal state of a single detection run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunTimedOut  RunStatus = "timed_out"
)

// RunObservation is the ordered sequence of checkpoint observations from one
// browser session, plus how the run ended.
type RunObservation struct {
	VideoID           string      `json:"video_id"`
	RunIndex          int         `json:"run_index"`
	SessionID         string      `json:"session_id,omitempty"`
	Signals           []SignalSet `json:"signals"`
	Status            RunStatus   `json:"status"`
	CheckpointReached Checkpoint  `json:"checkpoint_reached,omitempty"`
	Error             string      `json:"error,omitempty"`
	StartedAt         time.Time   `json:"started_at"`
	FinishedAt        time.Time   `json:"finished_at"`
}

// Append adds a checkpoint observation, enforcing temporal order. Signals
// must arrive in checkpoint sequence and a checkpoint never repeats.
func (o *RunObservation) Append(set SignalSet) bool {
	if set.Checkpoint.Order() < 0 {
		return false
	}
	if n := len(o.Signals); n > 0 && set.Checkpoint.Order() <= o.Signals[n-1].Checkpoint.Order() {
		return false
	}
	o.Signals = append(o.Signals, set)
	o.CheckpointReached = set.Checkpoint
	return true
}

// Completed reports whether the run finished its full checkpoint sequence
// and counts as evidence for aggregation.
func (o RunObservation) Completed() bool {
	return o.Status == RunCompleted
}

// Verdict is the categorical conclusion for a run or an aggregated video.
type Verdict string

const (
	VerdictHasAds    Verdict = "has_ads"
	VerdictNoAds     Verdict = "no_ads"
	VerdictUncertain Verdict = "uncertain"
)

// Confidence qualifies a verdict by which channels contributed and how many
// runs or checkpoints were clean.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Rank orders confidence levels for comparison (higher is stronger).
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 0
}

// Evaluation is the verdict engine's conclusion for a single run.
type Evaluation struct {
	Verdict     Verdict    `json:"verdict"`
	Confidence  Confidence `json:"confidence"`
	TriggeredAt Checkpoint `json:"triggered_at,omitempty"` // first checkpoint with a positive UI marker
}

// RunRecord is the flattened per-run row persisted by the result sink.
// Signal values are the union across the run's checkpoints, matching the
// shape consumed by the downstream analysis steps.
type RunRecord struct {
	ID                string          `json:"id"`
	VideoID           string          `json:"video_id"`
	RunIndex          int             `json:"run_index"`
	CheckpointReached Checkpoint      `json:"checkpoint_reached,omitempty"`
	DOMSignals        map[string]bool `json:"dom_signals"`
	NetworkMatches    int             `json:"network_matches"`
	UIMarkers         map[string]bool `json:"ui_markers"`
	Status            RunStatus       `json:"run_status"`
	Verdict           Verdict         `json:"verdict"`
	Confidence        Confidence      `json:"confidence"`
	Error             string          `json:"error,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// NewRunRecord flattens a run observation and its evaluation into a
// persistable record. A marker or variable is true if it was positive at any
// checkpoint.
func NewRunRecord(id string, obs RunObservation, eval Evaluation) RunRecord {
	rec := RunRecord{
		ID:                id,
		VideoID:           obs.VideoID,
		RunIndex:          obs.RunIndex,
		CheckpointReached: obs.CheckpointReached,
		DOMSignals:        map[string]bool{},
		UIMarkers:         map[string]bool{},
		Status:            obs.Status,
		Verdict:           eval.Verdict,
		Confidence:        eval.Confidence,
		Error:             obs.Error,
		CreatedAt:         time.Now().UTC(),
	}
	for _, set := range obs.Signals {
		for name, v := range set.DOM.Vars {
			rec.DOMSignals[name] = rec.DOMSignals[name] || v
		}
		for name, v := range set.UI.Markers {
			rec.UIMarkers[name] = rec.UIMarkers[name] || v
		}
		if set.Network.Status == ProbeOK && set.Network.Matches > rec.NetworkMatches {
			rec.NetworkMatches = set.Network.Matches
		}
	}
	return rec
}

// VideoAggregate is the per-video row persisted by the result sink. It is
// the monetisation-proxy input for the downstream sensitivity analysis.
type VideoAggregate struct {
	VideoID         string     `json:"video_id"`
	FinalVerdict    Verdict    `json:"final_verdict"`
	FinalConfidence Confidence `json:"final_confidence"`
	RunsCompleted   int        `json:"runs_completed"`
	RunsWithAds     int        `json:"runs_with_ads"`
	NeedsReview     bool       `json:"needs_review"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// VideoRecord is the full audit trail for one video: every run observation
// ever appended plus the current aggregate. Runs are append-only; once any
// run observed an ad the aggregate verdict stays has_ads.
type VideoRecord struct {
	VideoID         string           `json:"video_id"`
	Runs            []RunObservation `json:"runs"`
	FinalVerdict    Verdict          `json:"final_verdict"`
	FinalConfidence Confidence       `json:"final_confidence"`
	RunsCompleted   int              `json:"runs_completed"`
	RunsWithAds     int              `json:"runs_with_ads"`
	NeedsReview     bool             `json:"needs_review"`
}

// Aggregate returns the persistable aggregate row for the record.
func (v VideoRecord) Aggregate() VideoAggregate {
	return VideoAggregate{
		VideoID:         v.VideoID,
		FinalVerdict:    v.FinalVerdict,
		FinalConfidence: v.FinalConfidence,
		RunsCompleted:   v.RunsCompleted,
		RunsWithAds:     v.RunsWithAds,
		NeedsReview:     v.NeedsReview,
		UpdatedAt:       time.Now().UTC(),
	}
}
