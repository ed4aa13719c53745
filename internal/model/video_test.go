package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoints_Order(t *testing.T) {
	cps := Checkpoints()
	require.Len(t, cps, 4)
	for i, cp := range cps {
		assert.Equal(t, i, cp.Order())
	}
	assert.Equal(t, -1, Checkpoint("bogus").Order())
}

func TestCheckpoint_SeekFraction(t *testing.T) {
	assert.Equal(t, 0.0, CheckpointPreroll.SeekFraction())
	assert.Equal(t, 0.25, CheckpointSeek25.SeekFraction())
	assert.Equal(t, 0.50, CheckpointSeek50.SeekFraction())
	assert.Equal(t, 0.75, CheckpointSeek75.SeekFraction())
}

func TestRunObservation_Append_RejectsOutOfOrder(t *testing.T) {
	var obs RunObservation

	require.True(t, obs.Append(SignalSet{Checkpoint: CheckpointPreroll}))
	require.True(t, obs.Append(SignalSet{Checkpoint: CheckpointSeek50}))

	// Going backwards or repeating is rejected.
	assert.False(t, obs.Append(SignalSet{Checkpoint: CheckpointSeek25}))
	assert.False(t, obs.Append(SignalSet{Checkpoint: CheckpointSeek50}))
	assert.False(t, obs.Append(SignalSet{Checkpoint: "bogus"}))

	assert.Len(t, obs.Signals, 2)
	assert.Equal(t, CheckpointSeek50, obs.CheckpointReached)
}

func TestSignals_Positive(t *testing.T) {
	dom := DOMSignals{Status: ProbeOK, Vars: map[string]bool{"playerAds": false}}
	assert.False(t, dom.Positive())
	dom.Vars["playerAds"] = true
	assert.True(t, dom.Positive())

	// Unknown channels are never positive, whatever they carry.
	dom.Status = ProbeUnknown
	assert.False(t, dom.Positive())

	assert.False(t, NetworkSignals{Status: ProbeOK}.Positive())
	assert.True(t, NetworkSignals{Status: ProbeOK, Matches: 1}.Positive())
	assert.False(t, NetworkSignals{Status: ProbeUnknown, Matches: 9}.Positive())

	ui := UISignals{Status: ProbeOK, Markers: map[string]bool{MarkerSkipButton: true}}
	assert.True(t, ui.Positive())
}

func TestNewRunRecord_UnionsAcrossCheckpoints(t *testing.T) {
	var obs RunObservation
	obs.VideoID = "abc123"
	obs.RunIndex = 2
	obs.Status = RunCompleted

	require.True(t, obs.Append(SignalSet{
		Checkpoint: CheckpointPreroll,
		DOM:        DOMSignals{Status: ProbeOK, Vars: map[string]bool{"playerAds": true, "adPlacements": false}},
		Network:    NetworkSignals{Status: ProbeOK, Matches: 2},
		UI:         UISignals{Status: ProbeOK, Markers: map[string]bool{MarkerSkipButton: false}},
	}))
	require.True(t, obs.Append(SignalSet{
		Checkpoint: CheckpointSeek25,
		DOM:        DOMSignals{Status: ProbeOK, Vars: map[string]bool{"playerAds": false, "adPlacements": true}},
		Network:    NetworkSignals{Status: ProbeOK, Matches: 5},
		UI:         UISignals{Status: ProbeOK, Markers: map[string]bool{MarkerSkipButton: true}},
	}))

	rec := NewRunRecord("rec-1", obs, Evaluation{Verdict: VerdictHasAds, Confidence: ConfidenceHigh, TriggeredAt: CheckpointSeek25})

	assert.Equal(t, "abc123", rec.VideoID)
	assert.Equal(t, 2, rec.RunIndex)
	assert.True(t, rec.DOMSignals["playerAds"])
	assert.True(t, rec.DOMSignals["adPlacements"])
	assert.True(t, rec.UIMarkers[MarkerSkipButton])
	assert.Equal(t, 5, rec.NetworkMatches)
	assert.Equal(t, CheckpointSeek25, rec.CheckpointReached)
	assert.Equal(t, VerdictHasAds, rec.Verdict)
}

func TestConfidence_Rank(t *testing.T) {
	assert.Greater(t, ConfidenceHigh.Rank(), ConfidenceMedium.Rank())
	assert.Greater(t, ConfidenceMedium.Rank(), ConfidenceLow.Rank())
	assert.Greater(t, ConfidenceLow.Rank(), Confidence("").Rank())
}
