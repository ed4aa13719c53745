// Package verdict fuses one run's collected signals into a single verdict.
//
// UI evidence is the only channel tied to actual rendering. DOM and network
// evidence indicates ad infrastructure, which the platform serves to
// non-monetised content too, so those channels can at most produce an
// uncertain verdict. Absence of a UI marker in one run under-detects true
// positives (ad serving is probabilistic), so infrastructure-only runs are
// never recorded as no_ads.
package verdict

import "github.com/miavo090821/dissertation/internal/model"

// Evaluate reduces a run observation to a verdict, a confidence level and,
// for has_ads, the first checkpoint that showed a UI marker. The decision is
// order-independent: it looks at the whole observation, not per-checkpoint.
func Evaluate(obs model.RunObservation) model.Evaluation {
	// Any rendered ad marker is conclusive, regardless of the other channels.
	for _, set := range obs.Signals {
		if set.UI.Positive() {
			return model.Evaluation{
				Verdict:     model.VerdictHasAds,
				Confidence:  model.ConfidenceHigh,
				TriggeredAt: set.Checkpoint,
			}
		}
	}

	infrastructure := false
	for _, set := range obs.Signals {
		if set.DOM.Positive() || set.Network.Positive() {
			infrastructure = true
			break
		}
	}
	if infrastructure {
		return model.Evaluation{
			Verdict:    model.VerdictUncertain,
			Confidence: uncertainConfidence(obs),
		}
	}

	return model.Evaluation{
		Verdict:    model.VerdictNoAds,
		Confidence: noAdsConfidence(obs),
	}
}

// uncertainConfidence downgrades infrastructure-only verdicts when the UI
// channel itself could not be read: without UI observations the run says
// nothing about delivery at all.
func uncertainConfidence(obs model.RunObservation) model.Confidence {
	for _, set := range obs.Signals {
		if set.UI.Status == model.ProbeOK {
			return model.ConfidenceMedium
		}
	}
	return model.ConfidenceLow
}

// noAdsConfidence scales with how many checkpoints were cleanly probed on
// all three channels. Only a fully clean sweep of the whole checkpoint
// sequence earns high confidence.
func noAdsConfidence(obs model.RunObservation) model.Confidence {
	clean := 0
	for _, set := range obs.Signals {
		if set.FullyProbed() {
			clean++
		}
	}
	switch {
	case clean >= len(model.Checkpoints()):
		return model.ConfidenceHigh
	case clean >= 2:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}
