// Package signals collects the three independent detection channels at a
// playback checkpoint: page-embedded ad-configuration variables, intercepted
// ad-endpoint requests, and on-screen ad markers.
package signals

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/miavo090821/dissertation/internal/config"
	"github.com/miavo090821/dissertation/internal/model"
)

// UIState is the raw on-screen probe result before marker interpretation.
type UIState struct {
	// Flags holds selector-derived markers plus the player's ad-active class.
	Flags map[string]bool
	// BadgeTexts holds the text content of player badge elements; the
	// sponsored label is matched against these on the Go side so that
	// locale-specific casing and width variants are handled uniformly.
	BadgeTexts []string
}

// Prober reads raw signals from a live page. Implementations must be safe
// for the three probes to run concurrently within one checkpoint.
type Prober interface {
	// DOMFlags reports which of the named page-embedded ad-configuration
	// variables are present. Absence is false, not an error.
	DOMFlags(ctx context.Context, names []string) (map[string]bool, error)
	// UIState reports the on-screen ad marker state for the given
	// marker-name to CSS-selector mapping.
	UIState(ctx context.Context, selectors map[string]string) (UIState, error)
	// NetworkMatches reports how many intercepted requests since session
	// start matched the known ad-endpoint patterns.
	NetworkMatches(ctx context.Context) (int, error)
}

// Collect probes all three channels at a checkpoint. The probes run
// independently; one failing yields an unknown value for that channel only,
// so partial signal loss never discards the other channels' evidence.
func Collect(ctx context.Context, p Prober, cfg config.SignalsConfig, cp model.Checkpoint) model.SignalSet {
	set := model.SignalSet{
		Checkpoint: cp,
		DOM:        model.DOMSignals{Status: model.ProbeUnknown},
		Network:    model.NetworkSignals{Status: model.ProbeUnknown},
		UI:         model.UISignals{Status: model.ProbeUnknown},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		vars, err := p.DOMFlags(gctx, cfg.DOMVars)
		if err == nil {
			set.DOM = model.DOMSignals{Status: model.ProbeOK, Vars: vars}
		}
		return nil
	})
	g.Go(func() error {
		n, err := p.NetworkMatches(gctx)
		if err == nil {
			set.Network = model.NetworkSignals{Status: model.ProbeOK, Matches: n}
		}
		return nil
	})
	g.Go(func() error {
		state, err := p.UIState(gctx, cfg.UISelectors)
		if err == nil {
			set.UI = model.UISignals{Status: model.ProbeOK, Markers: interpretUI(state, cfg)}
		}
		return nil
	})

	// Probes swallow their own errors, so Wait only synchronizes.
	_ = g.Wait()
	return set
}

// interpretUI turns a raw UI probe into named marker booleans. Badge texts
// are folded before matching so "Sponsored", "SPONSORED" and fullwidth
// variants all count.
func interpretUI(state UIState, cfg config.SignalsConfig) map[string]bool {
	markers := make(map[string]bool, len(state.Flags)+2)
	for name, v := range state.Flags {
		markers[name] = v
	}

	sponsored, adBadge := false, false
	want := fold(cfg.SponsoredText)
	for _, text := range state.BadgeTexts {
		folded := fold(text)
		if want != "" && strings.Contains(folded, want) {
			sponsored = true
		}
		if folded == "ad" {
			adBadge = true
		}
	}
	markers[model.MarkerSponsoredLabel] = markers[model.MarkerSponsoredLabel] || sponsored
	markers[model.MarkerAdBadge] = markers[model.MarkerAdBadge] || adBadge
	return markers
}

// fold normalizes and case-folds marker text. A fresh caser per call: a
// cases.Caser carries state and is not safe for concurrent reuse.
func fold(s string) string {
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(s)))
}
