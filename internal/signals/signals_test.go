package signals

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/miavo090821/dissertation/internal/config"
	"github.com/miavo090821/dissertation/internal/model"
)

type fakeProber struct {
	domVars    map[string]bool
	domErr     error
	uiState    UIState
	uiErr      error
	netMatches int
	netErr     error
}

func (f *fakeProber) DOMFlags(ctx context.Context, names []string) (map[string]bool, error) {
	return f.domVars, f.domErr
}

func (f *fakeProber) UIState(ctx context.Context, selectors map[string]string) (UIState, error) {
	return f.uiState, f.uiErr
}

func (f *fakeProber) NetworkMatches(ctx context.Context) (int, error) {
	return f.netMatches, f.netErr
}

func testSignalsConfig() config.SignalsConfig {
	return config.SignalsConfig{
		DOMVars:         []string{"playerAds", "adPlacements"},
		NetworkPatterns: []string{"pagead"},
		UISelectors: map[string]string{
			model.MarkerSkipButton: ".ytp-ad-skip-button",
		},
		SponsoredText: "sponsored",
	}
}

func TestCollect_AllChannelsHealthy(t *testing.T) {
	p := &fakeProber{
		domVars:    map[string]bool{"playerAds": true, "adPlacements": false},
		netMatches: 3,
		uiState: UIState{
			Flags:      map[string]bool{model.MarkerSkipButton: true, model.MarkerAdShowing: false},
			BadgeTexts: []string{"Sponsored"},
		},
	}

	set := Collect(context.Background(), p, testSignalsConfig(), model.CheckpointPreroll)

	assert.Equal(t, model.CheckpointPreroll, set.Checkpoint)
	assert.Equal(t, model.ProbeOK, set.DOM.Status)
	assert.True(t, set.DOM.Vars["playerAds"])
	assert.Equal(t, 3, set.Network.Matches)
	assert.True(t, set.UI.Markers[model.MarkerSkipButton])
	assert.True(t, set.UI.Markers[model.MarkerSponsoredLabel])
	assert.True(t, set.FullyProbed())
}

func TestCollect_OneChannelFailingKeepsTheOthers(t *testing.T) {
	p := &fakeProber{
		domErr:     eris.New("page navigated away"),
		netMatches: 1,
		uiState:    UIState{Flags: map[string]bool{}},
	}

	set := Collect(context.Background(), p, testSignalsConfig(), model.CheckpointSeek50)

	assert.Equal(t, model.ProbeUnknown, set.DOM.Status)
	assert.Equal(t, model.ProbeOK, set.Network.Status)
	assert.Equal(t, 1, set.Network.Matches)
	assert.Equal(t, model.ProbeOK, set.UI.Status)
	assert.False(t, set.FullyProbed())
}

func TestCollect_AllChannelsFailing(t *testing.T) {
	p := &fakeProber{
		domErr: eris.New("gone"),
		uiErr:  eris.New("gone"),
		netErr: eris.New("gone"),
	}

	set := Collect(context.Background(), p, testSignalsConfig(), model.CheckpointSeek75)

	assert.Equal(t, model.ProbeUnknown, set.DOM.Status)
	assert.Equal(t, model.ProbeUnknown, set.Network.Status)
	assert.Equal(t, model.ProbeUnknown, set.UI.Status)
	assert.False(t, set.DOM.Positive())
	assert.False(t, set.UI.Positive())
}

func TestInterpretUI_SponsoredTextFolding(t *testing.T) {
	cfg := testSignalsConfig()

	tests := []struct {
		name  string
		texts []string
		want  bool
	}{
		{"exact", []string{"sponsored"}, true},
		{"title case", []string{"Sponsored"}, true},
		{"upper", []string{"SPONSORED"}, true},
		{"embedded", []string{"Sponsored · 0:05"}, true},
		{"fullwidth", []string{"Ｓｐｏｎｓｏｒｅｄ"}, true},
		{"unrelated", []string{"4K", "Subtitles"}, false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			markers := interpretUI(UIState{BadgeTexts: tt.texts}, cfg)
			assert.Equal(t, tt.want, markers[model.MarkerSponsoredLabel])
		})
	}
}

func TestInterpretUI_AdBadge(t *testing.T) {
	markers := interpretUI(UIState{BadgeTexts: []string{"Ad"}}, testSignalsConfig())
	assert.True(t, markers[model.MarkerAdBadge])

	markers = interpretUI(UIState{BadgeTexts: []string{"Advert preview"}}, testSignalsConfig())
	assert.False(t, markers[model.MarkerAdBadge])
}
