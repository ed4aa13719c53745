// Package browser owns the stealth browser sessions used for ad detection.
// Each detection run gets a fresh, cookie-free incognito context configured
// to present as an ordinary interactive session; the platform's ad systems
// treat automation fingerprints and software rendering as bot signals and
// suppress ad serving for them.
package browser

import (
	"context"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/miavo090821/dissertation/internal/config"
	"github.com/miavo090821/dissertation/internal/resilience"
)

// Error taxonomy for the detection loop. Checked with eris.Is.
var (
	// ErrSessionAcquisition signals that the browser or a fresh context
	// could not be started.
	ErrSessionAcquisition = eris.New("browser: session acquisition failed")
	// ErrNavigationTimeout signals that a page never became interactive
	// within its bounded wait.
	ErrNavigationTimeout = eris.New("browser: navigation timeout")
)

// Manager launches one browser process and hands out isolated sessions.
// One session maps to one incognito browser context with its own tab; no
// cookies, storage, or history cross session boundaries.
type Manager struct {
	cfg     config.BrowserConfig
	signals config.SignalsConfig

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewManager creates a Manager. The browser process is launched lazily on
// the first Acquire so that commands which never open a session (listing,
// export) do not start one.
func NewManager(cfg config.BrowserConfig, sig config.SignalsConfig) *Manager {
	return &Manager{cfg: cfg, signals: sig}
}

// Acquire starts a fresh session for the given video. Launch failures are
// retried with backoff up to the configured bound; the returned error wraps
// ErrSessionAcquisition once the bound is exhausted.
func (m *Manager) Acquire(ctx context.Context, videoID string) (*Session, error) {
	retryCfg := resilience.DefaultRetryConfig()
	if m.cfg.LaunchRetries > 0 {
		retryCfg.MaxAttempts = m.cfg.LaunchRetries
	}
	retryCfg.OnRetry = resilience.RetryLogger("browser", "acquire")

	sess, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*Session, error) {
		return m.acquire(ctx, videoID)
	})
	if err != nil {
		zap.L().Error("session acquisition exhausted retries",
			zap.String("video_id", videoID),
			zap.Error(err),
		)
		return nil, eris.Wrap(ErrSessionAcquisition, eris.ToString(err, false))
	}
	return sess, nil
}

func (m *Manager) acquire(ctx context.Context, videoID string) (*Session, error) {
	b, err := m.ensureBrowser()
	if err != nil {
		return nil, resilience.NewTransientError(err)
	}

	inc, err := b.Incognito()
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "browser: incognito context"))
	}

	page, err := inc.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "browser: open page"))
	}

	sess := &Session{
		id:      uuid.New().String(),
		videoID: videoID,
		cfg:     m.cfg,
		signals: m.signals,
		inc:     inc,
		page:    page,
		netlog:  NewRequestLog(m.signals.NetworkPatterns),
	}

	if err := sess.prepare(ctx); err != nil {
		_ = sess.Close()
		return nil, resilience.NewTransientError(err)
	}

	zap.L().Debug("session acquired",
		zap.String("session_id", sess.id),
		zap.String("video_id", videoID),
	)
	return sess, nil
}

// ensureBrowser launches the shared browser process on first use.
func (m *Manager) ensureBrowser() (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		return m.browser, nil
	}

	l := launcher.New().
		Headless(m.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Delete("enable-automation").
		Set("no-first-run").
		Set("disable-infobars").
		// Keep the GPU compositor: the software-rasterizer fallback is a
		// rendering-backend fingerprint the platform reads as a bot.
		Delete("disable-gpu")
	if m.cfg.BinPath != "" {
		l = l.Bin(m.cfg.BinPath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, eris.Wrap(err, "browser: launch")
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, eris.Wrap(err, "browser: connect")
	}

	m.browser = b
	m.launcher = l
	zap.L().Info("browser launched", zap.Bool("headless", m.cfg.Headless))
	return b, nil
}

// Close tears down the shared browser process.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			zap.L().Warn("browser close", zap.Error(err))
		}
		m.browser = nil
	}
	if m.launcher != nil {
		m.launcher.Cleanup()
		m.launcher = nil
	}
}

// Session is one isolated browser context driving one video page. It is
// exclusively owned by its run's control flow from Acquire to Close.
type Session struct {
	id      string
	videoID string
	cfg     config.BrowserConfig
	signals config.SignalsConfig
	inc     *rod.Browser
	page    *rod.Page
	netlog  *RequestLog

	closeOnce sync.Once
	closeErr  error
}

// ID returns the session identifier recorded on run observations.
func (s *Session) ID() string { return s.id }

// prepare applies the stealth profile and attaches the network listener
// before any navigation happens.
func (s *Session) prepare(ctx context.Context) error {
	page := s.page.Context(ctx)

	if ua := s.cfg.UserAgent; ua != "" {
		if err := (proto.NetworkSetUserAgentOverride{UserAgent: ua}).Call(page); err != nil {
			return eris.Wrap(err, "browser: override user agent")
		}
	}

	if _, err := (proto.PageAddScriptToEvaluateOnNewDocument{Source: stealthScript}).Call(page); err != nil {
		return eris.Wrap(err, "browser: install stealth script")
	}

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return eris.Wrap(err, "browser: enable network events")
	}
	go s.page.EachEvent(func(e *proto.NetworkRequestWillBeSent) {
		s.netlog.Observe(e.Request.URL)
	})()

	return nil
}

// Close releases the session exactly once: the tab is closed and the
// incognito context is disposed so nothing leaks into the next video.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if err := s.page.Close(); err != nil {
			s.closeErr = eris.Wrap(err, "browser: close page")
		}
		if err := (proto.TargetDisposeBrowserContext{
			BrowserContextID: s.inc.BrowserContextID,
		}).Call(s.inc); err != nil && s.closeErr == nil {
			s.closeErr = eris.Wrap(err, "browser: dispose context")
		}
		zap.L().Debug("session released",
			zap.String("session_id", s.id),
			zap.String("video_id", s.videoID),
		)
	})
	return s.closeErr
}
