package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Browser BrowserConfig `yaml:"browser" mapstructure:"browser"`
	Detect  DetectConfig  `yaml:"detect" mapstructure:"detect"`
	Signals SignalsConfig `yaml:"signals" mapstructure:"signals"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the result sink backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BrowserConfig configures the browser session manager.
type BrowserConfig struct {
	// Headless is off by default: the platform fingerprints the rendering
	// backend, and a software-only fallback suppresses ad serving.
	Headless      bool   `yaml:"headless" mapstructure:"headless"`
	BinPath       string `yaml:"bin_path" mapstructure:"bin_path"`
	UserAgent     string `yaml:"user_agent" mapstructure:"user_agent"`
	LaunchRetries int    `yaml:"launch_retries" mapstructure:"launch_retries"`
	WatchURL      string `yaml:"watch_url" mapstructure:"watch_url"`
}

// DetectConfig configures the detection run loop.
type DetectConfig struct {
	RunsPerVideo   int `yaml:"runs_per_video" mapstructure:"runs_per_video"`
	RunRetries     int `yaml:"run_retries" mapstructure:"run_retries"`
	NavigationSecs int `yaml:"navigation_secs" mapstructure:"navigation_secs"`
	CheckpointSecs int `yaml:"checkpoint_secs" mapstructure:"checkpoint_secs"`
	SettleMillis   int `yaml:"settle_millis" mapstructure:"settle_millis"`
	PrerollPolls   int `yaml:"preroll_polls" mapstructure:"preroll_polls"`
	AdWaitSecs     int `yaml:"ad_wait_secs" mapstructure:"ad_wait_secs"`
	InterVideoSecs int `yaml:"inter_video_secs" mapstructure:"inter_video_secs"`
}

// NavigationTimeout returns the bounded wait for a page to become interactive.
func (d DetectConfig) NavigationTimeout() time.Duration {
	return time.Duration(d.NavigationSecs) * time.Second
}

// CheckpointTimeout returns the bounded budget for one checkpoint's probes.
func (d DetectConfig) CheckpointTimeout() time.Duration {
	return time.Duration(d.CheckpointSecs) * time.Second
}

// SettleDelay returns the pause after a seek before signals are collected.
// Mid-roll markers appear only shortly after a seek crosses an ad break.
func (d DetectConfig) SettleDelay() time.Duration {
	return time.Duration(d.SettleMillis) * time.Millisecond
}

// AdWait returns the bounded wait for an actively playing ad to finish.
func (d DetectConfig) AdWait() time.Duration {
	return time.Duration(d.AdWaitSecs) * time.Second
}

// InterVideoDelay returns the enforced pause between videos.
func (d DetectConfig) InterVideoDelay() time.Duration {
	return time.Duration(d.InterVideoSecs) * time.Second
}

// SignalsConfig enumerates what each probe channel looks for.
type SignalsConfig struct {
	DOMVars         []string          `yaml:"dom_vars" mapstructure:"dom_vars"`
	NetworkPatterns []string          `yaml:"network_patterns" mapstructure:"network_patterns"`
	UISelectors     map[string]string `yaml:"ui_selectors" mapstructure:"ui_selectors"`
	SponsoredText   string            `yaml:"sponsored_text" mapstructure:"sponsored_text"`
}

// ServerConfig configures the read-only results API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ADSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "adscan.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.launch_retries", 3)
	v.SetDefault("browser.watch_url", "https://www.youtube.com/watch?v=%s")
	v.SetDefault("detect.runs_per_video", 3)
	v.SetDefault("detect.run_retries", 2)
	v.SetDefault("detect.navigation_secs", 30)
	v.SetDefault("detect.checkpoint_secs", 20)
	v.SetDefault("detect.settle_millis", 2000)
	v.SetDefault("detect.preroll_polls", 4)
	v.SetDefault("detect.ad_wait_secs", 20)
	v.SetDefault("detect.inter_video_secs", 5)
	v.SetDefault("signals.dom_vars", []string{"playerAds", "adPlacements", "adSlots"})
	v.SetDefault("signals.network_patterns", []string{
		"pagead",
		"ad_break",
		"get_midroll",
		"doubleclick.net",
		"googlesyndication",
		"googleadservices",
	})
	v.SetDefault("signals.ui_selectors", map[string]string{
		"skip_button":  ".ytp-ad-skip-button, .ytp-ad-skip-button-modern",
		"ad_countdown": ".ytp-ad-preview-container, .ytp-ad-timed-pie-countdown-container, .ytp-ad-duration-remaining",
		"ad_overlay":   ".ytp-ad-overlay-container, .ytp-ad-overlay-slot",
	})
	v.SetDefault("signals.sponsored_text", "sponsored")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
