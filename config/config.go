package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/xeptore/qbz/qobuz/types"
)

type Config struct {
	Log   Log   `yaml:"log"`
	Qobuz Qobuz `yaml:"qobuz"`
}

func (c *Config) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Dict("log", c.Log.ToDict()).
		Dict("qobuz", c.Qobuz.ToDict())
}

func (c *Config) setDefaults() {
	c.Log.setDefaults()
	c.Qobuz.setDefaults()
}

func (c *Config) validate() error {
	if err := c.Log.validate(); nil != err {
		return fmt.Errorf("log config validation failed: %v", err)
	}

	if err := c.Qobuz.validate(); nil != err {
		return fmt.Errorf("qobuz config validation failed: %v", err)
	}

	return nil
}

func Load(path string) (*Config, error) {
	var conf Config
	if path != "" {
		content, err := os.ReadFile(path)
		if nil != err {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
		if err := yaml.Unmarshal(content, &conf); nil != err {
			return nil, fmt.Errorf("failed to parse config file: %v", err)
		}
	}

	conf.setDefaults()
	if err := conf.validate(); nil != err {
		return nil, err
	}

	return &conf, nil
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Log) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("level", c.Level).
		Str("format", c.Format)
}

func (c *Log) setDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}

	if c.Format == "" {
		c.Format = "pretty"
	}
}

func (c *Log) validate() error {
	if !slices.Contains([]string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}, c.Level) {
		return fmt.Errorf(
			"level must be one of: trace, debug, info, warn, error, fatal, panic, got: %s",
			c.Level,
		)
	}

	if !slices.Contains([]string{"json", "pretty"}, c.Format) {
		return fmt.Errorf("format must be 'json' or 'pretty', got: %s", c.Format)
	}

	return nil
}

type Qobuz struct {
	WebBaseURL string        `yaml:"web_base_url"`
	APIBaseURL string        `yaml:"api_base_url"`
	Quality    string        `yaml:"quality"`
	Cache      QobuzCache    `yaml:"cache"`
	Timeouts   QobuzTimeouts `yaml:"timeouts"`
	Limits     QobuzLimits   `yaml:"limits"`
}

func (c *Qobuz) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("web_base_url", c.WebBaseURL).
		Str("api_base_url", c.APIBaseURL).
		Str("quality", c.Quality).
		Dict("cache", c.Cache.ToDict()).
		Dict("timeouts", c.Timeouts.ToDict()).
		Dict("limits", c.Limits.ToDict())
}

func (c *Qobuz) setDefaults() {
	if c.WebBaseURL == "" {
		c.WebBaseURL = "https://play.qobuz.com"
	}

	if c.APIBaseURL == "" {
		c.APIBaseURL = "https://www.qobuz.com/api.json/0.2"
	}

	if c.Quality == "" {
		c.Quality = "hi-res"
	}

	c.Cache.setDefaults()
	c.Timeouts.setDefaults()
	c.Limits.setDefaults()
}

func (c *Qobuz) validate() error {
	if !slices.Contains([]string{"mp3", "cd", "hi-res-96", "hi-res"}, c.Quality) {
		return fmt.Errorf("quality must be one of: mp3, cd, hi-res-96, hi-res, got: %s", c.Quality)
	}

	if err := c.Cache.validate(); nil != err {
		return fmt.Errorf("cache config validation failed: %v", err)
	}

	if err := c.Timeouts.validate(); nil != err {
		return fmt.Errorf("timeouts config validation failed: %v", err)
	}

	if err := c.Limits.validate(); nil != err {
		return fmt.Errorf("limits config validation failed: %v", err)
	}

	return nil
}

// PreferredQuality maps the configured quality name to its format id.
func (c *Qobuz) PreferredQuality() types.Quality {
	switch c.Quality {
	case "mp3":
		return types.QualityMP3320
	case "cd":
		return types.QualityFLAC
	case "hi-res-96":
		return types.QualityFLACHiRes96
	case "hi-res":
		return types.QualityFLACHiRes
	default:
		panic("invalid quality: " + c.Quality)
	}
}

type QobuzCache struct {
	MaxSizeMB int `yaml:"max_size_mb"`
}

func (c *QobuzCache) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Int("max_size_mb", c.MaxSizeMB)
}

func (c *QobuzCache) setDefaults() {
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 500
	}
}

func (c *QobuzCache) validate() error {
	if c.MaxSizeMB < 0 {
		return errors.New("max_size_mb must be positive")
	}

	return nil
}

type QobuzTimeouts struct {
	Request  int `yaml:"request"`
	Download int `yaml:"download"`
	Connect  int `yaml:"connect"`
}

func (c *QobuzTimeouts) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Int("request", c.Request).
		Int("download", c.Download).
		Int("connect", c.Connect)
}

func (c *QobuzTimeouts) setDefaults() {
	if c.Request == 0 {
		c.Request = 30
	}

	if c.Download == 0 {
		c.Download = 120
	}

	if c.Connect == 0 {
		c.Connect = 10
	}
}

func (c *QobuzTimeouts) validate() error {
	if c.Request < 0 || c.Download < 0 || c.Connect < 0 {
		return errors.New("timeouts must be positive")
	}

	return nil
}

type QobuzLimits struct {
	RequestsPerSec float64 `yaml:"requests_per_sec"`
	Burst          int     `yaml:"burst"`
}

func (c *QobuzLimits) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Float64("requests_per_sec", c.RequestsPerSec).
		Int("burst", c.Burst)
}

func (c *QobuzLimits) setDefaults() {
	if c.RequestsPerSec == 0 {
		c.RequestsPerSec = 5
	}

	if c.Burst == 0 {
		c.Burst = 10
	}
}

func (c *QobuzLimits) validate() error {
	if c.RequestsPerSec < 0 {
		return errors.New("requests_per_sec must be positive")
	}

	if c.Burst < 0 {
		return errors.New("burst must be positive")
	}

	return nil
}
