// Package config loads pactrend.yaml.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/recera/pactrend/internal/cache"
	"github.com/recera/pactrend/pkg/trend/series"
	"github.com/recera/pactrend/pkg/trend/viewport"
)

// FileName is the config file looked up in the project directory
const FileName = "pactrend.yaml"

// Metric names known to the dashboard
const (
	MetricSpeed = "speed"
	MetricOEE   = "oee"
)

// Config represents pactrend.yaml
type Config struct {
	API    APIConfig              `yaml:"api"`
	Poll   PollConfig             `yaml:"poll"`
	Server ServerConfig           `yaml:"server"`
	Cache  CacheConfig            `yaml:"cache"`
	Charts map[string]ChartConfig `yaml:"charts"`
	Log    LogConfig              `yaml:"log"`
}

// APIConfig locates the upstream history service
type APIConfig struct {
	// BaseURL of the machine API, e.g. http://mes.local/api
	BaseURL string `yaml:"base_url"`
	// Path templates; {id} is replaced by the machine id
	MachinesPath string `yaml:"machines_path"`
	SpeedPath    string `yaml:"speed_path"`
	OEEPath      string `yaml:"oee_path"`
	// TokenEnv names the environment variable holding an optional bearer token
	TokenEnv string        `yaml:"token_env"`
	Timeout  time.Duration `yaml:"timeout"`
}

// PollConfig controls how often histories are refreshed
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ServerConfig contains dashboard server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// AllowedOrigins for websocket upgrades; empty means same host only
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	// PingInterval is how often live sessions are pinged; it must stay
	// below ReadTimeout, after which a silent session is dropped
	PingInterval time.Duration `yaml:"ping_interval"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
}

// CacheConfig contains snapshot cache configuration
type CacheConfig struct {
	Disabled bool          `yaml:"disabled"`
	Dir      string        `yaml:"dir"`
	MaxSize  int64         `yaml:"max_size"`
	MaxAge   time.Duration `yaml:"max_age"`
	Policy   string        `yaml:"policy"`
}

// ChartConfig holds per-metric chart options
type ChartConfig struct {
	Title      string  `yaml:"title"`
	Height     float64 `yaml:"height"`
	Padding    float64 `yaml:"padding"`
	TopPadding float64 `yaml:"top_padding"`
	MaxValue   float64 `yaml:"max_value"`
	ValueStep  float64 `yaml:"value_step"`
	Overflow   string  `yaml:"overflow"`
	MinScale   float64 `yaml:"min_scale"`
	MaxScale   float64 `yaml:"max_scale"`
	ZoomStep   float64 `yaml:"zoom_step"`
	Timezone   string  `yaml:"timezone"`
	Language   string  `yaml:"language"`
}

// LogConfig selects the log level: debug, info, warn or error
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// LoadDir loads FileName from dir
func LoadDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", FileName, err)
	}
	applyDefaults(&config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Save writes the configuration as YAML
func Save(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:      "http://localhost:9000/api",
			MachinesPath: "/machines",
			SpeedPath:    "/machines/{id}/speed-history",
			OEEPath:      "/machines/{id}/oee-history",
			TokenEnv:     "PACTREND_API_TOKEN",
			Timeout:      10 * time.Second,
		},
		Poll: PollConfig{
			Interval: 30 * time.Second,
		},
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8080,
			PingInterval: 54 * time.Second,
			ReadTimeout:  5 * time.Minute,
		},
		Cache: CacheConfig{
			Dir:     ".pactrend/cache",
			MaxSize: 64 << 20,
			MaxAge:  24 * time.Hour,
			Policy:  "lru",
		},
		Charts: map[string]ChartConfig{
			MetricSpeed: {
				Title:    "Speed",
				Height:   200,
				Padding:  15,
				MaxValue: 300,
				Overflow: "extend",
			},
			MetricOEE: {
				Title:    "OEE",
				Height:   200,
				Padding:  15,
				MaxValue: 100,
				Overflow: "clamp",
			},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// applyDefaults fills zero values from DefaultConfig
func applyDefaults(config *Config) {
	defaults := DefaultConfig()

	if config.API.BaseURL == "" {
		config.API.BaseURL = defaults.API.BaseURL
	}
	if config.API.MachinesPath == "" {
		config.API.MachinesPath = defaults.API.MachinesPath
	}
	if config.API.SpeedPath == "" {
		config.API.SpeedPath = defaults.API.SpeedPath
	}
	if config.API.OEEPath == "" {
		config.API.OEEPath = defaults.API.OEEPath
	}
	if config.API.TokenEnv == "" {
		config.API.TokenEnv = defaults.API.TokenEnv
	}
	if config.API.Timeout == 0 {
		config.API.Timeout = defaults.API.Timeout
	}

	if config.Poll.Interval == 0 {
		config.Poll.Interval = defaults.Poll.Interval
	}

	if config.Server.Host == "" {
		config.Server.Host = defaults.Server.Host
	}
	if config.Server.Port == 0 {
		config.Server.Port = defaults.Server.Port
	}
	if config.Server.PingInterval == 0 {
		config.Server.PingInterval = defaults.Server.PingInterval
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = defaults.Server.ReadTimeout
	}

	if config.Cache.Dir == "" {
		config.Cache.Dir = defaults.Cache.Dir
	}
	if config.Cache.MaxSize == 0 {
		config.Cache.MaxSize = defaults.Cache.MaxSize
	}
	if config.Cache.MaxAge == 0 {
		config.Cache.MaxAge = defaults.Cache.MaxAge
	}
	if config.Cache.Policy == "" {
		config.Cache.Policy = defaults.Cache.Policy
	}

	if config.Charts == nil {
		config.Charts = make(map[string]ChartConfig)
	}
	for metric, def := range defaults.Charts {
		c, ok := config.Charts[metric]
		if !ok {
			config.Charts[metric] = def
			continue
		}
		if c.Title == "" {
			c.Title = def.Title
		}
		if c.Height == 0 {
			c.Height = def.Height
		}
		if c.Padding == 0 {
			c.Padding = def.Padding
		}
		if c.MaxValue == 0 {
			c.MaxValue = def.MaxValue
		}
		if c.Overflow == "" {
			c.Overflow = def.Overflow
		}
		config.Charts[metric] = c
	}

	if config.Log.Level == "" {
		config.Log.Level = defaults.Log.Level
	}
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not an http(s) URL", c.API.BaseURL)
	}
	for name, p := range map[string]string{"speed_path": c.API.SpeedPath, "oee_path": c.API.OEEPath} {
		if !strings.Contains(p, "{id}") {
			return fmt.Errorf("api.%s %q must contain {id}", name, p)
		}
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	if c.Poll.Interval < time.Second {
		return fmt.Errorf("poll.interval %s is below 1s", c.Poll.Interval)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.PingInterval <= 0 || c.Server.PingInterval >= c.Server.ReadTimeout {
		return fmt.Errorf("server.ping_interval %s must be positive and below server.read_timeout %s",
			c.Server.PingInterval, c.Server.ReadTimeout)
	}
	if _, err := cache.ParseStrategy(c.Cache.Policy); err != nil {
		return fmt.Errorf("cache.policy: %w", err)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	for _, metric := range c.Metrics() {
		if metric != MetricSpeed && metric != MetricOEE {
			return fmt.Errorf("charts.%s: unknown metric", metric)
		}
		if err := c.Charts[metric].validate(); err != nil {
			return fmt.Errorf("charts.%s: %w", metric, err)
		}
	}
	return nil
}

func (c ChartConfig) validate() error {
	if c.Height < 0 || c.Padding < 0 || c.TopPadding < 0 || c.ValueStep < 0 {
		return errors.New("sizes must not be negative")
	}
	if c.Height > 0 && c.Padding+c.TopPadding >= c.Height {
		return fmt.Errorf("padding %g + top_padding %g leave no plot height", c.Padding, c.TopPadding)
	}
	if _, ok := series.ParseOverflow(c.Overflow); !ok {
		return fmt.Errorf("overflow %q is not extend, clamp or none", c.Overflow)
	}
	if c.MinScale < 0 || c.MaxScale < 0 || (c.MaxScale > 0 && c.MinScale > c.MaxScale) {
		return fmt.Errorf("scale range [%g, %g] is invalid", c.MinScale, c.MaxScale)
	}
	if c.ZoomStep != 0 && c.ZoomStep <= 1 {
		return fmt.Errorf("zoom_step %g must exceed 1", c.ZoomStep)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	if c.Language != "" {
		if _, err := language.Parse(c.Language); err != nil {
			return fmt.Errorf("language: %w", err)
		}
	}
	return nil
}

// Metrics returns the configured chart metrics in sorted order
func (c *Config) Metrics() []string {
	metrics := make([]string, 0, len(c.Charts))
	for m := range c.Charts {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)
	return metrics
}

// Addr is the server listen address
func (c *Config) Addr() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// SeriesOptions converts the chart settings to renderer options
func (c ChartConfig) SeriesOptions() series.Options {
	overflow, _ := series.ParseOverflow(c.Overflow)
	opts := series.Options{
		Padding:    c.Padding,
		TopPadding: c.TopPadding,
		MaxValue:   c.MaxValue,
		ValueStep:  c.ValueStep,
		Overflow:   overflow,
	}
	if c.Timezone != "" {
		if loc, err := time.LoadLocation(c.Timezone); err == nil {
			opts.Location = loc
		}
	}
	if c.Language != "" {
		if tag, err := language.Parse(c.Language); err == nil {
			opts.Language = tag
		}
	}
	return opts
}

// ViewportConfig converts the chart settings to engine limits
func (c ChartConfig) ViewportConfig() viewport.Config {
	return viewport.Config{
		MinScale: c.MinScale,
		MaxScale: c.MaxScale,
		ZoomStep: c.ZoomStep,
	}
}

// CacheOptions converts the cache settings
func (c CacheConfig) CacheOptions() cache.Config {
	strategy, _ := cache.ParseStrategy(c.Policy)
	return cache.Config{
		Dir:      c.Dir,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
		Strategy: strategy,
	}
}
