// Package config parses the pollerd YAML configuration.
//
// Example configuration:
//
//	preset: app
//	timezone: Europe/Berlin
//	max_concurrent_ticks: 8
//
//	log:
//	  level: info
//	  file: ./logs/pollerd.jsonl
//
//	http:
//	  addr: ":8080"
//
//	history:
//	  path: ./data/history
//	  retention: 72h
//
//	pollers:
//	  - name: orders
//	    url: https://${ORDERS_HOST:-orders.internal}/health
//	    interval: 10s
//	    max_retries: 5
//	    window: { start: "08:00", end: "20:00" }
//	    restart: "55 7 * * 1-5"
//	    stop_on_status: [401, 403]
//
// A window of "HH:mm" endpoints resolves each end to its next occurrence, so a
// 09:00-18:00 window started at 10:00 resolves to tomorrow 09:00 and today
// 18:00 and Start fails with poller.ErrInvalidTimeRange. The app preset carries
// that window: give such pollers a restart schedule shortly before the window
// opens (for example "55 8 * * *") so they are started again every day.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ahmed-com/poller"
	"github.com/ahmed-com/poller/logging"
	"github.com/ahmed-com/poller/manager"
	"github.com/ahmed-com/poller/window"
)

const (
	PresetDefault = "default"
	PresetApp     = "app"
)

// Config is the root of the YAML file
type Config struct {
	// Preset picks the base option set: "default" (3s, no window) or "app"
	// (6s, 09:00-18:00). Each poller entry overrides it field by field.
	Preset   string `yaml:"preset"`
	Timezone string `yaml:"timezone"`

	MaxConcurrentTicks int `yaml:"max_concurrent_ticks"`

	// ShutdownTimeout bounds how long in-flight ticks may run on exit
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	Log     logging.Config `yaml:"log"`
	HTTP    HTTPConfig     `yaml:"http"`
	History HistoryConfig  `yaml:"history"`

	Pollers []PollerConfig `yaml:"pollers"`

	location *time.Location
}

type HTTPConfig struct {
	// Addr enables the control API; empty disables it
	Addr string `yaml:"addr"`
}

type HistoryConfig struct {
	// Path is the badger directory; empty keeps history in memory
	Path         string   `yaml:"path"`
	Retention    Duration `yaml:"retention"`
	ReapInterval Duration `yaml:"reap_interval"`
	// Disabled turns event recording off entirely
	Disabled bool `yaml:"disabled"`
}

// PollerConfig is one polled HTTP endpoint. Unset fields keep the preset's value.
type PollerConfig struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`

	Interval    *Duration `yaml:"interval"`
	MaxRetries  *int      `yaml:"max_retries"`
	Backoff     *bool     `yaml:"backoff"`
	BackoffBase *Duration `yaml:"backoff_base"`
	BackoffMax  *Duration `yaml:"backoff_max"`
	Immediate   *bool     `yaml:"immediate"`
	Timeout     *Duration `yaml:"timeout"`

	Window   *WindowConfig `yaml:"window"`
	NoWindow bool          `yaml:"no_window"`

	// Restart is a cron expression at which a stopped poller is started again
	Restart string `yaml:"restart"`

	// StopOnStatus lists response codes that stop the poller instead of retrying
	StopOnStatus []int `yaml:"stop_on_status"`
}

// WindowConfig bounds polling; each end is "HH:mm", RFC 3339 or epoch millis
type WindowConfig struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) ptr() *time.Duration {
	if d == nil {
		return nil
	}
	v := d.Duration()
	return &v
}

// envVarPattern matches ${VAR} and ${VAR:-default}
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		sub := envVarPattern.FindStringSubmatch(match)
		hasDefault := sub[2] != ""

		value, exists := os.LookupEnv(sub[1])
		if !exists {
			if hasDefault {
				return sub[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", sub[1])
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data, applies defaults and validates it.
// Environment variables are expanded in URL and header values.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Preset == "" {
		cfg.Preset = PresetDefault
	}
	if cfg.MaxConcurrentTicks == 0 {
		cfg.MaxConcurrentTicks = 10
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.History.Retention == 0 {
		cfg.History.Retention = Duration(24 * time.Hour)
	}
	if cfg.History.ReapInterval == 0 {
		cfg.History.ReapInterval = Duration(5 * time.Minute)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) expandAndValidate() error {
	if c.Preset != PresetDefault && c.Preset != PresetApp {
		return fmt.Errorf("preset must be %q or %q, got %q", PresetDefault, PresetApp, c.Preset)
	}
	c.location = time.Local
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone %s: %w", c.Timezone, err)
		}
		c.location = loc
	}
	if c.MaxConcurrentTicks < 0 {
		return fmt.Errorf("max_concurrent_ticks cannot be negative, got %d", c.MaxConcurrentTicks)
	}
	if _, err := logging.LevelOf(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.History.Retention.Duration() < 0 || c.History.ReapInterval.Duration() < 0 {
		return errors.New("history: retention and reap_interval cannot be negative")
	}

	seen := make(map[string]struct{}, len(c.Pollers))
	for i := range c.Pollers {
		p := &c.Pollers[i]
		if err := p.expandAndValidate(); err != nil {
			if p.Name == "" {
				return fmt.Errorf("pollers[%d]: %w", i, err)
			}
			return fmt.Errorf("pollers[%d] (%s): %w", i, p.Name, err)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("pollers[%d] (%s): duplicate name", i, p.Name)
		}
		seen[p.Name] = struct{}{}

		// the merged option set must be valid too
		if _, err := BuildOptions[struct{}](c, *p); err != nil {
			return fmt.Errorf("pollers[%d] (%s): %w", i, p.Name, err)
		}
	}

	if len(c.Pollers) == 0 {
		return errors.New("at least one poller must be defined")
	}
	return nil
}

func (p *PollerConfig) expandAndValidate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	if p.URL == "" {
		return errors.New("url is required")
	}
	expanded, err := expandEnvVars(p.URL)
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	p.URL = expanded

	parsedURL, err := url.Parse(p.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsedURL.Scheme)
	}

	for k, v := range p.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		p.Headers[k] = expanded
	}

	if p.Method == "" {
		p.Method = "GET"
	}
	if p.Method != "GET" && p.Method != "HEAD" && p.Method != "POST" {
		return fmt.Errorf("method must be GET, HEAD, or POST, got %q", p.Method)
	}

	if p.Window != nil && p.NoWindow {
		return errors.New("window and no_window are mutually exclusive")
	}
	if p.Window != nil {
		if _, err := window.ParseRange(p.Window.Start, p.Window.End); err != nil {
			return fmt.Errorf("window: %w", err)
		}
	}

	if p.Restart != "" {
		if err := manager.ValidateRestartSpec(p.Restart); err != nil {
			return err
		}
	}

	for _, code := range p.StopOnStatus {
		if code < 100 || code > 599 {
			return fmt.Errorf("stop_on_status: %d is not an HTTP status code", code)
		}
	}
	return nil
}

// Location is where "HH:mm" windows and restart schedules are evaluated
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// Base returns the preset option set for result type T
func Base[T any](c *Config) poller.Options[T] {
	if c.Preset == PresetApp {
		return poller.AppDefaults[T](nil)
	}
	return poller.DefaultOptions[T]()
}

// Override maps the poller entry onto a poller.Override
func Override[T any](p PollerConfig) (*poller.Override[T], error) {
	o := &poller.Override[T]{
		Name:        &p.Name,
		Interval:    p.Interval.ptr(),
		MaxRetries:  p.MaxRetries,
		Backoff:     p.Backoff,
		BackoffBase: p.BackoffBase.ptr(),
		BackoffMax:  p.BackoffMax.ptr(),
		Immediate:   p.Immediate,
		TaskTimeout: p.Timeout.ptr(),
		NoTimeRange: p.NoWindow,
	}
	if p.Window != nil {
		rng, err := window.ParseRange(p.Window.Start, p.Window.End)
		if err != nil {
			return nil, fmt.Errorf("window: %w", err)
		}
		o.TimeRange = rng
	}
	return o, nil
}

// BuildOptions merges the entry onto the preset and validates the result.
// Callbacks and collaborators are left for the caller to fill in.
func BuildOptions[T any](c *Config, p PollerConfig) (poller.Options[T], error) {
	o, err := Override[T](p)
	if err != nil {
		return poller.Options[T]{}, err
	}
	opts := o.Merge(Base[T](c))
	if err := opts.Validate(); err != nil {
		return poller.Options[T]{}, err
	}
	return opts, nil
}
