package config

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"sdserve/internal/common/fsutil"
)

// Config holds runtime parameters for the service.
// Precedence when assembled by main: Defaults < file < environment < flags.
type Config struct {
	Host string `json:"host" yaml:"host" toml:"host"`
	Port int    `json:"port" yaml:"port" toml:"port"`

	// Inference backend (AUTOMATIC1111-compatible API).
	BackendURL        string `json:"backend_url" yaml:"backend_url" toml:"backend_url"`
	Model             string `json:"model" yaml:"model" toml:"model"`
	BackendAuth       string `json:"backend_auth" yaml:"backend_auth" toml:"backend_auth"`
	ConnectTimeoutSec int    `json:"connect_timeout_sec" yaml:"connect_timeout_sec" toml:"connect_timeout_sec"`
	RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec" toml:"request_timeout_sec"`
	LoadTimeoutSec    int    `json:"load_timeout_sec" yaml:"load_timeout_sec" toml:"load_timeout_sec"`

	// Server-side generation defaults not exposed by the HTTP API.
	NegativePrompt string `json:"negative_prompt" yaml:"negative_prompt" toml:"negative_prompt"`
	Width          int    `json:"width" yaml:"width" toml:"width"`
	Height         int    `json:"height" yaml:"height" toml:"height"`
	Sampler        string `json:"sampler" yaml:"sampler" toml:"sampler"`
	Seed           int64  `json:"seed" yaml:"seed" toml:"seed"`

	// HTTP layer.
	GenerateTimeoutSec int      `json:"generate_timeout_sec" yaml:"generate_timeout_sec" toml:"generate_timeout_sec"`
	MaxBodyBytes       int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	ShutdownTimeoutSec int      `json:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec" toml:"shutdown_timeout_sec"`
	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins        []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	CORSMethods        []string `json:"cors_methods" yaml:"cors_methods" toml:"cors_methods"`
	CORSHeaders        []string `json:"cors_headers" yaml:"cors_headers" toml:"cors_headers"`

	// Optional admission; 0 disables it.
	MaxQueueDepth int `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitSec    int `json:"max_wait_sec" yaml:"max_wait_sec" toml:"max_wait_sec"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	// CloudEvents sink for lifecycle events; empty disables it.
	EventsSink   string `json:"events_sink" yaml:"events_sink" toml:"events_sink"`
	EventsSource string `json:"events_source" yaml:"events_source" toml:"events_source"`
}

// Defaults returns the configuration used when nothing else is specified.
func Defaults() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		BackendURL:         "http://127.0.0.1:7860",
		ConnectTimeoutSec:  10,
		LoadTimeoutSec:     60,
		Width:              512,
		Height:             512,
		MaxBodyBytes:       1 << 20,
		ShutdownTimeoutSec: 10,
		CORSMethods:        []string{"GET", "POST", "OPTIONS"},
		CORSHeaders:        []string{"Content-Type"},
		MaxWaitSec:         30,
		LogLevel:           "info",
		LogFormat:          "json",
		EventsSource:       "sdserve",
	}
}

// Load reads a configuration file based on its extension, on top of Defaults.
// Supports: .yaml/.yml, .json, .toml. A leading '~' is expanded.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", p, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", p, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", p, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// SearchPaths are tried in order when no config file is named explicitly.
var SearchPaths = []string{
	"sdserve.yaml",
	"sdserve.yml",
	"sdserve.toml",
	"sdserve.json",
	"~/.config/sdserve/config.yaml",
}

// Discover returns the first existing file among SearchPaths.
func Discover() (string, bool) { return fsutil.FirstFile(SearchPaths...) }

// Env var names read by ApplyEnv.
const (
	EnvPort        = "PORT"
	EnvHost        = "SDSERVE_HOST"
	EnvConfig      = "SDSERVE_CONFIG"
	EnvBackendURL  = "SDSERVE_BACKEND_URL"
	EnvModel       = "SDSERVE_MODEL"
	EnvBackendAuth = "SDSERVE_BACKEND_AUTH"
	EnvLogLevel    = "SDSERVE_LOG_LEVEL"
	EnvLogFormat   = "SDSERVE_LOG_FORMAT"
	EnvEventsSink  = "SDSERVE_EVENTS_SINK"
)

// ApplyEnv overrides fields from environment variables. Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get(EnvPort); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvPort, v)
		}
		c.Port = n
	}
	strs := []struct {
		key string
		dst *string
	}{
		{EnvHost, &c.Host},
		{EnvBackendURL, &c.BackendURL},
		{EnvModel, &c.Model},
		{EnvBackendAuth, &c.BackendAuth},
		{EnvLogLevel, &c.LogLevel},
		{EnvLogFormat, &c.LogFormat},
		{EnvEventsSink, &c.EventsSink},
	}
	for _, s := range strs {
		if v, ok := get(s.key); ok {
			*s.dst = v
		}
	}
	return nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend_url: %q", c.BackendURL)
	}
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("width/height must not be negative")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log_format: %q", c.LogFormat)
	}
	if c.EventsSink != "" {
		if u, err := url.Parse(c.EventsSink); err != nil || u.Host == "" {
			return fmt.Errorf("invalid events_sink: %q", c.EventsSink)
		}
	}
	return nil
}

// Addr returns the listen address.
func (c Config) Addr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c Config) ConnectTimeout() time.Duration  { return seconds(c.ConnectTimeoutSec) }
func (c Config) RequestTimeout() time.Duration  { return seconds(c.RequestTimeoutSec) }
func (c Config) LoadTimeout() time.Duration     { return seconds(c.LoadTimeoutSec) }
func (c Config) GenerateTimeout() time.Duration { return seconds(c.GenerateTimeoutSec) }
func (c Config) ShutdownTimeout() time.Duration { return seconds(c.ShutdownTimeoutSec) }
func (c Config) MaxWait() time.Duration         { return seconds(c.MaxWaitSec) }
