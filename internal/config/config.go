// ABOUTME: Configuration loading and parsing for graphrag-tui and graphrag-relay
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults for the remote service protocol.
const (
	DefaultBaseURL        = "http://localhost:5005"
	DefaultSearchPath     = "/agents/search"
	DefaultSubmitPath     = "/queries"
	DefaultResultPath     = "/queries/result"
	DefaultRequestTimeout = 10 * time.Second
	DefaultAttemptLimit   = 30
	DefaultPollInterval   = time.Second
	DefaultDriver         = "sqlite"
	DefaultRelayAddr      = "localhost:5005"
	DefaultAnswerDelay    = 3 * time.Second
)

// DefaultModes are the assistant modes offered when the config lists none.
var DefaultModes = []string{
	"GraphRag Entity-Focused Assistant",
	"GraphRag Global Assistant",
}

// Config represents the complete graphrag configuration
type Config struct {
	Service ServiceConfig `yaml:"service" toml:"service"`
	Polling PollingConfig `yaml:"polling" toml:"polling"`
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	Modes   []string      `yaml:"modes" toml:"modes"`
	Relay   RelayConfig   `yaml:"relay" toml:"relay"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// ServiceConfig describes how to reach the agent-execution service
type ServiceConfig struct {
	BaseURL    string `yaml:"base_url" toml:"base_url"`
	SearchPath string `yaml:"search_path" toml:"search_path"`
	SubmitPath string `yaml:"submit_path" toml:"submit_path"`
	ResultPath string `yaml:"result_path" toml:"result_path"`

	// AuthSecret, when set, is used to mint HS256 bearer tokens for every request
	AuthSecret string `yaml:"auth_secret" toml:"auth_secret"`

	// MaxRequestsPerSecond caps outgoing requests. Zero means unlimited.
	MaxRequestsPerSecond float64 `yaml:"max_requests_per_second" toml:"max_requests_per_second"`

	RequestTimeout    time.Duration `yaml:"-" toml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout" toml:"request_timeout"`
}

// PollingConfig bounds a poll session
type PollingConfig struct {
	AttemptLimit int `yaml:"attempt_limit" toml:"attempt_limit"`

	Interval    time.Duration `yaml:"-" toml:"-"`
	IntervalRaw string        `yaml:"interval" toml:"interval"`
}

// StorageConfig holds settings persistence configuration
type StorageConfig struct {
	Path   string `yaml:"path" toml:"path"`
	Driver string `yaml:"driver" toml:"driver"` // sqlite (modernc) or sqlite3 (cgo)

	// PlaintextSecrets disables sealing of the connection password at rest
	PlaintextSecrets bool `yaml:"plaintext_secrets" toml:"plaintext_secrets"`
}

// RelayConfig configures the mock relay server
type RelayConfig struct {
	Addr       string          `yaml:"addr" toml:"addr"`
	AuthSecret string          `yaml:"auth_secret" toml:"auth_secret"`
	Agents     []RelayAgent    `yaml:"agents" toml:"agents"`
	Tailscale  TailscaleConfig `yaml:"tailscale" toml:"tailscale"`

	AnswerDelay    time.Duration `yaml:"-" toml:"-"`
	AnswerDelayRaw string        `yaml:"answer_delay" toml:"answer_delay"`
}

// RelayAgent is an agent the relay advertises through search
type RelayAgent struct {
	Name    string `yaml:"name" toml:"name"`
	Address string `yaml:"address" toml:"address"`
}

// TailscaleConfig holds Tailscale tsnet configuration for the relay
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"` // empty logs to stderr
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault behaves like Load but returns Default() when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// DefaultPath returns the path to the config file.
// Priority: GRAPHRAG_CONFIG env var > XDG_CONFIG_HOME/graphrag/config.yaml > ~/.config/graphrag/config.yaml
func DefaultPath() string {
	if envPath := os.Getenv("GRAPHRAG_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "graphrag", "config.yaml")
}

// DataDir returns the graphrag data directory.
// Priority: XDG_DATA_HOME/graphrag > ~/.local/share/graphrag
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "graphrag")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[2:])
}

func (c *Config) applyDefaults() {
	if c.Service.BaseURL == "" {
		c.Service.BaseURL = DefaultBaseURL
	}
	c.Service.BaseURL = strings.TrimRight(c.Service.BaseURL, "/")
	if c.Service.SearchPath == "" {
		c.Service.SearchPath = DefaultSearchPath
	}
	if c.Service.SubmitPath == "" {
		c.Service.SubmitPath = DefaultSubmitPath
	}
	if c.Service.ResultPath == "" {
		c.Service.ResultPath = DefaultResultPath
	}
	if c.Service.RequestTimeout == 0 {
		c.Service.RequestTimeout = DefaultRequestTimeout
	}

	if c.Polling.AttemptLimit == 0 {
		c.Polling.AttemptLimit = DefaultAttemptLimit
	}
	if c.Polling.Interval == 0 {
		c.Polling.Interval = DefaultPollInterval
	}

	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(DataDir(), "settings.db")
	}
	c.Storage.Path = expandHome(c.Storage.Path)
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultDriver
	}

	if len(c.Modes) == 0 {
		c.Modes = append([]string(nil), DefaultModes...)
	}

	if c.Relay.Addr == "" {
		c.Relay.Addr = DefaultRelayAddr
	}
	if c.Relay.AnswerDelay == 0 {
		c.Relay.AnswerDelay = DefaultAnswerDelay
	}
	if c.Relay.Tailscale.Enabled && c.Relay.Tailscale.StateDir == "" {
		c.Relay.Tailscale.StateDir = filepath.Join(DataDir(), "tsnet")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "warn"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	c.Logging.File = expandHome(c.Logging.File)
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Service.BaseURL)
	if err != nil {
		return fmt.Errorf("service.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("service.base_url must use http or https scheme")
	}

	for name, p := range map[string]string{
		"service.search_path": c.Service.SearchPath,
		"service.submit_path": c.Service.SubmitPath,
		"service.result_path": c.Service.ResultPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with /", name)
		}
	}

	if c.Service.MaxRequestsPerSecond < 0 {
		return fmt.Errorf("service.max_requests_per_second must not be negative")
	}
	if c.Service.RequestTimeout < 0 {
		return fmt.Errorf("service.request_timeout must not be negative")
	}

	if c.Polling.AttemptLimit < 0 {
		return fmt.Errorf("polling.attempt_limit must be positive")
	}
	if c.Polling.Interval < 0 {
		return fmt.Errorf("polling.interval must be positive")
	}

	if c.Storage.Driver != "sqlite" && c.Storage.Driver != "sqlite3" {
		return fmt.Errorf("storage.driver must be sqlite or sqlite3, got %q", c.Storage.Driver)
	}

	for i, mode := range c.Modes {
		if strings.TrimSpace(mode) == "" {
			return fmt.Errorf("modes[%d] is empty", i)
		}
	}

	for i, a := range c.Relay.Agents {
		if a.Name == "" || a.Address == "" {
			return fmt.Errorf("relay.agents[%d] requires name and address", i)
		}
	}

	if c.Relay.Tailscale.Enabled && c.Relay.Tailscale.Hostname == "" {
		return fmt.Errorf("relay.tailscale.hostname is required when tailscale is enabled")
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Service.RequestTimeoutRaw != "" {
		cfg.Service.RequestTimeout, err = time.ParseDuration(cfg.Service.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Service.RequestTimeoutRaw, err)
		}
	}

	if cfg.Polling.IntervalRaw != "" {
		cfg.Polling.Interval, err = time.ParseDuration(cfg.Polling.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing interval %q: %w", cfg.Polling.IntervalRaw, err)
		}
	}

	if cfg.Relay.AnswerDelayRaw != "" {
		cfg.Relay.AnswerDelay, err = time.ParseDuration(cfg.Relay.AnswerDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing answer_delay %q: %w", cfg.Relay.AnswerDelayRaw, err)
		}
	}

	return nil
}
