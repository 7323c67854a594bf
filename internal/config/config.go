// ABOUTME: Configuration loading and parsing for coven-librarian
// ABOUTME: Reads YAML or TOML by file extension with env var expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied to unset fields.
const (
	DefaultMaxDepth      = 10
	DefaultAffinityTTL   = 1440 * time.Hour
	DefaultSweepInterval = 10 * time.Minute
	DefaultWorkers       = 4
	DefaultBufferSize    = 1000
	DefaultSSHTimeout    = 15 * time.Second
	DefaultHTTPTimeout   = 30 * time.Second
	DefaultLLMTimeout    = 2 * time.Minute
	DefaultSearchLimit   = 10
	DefaultLLMBaseURL    = "https://api.openai.com/v1"
)

// Config represents the complete coven-librarian configuration
type Config struct {
	Matrix     MatrixConfig     `yaml:"matrix" toml:"matrix"`
	SSH        SSHConfig        `yaml:"ssh" toml:"ssh"`
	Library    LibraryConfig    `yaml:"library" toml:"library"`
	Downloads  DownloadsConfig  `yaml:"downloads" toml:"downloads"`
	LLM        LLMConfig        `yaml:"llm" toml:"llm"`
	Agents     AgentsConfig     `yaml:"agents" toml:"agents"`
	Dispatcher DispatcherConfig `yaml:"dispatcher" toml:"dispatcher"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// MatrixConfig holds the chat account the librarian listens as.
// Either access_token or username and password must be set.
type MatrixConfig struct {
	Homeserver   string   `yaml:"homeserver" toml:"homeserver"`
	UserID       string   `yaml:"user_id" toml:"user_id"`
	AccessToken  string   `yaml:"access_token" toml:"access_token"`
	Username     string   `yaml:"username" toml:"username"`
	Password     string   `yaml:"password" toml:"password"`
	AllowedRooms []string `yaml:"allowed_rooms" toml:"allowed_rooms"`
}

// SSHConfig holds the remote host the library lives on
type SSHConfig struct {
	Host                  string        `yaml:"host" toml:"host"`
	User                  string        `yaml:"user" toml:"user"`
	Password              string        `yaml:"password" toml:"password"`
	PrivateKeyPath        string        `yaml:"private_key_path" toml:"private_key_path"`
	PrivateKeyPassphrase  string        `yaml:"private_key_passphrase" toml:"private_key_passphrase"`
	KnownHostsPath        string        `yaml:"known_hosts_path" toml:"known_hosts_path"`
	InsecureIgnoreHostKey bool          `yaml:"insecure_ignore_host_key" toml:"insecure_ignore_host_key"`
	Timeout               time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw            string        `yaml:"timeout" toml:"timeout"`
}

// LibraryConfig holds the remote library root
type LibraryConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// DownloadsConfig holds the download manager and indexer settings
type DownloadsConfig struct {
	BasePath     string             `yaml:"base_path" toml:"base_path"`
	SearchLimit  int                `yaml:"search_limit" toml:"search_limit"`
	Transmission TransmissionConfig `yaml:"transmission" toml:"transmission"`
	Jackett      JackettConfig      `yaml:"jackett" toml:"jackett"`
}

// TransmissionConfig holds the Transmission RPC endpoint
type TransmissionConfig struct {
	URL        string        `yaml:"url" toml:"url"`
	Username   string        `yaml:"username" toml:"username"`
	Password   string        `yaml:"password" toml:"password"`
	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// JackettConfig holds the optional Jackett endpoint. Search is disabled
// when URL is empty.
type JackettConfig struct {
	URL        string        `yaml:"url" toml:"url"`
	APIKey     string        `yaml:"api_key" toml:"api_key"`
	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// LLMConfig holds the completion endpoint
type LLMConfig struct {
	BaseURL      string        `yaml:"base_url" toml:"base_url"`
	APIKey       string        `yaml:"api_key" toml:"api_key"`
	Model        string        `yaml:"model" toml:"model"`
	MaxTokens    int           `yaml:"max_tokens" toml:"max_tokens"`
	Temperature  *float64      `yaml:"temperature" toml:"temperature"`
	SystemPrompt string        `yaml:"system_prompt" toml:"system_prompt"`
	Timeout      time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw   string        `yaml:"timeout" toml:"timeout"`
}

// AgentsConfig holds agent depth and thread affinity settings
type AgentsConfig struct {
	MaxDepth      int           `yaml:"max_depth" toml:"max_depth"`
	MaxEntries    int           `yaml:"max_entries" toml:"max_entries"`
	AffinityTTL   time.Duration `yaml:"-" toml:"-"`
	SweepInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	AffinityTTLRaw   string `yaml:"affinity_ttl" toml:"affinity_ttl"`
	SweepIntervalRaw string `yaml:"sweep_interval" toml:"sweep_interval"`
}

// DispatcherConfig holds the work queue settings
type DispatcherConfig struct {
	Workers    int `yaml:"workers" toml:"workers"`
	BufferSize int `yaml:"buffer_size" toml:"buffer_size"`
}

// DatabaseConfig holds the turn ledger location. An empty path disables it.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(expandEnvVars(string(data)), formatOf(path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Parse decodes an already expanded document, applies defaults and validates it.
func Parse(doc string, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(doc, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(doc), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()
	cfg.SSH.PrivateKeyPath = expandHome(cfg.SSH.PrivateKeyPath)
	cfg.SSH.KnownHostsPath = expandHome(cfg.SSH.KnownHostsPath)
	cfg.Database.Path = expandHome(cfg.Database.Path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
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

// expandHome resolves a leading ~/ in local file paths.
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

func (c *Config) applyDefaults() {
	if c.SSH.Timeout == 0 {
		c.SSH.Timeout = DefaultSSHTimeout
	}
	if c.Downloads.Transmission.Timeout == 0 {
		c.Downloads.Transmission.Timeout = DefaultHTTPTimeout
	}
	if c.Downloads.Jackett.Timeout == 0 {
		c.Downloads.Jackett.Timeout = DefaultHTTPTimeout
	}
	if c.Downloads.SearchLimit == 0 {
		c.Downloads.SearchLimit = DefaultSearchLimit
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = DefaultLLMBaseURL
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = DefaultLLMTimeout
	}
	if c.Agents.MaxDepth == 0 {
		c.Agents.MaxDepth = DefaultMaxDepth
	}
	if c.Agents.AffinityTTL == 0 {
		c.Agents.AffinityTTL = DefaultAffinityTTL
	}
	if c.Agents.SweepInterval == 0 {
		c.Agents.SweepInterval = DefaultSweepInterval
	}
	if c.Dispatcher.Workers == 0 {
		c.Dispatcher.Workers = DefaultWorkers
	}
	if c.Dispatcher.BufferSize == 0 {
		c.Dispatcher.BufferSize = DefaultBufferSize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	if err := validateHTTPURL("matrix.homeserver", c.Matrix.Homeserver); err != nil {
		return err
	}
	if c.Matrix.AccessToken != "" {
		if c.Matrix.UserID == "" {
			return fmt.Errorf("matrix.user_id is required with matrix.access_token")
		}
	} else if c.Matrix.Username == "" || c.Matrix.Password == "" {
		return fmt.Errorf("matrix.access_token or matrix.username and matrix.password are required")
	}

	if c.SSH.Host == "" {
		return fmt.Errorf("ssh.host is required")
	}
	if c.SSH.User == "" {
		return fmt.Errorf("ssh.user is required")
	}
	if c.SSH.Password == "" && c.SSH.PrivateKeyPath == "" {
		return fmt.Errorf("ssh.password or ssh.private_key_path is required")
	}

	if err := validateRemoteDir("library.path", c.Library.Path); err != nil {
		return err
	}
	if err := validateRemoteDir("downloads.base_path", c.Downloads.BasePath); err != nil {
		return err
	}

	if c.Downloads.Transmission.URL == "" {
		return fmt.Errorf("downloads.transmission.url is required")
	}
	if err := validateHTTPURL("downloads.transmission.url", c.Downloads.Transmission.URL); err != nil {
		return err
	}
	if c.Downloads.Jackett.URL != "" {
		if err := validateHTTPURL("downloads.jackett.url", c.Downloads.Jackett.URL); err != nil {
			return err
		}
		if c.Downloads.Jackett.APIKey == "" {
			return fmt.Errorf("downloads.jackett.api_key is required with downloads.jackett.url")
		}
	}
	if c.Downloads.SearchLimit < 0 {
		return fmt.Errorf("downloads.search_limit must not be negative")
	}

	if err := validateHTTPURL("llm.base_url", c.LLM.BaseURL); err != nil {
		return err
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}

	if c.Agents.MaxDepth < 1 {
		return fmt.Errorf("agents.max_depth must be at least 1")
	}
	if c.Agents.MaxEntries < 0 {
		return fmt.Errorf("agents.max_entries must not be negative")
	}
	if c.Agents.AffinityTTL < 0 {
		return fmt.Errorf("agents.affinity_ttl must be positive")
	}
	if c.Agents.SweepInterval < 0 {
		return fmt.Errorf("agents.sweep_interval must be positive")
	}

	if c.Dispatcher.Workers < 1 {
		return fmt.Errorf("dispatcher.workers must be at least 1")
	}
	if c.Dispatcher.BufferSize < 1 {
		return fmt.Errorf("dispatcher.buffer_size must be at least 1")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}

	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	return nil
}

// Remote paths are POSIX regardless of the local OS.
func validateRemoteDir(field, p string) error {
	if p == "" {
		return fmt.Errorf("%s is required", field)
	}
	if !path.IsAbs(p) {
		return fmt.Errorf("%s must be an absolute path", field)
	}
	if path.Clean(p) == "/" {
		return fmt.Errorf("%s must not be the filesystem root", field)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"ssh.timeout", cfg.SSH.TimeoutRaw, &cfg.SSH.Timeout},
		{"downloads.transmission.timeout", cfg.Downloads.Transmission.TimeoutRaw, &cfg.Downloads.Transmission.Timeout},
		{"downloads.jackett.timeout", cfg.Downloads.Jackett.TimeoutRaw, &cfg.Downloads.Jackett.Timeout},
		{"llm.timeout", cfg.LLM.TimeoutRaw, &cfg.LLM.Timeout},
		{"agents.affinity_ttl", cfg.Agents.AffinityTTLRaw, &cfg.Agents.AffinityTTL},
		{"agents.sweep_interval", cfg.Agents.SweepIntervalRaw, &cfg.Agents.SweepInterval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// DefaultPath returns the config file location.
// Priority: COVEN_LIBRARIAN_CONFIG env var > XDG_CONFIG_HOME/coven/librarian.yaml > ~/.config/coven/librarian.yaml
func DefaultPath() string {
	if p := os.Getenv("COVEN_LIBRARIAN_CONFIG"); p != "" {
		return p
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "librarian.yaml"
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "coven", "librarian.yaml")
}
