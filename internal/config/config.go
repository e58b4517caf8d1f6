// Package config loads client configuration from file, environment,
// and defaults.
//
// Precedence: explicit file > ~/.taskpilot/config.yaml > TP_* environment
// variables > built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// SyncConfig tunes the replay loop and its wake sources.
type SyncConfig struct {
	// BackoffBase is the delay after the first failed attempt.
	BackoffBase time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	// BackoffMax caps the exponential schedule.
	BackoffMax time.Duration `mapstructure:"backoff_max" yaml:"backoff_max"`
	// MaxAttempts is the retry ceiling before an entry is dead-lettered.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	// ProbeInterval is how often the connectivity trigger pings the gateway.
	ProbeInterval time.Duration `mapstructure:"probe_interval" yaml:"probe_interval"`
	// TickInterval is the coarse periodic replay backstop.
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	// WakeListenAddr is where the companion-process wake socket listens.
	// Empty disables the wake socket.
	WakeListenAddr string `mapstructure:"wake_listen_addr" yaml:"wake_listen_addr"`
}

// Config is the full client configuration.
type Config struct {
	// ServerURL is the base URL of the remote task gateway.
	ServerURL string `mapstructure:"server_url" yaml:"server_url"`
	// AuthToken is sent as a bearer token. Session management itself is
	// outside this client.
	AuthToken string `mapstructure:"auth_token" yaml:"auth_token"`
	// DataDir holds the local database.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
	// LogFile, if set, receives rotated daemon logs in addition to stderr.
	LogFile string `mapstructure:"log_file" yaml:"log_file"`
	// DevMode enables the local-development transient-error heuristic.
	DevMode bool `mapstructure:"dev_mode" yaml:"dev_mode"`

	Sync SyncConfig `mapstructure:"sync" yaml:"sync"`
}

// Default returns the built-in defaults.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		ServerURL: "http://localhost:8080",
		DataDir:   filepath.Join(home, ".taskpilot"),
		Sync: SyncConfig{
			BackoffBase:   10 * time.Second,
			BackoffMax:    10 * time.Minute,
			MaxAttempts:   8,
			ProbeInterval: 30 * time.Second,
			TickInterval:  5 * time.Minute,
		},
	}
}

// Load reads configuration. If path is non-empty that file is required;
// otherwise ~/.taskpilot/config.yaml is used when present. TP_* environment
// variables override file values (e.g. TP_SERVER_URL, TP_SYNC_MAX_ATTEMPTS).
func Load(path string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("server_url", def.ServerURL)
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("sync.backoff_base", def.Sync.BackoffBase)
	v.SetDefault("sync.backoff_max", def.Sync.BackoffMax)
	v.SetDefault("sync.max_attempts", def.Sync.MaxAttempts)
	v.SetDefault("sync.probe_interval", def.Sync.ProbeInterval)
	v.SetDefault("sync.tick_interval", def.Sync.TickInterval)

	v.SetEnvPrefix("TP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".taskpilot"))
		}
		if err := v.ReadInConfig(); err != nil {
			// Missing default config is fine; anything else is not.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the values the engine depends on.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1 (got %d)", c.Sync.MaxAttempts)
	}
	if c.Sync.BackoffBase <= 0 {
		return fmt.Errorf("sync.backoff_base must be positive (got %v)", c.Sync.BackoffBase)
	}
	if c.Sync.BackoffMax < c.Sync.BackoffBase {
		return fmt.Errorf("sync.backoff_max (%v) must not be below sync.backoff_base (%v)",
			c.Sync.BackoffMax, c.Sync.BackoffBase)
	}
	return nil
}

// DBPath returns the location of the local database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "taskpilot.db")
}

// Dump renders the effective configuration as YAML, with the auth token
// masked.
func (c *Config) Dump() (string, error) {
	masked := *c
	if masked.AuthToken != "" {
		masked.AuthToken = "********"
	}

	data, err := yaml.Marshal(&masked)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}
