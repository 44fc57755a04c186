package internal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultAPIURL is the backend address used when nothing else is configured
const DefaultAPIURL = "http://localhost:8001"

// Config holds hubctl settings loaded from file, environment and flags
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Session SessionConfig `mapstructure:"session"`
	Log     LogConfig     `mapstructure:"log"`
	Output  OutputConfig  `mapstructure:"output"`
}

// APIConfig describes how to reach the backend
type APIConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SessionConfig tunes the discovery session controller
type SessionConfig struct {
	MaxEvents   int           `mapstructure:"max_events"`
	Watchdog    time.Duration `mapstructure:"watchdog"` // 0 disables
	SearchLimit int           `mapstructure:"search_limit"`
	View        string        `mapstructure:"view"` // sent as chat context
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// OutputConfig configures terminal rendering
type OutputConfig struct {
	Style string `mapstructure:"style"` // glamour style name
}

// DefaultConfigPath returns $HOME/.hubctl.yaml, or "" if the home directory is unknown
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".hubctl.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.url", DefaultAPIURL)
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("session.max_events", 50)
	v.SetDefault("session.watchdog", "2m")
	v.SetDefault("session.search_limit", 5)
	v.SetDefault("session.view", "dashboard")
	v.SetDefault("log.level", "info")
	v.SetDefault("output.style", "dark")
}

// LoadConfig loads configuration. An explicit path must exist; an empty path
// falls back to DefaultConfigPath when that file is present.
// Environment variables use the HUBCTL_ prefix (HUBCTL_API_URL, HUBCTL_SESSION_WATCHDOG, ...).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("HUBCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if def := DefaultConfigPath(); def != "" {
			if _, err := os.Stat(def); err == nil {
				path = def
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &ConfigError{Key: path, Err: err}
		}
		LogDebug("Loaded config from %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{Key: "unmarshal", Err: err}
	}

	// The dashboard read its backend address from NEXT_PUBLIC_API_URL; honour it
	// when nothing more specific was configured.
	if cfg.API.URL == DefaultAPIURL {
		if u := os.Getenv("NEXT_PUBLIC_API_URL"); u != "" {
			cfg.API.URL = u
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks for values that cannot work
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.URL) == "" {
		return &ConfigError{Key: "api.url", Err: errors.New("must not be empty")}
	}
	if c.Session.MaxEvents <= 0 {
		return &ConfigError{Key: "session.max_events", Err: errors.New("must be positive")}
	}
	if c.Session.Watchdog < 0 {
		return &ConfigError{Key: "session.watchdog", Err: errors.New("must not be negative")}
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return &ConfigError{Key: "log.level", Err: err}
	}
	return nil
}
