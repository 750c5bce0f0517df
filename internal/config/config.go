// Package config holds the YAML configuration used by serve mode.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"postgang/internal/postal"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the calendar
// endpoints.
type BasicAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Config is the top-level serve-mode configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// Refresh is a cron expression controlling how often delivery dates
	// are refetched. Bring publishes new dates once a day, so the
	// default refreshes every morning.
	Refresh string `yaml:"refresh"`

	// Codes lists the postal codes to serve calendars for.
	Codes []string `yaml:"codes"`

	// APIUID and APIKey are the Mybring API credentials. The environment
	// variables POSTGANG_API_UID and POSTGANG_API_KEY take precedence
	// over values given here.
	APIUID string `yaml:"api_uid"`
	APIKey string `yaml:"api_key"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:  "127.0.0.1:8080",
		Refresh: "0 5 * * *",
		Codes:   []string{},
	}
}

// Normalize fills missing values with defaults so partially filled
// configs still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Refresh == "" {
		c.Refresh = "0 5 * * *"
	}
	if c.Codes == nil {
		c.Codes = []string{}
	}
}

// Validate checks the parts of the config that cannot be defaulted.
func (c *Config) Validate() error {
	if len(c.Codes) == 0 {
		return errors.New("config: no postal codes configured")
	}
	for _, raw := range c.Codes {
		if _, err := postal.ParseCode(raw); err != nil {
			return err
		}
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (0600,
// parent directory created as needed) and returned, so a first run
// leaves an editable template behind.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config: path is empty")
	}
	if cfg == nil {
		return errors.New("config: config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".postgang-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
