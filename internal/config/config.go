package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// FeedConfig describes a single calendar feed subscription and the note
// folder it synchronizes into.
type FeedConfig struct {
	// ID is an internal identifier used for scheduling, logging and the
	// manual-trigger API. Filled with a random UUID when missing.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label; it is also written into each
	// managed note's metadata as the source name.
	Name string `yaml:"name" json:"name"`
	// URL is the ICS endpoint.
	URL string `yaml:"url" json:"url"`
	// Folder is the note folder, relative to the vault root, that synced
	// notes are written into.
	Folder string `yaml:"folder" json:"folder"`
	// Color is an opaque tag written into note metadata for the host UI.
	Color string `yaml:"color" json:"color"`

	// SyncOnStart triggers one immediate run when the scheduler starts.
	SyncOnStart bool `yaml:"sync_on_start" json:"sync_on_start"`
	// SyncIntervalMinutes is the periodic sync interval. 0 means the feed
	// is only synced by manual trigger.
	SyncIntervalMinutes int `yaml:"sync_interval_minutes" json:"sync_interval_minutes"`
	// Enabled gates the feed entirely; disabled feeds are never synced.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// LastSync is updated by the caller after a successful run.
	LastSync string `yaml:"last_sync,omitempty" json:"last_sync,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the status/trigger API.
	Listen string `yaml:"listen" json:"listen"`

	// Vault is the root directory of the note store. Feed folders are
	// resolved relative to it.
	Vault string `yaml:"vault" json:"vault"`

	// LogLevel is one of debug/info/warn/error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Feeds is the list of subscribed calendar feeds.
	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:    "127.0.0.1:8099",
		Vault:     "./vault",
		LogLevel:  "info",
		Feeds:     []FeedConfig{},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8099"
	}
	if c.Vault == "" {
		c.Vault = "./vault"
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = "info"
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	for i := range c.Feeds {
		f := &c.Feeds[i]
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if f.Name == "" {
			f.Name = f.ID
		}
		if f.Folder == "" {
			f.Folder = f.Name
		}
		if f.SyncIntervalMinutes < 0 {
			f.SyncIntervalMinutes = 0
		}
	}
}

// FeedByID returns the feed with the given ID, or nil.
func (c *Config) FeedByID(id string) *FeedConfig {
	for i := range c.Feeds {
		if c.Feeds[i].ID == id {
			return &c.Feeds[i]
		}
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: create parent directory if needed, write
//     a default config with 0600 perms, and return the default config.
//   - If the file exists: read YAML, unmarshal, normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
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

// Save writes the given configuration to the specified path.
//
// The write is atomic: temp file in the same directory, fsync, chmod 0600,
// rename over the target.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
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

	tmp, err := os.CreateTemp(dir, ".icsnotes-config-*.tmp")
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

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
