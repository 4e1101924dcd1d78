// Package config loads the process configuration.
//
// Every component receives its collaborators by construction; config is
// read once at startup in cmd/ and threaded down from there.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk YAML configuration.
type Config struct {
	// DBPath locates the SQLite event cache.
	DBPath string `yaml:"db_path"`

	// Relays are the relay URLs used for fetch and publish.
	Relays []string `yaml:"relays"`

	// SecretKey is a 64-hex Nostr secret key. Empty means no signer is
	// available: resolution and tracking still work, publishing fails
	// with a no-signer error.
	SecretKey string `yaml:"secret_key,omitempty"`

	// PublishTimeoutSeconds bounds confirmed-mode publish waits.
	PublishTimeoutSeconds int `yaml:"publish_timeout_seconds"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		DBPath:                "openlift.db",
		Relays:                []string{"wss://relay.damus.io", "wss://nos.lol"},
		PublishTimeoutSeconds: 10,
	}
}

// Load reads the YAML config at path. A missing file yields Default();
// a malformed file is an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if cfg.PublishTimeoutSeconds <= 0 {
		cfg.PublishTimeoutSeconds = Default().PublishTimeoutSeconds
	}
	return cfg, nil
}

// PublishTimeout returns the confirmed-publish timeout as a duration.
func (c Config) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutSeconds) * time.Second
}

// PrimaryRelay returns the relay URL used as the hint position in
// generated tags, empty when no relays are configured.
func (c Config) PrimaryRelay() string {
	if len(c.Relays) == 0 {
		return ""
	}
	return c.Relays[0]
}
