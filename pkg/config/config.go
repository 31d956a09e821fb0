// Package config loads the tool's TOML configuration. All settings
// have working defaults; a missing config file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/odvcencio/plumb/pkg/object"
)

// Duration wraps time.Duration so TOML values like "750ms" decode.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the tool configuration.
type Config struct {
	// DeltaDepthLimit bounds delta chain resolution.
	DeltaDepthLimit int `toml:"delta_depth_limit"`

	// Watcher selects the change detector: "fsnotify" or "poll".
	Watcher string `toml:"watcher"`

	// PollInterval is the re-snapshot interval for the poll watcher.
	PollInterval Duration `toml:"poll_interval"`

	// Color toggles ANSI accents in CLI output.
	Color bool `toml:"color"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DeltaDepthLimit: object.DefaultDeltaDepthLimit,
		Watcher:         "fsnotify",
		PollInterval:    Duration(2 * time.Second),
		Color:           true,
	}
}

// Load reads the first config file found: $PLUMB_CONFIG, then
// ~/.config/plumb/config.toml, then /etc/plumb/config.toml. No file
// at all yields the defaults.
func Load() (Config, error) {
	for _, path := range searchPaths() {
		if path == "" {
			continue
		}
		cfg, err := LoadFile(path)
		if err == nil {
			return cfg, nil
		}
		if !os.IsNotExist(err) {
			return Config{}, err
		}
	}
	return Default(), nil
}

// LoadFile decodes one TOML file over the defaults.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DeltaDepthLimit <= 0 {
		return fmt.Errorf("delta_depth_limit must be positive, got %d", c.DeltaDepthLimit)
	}
	switch c.Watcher {
	case "fsnotify", "poll":
	default:
		return fmt.Errorf("watcher must be \"fsnotify\" or \"poll\", got %q", c.Watcher)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	return nil
}

func searchPaths() []string {
	paths := []string{os.Getenv("PLUMB_CONFIG")}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "plumb", "config.toml"))
	}
	return append(paths, filepath.Join("/etc", "plumb", "config.toml"))
}
