package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Local role advertised by the adapter when an audio source endpoint is registered.
	audioSourceUUID = "0000110a-0000-1000-8000-00805f9b34fb"
	// Remote role driven on the follower.
	audioSinkUUID = "0000110b-0000-1000-8000-00805f9b34fb"
)

const (
	matchExact   = "exact"
	matchPattern = "pattern"

	operationProfile = "profile"
	operationDevice  = "device"
)

// Config is the daemon configuration, read from YAML.
type Config struct {
	Leader               string        `yaml:"leader"`
	Follower             string        `yaml:"follower"`
	FollowerMatch        string        `yaml:"follower_match"` // "exact" | "pattern"
	Adapter              string        `yaml:"adapter"`
	Operation            string        `yaml:"operation"` // "profile" | "device"
	Profile              string        `yaml:"profile"`
	DiscardStaleHandles  bool          `yaml:"discard_stale_handles"`
	AcquireTimeout       time.Duration `yaml:"acquire_timeout"`
	InvokeTimeout        time.Duration `yaml:"invoke_timeout"`
	DisableNotifications bool          `yaml:"disable_notifications"`
	MetricsAddr          string        `yaml:"metrics_addr"`
	Debug                bool          `yaml:"debug"`
}

func defaultConfig() Config {
	return Config{
		Leader:         "My Car",
		Follower:       "BT Audio",
		FollowerMatch:  matchExact,
		Adapter:        "hci0",
		Operation:      operationProfile,
		Profile:        audioSinkUUID,
		AcquireTimeout: 10 * time.Second,
		InvokeTimeout:  30 * time.Second,
	}
}

func configPath() string {
	if p := os.Getenv("STEREOWAKER_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "stereowaker", "config.yaml")
}

// loadConfig reads the config at path on top of the defaults. A missing file
// yields the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Leader == "" {
		return errors.New("leader is required")
	}
	if c.Follower == "" {
		return errors.New("follower is required")
	}
	switch c.FollowerMatch {
	case matchExact:
	case matchPattern:
		if _, err := regexp.Compile(c.Follower); err != nil {
			return fmt.Errorf("follower pattern: %w", err)
		}
	default:
		return fmt.Errorf("unknown follower_match %q", c.FollowerMatch)
	}
	if c.Operation != operationProfile && c.Operation != operationDevice {
		return fmt.Errorf("unknown operation %q", c.Operation)
	}
	if c.Operation == operationProfile && c.Profile == "" {
		return errors.New("profile is required for operation \"profile\"")
	}
	if c.Adapter == "" {
		return errors.New("adapter is required")
	}
	if c.AcquireTimeout <= 0 || c.InvokeTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	return nil
}
