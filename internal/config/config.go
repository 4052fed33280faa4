package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.rentchat/config.toml.
type Config struct {
	DefaultSession string      `toml:"default_session"`
	Locale         string      `toml:"locale"`
	Identity       Identity    `toml:"identity"`
	Presence       Presence    `toml:"presence"`
	Profiles       Profiles    `toml:"profiles"`
	Collections    Collections `toml:"collections"`
	Storage        Storage     `toml:"storage"`
	Limits         Limits      `toml:"limits"`
}

// Identity is the viewer the clients act as.
type Identity struct {
	UserID        string `toml:"user_id"`
	Name          string `toml:"name"`
	Role          string `toml:"role"`
	EmailVerified bool   `toml:"email_verified"`
}

// Presence tunes online classification and the self heartbeat.
type Presence struct {
	OnlineWindow      Duration `toml:"online_window"`
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
}

// Profiles tunes the profile cache.
type Profiles struct {
	PollInterval Duration `toml:"poll_interval"`
	TickInterval Duration `toml:"tick_interval"`
	MaxParallel  int      `toml:"max_parallel"`
}

// Collections names the backing document collections.
type Collections struct {
	Conversations string `toml:"conversations"`
	Messages      string `toml:"messages"`
	Profiles      string `toml:"profiles"`
	AvatarBucket  string `toml:"avatar_bucket"`
}

// Storage selects where avatar files live. Backend is "local" or "s3".
type Storage struct {
	Backend         string   `toml:"backend"`
	LocalDir        string   `toml:"local_dir"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	Endpoint        string   `toml:"endpoint"`
	AccessKeyID     string   `toml:"access_key_id"`
	SecretAccessKey string   `toml:"secret_access_key"`
	URLTTL          Duration `toml:"url_ttl"`
}

// Limits caps daemon write traffic per connection.
type Limits struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// Duration is a time.Duration written as a string such as "75s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		Locale:         "en",
		Identity:       Identity{Role: "client"},
		Presence: Presence{
			OnlineWindow:      Duration{75 * time.Second},
			HeartbeatInterval: Duration{60 * time.Second},
		},
		Profiles: Profiles{
			PollInterval: Duration{30 * time.Second},
			TickInterval: Duration{15 * time.Second},
			MaxParallel:  8,
		},
		Collections: Collections{
			Conversations: "conversations",
			Messages:      "messages",
			Profiles:      "profiles",
			AvatarBucket:  "avatars",
		},
		Storage: Storage{
			Backend: "local",
			Region:  "us-east-1",
			URLTTL:  Duration{15 * time.Minute},
		},
		Limits: Limits{
			RequestsPerSecond: 50,
			Burst:             100,
		},
	}
}

// Load reads config from the given path on top of Default. Returns an error
// if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate reports the first setting that would make the binaries misbehave.
func (c *Config) Validate() error {
	if c.Presence.OnlineWindow.Duration <= 0 || c.Presence.HeartbeatInterval.Duration <= 0 {
		return errors.New("presence: online_window and heartbeat_interval must be positive")
	}
	if c.Presence.OnlineWindow.Duration <= c.Presence.HeartbeatInterval.Duration {
		return fmt.Errorf("presence: online_window %s must exceed heartbeat_interval %s",
			c.Presence.OnlineWindow, c.Presence.HeartbeatInterval)
	}
	if c.Profiles.PollInterval.Duration <= 0 || c.Profiles.TickInterval.Duration <= 0 {
		return errors.New("profiles: poll_interval and tick_interval must be positive")
	}
	if c.Profiles.MaxParallel < 1 {
		return errors.New("profiles: max_parallel must be at least 1")
	}
	for name, v := range map[string]string{
		"conversations": c.Collections.Conversations,
		"messages":      c.Collections.Messages,
		"profiles":      c.Collections.Profiles,
		"avatar_bucket": c.Collections.AvatarBucket,
	} {
		if v == "" || strings.ContainsAny(v, ". /") {
			return fmt.Errorf("collections: invalid %s name %q", name, v)
		}
	}
	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("storage: s3 backend requires bucket")
		}
		if (c.Storage.AccessKeyID == "") != (c.Storage.SecretAccessKey == "") {
			return errors.New("storage: access_key_id and secret_access_key must be set together")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	if c.Storage.URLTTL.Duration <= 0 {
		return errors.New("storage: url_ttl must be positive")
	}
	if c.Limits.RequestsPerSecond <= 0 || c.Limits.Burst < 1 {
		return errors.New("limits: requests_per_second and burst must be positive")
	}
	if c.Identity.Role == "" {
		return errors.New("identity: role is required")
	}
	return nil
}
