package jukeboxd

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/cutiefunny/musclecat/pkg/jukebox"
)

// Config is the top-level configuration for jukeboxd.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Device   DeviceConfig   `toml:"device"`
	Blobs    BlobConfig     `toml:"blobstore"`
	Embedded EmbeddedConfig `toml:"embedded_broker"`
}

// ServerConfig defines shared connection and logging settings.
type ServerConfig struct {
	Broker    string     `toml:"broker"`
	DeviceID  string     `toml:"device_id"`
	TopicBase string     `toml:"topic_base"`
	LogLevel  string     `toml:"log_level"`
	LogFormat string     `toml:"log_format"`
	LogOutput string     `toml:"log_output"`
	TLS       TLSConfig  `toml:"tls"`
	Auth      AuthConfig `toml:"auth"`
}

// TLSConfig holds TLS paths for the broker connection.
type TLSConfig struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// AuthConfig holds broker credentials.
type AuthConfig struct {
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// DeviceConfig configures the playback device.
type DeviceConfig struct {
	// LegacyMerge folds the legacy song collection into branch 2's
	// list. Off by default; the legacy source is being phased out.
	LegacyMerge bool   `toml:"legacy_merge"`
	CachePath   string `toml:"cache_path"`
	StatePath   string `toml:"state_path"`
}

// BlobConfig configures the audio object host.
type BlobConfig struct {
	BaseURL string `toml:"base_url"`
}

// EmbeddedConfig configures the optional in-process broker.
type EmbeddedConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLSCA          string `toml:"tls_ca"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
}

// LoadConfig loads a config file from path.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.TopicBase == "" {
		c.Server.TopicBase = jukebox.BaseTopic
	}
	if c.Server.DeviceID == "" {
		if host, err := os.Hostname(); err == nil {
			c.Server.DeviceID = host
		} else {
			c.Server.DeviceID = "jukebox"
		}
	}
	if c.Device.CachePath == "" {
		c.Device.CachePath = defaultCachePath()
	}
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "musclecat", "jukeboxd.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "musclecat", "jukeboxd.toml"), nil
}

func defaultCachePath() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "musclecat", "audio.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "musclecat-audio.db")
	}
	return filepath.Join(home, ".cache", "musclecat", "audio.db")
}
