package jukeboxd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cutiefunny/musclecat/pkg/jukebox"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jukeboxd.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
broker = "mqtt://10.0.0.5:1883"
device_id = "counter-pi"
log_level = "debug"

[server.auth]
user = "jukebox"
pass = "secret"

[device]
legacy_merge = true
cache_path = "/var/cache/jukebox/audio.db"

[blobstore]
base_url = "http://10.0.0.5:9000"

[embedded_broker]
enabled = true
listen = "0.0.0.0:1883"
allow_anonymous = true
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Broker != "mqtt://10.0.0.5:1883" {
		t.Fatalf("broker %q", cfg.Server.Broker)
	}
	if cfg.Server.DeviceID != "counter-pi" {
		t.Fatalf("device id %q", cfg.Server.DeviceID)
	}
	if cfg.Server.Auth.User != "jukebox" || cfg.Server.Auth.Pass != "secret" {
		t.Fatalf("auth %+v", cfg.Server.Auth)
	}
	if !cfg.Device.LegacyMerge {
		t.Fatal("legacy_merge not read")
	}
	if cfg.Device.CachePath != "/var/cache/jukebox/audio.db" {
		t.Fatalf("cache path %q", cfg.Device.CachePath)
	}
	if !cfg.Embedded.Enabled || !cfg.Embedded.AllowAnonymous {
		t.Fatalf("embedded broker %+v", cfg.Embedded)
	}
	if cfg.Server.TopicBase != jukebox.BaseTopic {
		t.Fatalf("default topic base not applied: %q", cfg.Server.TopicBase)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.TopicBase != jukebox.BaseTopic {
		t.Fatalf("topic base default missing: %q", cfg.Server.TopicBase)
	}
	if cfg.Server.DeviceID == "" {
		t.Fatal("device id default missing")
	}
	if cfg.Device.CachePath == "" {
		t.Fatal("cache path default missing")
	}
	if cfg.Device.LegacyMerge {
		t.Fatal("legacy merge must default off")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(""); err == nil {
		t.Fatal("empty path must error")
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("missing file must error")
	}
	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Fatal("directory must error")
	}
}
