package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	t.Setenv(EnvSpotifyToken, "")
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Broker != "" || cfg.SettleMS != nil {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv(EnvSpotifyToken, "")
	path := filepath.Join(t.TempDir(), "config.toml")
	data := []byte("" +
		"broker = \"mqtt://localhost:1883\"\n" +
		"identity = \"laptop\"\n" +
		"history_path = \"/var/lib/np/history.log\"\n" +
		"settle_ms = 0\n" +
		"\n" +
		"[spotify]\n" +
		"access_token = \"abc\"\n" +
		"\n" +
		"[nodes]\n" +
		"tempo = \"tempo-2\"\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Broker != "mqtt://localhost:1883" || cfg.Identity != "laptop" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.SettleMS == nil || *cfg.SettleMS != 0 {
		t.Fatalf("expected explicit zero settle")
	}
	if cfg.Spotify.AccessToken != "abc" || cfg.Nodes.Tempo != "tempo-2" {
		t.Fatalf("unexpected sections %+v %+v", cfg.Spotify, cfg.Nodes)
	}
}

func TestLoadTokenFromEnv(t *testing.T) {
	t.Setenv(EnvSpotifyToken, "env-token")
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Spotify.AccessToken != "env-token" {
		t.Fatalf("expected env token, got %q", cfg.Spotify.AccessToken)
	}
}

func TestLoadUsesXDGConfigHome(t *testing.T) {
	t.Setenv(EnvSpotifyToken, "")
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if err := os.MkdirAll(filepath.Join(dir, "np"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "np", "config.toml"), []byte("identity = \"xdg\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Identity != "xdg" {
		t.Fatalf("expected identity from XDG config, got %q", cfg.Identity)
	}
}
