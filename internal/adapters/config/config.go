package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvSpotifyToken overrides the configured Spotify access token.
const EnvSpotifyToken = "NP_SPOTIFY_TOKEN"

// Config holds CLI configuration from config.toml.
type Config struct {
	Broker      string  `toml:"broker"`
	Identity    string  `toml:"identity"`
	TopicBase   string  `toml:"topic_base"`
	HistoryPath string  `toml:"history_path"`
	TimeoutMS   int64   `toml:"timeout_ms"`
	SettleMS    *int64  `toml:"settle_ms"`
	Spotify     Spotify `toml:"spotify"`
	Nodes       Nodes   `toml:"nodes"`
}

// Spotify configures the Spotify Web API client.
type Spotify struct {
	BaseURL           string  `toml:"base_url"`
	AccessToken       string  `toml:"access_token"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// Nodes overrides the node ids of the query services.
type Nodes struct {
	PlayCount string `toml:"playcount"`
	Tempo     string `toml:"tempo"`
	TopItems  string `toml:"top_items"`
}

// Load loads config.toml if present. Missing file returns an empty config.
func Load() (Config, error) {
	path, err := configPath()
	if err != nil {
		return Config{}, err
	}
	return LoadFrom(path)
}

// LoadFrom loads a config file. Missing file returns an empty config.
func LoadFrom(path string) (Config, error) {
	var cfg Config
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	} else {
		if info.IsDir() {
			return Config{}, errors.New("config path is a directory")
		}
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if token := strings.TrimSpace(os.Getenv(EnvSpotifyToken)); token != "" {
		cfg.Spotify.AccessToken = token
	}
	return cfg, nil
}

func configPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "np", "config.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "np", "config.toml"), nil
}
