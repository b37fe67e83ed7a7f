package npd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvSpotifyToken overrides the configured Spotify access token.
const EnvSpotifyToken = "NP_SPOTIFY_TOKEN"

// Config is the top-level configuration for npd.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Modules ModulesConfig `toml:"modules"`
	Spotify SpotifyConfig `toml:"spotify"`
}

// ServerConfig defines shared server settings.
type ServerConfig struct {
	Broker    string     `toml:"broker"`
	Identity  string     `toml:"identity"`
	TopicBase string     `toml:"topic_base"`
	LogLevel  string     `toml:"log_level"`
	LogFormat string     `toml:"log_format"`
	LogOutput string     `toml:"log_output"`
	LogSource bool       `toml:"log_source"`
	LogUTC    bool       `toml:"log_utc"`
	LogColor  bool       `toml:"log_color"`
	TLS       TLSConfig  `toml:"tls"`
	Auth      AuthConfig `toml:"auth"`
}

// TLSConfig holds TLS paths for MQTT.
type TLSConfig struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// AuthConfig holds MQTT auth credentials.
type AuthConfig struct {
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// ModulesConfig holds module configurations.
type ModulesConfig struct {
	EmbeddedMQTT  EmbeddedMQTTConfig  `toml:"embedded_mqtt"`
	HistoryLogger HistoryLoggerConfig `toml:"history_logger"`
	PlayCount     PlayCountConfig     `toml:"playcount"`
	Tempo         TempoConfig         `toml:"tempo"`
	TopItems      TopItemsConfig      `toml:"top_items"`
	AdminHTTP     AdminHTTPConfig     `toml:"admin_http"`
}

// EmbeddedMQTTConfig configures the embedded MQTT broker.
type EmbeddedMQTTConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLSCA          string `toml:"tls_ca"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
}

// HistoryLoggerConfig configures the history logger.
type HistoryLoggerConfig struct {
	Enabled     bool   `toml:"enabled"`
	NodeID      string `toml:"node_id"`
	HistoryPath string `toml:"history_path"`
	QueueSize   int    `toml:"queue_size"`
}

// PlayCountConfig configures the play-count service.
type PlayCountConfig struct {
	Enabled     bool   `toml:"enabled"`
	NodeID      string `toml:"node_id"`
	HistoryPath string `toml:"history_path"`
}

// TempoConfig configures the tempo service.
type TempoConfig struct {
	Enabled bool   `toml:"enabled"`
	NodeID  string `toml:"node_id"`
}

// TopItemsConfig configures the top-items service.
type TopItemsConfig struct {
	Enabled          bool   `toml:"enabled"`
	NodeID           string `toml:"node_id"`
	TimeRange        string `toml:"time_range"`
	TimeoutMS        int64  `toml:"timeout_ms"`
	FailureThreshold uint32 `toml:"failure_threshold"`
	OpenTimeoutMS    int64  `toml:"open_timeout_ms"`
}

// AdminHTTPConfig configures the metrics and health endpoint.
type AdminHTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// SpotifyConfig configures the Spotify Web API client.
type SpotifyConfig struct {
	BaseURL           string  `toml:"base_url"`
	AccessToken       string  `toml:"access_token"`
	TimeoutMS         int64   `toml:"timeout_ms"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
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
	ApplyEnv(&cfg)
	return cfg, nil
}

// ApplyEnv applies environment overrides.
func ApplyEnv(cfg *Config) {
	if token := strings.TrimSpace(os.Getenv(EnvSpotifyToken)); token != "" {
		cfg.Spotify.AccessToken = token
	}
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "np", "npd.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "np", "npd.toml"), nil
}
