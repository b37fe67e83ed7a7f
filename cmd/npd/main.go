package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/nowplaying/internal/adapters/mqttbus"
	"github.com/mikey-austin/nowplaying/internal/adapters/spotify"
	"github.com/mikey-austin/nowplaying/internal/history"
	adminhttp "github.com/mikey-austin/nowplaying/internal/modules/admin_http"
	embeddedmqtt "github.com/mikey-austin/nowplaying/internal/modules/embedded_mqtt"
	historylogger "github.com/mikey-austin/nowplaying/internal/modules/history_logger"
	"github.com/mikey-austin/nowplaying/internal/modules/playcount"
	"github.com/mikey-austin/nowplaying/internal/modules/tempo"
	topitems "github.com/mikey-austin/nowplaying/internal/modules/top_items"
	"github.com/mikey-austin/nowplaying/internal/npd"
	"github.com/mikey-austin/nowplaying/internal/ports"
	"github.com/mikey-austin/nowplaying/pkg/np"
)

func main() {
	var (
		configPath  string
		broker      string
		identity    string
		topicBase   string
		logLevel    string
		logFormat   string
		logOutput   string
		logSource   bool
		logUTC      bool
		logColor    bool
		printConfig bool
		dryRun      bool
		moduleOnly  string
	)

	defaultConfig, err := npd.DefaultConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&configPath, "config", defaultConfig, "config file path")
	flag.StringVar(&broker, "broker", "", "MQTT broker URL override")
	flag.StringVar(&identity, "identity", "", "server identity override")
	flag.StringVar(&topicBase, "topic-base", "", "topic base override")
	flag.StringVar(&logLevel, "log-level", "", "log level override")
	flag.StringVar(&logFormat, "log-format", "", "log format override (text|json)")
	flag.StringVar(&logOutput, "log-output", "", "log output override (stdout|stderr)")
	flag.BoolVar(&logSource, "log-source", false, "include source file in logs")
	flag.BoolVar(&logUTC, "log-utc", false, "use UTC timestamps in logs")
	flag.BoolVar(&logColor, "log-color", false, "enable colored log output (text only)")
	flag.StringVar(&moduleOnly, "module", "", "limit to a single module")
	flag.BoolVar(&printConfig, "print-config", false, "print resolved config and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "validate config and exit")
	flag.Parse()

	cfg, err := npd.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyOverrides(&cfg, broker, identity, topicBase, logLevel, logFormat, logOutput, logSource, logUTC, logColor)

	if printConfig {
		printResolvedConfig(cfg)
		return
	}
	if dryRun {
		return
	}

	logger := npd.NewLogger(npd.LogConfig{
		Level:     cfg.Server.LogLevel,
		Format:    cfg.Server.LogFormat,
		Output:    cfg.Server.LogOutput,
		AddSource: cfg.Server.LogSource,
		UTC:       cfg.Server.LogUTC,
		Color:     cfg.Server.LogColor,
	})
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Server.Broker == "" {
		logger.Error("broker is required")
		os.Exit(1)
	}
	logger.Info("npd starting",
		zap.String("broker", cfg.Server.Broker),
		zap.String("identity", cfg.Server.Identity),
		zap.String("topic_base", cfg.Server.TopicBase),
		zap.String("log_level", cfg.Server.LogLevel),
		zap.String("log_format", cfg.Server.LogFormat),
		zap.Strings("modules", enabledModules(cfg)),
	)

	var (
		bus      ports.Bus
		embedded *embeddedmqtt.Module
	)
	if runsEmbeddedBroker(cfg, moduleOnly) {
		embedded, err = newEmbeddedBroker(cfg, logger)
		if err != nil {
			logger.Error("embedded mqtt failed", zap.Error(err))
			os.Exit(1)
		}
		bus = embedded.Bus()
	} else {
		remote, err := mqttbus.Connect(mqttbus.Options{
			BrokerURL: cfg.Server.Broker,
			ClientID:  fmt.Sprintf("npd-%d", time.Now().UnixNano()),
			Username:  cfg.Server.Auth.User,
			Password:  cfg.Server.Auth.Pass,
			TLSCA:     cfg.Server.TLS.CA,
			TLSCert:   cfg.Server.TLS.Cert,
			TLSKey:    cfg.Server.TLS.Key,
			Timeout:   2 * time.Second,
			Logger:    logger.With(zap.String("component", "mqtt")),
			Debug:     cfg.Server.LogLevel == "debug",
		})
		if err != nil {
			logger.Error("mqtt connection failed", zap.Error(err))
			os.Exit(1)
		}
		defer remote.Close()
		bus = remote
	}

	modules, err := buildModules(cfg, bus, embedded, logger, moduleOnly)
	if err != nil {
		logger.Error("failed to build modules", zap.Error(err))
		os.Exit(1)
	}

	supervisor := npd.Supervisor{Logger: logger}
	if err := supervisor.Run(ctx, modules); err != nil {
		logger.Error("supervisor error", zap.Error(err))
		os.Exit(1)
	}
}

func applyOverrides(cfg *npd.Config, broker string, identity string, topicBase string, logLevel string, logFormat string, logOutput string, logSource bool, logUTC bool, logColor bool) {
	if broker != "" {
		cfg.Server.Broker = broker
	}
	if identity != "" {
		cfg.Server.Identity = identity
	}
	if topicBase != "" {
		cfg.Server.TopicBase = topicBase
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Server.LogFormat = logFormat
	}
	if logOutput != "" {
		cfg.Server.LogOutput = logOutput
	}
	if logSource {
		cfg.Server.LogSource = true
	}
	if logUTC {
		cfg.Server.LogUTC = true
	}
	if logColor {
		cfg.Server.LogColor = true
	}
	if cfg.Server.Identity == "" {
		cfg.Server.Identity = "npd"
	}
	if cfg.Server.TopicBase == "" {
		cfg.Server.TopicBase = np.BaseTopic
	}
	if cfg.Server.Broker == "" && cfg.Modules.EmbeddedMQTT.Enabled {
		cfg.Server.Broker = embeddedBrokerURL(*cfg)
	}
}

// runsEmbeddedBroker reports whether this process hosts the broker that the
// other modules connect to, in which case they share its inline client.
func runsEmbeddedBroker(cfg npd.Config, moduleOnly string) bool {
	if !cfg.Modules.EmbeddedMQTT.Enabled {
		return false
	}
	if moduleOnly == "embedded_mqtt" {
		return true
	}
	return cfg.Server.Broker == embeddedBrokerURL(cfg)
}

func newEmbeddedBroker(cfg npd.Config, logger *zap.Logger) (*embeddedmqtt.Module, error) {
	return embeddedmqtt.NewModule(logger.With(zap.String("module", "embedded_mqtt")), embeddedmqtt.Config{
		Listen:         cfg.Modules.EmbeddedMQTT.Listen,
		AllowAnonymous: cfg.Modules.EmbeddedMQTT.AllowAnonymous,
		Username:       cfg.Modules.EmbeddedMQTT.Username,
		Password:       cfg.Modules.EmbeddedMQTT.Password,
		TLSCA:          cfg.Modules.EmbeddedMQTT.TLSCA,
		TLSCert:        cfg.Modules.EmbeddedMQTT.TLSCert,
		TLSKey:         cfg.Modules.EmbeddedMQTT.TLSKey,
	})
}

func buildModules(cfg npd.Config, bus ports.Bus, embedded *embeddedmqtt.Module, logger *zap.Logger, moduleOnly string) ([]npd.ModuleRunner, error) {
	modules := []npd.ModuleRunner{}
	wanted := func(name string) bool {
		return moduleOnly == "" || moduleOnly == name
	}

	if embedded != nil && wanted("embedded_mqtt") {
		modules = append(modules, npd.ModuleRunner{Name: "embedded_mqtt", Run: embedded.Run})
	}

	if cfg.Modules.HistoryLogger.Enabled && wanted("history_logger") {
		mod, err := historylogger.NewModule(logger.With(zap.String("module", "history_logger")), bus, historylogger.Config{
			NodeID:      cfg.Modules.HistoryLogger.NodeID,
			TopicBase:   cfg.Server.TopicBase,
			HistoryPath: historyPath(cfg.Modules.HistoryLogger.HistoryPath, ""),
			QueueSize:   cfg.Modules.HistoryLogger.QueueSize,
		})
		if err != nil {
			return nil, err
		}
		modules = append(modules, npd.ModuleRunner{Name: "history_logger", Run: mod.Run})
	}

	if cfg.Modules.PlayCount.Enabled && wanted("playcount") {
		mod, err := playcount.NewModule(logger.With(zap.String("module", "playcount")), bus, playcount.Config{
			NodeID:      cfg.Modules.PlayCount.NodeID,
			TopicBase:   cfg.Server.TopicBase,
			HistoryPath: historyPath(cfg.Modules.PlayCount.HistoryPath, cfg.Modules.HistoryLogger.HistoryPath),
		})
		if err != nil {
			return nil, err
		}
		modules = append(modules, npd.ModuleRunner{Name: "playcount", Run: mod.Run})
	}

	if cfg.Modules.Tempo.Enabled && wanted("tempo") {
		mod, err := tempo.NewModule(logger.With(zap.String("module", "tempo")), bus, nil, tempo.Config{
			NodeID:    cfg.Modules.Tempo.NodeID,
			TopicBase: cfg.Server.TopicBase,
		})
		if err != nil {
			return nil, err
		}
		modules = append(modules, npd.ModuleRunner{Name: "tempo", Run: mod.Run})
	}

	if cfg.Modules.TopItems.Enabled && wanted("top_items") {
		source := spotify.NewClient(spotify.Config{
			BaseURL:           cfg.Spotify.BaseURL,
			AccessToken:       cfg.Spotify.AccessToken,
			Timeout:           time.Duration(cfg.Spotify.TimeoutMS) * time.Millisecond,
			RequestsPerSecond: cfg.Spotify.RequestsPerSecond,
			Burst:             cfg.Spotify.Burst,
		})
		if cfg.Spotify.AccessToken == "" {
			logger.Warn("spotify access token not set; top_items will reply with errors", zap.String("env", npd.EnvSpotifyToken))
		}
		mod, err := topitems.NewModule(logger.With(zap.String("module", "top_items")), bus, source, topitems.Config{
			NodeID:           cfg.Modules.TopItems.NodeID,
			TopicBase:        cfg.Server.TopicBase,
			TimeRange:        cfg.Modules.TopItems.TimeRange,
			Timeout:          time.Duration(cfg.Modules.TopItems.TimeoutMS) * time.Millisecond,
			FailureThreshold: cfg.Modules.TopItems.FailureThreshold,
			OpenTimeout:      time.Duration(cfg.Modules.TopItems.OpenTimeoutMS) * time.Millisecond,
		})
		if err != nil {
			return nil, err
		}
		modules = append(modules, npd.ModuleRunner{Name: "top_items", Run: mod.Run})
	}

	if cfg.Modules.AdminHTTP.Enabled && wanted("admin_http") {
		mod, err := adminhttp.NewModule(logger.With(zap.String("module", "admin_http")), adminhttp.Config{
			Listen:   cfg.Modules.AdminHTTP.Listen,
			Identity: cfg.Server.Identity,
			Modules:  enabledModules(cfg),
		})
		if err != nil {
			return nil, err
		}
		modules = append(modules, npd.ModuleRunner{Name: "admin_http", Run: mod.Run})
	}

	if moduleOnly != "" && len(modules) == 0 {
		return nil, errors.New("no modules enabled")
	}
	return modules, nil
}

func historyPath(path string, fallback string) string {
	if path != "" {
		return path
	}
	if fallback != "" {
		return fallback
	}
	return history.DefaultPath
}

func enabledModules(cfg npd.Config) []string {
	out := []string{}
	if cfg.Modules.EmbeddedMQTT.Enabled {
		out = append(out, "embedded_mqtt")
	}
	if cfg.Modules.HistoryLogger.Enabled {
		out = append(out, "history_logger")
	}
	if cfg.Modules.PlayCount.Enabled {
		out = append(out, "playcount")
	}
	if cfg.Modules.Tempo.Enabled {
		out = append(out, "tempo")
	}
	if cfg.Modules.TopItems.Enabled {
		out = append(out, "top_items")
	}
	if cfg.Modules.AdminHTTP.Enabled {
		out = append(out, "admin_http")
	}
	return out
}

func printResolvedConfig(cfg npd.Config) {
	fmt.Fprintf(os.Stdout,
		"broker=%s identity=%s topic_base=%s log_level=%s log_format=%s log_output=%s log_source=%t log_utc=%t log_color=%t modules=%v\n",
		cfg.Server.Broker,
		cfg.Server.Identity,
		cfg.Server.TopicBase,
		cfg.Server.LogLevel,
		cfg.Server.LogFormat,
		cfg.Server.LogOutput,
		cfg.Server.LogSource,
		cfg.Server.LogUTC,
		cfg.Server.LogColor,
		enabledModules(cfg),
	)
}

func embeddedBrokerURL(cfg npd.Config) string {
	listen := cfg.Modules.EmbeddedMQTT.Listen
	if listen == "" {
		listen = embeddedmqtt.DefaultListen
	}
	tlsEnabled := cfg.Modules.EmbeddedMQTT.TLSCert != "" || cfg.Modules.EmbeddedMQTT.TLSKey != "" || cfg.Modules.EmbeddedMQTT.TLSCA != ""
	return embeddedmqtt.BrokerURL(listen, tlsEnabled)
}
