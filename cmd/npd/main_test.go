package main

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	embeddedmqtt "github.com/mikey-austin/nowplaying/internal/modules/embedded_mqtt"
	"github.com/mikey-austin/nowplaying/internal/npd"
	"github.com/mikey-austin/nowplaying/internal/ports"
	"github.com/mikey-austin/nowplaying/pkg/np"
)

type nopBus struct{}

func (nopBus) Publish(string, byte, bool, []byte) error           { return nil }
func (nopBus) Subscribe(string, byte, ports.MessageHandler) error { return nil }
func (nopBus) Unsubscribe(string) error                           { return nil }

func testConfig(t *testing.T) npd.Config {
	t.Helper()
	cfg := npd.Config{}
	cfg.Server.TopicBase = np.BaseTopic
	cfg.Modules.HistoryLogger.Enabled = true
	cfg.Modules.HistoryLogger.HistoryPath = filepath.Join(t.TempDir(), "history.log")
	cfg.Modules.PlayCount.Enabled = true
	cfg.Modules.Tempo.Enabled = true
	cfg.Modules.TopItems.Enabled = true
	return cfg
}

func TestBuildModulesModuleOnlyFilter(t *testing.T) {
	cfg := testConfig(t)
	logger := zap.NewNop()

	modules, err := buildModules(cfg, nopBus{}, nil, logger, "tempo")
	if err != nil {
		t.Fatalf("buildModules: %v", err)
	}
	if len(modules) != 1 || modules[0].Name != "tempo" {
		t.Fatalf("expected only tempo, got %+v", modules)
	}

	if _, err := buildModules(cfg, nopBus{}, nil, logger, "admin_http"); err == nil {
		t.Fatalf("expected error for filtered module")
	}
}

func TestBuildModulesAll(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modules.AdminHTTP.Enabled = true
	modules, err := buildModules(cfg, nopBus{}, nil, zap.NewNop(), "")
	if err != nil {
		t.Fatalf("buildModules: %v", err)
	}
	want := []string{"history_logger", "playcount", "tempo", "top_items", "admin_http"}
	if len(modules) != len(want) {
		t.Fatalf("expected %d modules got %d", len(want), len(modules))
	}
	for i, name := range want {
		if modules[i].Name != name {
			t.Fatalf("module %d: expected %s got %s", i, name, modules[i].Name)
		}
	}
}

func TestBuildModulesIncludesEmbeddedBroker(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modules.EmbeddedMQTT.Enabled = true
	cfg.Modules.EmbeddedMQTT.AllowAnonymous = true
	broker, err := newEmbeddedBroker(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("embedded broker: %v", err)
	}
	modules, err := buildModules(cfg, broker.Bus(), broker, zap.NewNop(), "")
	if err != nil {
		t.Fatalf("buildModules: %v", err)
	}
	if modules[0].Name != "embedded_mqtt" {
		t.Fatalf("expected broker first, got %s", modules[0].Name)
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := npd.Config{}
	cfg.Modules.EmbeddedMQTT.Enabled = true
	applyOverrides(&cfg, "", "", "", "debug", "", "", false, true, false)

	if cfg.Server.Broker != embeddedmqtt.BrokerURL(embeddedmqtt.DefaultListen, false) {
		t.Fatalf("expected embedded broker url, got %s", cfg.Server.Broker)
	}
	if cfg.Server.TopicBase != np.BaseTopic || cfg.Server.Identity != "npd" {
		t.Fatalf("expected defaults, got %+v", cfg.Server)
	}
	if cfg.Server.LogLevel != "debug" || !cfg.Server.LogUTC {
		t.Fatalf("expected log overrides")
	}
	if !runsEmbeddedBroker(cfg, "") {
		t.Fatalf("expected in-process broker")
	}

	applyOverrides(&cfg, "tcp://elsewhere:1883", "", "", "", "", "", false, false, false)
	if runsEmbeddedBroker(cfg, "") {
		t.Fatalf("remote broker should not use the inline bus")
	}
	if !runsEmbeddedBroker(cfg, "embedded_mqtt") {
		t.Fatalf("embedded-only runs should host the broker")
	}
}

func TestApplyOverridesEmbeddedBrokerURL(t *testing.T) {
	tests := []struct {
		listen string
		cert   string
		want   string
	}{
		{"", "", "mqtt://" + embeddedmqtt.DefaultListen},
		{"0.0.0.0:1884", "", "mqtt://0.0.0.0:1884"},
		{"0.0.0.0:8883", "/etc/np/cert.pem", "mqtts://0.0.0.0:8883"},
	}
	for _, test := range tests {
		cfg := npd.Config{}
		cfg.Modules.EmbeddedMQTT.Enabled = true
		cfg.Modules.EmbeddedMQTT.Listen = test.listen
		cfg.Modules.EmbeddedMQTT.TLSCert = test.cert
		applyOverrides(&cfg, "", "", "", "", "", "", false, false, false)
		if cfg.Server.Broker != test.want {
			t.Fatalf("listen %q: expected %s got %s", test.listen, test.want, cfg.Server.Broker)
		}
		if !runsEmbeddedBroker(cfg, "") {
			t.Fatalf("listen %q: expected in-process broker", test.listen)
		}
	}
}

func TestHistoryPathFallback(t *testing.T) {
	if historyPath("a", "b") != "a" || historyPath("", "b") != "b" || historyPath("", "") != "history.log" {
		t.Fatalf("unexpected history path resolution")
	}
}
