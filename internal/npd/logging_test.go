package npd

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		level     string
		debugOn   bool
		warnOn    bool
		errorOnly bool
	}{
		{"debug", true, true, false},
		{"", false, true, false},
		{"warn", false, true, false},
		{"error", false, false, true},
	}
	for _, test := range tests {
		logger := NewLogger(LogConfig{Level: test.level, Format: "json", Output: "stderr"})
		core := logger.Core()
		if core.Enabled(zapcore.DebugLevel) != test.debugOn {
			t.Fatalf("level %q: debug enabled=%t", test.level, core.Enabled(zapcore.DebugLevel))
		}
		if core.Enabled(zapcore.WarnLevel) != test.warnOn {
			t.Fatalf("level %q: warn enabled=%t", test.level, core.Enabled(zapcore.WarnLevel))
		}
		if test.errorOnly && !core.Enabled(zapcore.ErrorLevel) {
			t.Fatalf("level %q: error should be enabled", test.level)
		}
	}
}

func TestBuildVersion(t *testing.T) {
	version, commit := buildVersion()
	if version == "" || commit == "" {
		t.Fatalf("expected version and commit placeholders")
	}
}
