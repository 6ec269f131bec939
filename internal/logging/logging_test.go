package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/oxplot/go-i2cadapter/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" INFO ":  zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupFile(t *testing.T) {
	for _, rotate := range []bool{false, true} {
		path := filepath.Join(t.TempDir(), "logs", "i2cadapter.log")
		log, err := Setup(config.LogConfig{
			Level:    "warn",
			Format:   "json",
			Outputs:  []string{path},
			Rotation: config.RotationConfig{Enable: rotate, MaxSizeMB: 1},
		})
		if err != nil {
			t.Fatal(err)
		}
		log.Info("hidden")
		log.Warn("shown")
		_ = log.Sync()

		b, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		out := string(b)
		if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
			t.Errorf("rotate=%v: log file = %q", rotate, out)
		}
	}
}
