package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "i2cadapter.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadDefaultsFromEnvPath(t *testing.T) {
	t.Setenv("I2CADAPTER_CONFIG", writeFile(t, "{}\n"))
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load of empty file (-want +got):\n%s", diff)
	}
}

func TestLoadFile(t *testing.T) {
	p := writeFile(t, `
transport: bridge
bridge:
  serial_port: /dev/ttyACM0
  port: 1
device:
  address: 0x59
  timeout: 250ms
sampling:
  interval: 2s
  count: 10
  ignore_errors: true
log:
  level: debug
  format: json
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	want.Transport = "bridge"
	want.Bridge.SerialPort = "/dev/ttyACM0"
	want.Bridge.Port = 1
	want.Device.Address = 0x59
	want.Device.Timeout = 250 * time.Millisecond
	want.Sampling.Interval = 2 * time.Second
	want.Sampling.Count = 10
	want.Sampling.IgnoreErrors = true
	want.Log.Level = "debug"
	want.Log.Format = "json"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load (-want +got):\n%s", diff)
	}
}

func TestLoadEnv(t *testing.T) {
	p := writeFile(t, "device:\n  address: 0x59\n")
	t.Setenv("I2CADAPTER_DEVICE_ADDRESS", "98")
	t.Setenv("I2CADAPTER_I2C_BUS", "2")
	cfg, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device.Address != 98 || cfg.I2C.Bus != "2" {
		t.Errorf("env override: address %d bus %q", cfg.Device.Address, cfg.I2C.Bus)
	}
}

func TestLoadInvalid(t *testing.T) {
	for _, content := range []string{
		"transport: spi\n",
		"device:\n  address: 4096\n",
		"transport: bridge\nbridge:\n  port: 3\n",
		"sampling:\n  interval: 0s\n",
		"log:\n  level: loud\n",
	} {
		if _, err := Load(writeFile(t, content)); err == nil {
			t.Errorf("Load(%q) succeeded, want error", content)
		}
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing explicit file succeeded")
	}
}
