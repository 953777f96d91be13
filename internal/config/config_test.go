package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pestypig/casimirbot/internal/guardrail"
)

func TestDefaultPassesValidation(t *testing.T) {
	cfg := Default()
	if err := validate.Struct(cfg); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Guardrail.WindowMs != 250 || cfg.Guardrail.Sampler != "gaussian" {
		t.Fatalf("expected guardrail defaults mirrored, got %+v", cfg.Guardrail)
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults for a missing file, got %+v", cfg)
	}
}

func TestLoadParsesYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casimirbot.yaml")
	body := `
server:
  addr: ":9090"
store:
  path: "/tmp/hull.db"
guardrail:
  windowMs: 1000
  sampler: lorentzian
  policyMaxZeta: 5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("expected addr :9090, got %q", cfg.Server.Addr)
	}
	if cfg.Store.Path != "/tmp/hull.db" {
		t.Fatalf("expected store path override, got %q", cfg.Store.Path)
	}
	ec := cfg.EvalContext()
	if ec.WindowMs != 1000 || ec.Sampler != guardrail.SamplerLorentzian || ec.PolicyMaxZeta != 5 {
		t.Fatalf("expected guardrail overrides in context, got %+v", ec)
	}
}

func TestEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casimirbot.yaml")
	body := "server:\n  addr: \":9090\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CASIMIRBOT_ADDR", ":7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("expected env to win, got %q", cfg.Server.Addr)
	}
}

func TestLoadRejectsUnknownSampler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casimirbot.yaml")
	body := "guardrail:\n  windowMs: 250\n  sampler: hann\n  policyMaxZeta: 10\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown sampler")
	}
}

func TestLoadRequiresFeedFieldsWhenEnabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casimirbot.yaml")
	body := "telemetry:\n  enabled: true\n  url: \"\"\n  org: \"\"\n  bucket: \"\"\n  lookbackSeconds: 120\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for an enabled feed without endpoints")
	}
}

func TestInfluxConfigConverter(t *testing.T) {
	cfg := Default()
	cfg.Telemetry.URL = "http://influx:8086"
	cfg.Telemetry.Org = "warp-ops"
	cfg.Telemetry.Bucket = "hull"
	cfg.Telemetry.LookbackSeconds = 300

	ic := cfg.InfluxConfig()
	if ic.URL != "http://influx:8086" || ic.Org != "warp-ops" || ic.Bucket != "hull" {
		t.Fatalf("expected influx fields mapped, got %+v", ic)
	}
	if ic.Lookback != 5*time.Minute {
		t.Fatalf("expected 5m lookback, got %v", ic.Lookback)
	}
}
