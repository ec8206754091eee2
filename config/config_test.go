package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.Server.Addr != ":8090" || c.Sandbox.Kind != SandboxStatic || c.Bus.Capacity != 16 {
		t.Fatalf("defaults: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "visedit.yaml")
	os.WriteFile(path, []byte(`
server:
  addr: ":9000"
backend:
  url: http://pages:8000
  timeout: 90s
sandbox:
  kind: browser
  remote: ws://chrome:9222
  stealth: true
  resource_blocking: [media]
  recycle_interval: 1h
persist:
  timeout: 3s
log_level: debug
`), 0o644)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := SandboxConfig{
		Kind:             SandboxBrowser,
		Remote:           "ws://chrome:9222",
		Stealth:          true,
		ResourceBlocking: []string{"media"},
		RecycleInterval:  time.Hour,
		MemoryLimit:      512 << 20,
		ClickTimeout:     5 * time.Second,
	}
	if diff := cmp.Diff(want, c.Sandbox); diff != "" {
		t.Fatalf("sandbox (-want +got):\n%s", diff)
	}
	if c.Server.Addr != ":9000" || c.Backend.URL != "http://pages:8000" || c.Backend.Timeout != 90*time.Second {
		t.Fatalf("server/backend: %+v %+v", c.Server, c.Backend)
	}
	if c.Persist.Timeout != 3*time.Second || c.LogLevel != "debug" || c.Store.Path != "data/pages.db" {
		t.Fatalf("persist/log/store: %+v %q %+v", c.Persist, c.LogLevel, c.Store)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"VISEDIT_ADDR":         ":7000",
		"VISEDIT_BACKEND_URL":  "http://other",
		"VISEDIT_SANDBOX":      "browser",
		"VISEDIT_BUS_CAPACITY": "4",
		"VISEDIT_LOG_LEVEL":    "warn",
	}
	c := Default()
	if err := c.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }); err != nil {
		t.Fatalf("env: %v", err)
	}
	if c.Server.Addr != ":7000" || c.Backend.URL != "http://other" || c.Sandbox.Kind != SandboxBrowser || c.Bus.Capacity != 4 || c.LogLevel != "warn" {
		t.Fatalf("after env: %+v", c)
	}

	bad := func(k string) (string, bool) {
		if k == "VISEDIT_BUS_CAPACITY" {
			return "lots", true
		}
		return "", false
	}
	if err := Default().applyEnv(bad); err == nil {
		t.Fatal("non-numeric capacity: want error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"sandbox kind", func(c *Config) { c.Sandbox.Kind = "iframe" }},
		{"log level", func(c *Config) { c.LogLevel = "trace" }},
		{"bus capacity", func(c *Config) { c.Bus.Capacity = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Fatal("want error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("want error")
	}
}

func TestLoad_Audit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "visedit.yaml")
	os.WriteFile(path, []byte("audit:\n  disabled: true\n  path: data/audit.db\n"), 0o644)

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(AuditConfig{Disabled: true, Path: "data/audit.db"}, c.Audit); diff != "" {
		t.Fatalf("audit (-want +got):\n%s", diff)
	}
}
