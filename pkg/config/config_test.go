package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plantview.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadEmptyPathGivesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
	if cfg.Synchronous() {
		t.Error("default delivery should be async")
	}
	if cfg.Level() != log.InfoLevel {
		t.Errorf("Level() = %v, want info", cfg.Level())
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "debug"

[notify]
delivery = "sync"

[geometry]
cap_samples = 32

[kernel]
enabled = false
mesh_cells = 64

[engine]
timeout = "750ms"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Level() != log.DebugLevel {
		t.Errorf("Level() = %v, want debug", cfg.Level())
	}
	if !cfg.Synchronous() {
		t.Error("Synchronous() = false, want true")
	}
	if cfg.Geometry.CapSamples != 32 || cfg.Kernel.Enabled || cfg.Kernel.MeshCells != 64 {
		t.Errorf("geometry/kernel = %+v %+v", cfg.Geometry, cfg.Kernel)
	}
	if cfg.Engine.Timeout != 750*time.Millisecond {
		t.Errorf("Engine.Timeout = %s, want 750ms", cfg.Engine.Timeout)
	}
	// Untouched sections keep their defaults.
	if cfg.Store.Path != "plantview.db" {
		t.Errorf("Store.Path = %q, want default", cfg.Store.Path)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad toml", "[logging\nlevel=", "parse config"},
		{"bad level", "[logging]\nlevel = \"loud\"", "logging.level"},
		{"bad delivery", "[notify]\ndelivery = \"carrier-pigeon\"", "notify.delivery"},
		{"few samples", "[geometry]\ncap_samples = 2", "geometry.cap_samples"},
		{"few cells", "[kernel]\nmesh_cells = 1", "kernel.mesh_cells"},
		{"zero timeout", "[engine]\ntimeout = \"0s\"", "engine.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Errorf("Load(missing) error = %v, want read config error", err)
	}
}
