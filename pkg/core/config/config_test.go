// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.Port != 8080 || cfg.Records.Type != "memory" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Registry.LoadConcurrency != 4 || cfg.Registry.BuildTimeout != 30*time.Second {
		t.Errorf("unexpected registry defaults: %+v", cfg.Registry)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  cors_origins:
    - https://console.example.org
logging:
  level: debug
  format: json
records:
  type: sqlite
  dsn: /var/lib/ogc-gw/records.db
registry:
  build_timeout: 5s
  load_concurrency: 8
layers:
  - id: parcels
    config:
      name: parcels
      params:
        timeout: 2s
      choice:
        name: gpkg
        params:
          path: /data/parcels.gpkg
styles:
  - id: default
    hint: sld
    config:
      name: default
      choice:
        name: sld-directory
        params:
          path: /data/styles
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.Host != "0.0.0.0" || len(cfg.Server.CORSOrigins) != 1 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Registry.BuildTimeout != 5*time.Second || cfg.Registry.LoadConcurrency != 8 {
		t.Errorf("registry = %+v", cfg.Registry)
	}
	if cfg.Registry.CleanupTimeout != 10*time.Second {
		t.Errorf("cleanup timeout default lost: %v", cfg.Registry.CleanupTimeout)
	}

	if len(cfg.Layers) != 1 || cfg.Layers[0].Config.Hint() != "gpkg" {
		t.Fatalf("layers = %+v", cfg.Layers)
	}
	if got := cfg.Layers[0].Config.BuildTimeout(time.Minute); got != 2*time.Second {
		t.Errorf("per-provider timeout = %v", got)
	}
	if cfg.Styles[0].Hint != "sld" || cfg.Styles[0].Config.Choice.Params["path"] != "/data/styles" {
		t.Errorf("styles = %+v", cfg.Styles[0])
	}

	decls := cfg.Declarations()
	if len(decls["layer"]) != 1 || len(decls["style"]) != 1 {
		t.Errorf("Declarations() = %v", decls)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OGC_GW_LOG_LEVEL", "warn")
	t.Setenv("OGC_GW_AUTH_SECRET", "s3cret")
	t.Setenv("OGC_GW_RECORDS_TYPE", "postgres")
	t.Setenv("OGC_GW_RECORDS_DSN", "postgres://gw@localhost/gw")

	cfg, err := Load(writeConfig(t, "records:\n  type: memory\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "warn" || cfg.Server.AuthSecret != "s3cret" {
		t.Errorf("env not applied: %+v %+v", cfg.Logging, cfg.Server)
	}
	if cfg.Records.Type != "postgres" || cfg.Records.DSN != "postgres://gw@localhost/gw" {
		t.Errorf("records = %+v", cfg.Records)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown records type", "records:\n  type: etcd\n", "unknown type"},
		{"sqlite without dsn", "records:\n  type: sqlite\n", "requires a dsn"},
		{"missing id", "layers:\n  - config:\n      name: x\n", "id is required"},
		{"duplicate id", "styles:\n  - id: a\n  - id: a\n", "duplicate id"},
		{"bad yaml", "server: [", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
