// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, yaml string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
}

const validYAML = `
tenants:
  - alias: acme
    tenant_id: 11111111-aaaa-bbbb-cccc-222222222222
    client_id: client-one
    client_secret: ${ACME_SECRET}
database:
  url: postgres://db.internal:5432/workflow
redis:
  url: redis://cache.internal:6379/0
  queues:
    workflow: workflow
    notifications: notifications
oracle:
  base_url: https://oracle.internal/v1
  api_key: sk-test
  model: gpt-4o-mini
engine:
  quarantine_enabled: false
`

// TestLoad verifies YAML parsing with env expansion.
func TestLoad(t *testing.T) {
	writeConfig(t, validYAML)
	t.Setenv("ACME_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Tenants) != 1 {
		t.Fatalf("tenants = %d, want 1", len(cfg.Tenants))
	}
	tenant := cfg.Tenants[0]
	if tenant.Alias != "acme" {
		t.Errorf("alias = %q, want acme", tenant.Alias)
	}
	if tenant.ClientSecret != "s3cret" {
		t.Errorf("client_secret = %q, want expanded env value", tenant.ClientSecret)
	}
	if tenant.Provider != "m365" {
		t.Errorf("provider = %q, want m365 default", tenant.Provider)
	}

	if cfg.DatabaseURL != "postgres://db.internal:5432/workflow" {
		t.Errorf("database url = %q", cfg.DatabaseURL)
	}
	if cfg.Oracle.Model != "gpt-4o-mini" {
		t.Errorf("oracle model = %q", cfg.Oracle.Model)
	}
	if cfg.Engine.QuarantineEnabled {
		t.Error("quarantine_enabled = true, want false from YAML")
	}
	if cfg.Engine.ActionTimeout != 15*time.Second {
		t.Errorf("action timeout = %s, want 15s default", cfg.Engine.ActionTimeout)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, want 8080 default", cfg.Port)
	}
}

// TestLoad_EnvOverrides verifies environment variables beat defaults.
func TestLoad_EnvOverrides(t *testing.T) {
	writeConfig(t, validYAML)
	t.Setenv("ACME_SECRET", "s3cret")
	t.Setenv("ORACLE_TIMEOUT", "45s")
	t.Setenv("BATCH_SIZE", "10")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Oracle.Timeout != 45*time.Second {
		t.Errorf("oracle timeout = %s, want 45s", cfg.Oracle.Timeout)
	}
	if cfg.Engine.BatchSize != 10 {
		t.Errorf("batch size = %d, want 10", cfg.Engine.BatchSize)
	}
	if cfg.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Port)
	}
}

// TestLoad_SkipsIncompleteTenants verifies tenants without credentials are
// dropped rather than failing the load.
func TestLoad_SkipsIncompleteTenants(t *testing.T) {
	writeConfig(t, `
tenants:
  - alias: acme
    tenant_id: 11111111-aaaa-bbbb-cccc-222222222222
    client_id: client-one
    client_secret: real-secret
  - alias: incomplete
    tenant_id: 33333333-dddd-eeee-ffff-444444444444
    client_id: ""
    client_secret: ""
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Tenants) != 1 || cfg.Tenants[0].Alias != "acme" {
		t.Errorf("tenants = %+v, want acme only", cfg.Tenants)
	}
}

// TestLoad_NoTenants verifies an empty tenant list is an error.
func TestLoad_NoTenants(t *testing.T) {
	writeConfig(t, `tenants: []`)

	if _, err := Load(); err == nil {
		t.Error("expected error with no tenants configured")
	}
}

// TestLoad_MissingFile verifies a helpful error for a bad path.
func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/config.yaml")

	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}
