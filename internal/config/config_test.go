package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "aegis.yaml", `
version: 1
vault:
  data_dir: /tmp/aegis-vault
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: sk-ant-test
      default_model: claude-sonnet-4-5
cron:
  jobs:
    - id: daily-digest
      name: Daily digest
      expression: "0 9 * * *"
      command: digest
      enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vault.DataDir != "/tmp/aegis-vault" {
		t.Fatalf("expected override data dir, got %q", cfg.Vault.DataDir)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Fatalf("expected default server host to survive partial override, got %q", cfg.Server.Host)
	}
	if len(cfg.Cron.Jobs) != 1 || cfg.Cron.Jobs[0].ID != "daily-digest" {
		t.Fatalf("expected one cron job, got %+v", cfg.Cron.Jobs)
	}
	if cfg.LLM.Providers["anthropic"].DefaultModel != "claude-sonnet-4-5" {
		t.Fatalf("expected provider model override, got %+v", cfg.LLM.Providers["anthropic"])
	}
}

func TestLoad_Includes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
version: 1
server:
  port: 9999
`)
	path := writeFile(t, dir, "aegis.yaml", `
$include: base.yaml
vault:
  data_dir: /tmp/included
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Fatalf("expected included port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Vault.DataDir != "/tmp/included" {
		t.Fatalf("expected including file's value to win, got %q", cfg.Vault.DataDir)
	}
}

func TestLoad_RejectsBadVersion(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "aegis.yaml", "version: 0\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected version error")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("AEGIS_TEST_KEY", "sk-ant-from-env")
	dir := t.TempDir()
	path := writeFile(t, dir, "aegis.yaml", `
version: 1
llm:
  providers:
    anthropic:
      api_key: ${AEGIS_TEST_KEY}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Providers["anthropic"].APIKey != "sk-ant-from-env" {
		t.Fatalf("expected expanded env var, got %q", cfg.LLM.Providers["anthropic"].APIKey)
	}
}
