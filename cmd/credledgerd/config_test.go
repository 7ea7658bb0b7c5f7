package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileConfigLoader_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credledger.yaml")
	content := []byte(`
service_name: ledger-file
issuer:
  id: did:web:file.example
http:
  addr: ":9000"
ledger:
  allowed_methods: [card]
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := newFileConfigLoader(path)
	loader.environ = func() []string {
		return []string{
			"CREDLEDGER_HTTP_ADDR=:9100",
			"CREDLEDGER_LEDGER_ALLOWED_METHODS=card, wire ,",
			"CREDLEDGER_LIVEFEED_QUEUE_SIZE=8",
			"CREDLEDGER_SERVICE_NAME=ledger-env",
			"HOME=/root",
		}
	}
	raw, err := loader.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	if raw["service_name"] != "ledger-env" {
		t.Fatalf("expected env service name, got %v", raw["service_name"])
	}
	httpSection := raw["http"].(map[string]any)
	if httpSection["addr"] != ":9100" {
		t.Fatalf("expected env addr override, got %v", httpSection["addr"])
	}
	issuer := raw["issuer"].(map[string]any)
	if issuer["id"] != "did:web:file.example" {
		t.Fatalf("expected file issuer kept, got %v", issuer["id"])
	}
	methods := raw["ledger"].(map[string]any)["allowed_methods"].([]any)
	if len(methods) != 2 || methods[1] != "wire" {
		t.Fatalf("expected comma separated methods, got %v", methods)
	}
	if raw["livefeed"].(map[string]any)["queue_size"] != 8 {
		t.Fatalf("expected numeric queue size, got %v", raw["livefeed"])
	}
	if _, ok := raw["home"]; ok {
		t.Fatalf("expected unprefixed env to be ignored")
	}
}

func TestFileConfigLoader_MissingFileUsesDefaults(t *testing.T) {
	loader := newFileConfigLoader(filepath.Join(t.TempDir(), "absent.yaml"))
	loader.environ = func() []string { return nil }
	raw, err := loader.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("expected missing file to be tolerated, got %v", err)
	}
	if len(raw) != 0 {
		t.Fatalf("expected empty raw config, got %v", raw)
	}
}

func TestFileConfigLoader_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("service_name: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	loader := newFileConfigLoader(path)
	loader.environ = func() []string { return nil }
	if _, err := loader.LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadConfig_AppliesDefaultsAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credledger.json")
	if err := os.WriteFile(path, []byte(`{"persistence":{"driver":"postgres","dsn":"postgres://localhost/ledger"}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadConfig(context.Background(), path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Persistence.Driver != "postgres" || cfg.ServiceName != "credledger" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"persistence":{"driver":"oracle"}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadConfig(context.Background(), bad); err == nil {
		t.Fatalf("expected unsupported driver to fail validation")
	}
}
