package core

import (
	"context"
	"testing"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

func TestNewService_DefaultConfig(t *testing.T) {
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cfg := svc.Config()
	if cfg.ServiceName != "credledger" {
		t.Fatalf("expected default service_name, got %q", cfg.ServiceName)
	}
	if cfg.Credentials.IntakeType != "DonationReceipt" || cfg.Credentials.PayoutType != "PayoutAttestation" {
		t.Fatalf("unexpected credential types %+v", cfg.Credentials)
	}
	if cfg.LiveFeed.Heartbeat() != DefaultHeartbeatInterval {
		t.Fatalf("expected default heartbeat, got %s", cfg.LiveFeed.Heartbeat())
	}
	if svc.Logger() == nil {
		t.Fatalf("expected default logger")
	}
}

func TestCfgxConfigProvider_LoadsRawValues(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticRawConfigLoader{Values: map[string]any{
		"service_name": "ledger-test",
		"issuer": map[string]any{
			"id": "did:web:example.org",
		},
		"ledger": map[string]any{
			"allowed_methods": []any{"card", "wire"},
		},
	}})
	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "ledger-test" || cfg.Issuer.ID != "did:web:example.org" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.MethodAllowed("wire") {
		t.Fatalf("expected configured method, got %v", cfg.Ledger.AllowedMethods)
	}
	if cfg.Credentials.IntakeType != "DonationReceipt" {
		t.Fatalf("expected defaults preserved, got %q", cfg.Credentials.IntakeType)
	}
}

func TestGoOptionsResolver_RuntimeOverridesLoaded(t *testing.T) {
	loaded := DefaultConfig()
	loaded.ServiceName = "from-file"
	loaded.HTTP.Addr = ":9000"

	svc, err := NewService(
		Config{ServiceName: "from-runtime"},
		WithConfigProvider(&fixedConfigProvider{cfg: loaded}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if got := svc.Config().ServiceName; got != "from-runtime" {
		t.Fatalf("expected runtime service name, got %q", got)
	}
	if got := svc.Config().HTTP.Addr; got != ":9000" {
		t.Fatalf("expected loaded addr, got %q", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "missing service", mutate: func(c *Config) { c.ServiceName = "" }},
		{name: "bad heartbeat", mutate: func(c *Config) { c.LiveFeed.HeartbeatInterval = "soon" }},
		{name: "limit too large", mutate: func(c *Config) { c.Ledger.DefaultListLimit = MaxListLimit + 1 }},
		{name: "driver", mutate: func(c *Config) { c.Persistence.Driver = "oracle" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestMethodAllowed_Normalizes(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.MethodAllowed(" Bank-Transfer ") {
		t.Fatalf("expected normalized method to match")
	}
	if cfg.MethodAllowed("") {
		t.Fatalf("expected empty method to be rejected")
	}
}
