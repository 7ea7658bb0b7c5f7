package core

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	DefaultListLimit         = 50
	MaxListLimit             = 500
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultFeedQueueSize     = 256
)

type IssuerConfig struct {
	ID      string `koanf:"id" mapstructure:"id"`
	KeyPath string `koanf:"key_path" mapstructure:"key_path"`
	KeyID   string `koanf:"key_id" mapstructure:"key_id"`
}

type TrustConfig struct {
	RegistryPath string `koanf:"registry_path" mapstructure:"registry_path"`
	SchemaDir    string `koanf:"schema_dir" mapstructure:"schema_dir"`
}

type CredentialsConfig struct {
	IntakeType string `koanf:"intake_type" mapstructure:"intake_type"`
	PayoutType string `koanf:"payout_type" mapstructure:"payout_type"`
}

type LedgerConfig struct {
	AllowedMethods   []string `koanf:"allowed_methods" mapstructure:"allowed_methods"`
	DefaultListLimit int      `koanf:"default_list_limit" mapstructure:"default_list_limit"`
}

type AuditConfig struct {
	LogPath string `koanf:"log_path" mapstructure:"log_path"`
}

type LiveFeedConfig struct {
	HeartbeatInterval string `koanf:"heartbeat_interval" mapstructure:"heartbeat_interval"`
	QueueSize         int    `koanf:"queue_size" mapstructure:"queue_size"`
}

// Heartbeat parses HeartbeatInterval, falling back to the default.
func (c LiveFeedConfig) Heartbeat() time.Duration {
	interval, err := time.ParseDuration(strings.TrimSpace(c.HeartbeatInterval))
	if err != nil || interval <= 0 {
		return DefaultHeartbeatInterval
	}
	return interval
}

type PersistenceConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
	Debug  bool   `koanf:"debug" mapstructure:"debug"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr" mapstructure:"addr"`
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	Issuer      IssuerConfig      `koanf:"issuer" mapstructure:"issuer"`
	Trust       TrustConfig       `koanf:"trust" mapstructure:"trust"`
	Credentials CredentialsConfig `koanf:"credentials" mapstructure:"credentials"`
	Ledger      LedgerConfig      `koanf:"ledger" mapstructure:"ledger"`
	Audit       AuditConfig       `koanf:"audit" mapstructure:"audit"`
	LiveFeed    LiveFeedConfig    `koanf:"livefeed" mapstructure:"livefeed"`
	Persistence PersistenceConfig `koanf:"persistence" mapstructure:"persistence"`
	HTTP        HTTPConfig        `koanf:"http" mapstructure:"http"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "credledger",
		Credentials: CredentialsConfig{
			IntakeType: "DonationReceipt",
			PayoutType: "PayoutAttestation",
		},
		Ledger: LedgerConfig{
			AllowedMethods:   []string{"card", "bank_transfer", "cash", "check", "crypto"},
			DefaultListLimit: DefaultListLimit,
		},
		LiveFeed: LiveFeedConfig{
			HeartbeatInterval: DefaultHeartbeatInterval.String(),
			QueueSize:         DefaultFeedQueueSize,
		},
		Persistence: PersistenceConfig{
			Driver: "sqlite3",
			DSN:    "file:credledger.db?_foreign_keys=on",
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Credentials.IntakeType) == "" {
		return fmt.Errorf("core: credentials.intake_type is required")
	}
	if strings.TrimSpace(c.Credentials.PayoutType) == "" {
		return fmt.Errorf("core: credentials.payout_type is required")
	}
	if c.Ledger.DefaultListLimit < 0 || c.Ledger.DefaultListLimit > MaxListLimit {
		return fmt.Errorf("core: ledger.default_list_limit must be between 0 and %d", MaxListLimit)
	}
	if raw := strings.TrimSpace(c.LiveFeed.HeartbeatInterval); raw != "" {
		if interval, err := time.ParseDuration(raw); err != nil || interval <= 0 {
			return fmt.Errorf("core: livefeed.heartbeat_interval %q is not a positive duration", raw)
		}
	}
	if c.LiveFeed.QueueSize < 0 {
		return fmt.Errorf("core: livefeed.queue_size must not be negative")
	}
	switch strings.TrimSpace(c.Persistence.Driver) {
	case "", "sqlite3", "postgres":
	default:
		return fmt.Errorf("core: persistence.driver %q is not supported", c.Persistence.Driver)
	}
	return nil
}

// MethodAllowed reports whether method is in the configured allow list. An
// empty list accepts any non-empty method.
func (c Config) MethodAllowed(method string) bool {
	method = normalizeMethod(method)
	if method == "" {
		return false
	}
	if len(c.Ledger.AllowedMethods) == 0 {
		return true
	}
	return slices.ContainsFunc(c.Ledger.AllowedMethods, func(allowed string) bool {
		return normalizeMethod(allowed) == method
	})
}

func (c Config) listLimit(requested int) int {
	if requested <= 0 {
		requested = c.Ledger.DefaultListLimit
	}
	if requested <= 0 {
		requested = DefaultListLimit
	}
	return min(requested, MaxListLimit)
}

func normalizeMethod(method string) string {
	method = strings.ToLower(strings.TrimSpace(method))
	return strings.ReplaceAll(method, "-", "_")
}
