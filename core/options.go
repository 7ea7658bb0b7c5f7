package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
	"github.com/google/uuid"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type Clock func() time.Time

type IDGenerator func() string

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	storeProvider   StoreProvider
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	ledgerStore     LedgerStore
	issuanceStore   IssuanceStore
	credentialStore CredentialStore
	trustGate       TrustGate
	schemaCatalog   SchemaCatalog
	issuer          CredentialIssuer
	auditSink       AuditSink
	notifier        LedgerNotifier
	clock           Clock
	idGenerator     IDGenerator
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

// WithStoreProvider fills any store not set explicitly.
func WithStoreProvider(provider StoreProvider) Option {
	return func(b *serviceBuilder) {
		b.storeProvider = provider
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithLedgerStore(store LedgerStore) Option {
	return func(b *serviceBuilder) {
		b.ledgerStore = store
	}
}

func WithIssuanceStore(store IssuanceStore) Option {
	return func(b *serviceBuilder) {
		b.issuanceStore = store
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *serviceBuilder) {
		b.credentialStore = store
	}
}

func WithTrustGate(gate TrustGate) Option {
	return func(b *serviceBuilder) {
		b.trustGate = gate
	}
}

func WithSchemaCatalog(catalog SchemaCatalog) Option {
	return func(b *serviceBuilder) {
		b.schemaCatalog = catalog
	}
}

func WithCredentialIssuer(issuer CredentialIssuer) Option {
	return func(b *serviceBuilder) {
		b.issuer = issuer
	}
}

func WithAuditSink(sink AuditSink) Option {
	return func(b *serviceBuilder) {
		b.auditSink = sink
	}
}

func WithLedgerNotifier(notifier LedgerNotifier) Option {
	return func(b *serviceBuilder) {
		b.notifier = notifier
	}
}

func WithClock(clock Clock) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func WithIDGenerator(generator IDGenerator) Option {
	return func(b *serviceBuilder) {
		b.idGenerator = generator
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("credledger", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		clock:           time.Now,
		idGenerator:     uuid.NewString,
	}
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	putSection(layer, "issuer", includeZero, map[string]any{
		"id":       cfg.Issuer.ID,
		"key_path": cfg.Issuer.KeyPath,
		"key_id":   cfg.Issuer.KeyID,
	})
	putSection(layer, "trust", includeZero, map[string]any{
		"registry_path": cfg.Trust.RegistryPath,
		"schema_dir":    cfg.Trust.SchemaDir,
	})
	putSection(layer, "credentials", includeZero, map[string]any{
		"intake_type": cfg.Credentials.IntakeType,
		"payout_type": cfg.Credentials.PayoutType,
	})
	ledger := map[string]any{
		"default_list_limit": cfg.Ledger.DefaultListLimit,
	}
	if includeZero || len(cfg.Ledger.AllowedMethods) > 0 {
		ledger["allowed_methods"] = append([]string(nil), cfg.Ledger.AllowedMethods...)
	}
	putSection(layer, "ledger", includeZero, ledger)
	putSection(layer, "audit", includeZero, map[string]any{
		"log_path": cfg.Audit.LogPath,
	})
	putSection(layer, "livefeed", includeZero, map[string]any{
		"heartbeat_interval": cfg.LiveFeed.HeartbeatInterval,
		"queue_size":         cfg.LiveFeed.QueueSize,
	})
	putSection(layer, "persistence", includeZero, map[string]any{
		"driver": cfg.Persistence.Driver,
		"dsn":    cfg.Persistence.DSN,
		"debug":  cfg.Persistence.Debug,
	})
	putSection(layer, "http", includeZero, map[string]any{
		"addr": cfg.HTTP.Addr,
	})
	return layer
}

func putSection(layer map[string]any, name string, includeZero bool, values map[string]any) {
	section := map[string]any{}
	for key, value := range values {
		if includeZero || !isZeroLayerValue(value) {
			section[key] = value
		}
	}
	if len(section) == 0 && !includeZero {
		return
	}
	layer[name] = section
}

func isZeroLayerValue(value any) bool {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed) == ""
	case int:
		return typed == 0
	case bool:
		return !typed
	case []string:
		return len(typed) == 0
	default:
		return value == nil
	}
}
