package core

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// Service owns the ledger and credential lifecycle. Collaborators are
// injected; a missing one surfaces as an unconfigured error at call time.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
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

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("credledger", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("credledger"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = time.Now
	}
	if builder.idGenerator == nil {
		builder.idGenerator = uuid.NewString
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if stores := builder.storeProvider; stores != nil {
		if builder.ledgerStore == nil {
			builder.ledgerStore = stores.LedgerStore()
		}
		if builder.issuanceStore == nil {
			builder.issuanceStore = stores.IssuanceStore()
		}
		if builder.credentialStore == nil {
			builder.credentialStore = stores.CredentialStore()
		}
	}
	if builder.schemaCatalog == nil {
		if catalog, ok := builder.trustGate.(SchemaCatalog); ok {
			builder.schemaCatalog = catalog
		}
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		ledgerStore:     builder.ledgerStore,
		issuanceStore:   builder.issuanceStore,
		credentialStore: builder.credentialStore,
		trustGate:       builder.trustGate,
		schemaCatalog:   builder.schemaCatalog,
		issuer:          builder.issuer,
		auditSink:       builder.auditSink,
		notifier:        builder.notifier,
		clock:           builder.clock,
		idGenerator:     builder.idGenerator,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return nil
	}
	return s.logger
}

// SetLedgerNotifier attaches the live feed after construction, since the
// feed reads totals back through the service.
func (s *Service) SetLedgerNotifier(notifier LedgerNotifier) {
	if s == nil {
		return
	}
	s.notifier = notifier
}

// MapError converts any error into the ledger error envelope.
func (s *Service) MapError(err error) *goerrors.Error {
	return s.mapError(err)
}

func (s *Service) mapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	mapper := defaultErrorMapper
	if s != nil && s.errorMapper != nil {
		mapper = s.errorMapper
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return InternalError(err)
}

func (s *Service) now() time.Time {
	if s == nil || s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Service) newID() string {
	if s == nil || s.idGenerator == nil {
		return uuid.NewString()
	}
	return s.idGenerator()
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}
