// Package credledger is the entry point for embedding the ledger: it
// re-exports the core service constructor and options and bundles the
// command and query handlers in a Facade.
package credledger

import "github.com/goliatone/go-credledger/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type IntakeRequest = core.IntakeRequest
type PayoutRequest = core.PayoutRequest
type RecordEventRequest = core.RecordEventRequest
type IssueRequest = core.IssueRequest
type RevokeRequest = core.RevokeRequest

var (
	WithLogger           = core.WithLogger
	WithLoggerProvider   = core.WithLoggerProvider
	WithMetricsRecorder  = core.WithMetricsRecorder
	WithErrorMapper      = core.WithErrorMapper
	WithStoreProvider    = core.WithStoreProvider
	WithConfigProvider   = core.WithConfigProvider
	WithOptionsResolver  = core.WithOptionsResolver
	WithLedgerStore      = core.WithLedgerStore
	WithIssuanceStore    = core.WithIssuanceStore
	WithCredentialStore  = core.WithCredentialStore
	WithTrustGate        = core.WithTrustGate
	WithSchemaCatalog    = core.WithSchemaCatalog
	WithCredentialIssuer = core.WithCredentialIssuer
	WithAuditSink        = core.WithAuditSink
	WithLedgerNotifier   = core.WithLedgerNotifier
	WithClock            = core.WithClock
	WithIDGenerator      = core.WithIDGenerator
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

var _ CommandQueryService = (*core.Service)(nil)
