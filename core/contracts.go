package core

import (
	"context"
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-credledger/signing"
)

type LedgerStore interface {
	RecordEvent(ctx context.Context, event LedgerEvent) (LedgerEvent, error)
	// ListEvents returns at most limit events, newest first.
	ListEvents(ctx context.Context, limit int) ([]LedgerEvent, error)
	DailyTotals(ctx context.Context, day time.Time) (DailyTotals, error)
}

// MintFunc signs the credential once the linked event has its identifier.
// Returning an error aborts the whole issuance.
type MintFunc func(event *LedgerEvent) (Credential, error)

type IssuanceInput struct {
	Event      *LedgerEvent
	Mint       MintFunc
	RecordedAt time.Time
}

type IssuanceRecord struct {
	Event      *LedgerEvent
	Credential Credential
	Status     CredentialStatusRecord
}

// IssuanceStore persists an optional event, its credential and the initial
// active status record in one transaction.
type IssuanceStore interface {
	SaveIssuance(ctx context.Context, input IssuanceInput) (IssuanceRecord, error)
}

type RevokeInput struct {
	CredentialID string
	Reason       *string
	Actor        *string
	At           time.Time
}

type RevokeOutcome struct {
	Credential Credential
	Record     CredentialStatusRecord
	First      bool
}

type CredentialStore interface {
	GetCredential(ctx context.Context, id string) (Credential, error)
	RevokeCredential(ctx context.Context, input RevokeInput) (RevokeOutcome, error)
	ListStatusRecords(ctx context.Context, credentialID string) ([]CredentialStatusRecord, error)
}

type StoreProvider interface {
	LedgerStore() LedgerStore
	IssuanceStore() IssuanceStore
	CredentialStore() CredentialStore
}

type SchemaResult struct {
	Valid  bool
	Errors []goerrors.FieldError
}

type TrustGate interface {
	IsRecognized(credentialType string) bool
	Validate(credentialType string, subject map[string]any) SchemaResult
}

type SchemaCatalog interface {
	Slugs() []string
	Schema(slug string) (json.RawMessage, bool)
}

type CredentialIssuer interface {
	IssuerID() string
	Issue(id string, credentialType string, subject map[string]any) (signing.Document, error)
}

// ReceiptAudit is the audit view of an issued receipt.
type ReceiptAudit struct {
	Receipt Receipt
	Event   LedgerEvent
	Type    string
}

// AuditSink receives a best effort copy of lifecycle facts. The database
// remains the record of truth.
type AuditSink interface {
	AppendStatus(ctx context.Context, record CredentialStatusRecord) error
	AppendReceipt(ctx context.Context, receipt ReceiptAudit) error
}

// LedgerNotifier must not block the caller.
type LedgerNotifier interface {
	Publish(event LedgerEvent)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
