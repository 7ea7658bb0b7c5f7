package query

import (
	"strings"
	"time"

	"github.com/goliatone/go-credledger/core"
)

const (
	TypeCredentialStatus  = "credledger.query.credential.status"
	TypeCredentialHistory = "credledger.query.credential.history"
	TypeListLedgerEvents  = "credledger.query.ledger_events.list"
	TypeDailyTotals       = "credledger.query.ledger.daily_totals"
	TypeListSchemas       = "credledger.query.schemas.list"
	TypeGetSchema         = "credledger.query.schemas.get"
)

type CredentialStatusMessage struct {
	CredentialID string
}

func (CredentialStatusMessage) Type() string { return TypeCredentialStatus }

func (m CredentialStatusMessage) Validate() error {
	if strings.TrimSpace(m.CredentialID) == "" {
		return queryValidationError("credential_id", "credential id is required")
	}
	return nil
}

type CredentialHistoryMessage struct {
	CredentialID string
}

func (CredentialHistoryMessage) Type() string { return TypeCredentialHistory }

func (m CredentialHistoryMessage) Validate() error {
	if strings.TrimSpace(m.CredentialID) == "" {
		return queryValidationError("credential_id", "credential id is required")
	}
	return nil
}

// ListLedgerEventsMessage asks for the newest events. Limit zero means use
// the configured default.
type ListLedgerEventsMessage struct {
	Limit int
}

func (ListLedgerEventsMessage) Type() string { return TypeListLedgerEvents }

func (m ListLedgerEventsMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Limit > core.MaxListLimit {
		return queryValidationError("limit", "limit exceeds maximum")
	}
	return nil
}

// DailyTotalsMessage selects a UTC day. A zero Day means today.
type DailyTotalsMessage struct {
	Day time.Time
}

func (DailyTotalsMessage) Type() string { return TypeDailyTotals }

func (DailyTotalsMessage) Validate() error { return nil }

type ListSchemasMessage struct{}

func (ListSchemasMessage) Type() string { return TypeListSchemas }

func (ListSchemasMessage) Validate() error { return nil }

type GetSchemaMessage struct {
	Slug string
}

func (GetSchemaMessage) Type() string { return TypeGetSchema }

func (m GetSchemaMessage) Validate() error {
	if strings.TrimSpace(m.Slug) == "" {
		return queryValidationError("slug", "schema slug is required")
	}
	return nil
}
