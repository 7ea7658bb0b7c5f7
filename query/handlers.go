package query

import (
	"context"
	"encoding/json"
	"time"

	"github.com/goliatone/go-credledger/core"
)

type CredentialReader interface {
	CredentialStatus(ctx context.Context, id string) (core.CredentialStatus, error)
	CredentialHistory(ctx context.Context, id string) ([]core.CredentialStatusRecord, error)
}

type LedgerReader interface {
	ListLedgerEvents(ctx context.Context, limit int) ([]core.LedgerEvent, error)
	DailyTotals(ctx context.Context) (core.DailyTotals, error)
	TotalsFor(ctx context.Context, day time.Time) (core.DailyTotals, error)
}

type SchemaReader interface {
	ListSchemas(ctx context.Context) ([]string, error)
	GetSchema(ctx context.Context, slug string) (json.RawMessage, error)
}

type CredentialStatusQuery struct {
	reader CredentialReader
}

func NewCredentialStatusQuery(reader CredentialReader) *CredentialStatusQuery {
	return &CredentialStatusQuery{reader: reader}
}

func (q *CredentialStatusQuery) Query(ctx context.Context, msg CredentialStatusMessage) (core.CredentialStatus, error) {
	if q == nil || q.reader == nil {
		return core.CredentialStatus{}, queryDependencyError("query: credential reader is required")
	}
	return q.reader.CredentialStatus(ctx, msg.CredentialID)
}

type CredentialHistoryQuery struct {
	reader CredentialReader
}

func NewCredentialHistoryQuery(reader CredentialReader) *CredentialHistoryQuery {
	return &CredentialHistoryQuery{reader: reader}
}

func (q *CredentialHistoryQuery) Query(
	ctx context.Context,
	msg CredentialHistoryMessage,
) ([]core.CredentialStatusRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: credential reader is required")
	}
	return q.reader.CredentialHistory(ctx, msg.CredentialID)
}

type ListLedgerEventsQuery struct {
	reader LedgerReader
}

func NewListLedgerEventsQuery(reader LedgerReader) *ListLedgerEventsQuery {
	return &ListLedgerEventsQuery{reader: reader}
}

func (q *ListLedgerEventsQuery) Query(ctx context.Context, msg ListLedgerEventsMessage) ([]core.LedgerEvent, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: ledger reader is required")
	}
	return q.reader.ListLedgerEvents(ctx, msg.Limit)
}

type DailyTotalsQuery struct {
	reader LedgerReader
}

func NewDailyTotalsQuery(reader LedgerReader) *DailyTotalsQuery {
	return &DailyTotalsQuery{reader: reader}
}

func (q *DailyTotalsQuery) Query(ctx context.Context, msg DailyTotalsMessage) (core.DailyTotals, error) {
	if q == nil || q.reader == nil {
		return core.DailyTotals{}, queryDependencyError("query: ledger reader is required")
	}
	if msg.Day.IsZero() {
		return q.reader.DailyTotals(ctx)
	}
	return q.reader.TotalsFor(ctx, msg.Day)
}

type ListSchemasQuery struct {
	reader SchemaReader
}

func NewListSchemasQuery(reader SchemaReader) *ListSchemasQuery {
	return &ListSchemasQuery{reader: reader}
}

func (q *ListSchemasQuery) Query(ctx context.Context, _ ListSchemasMessage) ([]string, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: schema reader is required")
	}
	return q.reader.ListSchemas(ctx)
}

type GetSchemaQuery struct {
	reader SchemaReader
}

func NewGetSchemaQuery(reader SchemaReader) *GetSchemaQuery {
	return &GetSchemaQuery{reader: reader}
}

func (q *GetSchemaQuery) Query(ctx context.Context, msg GetSchemaMessage) (json.RawMessage, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: schema reader is required")
	}
	return q.reader.GetSchema(ctx, msg.Slug)
}
