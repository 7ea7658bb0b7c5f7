package query

import (
	"encoding/json"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-credledger/core"
)

var (
	_ gocmd.Querier[CredentialStatusMessage, core.CredentialStatus]          = (*CredentialStatusQuery)(nil)
	_ gocmd.Querier[CredentialHistoryMessage, []core.CredentialStatusRecord] = (*CredentialHistoryQuery)(nil)
	_ gocmd.Querier[ListLedgerEventsMessage, []core.LedgerEvent]             = (*ListLedgerEventsQuery)(nil)
	_ gocmd.Querier[DailyTotalsMessage, core.DailyTotals]                    = (*DailyTotalsQuery)(nil)
	_ gocmd.Querier[ListSchemasMessage, []string]                            = (*ListSchemasQuery)(nil)
	_ gocmd.Querier[GetSchemaMessage, json.RawMessage]                       = (*GetSchemaQuery)(nil)

	_ CredentialReader = (*core.Service)(nil)
	_ LedgerReader     = (*core.Service)(nil)
	_ SchemaReader     = (*core.Service)(nil)
)
