package credledger

import (
	"fmt"

	ledgercommand "github.com/goliatone/go-credledger/command"
	"github.com/goliatone/go-credledger/query"
)

// CommandQueryService is the ledger surface the facade wraps. *core.Service
// satisfies it.
type CommandQueryService interface {
	ledgercommand.MutatingService
	query.CredentialReader
	query.LedgerReader
	query.SchemaReader
}

type Commands struct {
	Intake            *ledgercommand.IntakeCommand
	Payout            *ledgercommand.PayoutCommand
	RecordLedgerEvent *ledgercommand.RecordLedgerEventCommand
	IssueCredential   *ledgercommand.IssueCredentialCommand
	RevokeCredential  *ledgercommand.RevokeCredentialCommand
}

type Queries struct {
	CredentialStatus  *query.CredentialStatusQuery
	CredentialHistory *query.CredentialHistoryQuery
	ListLedgerEvents  *query.ListLedgerEventsQuery
	DailyTotals       *query.DailyTotalsQuery
	ListSchemas       *query.ListSchemasQuery
	GetSchema         *query.GetSchemaQuery
}

// Facade bundles every ledger command and query handler over one service.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("credledger: command/query service is required")
	}
	facade := &Facade{service: service}
	facade.commands = Commands{
		Intake:            ledgercommand.NewIntakeCommand(service),
		Payout:            ledgercommand.NewPayoutCommand(service),
		RecordLedgerEvent: ledgercommand.NewRecordLedgerEventCommand(service),
		IssueCredential:   ledgercommand.NewIssueCredentialCommand(service),
		RevokeCredential:  ledgercommand.NewRevokeCredentialCommand(service),
	}
	facade.queries = Queries{
		CredentialStatus:  query.NewCredentialStatusQuery(service),
		CredentialHistory: query.NewCredentialHistoryQuery(service),
		ListLedgerEvents:  query.NewListLedgerEventsQuery(service),
		DailyTotals:       query.NewDailyTotalsQuery(service),
		ListSchemas:       query.NewListSchemasQuery(service),
		GetSchema:         query.NewGetSchemaQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
