package command

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-credledger/core"
)

var (
	_ gocmd.Commander[IntakeMessage]            = (*IntakeCommand)(nil)
	_ gocmd.Commander[PayoutMessage]            = (*PayoutCommand)(nil)
	_ gocmd.Commander[RecordLedgerEventMessage] = (*RecordLedgerEventCommand)(nil)
	_ gocmd.Commander[IssueCredentialMessage]   = (*IssueCredentialCommand)(nil)
	_ gocmd.Commander[RevokeCredentialMessage]  = (*RevokeCredentialCommand)(nil)

	_ MutatingService = (*core.Service)(nil)
)
