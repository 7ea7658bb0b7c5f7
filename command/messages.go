package command

import (
	"strings"

	"github.com/goliatone/go-credledger/core"
)

const (
	TypeIntake            = "credledger.command.intake"
	TypePayout            = "credledger.command.payout"
	TypeRecordLedgerEvent = "credledger.command.ledger_event.record"
	TypeIssueCredential   = "credledger.command.credential.issue"
	TypeRevokeCredential  = "credledger.command.credential.revoke"
)

type IntakeMessage struct {
	Request core.IntakeRequest
}

func (IntakeMessage) Type() string { return TypeIntake }

func (m IntakeMessage) Validate() error {
	if strings.TrimSpace(m.Request.Currency) == "" {
		return commandValidationError("currency", "currency is required")
	}
	if m.Request.Amount.IsZero() {
		return commandValidationError("amount", "amount or amount_minor is required")
	}
	if strings.TrimSpace(m.Request.Method) == "" {
		return commandValidationError("method", "method is required")
	}
	return nil
}

type PayoutMessage struct {
	Request core.PayoutRequest
}

func (PayoutMessage) Type() string { return TypePayout }

func (m PayoutMessage) Validate() error {
	if strings.TrimSpace(m.Request.Currency) == "" {
		return commandValidationError("currency", "currency is required")
	}
	if m.Request.Amount.IsZero() {
		return commandValidationError("amount", "amount or amount_minor is required")
	}
	if strings.TrimSpace(m.Request.Beneficiary) == "" {
		return commandValidationError("beneficiary", "beneficiary is required")
	}
	return nil
}

type RecordLedgerEventMessage struct {
	Request core.RecordEventRequest
}

func (RecordLedgerEventMessage) Type() string { return TypeRecordLedgerEvent }

func (m RecordLedgerEventMessage) Validate() error {
	if _, ok := core.ParseDirection(m.Request.Direction); !ok {
		return commandValidationError("direction", "direction must be INFLOW or OUTFLOW")
	}
	if strings.TrimSpace(m.Request.Currency) == "" {
		return commandValidationError("currency", "currency is required")
	}
	if m.Request.Amount.IsZero() {
		return commandValidationError("amount", "amount or amount_minor is required")
	}
	return nil
}

type IssueCredentialMessage struct {
	Request core.IssueRequest
}

func (IssueCredentialMessage) Type() string { return TypeIssueCredential }

func (m IssueCredentialMessage) Validate() error {
	if strings.TrimSpace(m.Request.Type) == "" {
		return commandValidationError("type", "credential type is required")
	}
	if m.Request.Event != nil {
		return RecordLedgerEventMessage{Request: *m.Request.Event}.Validate()
	}
	return nil
}

type RevokeCredentialMessage struct {
	Request core.RevokeRequest
}

func (RevokeCredentialMessage) Type() string { return TypeRevokeCredential }

func (m RevokeCredentialMessage) Validate() error {
	if strings.TrimSpace(m.Request.CredentialID) == "" {
		return commandValidationError("id", "credential id is required")
	}
	return nil
}
