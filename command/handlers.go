package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-credledger/core"
)

type MutatingService interface {
	Intake(ctx context.Context, req core.IntakeRequest) (core.IntakeResult, error)
	Payout(ctx context.Context, req core.PayoutRequest) (core.PayoutResult, error)
	RecordLedgerEvent(ctx context.Context, req core.RecordEventRequest) (core.LedgerEvent, error)
	Issue(ctx context.Context, req core.IssueRequest) (core.IssueResult, error)
	Revoke(ctx context.Context, req core.RevokeRequest) (core.CredentialStatus, error)
}

type IntakeCommand struct {
	service MutatingService
}

func NewIntakeCommand(service MutatingService) *IntakeCommand {
	return &IntakeCommand{service: service}
}

func (c *IntakeCommand) Execute(ctx context.Context, msg IntakeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: intake service is required")
	}
	out, err := c.service.Intake(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PayoutCommand struct {
	service MutatingService
}

func NewPayoutCommand(service MutatingService) *PayoutCommand {
	return &PayoutCommand{service: service}
}

func (c *PayoutCommand) Execute(ctx context.Context, msg PayoutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: payout service is required")
	}
	out, err := c.service.Payout(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RecordLedgerEventCommand struct {
	service MutatingService
}

func NewRecordLedgerEventCommand(service MutatingService) *RecordLedgerEventCommand {
	return &RecordLedgerEventCommand{service: service}
}

func (c *RecordLedgerEventCommand) Execute(ctx context.Context, msg RecordLedgerEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ledger service is required")
	}
	out, err := c.service.RecordLedgerEvent(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type IssueCredentialCommand struct {
	service MutatingService
}

func NewIssueCredentialCommand(service MutatingService) *IssueCredentialCommand {
	return &IssueCredentialCommand{service: service}
}

func (c *IssueCredentialCommand) Execute(ctx context.Context, msg IssueCredentialMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: issuance service is required")
	}
	out, err := c.service.Issue(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RevokeCredentialCommand struct {
	service MutatingService
}

func NewRevokeCredentialCommand(service MutatingService) *RevokeCredentialCommand {
	return &RevokeCredentialCommand{service: service}
}

func (c *RevokeCredentialCommand) Execute(ctx context.Context, msg RevokeCredentialMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: revocation service is required")
	}
	out, err := c.service.Revoke(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
