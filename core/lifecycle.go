package core

import (
	"context"
	"strings"
	"time"
)

type IssueRequest struct {
	Type    string
	Subject map[string]any
	// Event, when set, is recorded in the same transaction as the credential.
	Event *RecordEventRequest
}

type IssueResult struct {
	Credential Credential
	Event      *LedgerEvent
	Status     CredentialStatusRecord
}

type RevokeRequest struct {
	CredentialID string
	Reason       string
	Actor        string
}

// Issue mints a credential of a recognized type, optionally linked to a new
// ledger event.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (result IssueResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"credential_type": req.Type}
	defer func() {
		fields["credential_id"] = result.Credential.ID
		s.observeOperation(ctx, startedAt, "issue_credential", err, fields)
	}()

	var draft *LedgerEvent
	if req.Event != nil {
		direction, ok := ParseDirection(req.Event.Direction)
		if !ok {
			return IssueResult{}, InvalidInputError("direction", "direction must be INFLOW or OUTFLOW")
		}
		event, draftErr := s.draftEvent(direction, *req.Event)
		if draftErr != nil {
			return IssueResult{}, draftErr
		}
		draft = &event
	}
	record, err := s.issueCredential(ctx, strings.TrimSpace(req.Type), req.Subject, draft)
	if err != nil {
		return IssueResult{}, err
	}
	return IssueResult{Credential: record.Credential, Event: record.Event, Status: record.Status}, nil
}

// issueCredential runs the trust gate and schema check before any write, then
// persists the optional event, the signed credential and its active status
// record atomically.
func (s *Service) issueCredential(
	ctx context.Context,
	credentialType string,
	subject map[string]any,
	draft *LedgerEvent,
) (IssuanceRecord, error) {
	if credentialType == "" {
		return IssuanceRecord{}, InvalidInputError("type", "credential type is required")
	}
	if s.trustGate == nil {
		return IssuanceRecord{}, UnconfiguredError("trust registry")
	}
	if !s.trustGate.IsRecognized(credentialType) {
		return IssuanceRecord{}, NotRecognizedError(credentialType)
	}
	subject = cloneSubject(subject)
	if result := s.trustGate.Validate(credentialType, subject); !result.Valid {
		return IssuanceRecord{}, SchemaValidationError(credentialType, result.Errors)
	}
	if s.issuer == nil {
		return IssuanceRecord{}, UnconfiguredError("credential signer")
	}
	if s.issuanceStore == nil {
		return IssuanceRecord{}, UnconfiguredError("credential store")
	}

	credentialID := s.newID()
	issuedAt := s.now()
	if draft != nil {
		draft.CredentialID = credentialID
	}
	mint := func(stored *LedgerEvent) (Credential, error) {
		signed := cloneSubject(subject)
		var eventID *int64
		if stored != nil {
			id := stored.ID
			eventID = &id
			signed["ledger_event_id"] = id
		}
		document, err := s.issuer.Issue(credentialID, credentialType, signed)
		if err != nil {
			return Credential{}, err
		}
		return Credential{
			ID:            credentialID,
			Type:          credentialType,
			Issuer:        s.issuer.IssuerID(),
			Subject:       signed,
			Document:      document,
			JWS:           document.Proof.JWS,
			LedgerEventID: eventID,
			IssuedAt:      issuedAt,
		}, nil
	}

	record, err := s.issuanceStore.SaveIssuance(ctx, IssuanceInput{
		Event:      draft,
		Mint:       mint,
		RecordedAt: issuedAt,
	})
	if err != nil {
		return IssuanceRecord{}, s.mapError(err)
	}

	s.auditStatus(ctx, record.Status)
	if record.Event != nil {
		s.notifyLedger(ctx, *record.Event)
	}
	return record, nil
}

// Revoke marks a credential revoked. The first call fixes revoked_at; later
// calls only update reason and actor when supplied. Each call appends one
// status record.
func (s *Service) Revoke(ctx context.Context, req RevokeRequest) (status CredentialStatus, err error) {
	startedAt := time.Now().UTC()
	credentialID := strings.TrimSpace(req.CredentialID)
	fields := map[string]any{"credential_id": credentialID}
	defer func() {
		fields["credential_type"] = status.Type
		s.observeOperation(ctx, startedAt, "revoke_credential", err, fields)
	}()

	if credentialID == "" {
		return CredentialStatus{}, InvalidInputError("id", "credential id is required")
	}
	if s.credentialStore == nil {
		return CredentialStatus{}, UnconfiguredError("credential store")
	}
	outcome, err := s.credentialStore.RevokeCredential(ctx, RevokeInput{
		CredentialID: credentialID,
		Reason:       optionalString(req.Reason),
		Actor:        optionalString(req.Actor),
		At:           s.now(),
	})
	if err != nil {
		return CredentialStatus{}, s.mapError(err)
	}
	fields["first_revocation"] = outcome.First
	s.auditStatus(ctx, outcome.Record)
	return StatusOf(outcome.Credential), nil
}

func (s *Service) CredentialStatus(ctx context.Context, id string) (status CredentialStatus, err error) {
	startedAt := time.Now().UTC()
	id = strings.TrimSpace(id)
	defer func() {
		s.observeOperation(ctx, startedAt, "credential_status", err, map[string]any{"credential_id": id})
	}()
	credential, err := s.getCredential(ctx, id)
	if err != nil {
		return CredentialStatus{}, err
	}
	return StatusOf(credential), nil
}

func (s *Service) GetCredential(ctx context.Context, id string) (Credential, error) {
	return s.getCredential(ctx, strings.TrimSpace(id))
}

// CredentialHistory lists status records oldest first.
func (s *Service) CredentialHistory(ctx context.Context, id string) (records []CredentialStatusRecord, err error) {
	startedAt := time.Now().UTC()
	id = strings.TrimSpace(id)
	defer func() {
		s.observeOperation(ctx, startedAt, "credential_history", err, map[string]any{
			"credential_id": id,
			"count":         len(records),
		})
	}()
	if _, err = s.getCredential(ctx, id); err != nil {
		return nil, err
	}
	records, err = s.credentialStore.ListStatusRecords(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}
	if records == nil {
		records = []CredentialStatusRecord{}
	}
	return records, nil
}

func (s *Service) getCredential(ctx context.Context, id string) (Credential, error) {
	if id == "" {
		return Credential{}, InvalidInputError("id", "credential id is required")
	}
	if s.credentialStore == nil {
		return Credential{}, UnconfiguredError("credential store")
	}
	credential, err := s.credentialStore.GetCredential(ctx, id)
	if err != nil {
		return Credential{}, s.mapError(err)
	}
	return credential, nil
}

func (s *Service) auditStatus(ctx context.Context, record CredentialStatusRecord) {
	if s.auditSink == nil {
		return
	}
	if err := s.auditSink.AppendStatus(ctx, record); err != nil {
		s.logWarn(ctx, "audit status append failed", map[string]any{
			"credential_id": record.CredentialID,
			"status":        string(record.Status),
			"error":         err.Error(),
		})
	}
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
