package core

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-credledger/canonical"
	"github.com/goliatone/go-credledger/money"
)

type IntakeRequest struct {
	Currency   string
	Amount     money.Input
	Method     string
	OccurredAt string
	Reference  string
	Donor      string
	Metadata   map[string]any
}

type IntakeResult struct {
	LedgerEvent LedgerEvent `json:"ledger_event"`
	Credential  Credential  `json:"credential"`
	Receipt     Receipt     `json:"receipt"`
}

type PayoutRequest struct {
	Currency    string
	Amount      money.Input
	Beneficiary string
	Method      string
	Purpose     string
	OccurredAt  string
	Reference   string
	Metadata    map[string]any
}

type PayoutResult struct {
	LedgerEvent LedgerEvent `json:"ledger_event"`
	Credential  Credential  `json:"credential"`
}

// Intake records an inflow and issues the configured intake credential with
// a receipt. Input is validated before any write.
func (s *Service) Intake(ctx context.Context, req IntakeRequest) (result IntakeResult, err error) {
	startedAt := time.Now().UTC()
	credentialType := s.config.Credentials.IntakeType
	fields := map[string]any{
		"credential_type": credentialType,
		"direction":       string(DirectionInflow),
		"currency":        req.Currency,
		"method":          req.Method,
	}
	defer func() {
		fields["ledger_event_id"] = result.LedgerEvent.ID
		fields["credential_id"] = result.Credential.ID
		s.observeOperation(ctx, startedAt, "intake", err, fields)
	}()

	currency, err := money.NormalizeCurrency(req.Currency)
	if err != nil {
		return IntakeResult{}, InvalidInputError("currency", "currency must be a 2 to 10 character code")
	}
	if !s.config.MethodAllowed(req.Method) {
		return IntakeResult{}, InvalidInputError("method", "method is not accepted")
	}
	method := normalizeMethod(req.Method)

	metadata := cloneSubject(req.Metadata)
	if reference := strings.TrimSpace(req.Reference); reference != "" {
		metadata["reference"] = reference
	}
	if donor := strings.TrimSpace(req.Donor); donor != "" {
		metadata["donor"] = donor
	}
	draft, err := s.draftEvent(DirectionInflow, RecordEventRequest{
		Currency:   currency,
		Amount:     req.Amount,
		Purpose:    "donation",
		Source:     method,
		OccurredAt: req.OccurredAt,
		Tags:       []string{"intake", method},
		Metadata:   metadata,
	})
	if err != nil {
		return IntakeResult{}, err
	}

	subject := eventSubject("intake", draft)
	subject["method"] = method
	copyOptional(subject, "reference", req.Reference)
	copyOptional(subject, "donor", req.Donor)

	record, err := s.issueCredential(ctx, credentialType, subject, &draft)
	if err != nil {
		return IntakeResult{}, err
	}
	event := *record.Event

	result = IntakeResult{LedgerEvent: event, Credential: record.Credential}

	// The event and credential are committed at this point; a receipt
	// failure leaves the result without one instead of reporting a failed
	// intake.
	receipt, receiptErr := s.buildReceipt(event, record.Credential)
	if receiptErr != nil {
		s.logError(ctx, "intake receipt build failed", map[string]any{
			"ledger_event_id": event.ID,
			"credential_id":   record.Credential.ID,
			"error":           receiptErr.Error(),
		})
		return result, nil
	}
	s.auditReceipt(ctx, ReceiptAudit{Receipt: receipt, Event: event, Type: credentialType})
	result.Receipt = receipt
	return result, nil
}

// Payout records an outflow to a beneficiary and issues the configured
// payout attestation.
func (s *Service) Payout(ctx context.Context, req PayoutRequest) (result PayoutResult, err error) {
	startedAt := time.Now().UTC()
	credentialType := s.config.Credentials.PayoutType
	fields := map[string]any{
		"credential_type": credentialType,
		"direction":       string(DirectionOutflow),
		"currency":        req.Currency,
	}
	defer func() {
		fields["ledger_event_id"] = result.LedgerEvent.ID
		fields["credential_id"] = result.Credential.ID
		s.observeOperation(ctx, startedAt, "payout", err, fields)
	}()

	currency, err := money.NormalizeCurrency(req.Currency)
	if err != nil {
		return PayoutResult{}, InvalidInputError("currency", "currency must be a 2 to 10 character code")
	}
	method := ""
	if strings.TrimSpace(req.Method) != "" {
		if !s.config.MethodAllowed(req.Method) {
			return PayoutResult{}, InvalidInputError("method", "method is not accepted")
		}
		method = normalizeMethod(req.Method)
	}
	beneficiary := strings.TrimSpace(req.Beneficiary)
	if beneficiary == "" {
		return PayoutResult{}, InvalidInputError("beneficiary", "beneficiary is required")
	}
	purpose := strings.TrimSpace(req.Purpose)
	if purpose == "" {
		purpose = "payout"
	}

	metadata := cloneSubject(req.Metadata)
	if reference := strings.TrimSpace(req.Reference); reference != "" {
		metadata["reference"] = reference
	}
	tags := []string{"payout"}
	if method != "" {
		tags = append(tags, method)
	}
	draft, err := s.draftEvent(DirectionOutflow, RecordEventRequest{
		Currency:    currency,
		Amount:      req.Amount,
		Purpose:     purpose,
		Source:      s.issuerID(),
		Beneficiary: beneficiary,
		OccurredAt:  req.OccurredAt,
		Tags:        tags,
		Metadata:    metadata,
	})
	if err != nil {
		return PayoutResult{}, err
	}

	subject := eventSubject("payout", draft)
	subject["beneficiary"] = beneficiary
	subject["purpose"] = purpose
	copyOptional(subject, "method", method)
	copyOptional(subject, "reference", req.Reference)

	record, err := s.issueCredential(ctx, credentialType, subject, &draft)
	if err != nil {
		return PayoutResult{}, err
	}
	return PayoutResult{LedgerEvent: *record.Event, Credential: record.Credential}, nil
}

// ListSchemas returns the slugs of the active schema catalog.
func (s *Service) ListSchemas(context.Context) ([]string, error) {
	if s.schemaCatalog == nil {
		return nil, UnconfiguredError("schema catalog")
	}
	slugs := s.schemaCatalog.Slugs()
	if slugs == nil {
		slugs = []string{}
	}
	return slugs, nil
}

func (s *Service) GetSchema(_ context.Context, slug string) (json.RawMessage, error) {
	if s.schemaCatalog == nil {
		return nil, UnconfiguredError("schema catalog")
	}
	raw, ok := s.schemaCatalog.Schema(strings.TrimSpace(slug))
	if !ok {
		return nil, s.mapError(ErrSchemaNotFound)
	}
	return raw, nil
}

// buildReceipt digests the canonical form of the stored event.
func (s *Service) buildReceipt(event LedgerEvent, credential Credential) (Receipt, error) {
	digest, err := canonical.Digest(event)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{
		ID:            s.newID(),
		LedgerEventID: event.ID,
		CredentialID:  credential.ID,
		Digest:        digest,
		IssuedAt:      credential.IssuedAt,
	}, nil
}

func (s *Service) auditReceipt(ctx context.Context, receipt ReceiptAudit) {
	if s.auditSink == nil {
		return
	}
	if err := s.auditSink.AppendReceipt(ctx, receipt); err != nil {
		s.logWarn(ctx, "audit receipt append failed", map[string]any{
			"receipt_id":    receipt.Receipt.ID,
			"credential_id": receipt.Receipt.CredentialID,
			"error":         err.Error(),
		})
	}
}

func (s *Service) issuerID() string {
	if s.issuer != nil {
		if id := strings.TrimSpace(s.issuer.IssuerID()); id != "" {
			return id
		}
	}
	return s.config.Issuer.ID
}

// eventSubject carries the money fields of a drafted event into a
// credential subject. Amounts are strings so no float ever appears.
func eventSubject(kind string, event LedgerEvent) map[string]any {
	return map[string]any{
		"type":         kind,
		"direction":    string(event.Direction),
		"amount_minor": minorString(event.AmountMinor),
		"amount":       event.AmountMajor(),
		"currency":     event.Currency,
		"occurred_at":  FormatTimestamp(event.OccurredAt),
	}
}

func copyOptional(target map[string]any, key string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		target[key] = value
	}
}
