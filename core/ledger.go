package core

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/goliatone/go-credledger/money"
)

// RecordEventRequest is the caller supplied shape of a ledger event.
// OccurredAt is RFC3339 and defaults to now when empty.
type RecordEventRequest struct {
	Direction   string
	Currency    string
	Amount      money.Input
	Purpose     string
	Source      string
	Beneficiary string
	OccurredAt  string
	Tags        []string
	Metadata    map[string]any
}

// RecordLedgerEvent appends a standalone event with no linked credential.
func (s *Service) RecordLedgerEvent(ctx context.Context, req RecordEventRequest) (event LedgerEvent, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"direction": req.Direction, "currency": req.Currency}
	defer func() {
		fields["ledger_event_id"] = event.ID
		s.observeOperation(ctx, startedAt, "record_ledger_event", err, fields)
	}()

	direction, ok := ParseDirection(req.Direction)
	if !ok {
		return LedgerEvent{}, InvalidInputError("direction", "direction must be INFLOW or OUTFLOW")
	}
	draft, err := s.draftEvent(direction, req)
	if err != nil {
		return LedgerEvent{}, err
	}
	if s.ledgerStore == nil {
		return LedgerEvent{}, UnconfiguredError("ledger store")
	}
	stored, err := s.ledgerStore.RecordEvent(ctx, draft)
	if err != nil {
		return LedgerEvent{}, s.mapError(err)
	}
	s.notifyLedger(ctx, stored)
	return stored, nil
}

// ListLedgerEvents returns the newest events first. Non-positive limits use
// the configured default; the result is capped at MaxListLimit.
func (s *Service) ListLedgerEvents(ctx context.Context, limit int) (events []LedgerEvent, err error) {
	startedAt := time.Now().UTC()
	limit = s.config.listLimit(limit)
	defer func() {
		s.observeOperation(ctx, startedAt, "list_ledger_events", err, map[string]any{
			"limit": limit,
			"count": len(events),
		})
	}()
	if s.ledgerStore == nil {
		return nil, UnconfiguredError("ledger store")
	}
	events, err = s.ledgerStore.ListEvents(ctx, limit)
	if err != nil {
		return nil, s.mapError(err)
	}
	if events == nil {
		events = []LedgerEvent{}
	}
	return events, nil
}

// DailyTotals aggregates the current UTC calendar day.
func (s *Service) DailyTotals(ctx context.Context) (DailyTotals, error) {
	return s.TotalsFor(ctx, s.now())
}

func (s *Service) TotalsFor(ctx context.Context, day time.Time) (totals DailyTotals, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "daily_totals", err, map[string]any{"day": DayKey(day)})
	}()
	if s.ledgerStore == nil {
		return DailyTotals{}, UnconfiguredError("ledger store")
	}
	totals, err = s.ledgerStore.DailyTotals(ctx, day)
	if err != nil {
		return DailyTotals{}, s.mapError(err)
	}
	return totals, nil
}

// draftEvent validates currency, amount and timestamp in that order. Nothing
// is persisted here.
func (s *Service) draftEvent(direction Direction, req RecordEventRequest) (LedgerEvent, error) {
	currency, err := money.NormalizeCurrency(req.Currency)
	if err != nil {
		return LedgerEvent{}, InvalidInputError("currency", "currency must be a 2 to 10 character code")
	}
	amount, err := s.resolveAmount(req.Amount, currency)
	if err != nil {
		return LedgerEvent{}, err
	}
	occurredAt, err := s.parseOccurredAt(req.OccurredAt)
	if err != nil {
		return LedgerEvent{}, err
	}
	return LedgerEvent{
		Direction:   direction,
		AmountMinor: amount,
		Currency:    currency,
		Purpose:     strings.TrimSpace(req.Purpose),
		Source:      strings.TrimSpace(req.Source),
		Beneficiary: strings.TrimSpace(req.Beneficiary),
		OccurredAt:  occurredAt,
		Tags:        cloneStrings(req.Tags),
		Metadata:    cloneSubject(req.Metadata),
	}, nil
}

func (s *Service) resolveAmount(in money.Input, currency string) (*big.Int, error) {
	field := "amount"
	if strings.TrimSpace(in.AmountMinor) != "" {
		field = "amount_minor"
	}
	if in.IsZero() {
		return nil, InvalidInputError(field, "amount or amount_minor is required")
	}
	amount, err := money.ToMinorUnits(in, currency)
	if err != nil {
		return nil, InvalidInputError(field, err.Error())
	}
	return amount, nil
}

func (s *Service) parseOccurredAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.now(), nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, InvalidInputError("occurred_at", "occurred_at must be an RFC3339 timestamp")
	}
	return parsed.UTC(), nil
}

func (s *Service) notifyLedger(ctx context.Context, event LedgerEvent) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(event)
	s.recordCounter(ctx, "ledger.feed.published", 1, map[string]string{"direction": string(event.Direction)})
}
