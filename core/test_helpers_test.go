package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-credledger/signing"
)

type memoryStores struct {
	mu          sync.Mutex
	nextEventID int64
	nextRecord  int64
	events      []LedgerEvent
	credentials map[string]Credential
	records     []CredentialStatusRecord
	failSave    error
}

func newMemoryStores() *memoryStores {
	return &memoryStores{credentials: map[string]Credential{}}
}

func (m *memoryStores) LedgerStore() LedgerStore         { return m }
func (m *memoryStores) IssuanceStore() IssuanceStore     { return m }
func (m *memoryStores) CredentialStore() CredentialStore { return m }

func (m *memoryStores) RecordEvent(_ context.Context, event LedgerEvent) (LedgerEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertEventLocked(event), nil
}

func (m *memoryStores) insertEventLocked(event LedgerEvent) LedgerEvent {
	m.nextEventID++
	event.ID = m.nextEventID
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	event.CreatedAt = time.Now().UTC()
	m.events = append(m.events, event)
	return event
}

func (m *memoryStores) ListEvents(_ context.Context, limit int) ([]LedgerEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LedgerEvent, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

func (m *memoryStores) DailyTotals(_ context.Context, day time.Time) (DailyTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	totals := NewDailyTotals(day)
	for _, event := range m.events {
		if DayKey(event.OccurredAt) == totals.Day {
			totals.Add(event)
		}
	}
	return totals, nil
}

func (m *memoryStores) SaveIssuance(_ context.Context, input IssuanceInput) (IssuanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return IssuanceRecord{}, m.failSave
	}
	eventCount := len(m.events)
	nextID := m.nextEventID
	var stored *LedgerEvent
	if input.Event != nil {
		event := m.insertEventLocked(*input.Event)
		stored = &event
	}
	credential, err := input.Mint(stored)
	if err != nil {
		m.events = m.events[:eventCount]
		m.nextEventID = nextID
		return IssuanceRecord{}, err
	}
	m.credentials[credential.ID] = credential
	record := m.appendRecordLocked(credential, StatusActive, nil, nil, input.RecordedAt)
	return IssuanceRecord{Event: stored, Credential: credential, Status: record}, nil
}

func (m *memoryStores) appendRecordLocked(
	credential Credential,
	status CredentialStatusValue,
	reason *string,
	actor *string,
	at time.Time,
) CredentialStatusRecord {
	m.nextRecord++
	record := CredentialStatusRecord{
		ID:             m.nextRecord,
		CredentialID:   credential.ID,
		CredentialType: credential.Type,
		Status:         status,
		Reason:         reason,
		Actor:          actor,
		RecordedAt:     at,
	}
	m.records = append(m.records, record)
	return record
}

func (m *memoryStores) GetCredential(_ context.Context, id string) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	credential, ok := m.credentials[id]
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}
	return credential, nil
}

func (m *memoryStores) RevokeCredential(_ context.Context, input RevokeInput) (RevokeOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	credential, ok := m.credentials[input.CredentialID]
	if !ok {
		return RevokeOutcome{}, ErrCredentialNotFound
	}
	first := credential.RevokedAt == nil
	status := StatusRevocationUpdated
	if first {
		at := input.At
		credential.RevokedAt = &at
		status = StatusRevoked
	}
	if input.Reason != nil {
		credential.RevocationReason = input.Reason
	}
	if input.Actor != nil {
		credential.RevokedBy = input.Actor
	}
	m.credentials[credential.ID] = credential
	record := m.appendRecordLocked(credential, status, input.Reason, input.Actor, input.At)
	return RevokeOutcome{Credential: credential, Record: record, First: first}, nil
}

func (m *memoryStores) ListStatusRecords(_ context.Context, credentialID string) ([]CredentialStatusRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []CredentialStatusRecord{}
	for _, record := range m.records {
		if record.CredentialID == credentialID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *memoryStores) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type stubGate struct {
	recognized map[string]bool
	errors     map[string][]goerrors.FieldError
	slugs      map[string]string
}

func newStubGate(types ...string) *stubGate {
	gate := &stubGate{
		recognized: map[string]bool{},
		errors:     map[string][]goerrors.FieldError{},
		slugs:      map[string]string{},
	}
	for _, credentialType := range types {
		gate.recognized[credentialType] = true
	}
	return gate
}

func (g *stubGate) IsRecognized(credentialType string) bool {
	return g.recognized[credentialType]
}

func (g *stubGate) Validate(credentialType string, _ map[string]any) SchemaResult {
	if fields := g.errors[credentialType]; len(fields) > 0 {
		return SchemaResult{Valid: false, Errors: fields}
	}
	return SchemaResult{Valid: true}
}

func (g *stubGate) Slugs() []string {
	out := make([]string, 0, len(g.slugs))
	for slug := range g.slugs {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

func (g *stubGate) Schema(slug string) (json.RawMessage, bool) {
	raw, ok := g.slugs[slug]
	return json.RawMessage(raw), ok
}

type stubIssuer struct {
	err   error
	calls int
}

func (i *stubIssuer) IssuerID() string { return "did:web:ledger.example" }

func (i *stubIssuer) Issue(id string, credentialType string, subject map[string]any) (signing.Document, error) {
	i.calls++
	if i.err != nil {
		return signing.Document{}, i.err
	}
	return signing.Document{
		Credential: signing.Envelope{
			ID:                "urn:uuid:" + id,
			Type:              []string{signing.BaseCredentialType, credentialType},
			Issuer:            i.IssuerID(),
			CredentialSubject: subject,
		},
		Proof: signing.Proof{Type: signing.ProofType, JWS: "header.payload.sig-" + id},
	}, nil
}

type memoryAudit struct {
	mu       sync.Mutex
	err      error
	statuses []CredentialStatusRecord
	receipts []ReceiptAudit
}

func (a *memoryAudit) AppendStatus(_ context.Context, record CredentialStatusRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.statuses = append(a.statuses, record)
	return nil
}

func (a *memoryAudit) AppendReceipt(_ context.Context, receipt ReceiptAudit) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.receipts = append(a.receipts, receipt)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []LedgerEvent
}

func (n *recordingNotifier) Publish(event LedgerEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fixture struct {
	svc      *Service
	stores   *memoryStores
	gate     *stubGate
	issuer   *stubIssuer
	audit    *memoryAudit
	notifier *recordingNotifier
	now      time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		stores:   newMemoryStores(),
		gate:     newStubGate("DonationReceipt", "PayoutAttestation", "MembershipBadge"),
		issuer:   &stubIssuer{},
		audit:    &memoryAudit{},
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC),
	}
	sequence := 0
	base := []Option{
		WithStoreProvider(f.stores),
		WithTrustGate(f.gate),
		WithCredentialIssuer(f.issuer),
		WithAuditSink(f.audit),
		WithLedgerNotifier(f.notifier),
		WithClock(func() time.Time { return f.now }),
		WithIDGenerator(func() string {
			sequence++
			return fmt.Sprintf("id-%03d", sequence)
		}),
	}
	svc, err := NewService(Config{}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func textCodeOf(err error) string {
	var richErr *goerrors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}
