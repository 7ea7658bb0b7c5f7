package core

import (
	"encoding/json"
	"math/big"
	"strings"
	"time"

	"github.com/goliatone/go-credledger/money"
	"github.com/goliatone/go-credledger/signing"
)

type Direction string

const (
	DirectionInflow  Direction = "INFLOW"
	DirectionOutflow Direction = "OUTFLOW"
)

func (d Direction) Valid() bool {
	return d == DirectionInflow || d == DirectionOutflow
}

// ParseDirection accepts the canonical upper case form and common aliases.
func ParseDirection(raw string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "INFLOW", "IN", "CREDIT":
		return DirectionInflow, true
	case "OUTFLOW", "OUT", "DEBIT":
		return DirectionOutflow, true
	default:
		return "", false
	}
}

type CredentialStatusValue string

const (
	StatusActive            CredentialStatusValue = "active"
	StatusRevoked           CredentialStatusValue = "revoked"
	StatusRevocationUpdated CredentialStatusValue = "revocation_updated"
)

// LedgerEvent is an append-only money movement. ID is assigned by the store.
type LedgerEvent struct {
	ID           int64
	Direction    Direction
	AmountMinor  *big.Int
	Currency     string
	Purpose      string
	Source       string
	Beneficiary  string
	CredentialID string
	OccurredAt   time.Time
	Tags         []string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// AmountMajor renders the minor amount in the currency's major unit.
func (e LedgerEvent) AmountMajor() string {
	return money.ToMajorString(e.AmountMinor, e.Currency)
}

type ledgerEventJSON struct {
	ID           int64          `json:"id"`
	Direction    Direction      `json:"direction"`
	AmountMinor  string         `json:"amount_minor"`
	Amount       string         `json:"amount"`
	Currency     string         `json:"currency"`
	Purpose      string         `json:"purpose,omitempty"`
	Source       string         `json:"source,omitempty"`
	Beneficiary  string         `json:"beneficiary,omitempty"`
	CredentialID string         `json:"credential_id,omitempty"`
	OccurredAt   string         `json:"occurred_at"`
	Tags         []string       `json:"tags"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (e LedgerEvent) MarshalJSON() ([]byte, error) {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(ledgerEventJSON{
		ID:           e.ID,
		Direction:    e.Direction,
		AmountMinor:  minorString(e.AmountMinor),
		Amount:       e.AmountMajor(),
		Currency:     e.Currency,
		Purpose:      e.Purpose,
		Source:       e.Source,
		Beneficiary:  e.Beneficiary,
		CredentialID: e.CredentialID,
		OccurredAt:   FormatTimestamp(e.OccurredAt),
		Tags:         tags,
		Metadata:     e.Metadata,
	})
}

// Credential is a signed document bound to a credential type. Revocation
// fields are nil until the first successful revocation.
type Credential struct {
	ID               string           `json:"id"`
	Type             string           `json:"type"`
	Issuer           string           `json:"issuer"`
	Subject          map[string]any   `json:"subject"`
	Document         signing.Document `json:"document"`
	JWS              string           `json:"jws"`
	LedgerEventID    *int64           `json:"ledger_event_id,omitempty"`
	IssuedAt         time.Time        `json:"issued_at"`
	RevokedAt        *time.Time       `json:"revoked_at,omitempty"`
	RevocationReason *string          `json:"revocation_reason,omitempty"`
	RevokedBy        *string          `json:"revoked_by,omitempty"`
}

func (c Credential) Revoked() bool {
	return c.RevokedAt != nil
}

type CredentialStatusRecord struct {
	ID             int64                 `json:"id"`
	CredentialID   string                `json:"credential_id"`
	CredentialType string                `json:"credential_type"`
	Status         CredentialStatusValue `json:"status"`
	Reason         *string               `json:"reason,omitempty"`
	Actor          *string               `json:"actor,omitempty"`
	RecordedAt     time.Time             `json:"recorded_at"`
}

type CredentialStatus struct {
	CredentialID     string                `json:"credential_id"`
	Type             string                `json:"type"`
	Status           CredentialStatusValue `json:"status"`
	Revoked          bool                  `json:"revoked"`
	IssuedAt         time.Time             `json:"issued_at"`
	RevokedAt        *time.Time            `json:"revoked_at,omitempty"`
	RevocationReason *string               `json:"revocation_reason,omitempty"`
	RevokedBy        *string               `json:"revoked_by,omitempty"`
	LedgerEventID    *int64                `json:"ledger_event_id,omitempty"`
}

func StatusOf(credential Credential) CredentialStatus {
	status := StatusActive
	if credential.Revoked() {
		status = StatusRevoked
	}
	return CredentialStatus{
		CredentialID:     credential.ID,
		Type:             credential.Type,
		Status:           status,
		Revoked:          credential.Revoked(),
		IssuedAt:         credential.IssuedAt,
		RevokedAt:        credential.RevokedAt,
		RevocationReason: credential.RevocationReason,
		RevokedBy:        credential.RevokedBy,
		LedgerEventID:    credential.LedgerEventID,
	}
}

// Receipt is the tamper-evident summary handed back after intake or payout.
type Receipt struct {
	ID            string    `json:"id"`
	LedgerEventID int64     `json:"ledger_event_id"`
	CredentialID  string    `json:"credential_id"`
	Digest        string    `json:"digest"`
	IssuedAt      time.Time `json:"issued_at"`
}

type CurrencyTotals struct {
	Inflows  *big.Int
	Outflows *big.Int
	Events   int
}

func (t CurrencyTotals) Net() *big.Int {
	return new(big.Int).Sub(zeroIfNil(t.Inflows), zeroIfNil(t.Outflows))
}

func (t CurrencyTotals) MarshalJSON() ([]byte, error) {
	return json.Marshal(totalsJSON{
		Inflows:  json.Number(minorString(t.Inflows)),
		Outflows: json.Number(minorString(t.Outflows)),
		Net:      json.Number(t.Net().String()),
		Events:   t.Events,
	})
}

type totalsJSON struct {
	Day        string                    `json:"day,omitempty"`
	Inflows    json.Number               `json:"inflows,omitempty"`
	Outflows   json.Number               `json:"outflows,omitempty"`
	Net        json.Number               `json:"net,omitempty"`
	Events     int                       `json:"events"`
	ByCurrency map[string]CurrencyTotals `json:"by_currency,omitempty"`
}

// DailyTotals aggregates one UTC day of ledger events in minor units.
// Inflows and Outflows are set only while the day holds a single currency;
// on mixed days they are nil and ByCurrency is the only view.
type DailyTotals struct {
	Day        string
	Inflows    *big.Int
	Outflows   *big.Int
	Events     int
	ByCurrency map[string]CurrencyTotals
}

func NewDailyTotals(day time.Time) DailyTotals {
	return DailyTotals{
		Day:        DayKey(day),
		Inflows:    big.NewInt(0),
		Outflows:   big.NewInt(0),
		ByCurrency: map[string]CurrencyTotals{},
	}
}

// Add folds event into the totals.
func (t *DailyTotals) Add(event LedgerEvent) {
	if t == nil || event.AmountMinor == nil {
		return
	}
	if t.ByCurrency == nil {
		t.ByCurrency = map[string]CurrencyTotals{}
	}
	bucket := t.ByCurrency[event.Currency]
	if bucket.Inflows == nil {
		bucket.Inflows = big.NewInt(0)
	}
	if bucket.Outflows == nil {
		bucket.Outflows = big.NewInt(0)
	}
	switch event.Direction {
	case DirectionInflow:
		bucket.Inflows.Add(bucket.Inflows, event.AmountMinor)
	case DirectionOutflow:
		bucket.Outflows.Add(bucket.Outflows, event.AmountMinor)
	}
	bucket.Events++
	t.Events++
	t.ByCurrency[event.Currency] = bucket

	t.Inflows, t.Outflows = nil, nil
	if len(t.ByCurrency) == 1 {
		t.Inflows = new(big.Int).Set(bucket.Inflows)
		t.Outflows = new(big.Int).Set(bucket.Outflows)
	}
}

// SingleCurrency reports whether the headline sums are meaningful.
func (t DailyTotals) SingleCurrency() bool {
	return len(t.ByCurrency) <= 1
}

// Net is nil on mixed currency days.
func (t DailyTotals) Net() *big.Int {
	if !t.SingleCurrency() {
		return nil
	}
	return new(big.Int).Sub(zeroIfNil(t.Inflows), zeroIfNil(t.Outflows))
}

func (t DailyTotals) MarshalJSON() ([]byte, error) {
	byCurrency := t.ByCurrency
	if byCurrency == nil {
		byCurrency = map[string]CurrencyTotals{}
	}
	out := totalsJSON{
		Day:        t.Day,
		Events:     t.Events,
		ByCurrency: byCurrency,
	}
	if t.SingleCurrency() {
		out.Inflows = json.Number(minorString(t.Inflows))
		out.Outflows = json.Number(minorString(t.Outflows))
		out.Net = json.Number(t.Net().String())
	}
	return json.Marshal(out)
}

// DayKey is the UTC calendar day used to bucket totals.
func DayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func minorString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func cloneSubject(subject map[string]any) map[string]any {
	out := make(map[string]any, len(subject)+1)
	for key, value := range subject {
		out[key] = value
	}
	return out
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	return append([]string(nil), values...)
}
