package sqlstore

import (
	"math/big"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-credledger/core"
	"github.com/goliatone/go-credledger/signing"
)

type ledgerEventRecord struct {
	bun.BaseModel `bun:"table:ledger_events,alias:le"`

	ID           int64          `bun:"id,pk,autoincrement"`
	Direction    string         `bun:"direction,notnull"`
	AmountMinor  string         `bun:"amount_minor,notnull"`
	Currency     string         `bun:"currency,notnull"`
	Purpose      string         `bun:"purpose,notnull"`
	Source       string         `bun:"source,notnull"`
	Beneficiary  string         `bun:"beneficiary,notnull"`
	CredentialID *string        `bun:"credential_id"`
	OccurredAt   time.Time      `bun:"occurred_at,notnull"`
	Tags         []string       `bun:"tags,type:jsonb,notnull"`
	Metadata     map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type credentialRecord struct {
	bun.BaseModel `bun:"table:credentials,alias:cr"`

	ID               string           `bun:"id,pk"`
	Type             string           `bun:"type,notnull"`
	Issuer           string           `bun:"issuer,notnull"`
	Subject          map[string]any   `bun:"subject,type:jsonb,notnull"`
	Document         signing.Document `bun:"document,type:jsonb,notnull"`
	JWS              string           `bun:"jws,notnull"`
	LedgerEventID    *int64           `bun:"ledger_event_id"`
	IssuedAt         time.Time        `bun:"issued_at,notnull"`
	RevokedAt        *time.Time       `bun:"revoked_at,nullzero"`
	RevocationReason *string          `bun:"revocation_reason"`
	RevokedBy        *string          `bun:"revoked_by"`
	CreatedAt        time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time        `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type statusRecord struct {
	bun.BaseModel `bun:"table:credential_status_records,alias:csr"`

	ID             int64     `bun:"id,pk,autoincrement"`
	CredentialID   string    `bun:"credential_id,notnull"`
	CredentialType string    `bun:"credential_type,notnull"`
	Status         string    `bun:"status,notnull"`
	Reason         *string   `bun:"reason"`
	Actor          *string   `bun:"actor"`
	RecordedAt     time.Time `bun:"recorded_at,notnull"`
}

func newLedgerEventRecord(event core.LedgerEvent, now time.Time) *ledgerEventRecord {
	occurredAt := event.OccurredAt.UTC()
	if occurredAt.IsZero() {
		occurredAt = now
	}
	tags := event.Tags
	if tags == nil {
		tags = []string{}
	}
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	record := &ledgerEventRecord{
		Direction:   string(event.Direction),
		AmountMinor: "0",
		Currency:    event.Currency,
		Purpose:     event.Purpose,
		Source:      event.Source,
		Beneficiary: event.Beneficiary,
		OccurredAt:  occurredAt,
		Tags:        tags,
		Metadata:    metadata,
		CreatedAt:   now,
	}
	if event.AmountMinor != nil {
		record.AmountMinor = event.AmountMinor.String()
	}
	if event.CredentialID != "" {
		id := event.CredentialID
		record.CredentialID = &id
	}
	return record
}

func (r *ledgerEventRecord) toDomain() core.LedgerEvent {
	amount, ok := new(big.Int).SetString(r.AmountMinor, 10)
	if !ok {
		amount = big.NewInt(0)
	}
	event := core.LedgerEvent{
		ID:          r.ID,
		Direction:   core.Direction(r.Direction),
		AmountMinor: amount,
		Currency:    r.Currency,
		Purpose:     r.Purpose,
		Source:      r.Source,
		Beneficiary: r.Beneficiary,
		OccurredAt:  r.OccurredAt.UTC(),
		Tags:        append([]string{}, r.Tags...),
		Metadata:    copyAnyMap(r.Metadata),
		CreatedAt:   r.CreatedAt.UTC(),
	}
	if r.CredentialID != nil {
		event.CredentialID = *r.CredentialID
	}
	return event
}

func newCredentialRecord(credential core.Credential, now time.Time) *credentialRecord {
	subject := credential.Subject
	if subject == nil {
		subject = map[string]any{}
	}
	issuedAt := credential.IssuedAt.UTC()
	if issuedAt.IsZero() {
		issuedAt = now
	}
	return &credentialRecord{
		ID:            credential.ID,
		Type:          credential.Type,
		Issuer:        credential.Issuer,
		Subject:       subject,
		Document:      credential.Document,
		JWS:           credential.JWS,
		LedgerEventID: credential.LedgerEventID,
		IssuedAt:      issuedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (r *credentialRecord) toDomain() core.Credential {
	credential := core.Credential{
		ID:               r.ID,
		Type:             r.Type,
		Issuer:           r.Issuer,
		Subject:          copyAnyMap(r.Subject),
		Document:         r.Document,
		JWS:              r.JWS,
		LedgerEventID:    r.LedgerEventID,
		IssuedAt:         r.IssuedAt.UTC(),
		RevocationReason: r.RevocationReason,
		RevokedBy:        r.RevokedBy,
	}
	if r.RevokedAt != nil {
		revokedAt := r.RevokedAt.UTC()
		credential.RevokedAt = &revokedAt
	}
	return credential
}

func (r *statusRecord) toDomain() core.CredentialStatusRecord {
	return core.CredentialStatusRecord{
		ID:             r.ID,
		CredentialID:   r.CredentialID,
		CredentialType: r.CredentialType,
		Status:         core.CredentialStatusValue(r.Status),
		Reason:         r.Reason,
		Actor:          r.Actor,
		RecordedAt:     r.RecordedAt.UTC(),
	}
}

func copyAnyMap(source map[string]any) map[string]any {
	if len(source) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(source))
	for key, value := range source {
		out[key] = value
	}
	return out
}
