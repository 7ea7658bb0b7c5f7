package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-credledger/core"
)

// newCredentialRepository keys credential rows by their UUID text id.
func newCredentialRepository(db *bun.DB) (repository.Repository[*credentialRecord], error) {
	repo := repository.NewRepository[*credentialRecord](db, repository.ModelHandlers[*credentialRecord]{
		NewRecord: func() *credentialRecord { return &credentialRecord{} },
		GetID:     func(record *credentialRecord) uuid.UUID { return parseUUID(record.ID) },
		SetID:     func(record *credentialRecord, id uuid.UUID) { record.ID = id.String() },
	})
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	return repo, nil
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

// CredentialStore persists credentials and their append-only status log.
// It also implements core.IssuanceStore.
type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialRecord]
}

// SaveIssuance inserts the optional event, mints the credential against the
// stored event and writes the active status record in one transaction.
func (s *CredentialStore) SaveIssuance(ctx context.Context, input core.IssuanceInput) (core.IssuanceRecord, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.IssuanceRecord{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	if input.Mint == nil {
		return core.IssuanceRecord{}, fmt.Errorf("sqlstore: mint function is required")
	}
	now := input.RecordedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var out core.IssuanceRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var stored *core.LedgerEvent
		if input.Event != nil {
			record, insertErr := insertLedgerEvent(ctx, tx, *input.Event, now)
			if insertErr != nil {
				return insertErr
			}
			event := record.toDomain()
			stored = &event
		}

		credential, mintErr := input.Mint(stored)
		if mintErr != nil {
			return mintErr
		}
		if parseUUID(credential.ID).String() != strings.ToLower(strings.TrimSpace(credential.ID)) {
			return fmt.Errorf("sqlstore: credential id %q is not a uuid", credential.ID)
		}
		inserted, createErr := s.repo.CreateTx(ctx, tx, newCredentialRecord(credential, now))
		if createErr != nil {
			return createErr
		}

		status, statusErr := appendStatus(ctx, tx, inserted.ID, inserted.Type, core.StatusActive, nil, nil, now)
		if statusErr != nil {
			return statusErr
		}
		out = core.IssuanceRecord{
			Event:      stored,
			Credential: inserted.toDomain(),
			Status:     status,
		}
		return nil
	})
	if err != nil {
		return core.IssuanceRecord{}, err
	}
	return out, nil
}

func (s *CredentialStore) GetCredential(ctx context.Context, id string) (core.Credential, error) {
	if s == nil || s.repo == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	trimmed := strings.TrimSpace(id)
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", trimmed),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Credential{}, err
	}
	if len(records) == 0 {
		return core.Credential{}, fmt.Errorf("%w: id %q", core.ErrCredentialNotFound, trimmed)
	}
	return records[0].toDomain(), nil
}

// RevokeCredential sets revoked_at only while it is NULL. A call that loses
// that race, or arrives later, may still update reason and actor when they are
// supplied. Exactly one status record is appended per call.
func (s *CredentialStore) RevokeCredential(ctx context.Context, input core.RevokeInput) (core.RevokeOutcome, error) {
	if s == nil || s.db == nil {
		return core.RevokeOutcome{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	id := strings.TrimSpace(input.CredentialID)
	if id == "" {
		return core.RevokeOutcome{}, fmt.Errorf("sqlstore: credential id is required")
	}
	now := input.At.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var outcome core.RevokeOutcome
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		result, updateErr := tx.NewUpdate().
			Model((*credentialRecord)(nil)).
			Set("revoked_at = ?", now).
			Set("revocation_reason = ?", input.Reason).
			Set("revoked_by = ?", input.Actor).
			Set("updated_at = ?", now).
			Where("id = ?", id).
			Where("revoked_at IS NULL").
			Exec(ctx)
		if updateErr != nil {
			return updateErr
		}
		affected, rowsErr := result.RowsAffected()
		if rowsErr != nil {
			return rowsErr
		}
		first := affected == 1

		if !first && (input.Reason != nil || input.Actor != nil) {
			query := tx.NewUpdate().
				Model((*credentialRecord)(nil)).
				Set("updated_at = ?", now).
				Where("id = ?", id)
			if input.Reason != nil {
				query = query.Set("revocation_reason = ?", *input.Reason)
			}
			if input.Actor != nil {
				query = query.Set("revoked_by = ?", *input.Actor)
			}
			if _, err := query.Exec(ctx); err != nil {
				return err
			}
		}

		record := &credentialRecord{}
		if err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", id).
			Limit(1).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: id %q", core.ErrCredentialNotFound, id)
			}
			return err
		}

		status := core.StatusRevocationUpdated
		recordedAt := now
		if first {
			status = core.StatusRevoked
			if record.RevokedAt != nil {
				recordedAt = record.RevokedAt.UTC()
			}
		}
		appended, appendErr := appendStatus(ctx, tx, record.ID, record.Type, status, input.Reason, input.Actor, recordedAt)
		if appendErr != nil {
			return appendErr
		}
		outcome = core.RevokeOutcome{
			Credential: record.toDomain(),
			Record:     appended,
			First:      first,
		}
		return nil
	})
	if err != nil {
		return core.RevokeOutcome{}, err
	}
	return outcome, nil
}

func (s *CredentialStore) ListStatusRecords(ctx context.Context, credentialID string) ([]core.CredentialStatusRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: credential store is not configured")
	}
	var records []statusRecord
	if err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.credential_id = ?", strings.TrimSpace(credentialID)).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.CredentialStatusRecord, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

func appendStatus(
	ctx context.Context,
	db bun.IDB,
	credentialID string,
	credentialType string,
	status core.CredentialStatusValue,
	reason *string,
	actor *string,
	at time.Time,
) (core.CredentialStatusRecord, error) {
	record := &statusRecord{
		CredentialID:   credentialID,
		CredentialType: credentialType,
		Status:         string(status),
		Reason:         reason,
		Actor:          actor,
		RecordedAt:     at.UTC(),
	}
	if _, err := db.NewInsert().
		Model(record).
		Returning("id").
		Exec(ctx); err != nil {
		return core.CredentialStatusRecord{}, err
	}
	return record.toDomain(), nil
}
