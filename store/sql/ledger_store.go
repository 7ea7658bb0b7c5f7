package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-credledger/core"
)

// LedgerStore appends ledger events. Rows are never updated.
type LedgerStore struct {
	db *bun.DB
}

func NewLedgerStore(db *bun.DB) (*LedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &LedgerStore{db: db}, nil
}

func (s *LedgerStore) RecordEvent(ctx context.Context, event core.LedgerEvent) (core.LedgerEvent, error) {
	if s == nil || s.db == nil {
		return core.LedgerEvent{}, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	record, err := insertLedgerEvent(ctx, s.db, event, time.Now().UTC())
	if err != nil {
		return core.LedgerEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *LedgerStore) ListEvents(ctx context.Context, limit int) ([]core.LedgerEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	if limit <= 0 {
		limit = core.DefaultListLimit
	}
	var records []ledgerEventRecord
	if err := s.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.id DESC").
		Limit(limit).
		Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.LedgerEvent, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

// DailyTotals sums the UTC calendar day containing day. Amounts are summed in
// Go since minor units may exceed any SQL integer type.
func (s *LedgerStore) DailyTotals(ctx context.Context, day time.Time) (core.DailyTotals, error) {
	if s == nil || s.db == nil {
		return core.DailyTotals{}, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	start, end := dayBounds(day)
	var records []ledgerEventRecord
	if err := s.db.NewSelect().
		Model(&records).
		Column("id", "direction", "amount_minor", "currency", "occurred_at").
		Where("?TableAlias.occurred_at >= ?", start).
		Where("?TableAlias.occurred_at < ?", end).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx); err != nil {
		return core.DailyTotals{}, err
	}
	totals := core.NewDailyTotals(start)
	for i := range records {
		totals.Add(records[i].toDomain())
	}
	return totals, nil
}

func insertLedgerEvent(ctx context.Context, db bun.IDB, event core.LedgerEvent, now time.Time) (*ledgerEventRecord, error) {
	if !event.Direction.Valid() {
		return nil, fmt.Errorf("sqlstore: invalid ledger direction %q", event.Direction)
	}
	if event.AmountMinor == nil || event.AmountMinor.Sign() < 0 {
		return nil, fmt.Errorf("sqlstore: ledger amount must be a non-negative integer")
	}
	record := newLedgerEventRecord(event, now)
	if _, err := db.NewInsert().
		Model(record).
		Returning("id").
		Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	utc := day.UTC()
	start := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
