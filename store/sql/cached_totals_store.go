package sqlstore

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-credledger/core"
)

const dailyTotalsCacheKeyPrefix = "credledger::daily_totals::v1"

// CachedLedgerStore serves DailyTotals through a cache keyed by UTC day and
// a per-day generation. Writes bump the generation before and after they
// reach the base store, so a fetch that overlaps a write stores its result
// under a key no later read asks for.
type CachedLedgerStore struct {
	base     core.LedgerStore
	issuance core.IssuanceStore
	cache    repositorycache.CacheService

	mu          sync.Mutex
	generations map[string]uint64
}

func NewCachedLedgerStore(
	base core.LedgerStore,
	issuance core.IssuanceStore,
	cacheService repositorycache.CacheService,
) (*CachedLedgerStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base ledger store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: totals cache service is required")
	}
	return &CachedLedgerStore{
		base:        base,
		issuance:    issuance,
		cache:       cacheService,
		generations: map[string]uint64{},
	}, nil
}

// DailyTotalsCacheKey returns credledger::daily_totals::v1::<YYYY-MM-DD>.
func DailyTotalsCacheKey(day time.Time) string {
	return strings.Join([]string{dailyTotalsCacheKeyPrefix, core.DayKey(day)}, "::")
}

func (s *CachedLedgerStore) RecordEvent(ctx context.Context, event core.LedgerEvent) (core.LedgerEvent, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.LedgerEvent{}, fmt.Errorf("sqlstore: cached ledger store is not configured")
	}
	pending := s.bump(writeDay(event.OccurredAt))
	stored, err := s.base.RecordEvent(ctx, event)
	if err != nil {
		s.bump(pending)
		return core.LedgerEvent{}, err
	}
	if err := s.settle(ctx, pending, stored.OccurredAt); err != nil {
		return core.LedgerEvent{}, err
	}
	return stored, nil
}

func (s *CachedLedgerStore) ListEvents(ctx context.Context, limit int) ([]core.LedgerEvent, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached ledger store is not configured")
	}
	return s.base.ListEvents(ctx, limit)
}

func (s *CachedLedgerStore) DailyTotals(ctx context.Context, day time.Time) (core.DailyTotals, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.DailyTotals{}, fmt.Errorf("sqlstore: cached ledger store is not configured")
	}
	key := generationKey(day, s.generation(day))
	totals, err := repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) (core.DailyTotals, error) {
		fetched, fetchErr := s.base.DailyTotals(ctx, day)
		if fetchErr != nil {
			return core.DailyTotals{}, fetchErr
		}
		return cloneDailyTotals(fetched), nil
	})
	if err != nil {
		return core.DailyTotals{}, err
	}
	return cloneDailyTotals(totals), nil
}

func (s *CachedLedgerStore) SaveIssuance(ctx context.Context, input core.IssuanceInput) (core.IssuanceRecord, error) {
	if s == nil || s.issuance == nil || s.cache == nil {
		return core.IssuanceRecord{}, fmt.Errorf("sqlstore: cached issuance store is not configured")
	}
	if input.Event == nil {
		return s.issuance.SaveIssuance(ctx, input)
	}
	pending := s.bump(writeDay(input.Event.OccurredAt))
	record, err := s.issuance.SaveIssuance(ctx, input)
	if err != nil {
		s.bump(pending)
		return core.IssuanceRecord{}, err
	}
	occurredAt := input.Event.OccurredAt
	if record.Event != nil {
		occurredAt = record.Event.OccurredAt
	}
	if err := s.settle(ctx, pending, occurredAt); err != nil {
		return core.IssuanceRecord{}, err
	}
	return record, nil
}

func (s *CachedLedgerStore) generation(day time.Time) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[core.DayKey(day)]
}

// bump advances the generation of day and returns day for the matching
// settle call.
func (s *CachedLedgerStore) bump(day time.Time) time.Time {
	s.mu.Lock()
	s.generations[core.DayKey(day)]++
	s.mu.Unlock()
	return day
}

// settle closes a write: the generation of every touched day moves past any
// fetch that overlapped the write, and the entry of the previous generation
// is dropped.
func (s *CachedLedgerStore) settle(ctx context.Context, pending time.Time, occurredAt time.Time) error {
	days := []time.Time{pending}
	if core.DayKey(occurredAt) != core.DayKey(pending) {
		days = append(days, occurredAt)
	}
	for _, day := range days {
		s.mu.Lock()
		dayKey := core.DayKey(day)
		previous := s.generations[dayKey]
		s.generations[dayKey] = previous + 1
		s.mu.Unlock()
		if err := s.cache.Delete(ctx, generationKey(day, previous)); err != nil {
			return err
		}
	}
	return nil
}

// writeDay is the day a write lands on. The base store stamps the current
// time when OccurredAt is zero.
func writeDay(occurredAt time.Time) time.Time {
	if occurredAt.IsZero() {
		return time.Now().UTC()
	}
	return occurredAt
}

func generationKey(day time.Time, generation uint64) string {
	return DailyTotalsCacheKey(day) + "::g" + strconv.FormatUint(generation, 10)
}

func cloneDailyTotals(totals core.DailyTotals) core.DailyTotals {
	cloned := totals
	if totals.SingleCurrency() {
		cloned.Inflows = cloneBig(totals.Inflows)
		cloned.Outflows = cloneBig(totals.Outflows)
	}
	cloned.ByCurrency = make(map[string]core.CurrencyTotals, len(totals.ByCurrency))
	for currency, bucket := range totals.ByCurrency {
		cloned.ByCurrency[currency] = core.CurrencyTotals{
			Inflows:  cloneBig(bucket.Inflows),
			Outflows: cloneBig(bucket.Outflows),
			Events:   bucket.Events,
		}
	}
	return cloned
}

func cloneBig(value *big.Int) *big.Int {
	if value == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(value)
}

var (
	_ core.LedgerStore   = (*CachedLedgerStore)(nil)
	_ core.IssuanceStore = (*CachedLedgerStore)(nil)
)
