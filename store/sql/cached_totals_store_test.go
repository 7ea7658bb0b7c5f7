package sqlstore

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-credledger/core"
)

type stubLedgerStore struct {
	mu          sync.Mutex
	events      []core.LedgerEvent
	totalsCalls int
	totalsErr   error
}

func (s *stubLedgerStore) RecordEvent(_ context.Context, event core.LedgerEvent) (core.LedgerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.ID = int64(len(s.events) + 1)
	s.events = append(s.events, event)
	return event, nil
}

func (s *stubLedgerStore) ListEvents(_ context.Context, _ int) ([]core.LedgerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.LedgerEvent(nil), s.events...), nil
}

func (s *stubLedgerStore) DailyTotals(_ context.Context, day time.Time) (core.DailyTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalsCalls++
	if s.totalsErr != nil {
		return core.DailyTotals{}, s.totalsErr
	}
	totals := core.NewDailyTotals(day)
	for _, event := range s.events {
		if core.DayKey(event.OccurredAt) == core.DayKey(day) {
			totals.Add(event)
		}
	}
	return totals, nil
}

type stubIssuanceStore struct {
	ledger *stubLedgerStore
	calls  int
}

func (s *stubIssuanceStore) SaveIssuance(ctx context.Context, input core.IssuanceInput) (core.IssuanceRecord, error) {
	s.calls++
	var stored *core.LedgerEvent
	if input.Event != nil {
		event, err := s.ledger.RecordEvent(ctx, *input.Event)
		if err != nil {
			return core.IssuanceRecord{}, err
		}
		stored = &event
	}
	credential, err := input.Mint(stored)
	if err != nil {
		return core.IssuanceRecord{}, err
	}
	return core.IssuanceRecord{Event: stored, Credential: credential}, nil
}

func TestCachedLedgerStore_DailyTotals_MissFetchThenHit(t *testing.T) {
	base := &stubLedgerStore{}
	store := newTestCachedLedgerStore(t, base)
	day := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	seedEvent(t, base, core.DirectionInflow, 1000, day)

	first, err := store.DailyTotals(context.Background(), day)
	if err != nil {
		t.Fatalf("first totals: %v", err)
	}
	if first.Inflows.Int64() != 1000 {
		t.Fatalf("expected inflows=1000, got %s", first.Inflows)
	}
	if _, err := store.DailyTotals(context.Background(), day); err != nil {
		t.Fatalf("second totals: %v", err)
	}
	if base.totalsCalls != 1 {
		t.Fatalf("expected second read to be a cache hit, base calls=%d", base.totalsCalls)
	}
}

func TestCachedLedgerStore_RecordEventInvalidatesDay(t *testing.T) {
	base := &stubLedgerStore{}
	store := newTestCachedLedgerStore(t, base)
	day := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	if _, err := store.DailyTotals(context.Background(), day); err != nil {
		t.Fatalf("prime totals: %v", err)
	}
	if _, err := store.RecordEvent(context.Background(), core.LedgerEvent{
		Direction:   core.DirectionOutflow,
		AmountMinor: big.NewInt(400),
		Currency:    "USD",
		OccurredAt:  day.Add(time.Hour),
	}); err != nil {
		t.Fatalf("record event: %v", err)
	}

	totals, err := store.DailyTotals(context.Background(), day)
	if err != nil {
		t.Fatalf("totals after write: %v", err)
	}
	if base.totalsCalls != 2 {
		t.Fatalf("expected write to invalidate cached day, base calls=%d", base.totalsCalls)
	}
	if totals.Outflows.Int64() != 400 {
		t.Fatalf("expected outflows=400, got %s", totals.Outflows)
	}
}

func TestCachedLedgerStore_OtherDayStaysCached(t *testing.T) {
	base := &stubLedgerStore{}
	store := newTestCachedLedgerStore(t, base)
	day := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	if _, err := store.DailyTotals(context.Background(), day); err != nil {
		t.Fatalf("prime totals: %v", err)
	}
	seedThrough(t, store, day.AddDate(0, 0, 1))
	if _, err := store.DailyTotals(context.Background(), day); err != nil {
		t.Fatalf("totals: %v", err)
	}
	if base.totalsCalls != 1 {
		t.Fatalf("expected unrelated day write to keep cache, base calls=%d", base.totalsCalls)
	}
}

func TestCachedLedgerStore_SaveIssuanceInvalidatesEventDay(t *testing.T) {
	base := &stubLedgerStore{}
	issuance := &stubIssuanceStore{ledger: base}
	cacheService := newTestTotalsCacheService(t)
	store, err := NewCachedLedgerStore(base, issuance, cacheService)
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	day := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	if _, err := store.DailyTotals(context.Background(), day); err != nil {
		t.Fatalf("prime totals: %v", err)
	}
	if _, err := store.SaveIssuance(context.Background(), core.IssuanceInput{
		Event: &core.LedgerEvent{
			Direction:   core.DirectionInflow,
			AmountMinor: big.NewInt(2500),
			Currency:    "USD",
			OccurredAt:  day,
		},
		Mint: func(event *core.LedgerEvent) (core.Credential, error) {
			return core.Credential{ID: "cred", LedgerEventID: &event.ID}, nil
		},
	}); err != nil {
		t.Fatalf("save issuance: %v", err)
	}

	totals, err := store.DailyTotals(context.Background(), day)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Inflows.Int64() != 2500 || base.totalsCalls != 2 {
		t.Fatalf("expected refreshed totals, got inflows=%s calls=%d", totals.Inflows, base.totalsCalls)
	}
}

func TestCachedLedgerStore_ReturnsClones(t *testing.T) {
	base := &stubLedgerStore{}
	store := newTestCachedLedgerStore(t, base)
	day := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	seedEvent(t, base, core.DirectionInflow, 700, day)

	first, err := store.DailyTotals(context.Background(), day)
	if err != nil {
		t.Fatalf("first totals: %v", err)
	}
	first.Inflows.SetInt64(1)
	first.ByCurrency["USD"].Inflows.SetInt64(1)

	second, err := store.DailyTotals(context.Background(), day)
	if err != nil {
		t.Fatalf("second totals: %v", err)
	}
	if second.Inflows.Int64() != 700 || second.ByCurrency["USD"].Inflows.Int64() != 700 {
		t.Fatalf("expected cached totals to be isolated from caller mutation, got %s", second.Inflows)
	}
}

func TestCachedLedgerStore_FetchErrorIsNotCached(t *testing.T) {
	base := &stubLedgerStore{totalsErr: errors.New("db down")}
	store := newTestCachedLedgerStore(t, base)
	day := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	if _, err := store.DailyTotals(context.Background(), day); err == nil {
		t.Fatalf("expected fetch error")
	}
	base.totalsErr = nil
	if _, err := store.DailyTotals(context.Background(), day); err != nil {
		t.Fatalf("expected recovery after fetch error, got %v", err)
	}
	if base.totalsCalls != 2 {
		t.Fatalf("expected second fetch to reach base store, calls=%d", base.totalsCalls)
	}
}

// gatedLedgerStore takes its totals snapshot, then parks until released.
type gatedLedgerStore struct {
	*stubLedgerStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedLedgerStore) DailyTotals(ctx context.Context, day time.Time) (core.DailyTotals, error) {
	totals, err := s.stubLedgerStore.DailyTotals(ctx, day)
	gated := false
	s.once.Do(func() { gated = true })
	if gated {
		close(s.entered)
		<-s.release
	}
	return totals, err
}

func TestCachedLedgerStore_FetchOverlappingWriteIsNotServedAfterWrite(t *testing.T) {
	base := &gatedLedgerStore{
		stubLedgerStore: &stubLedgerStore{},
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	store, err := NewCachedLedgerStore(base, nil, newTestTotalsCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	day := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	done := make(chan core.DailyTotals, 1)
	go func() {
		totals, err := store.DailyTotals(context.Background(), day)
		if err != nil {
			t.Errorf("overlapping totals: %v", err)
		}
		done <- totals
	}()
	<-base.entered

	if _, err := store.RecordEvent(context.Background(), core.LedgerEvent{
		Direction:   core.DirectionInflow,
		AmountMinor: big.NewInt(10000),
		Currency:    "USD",
		OccurredAt:  day,
	}); err != nil {
		t.Fatalf("record event: %v", err)
	}
	close(base.release)
	if early := <-done; early.Inflows.Sign() != 0 {
		t.Fatalf("expected overlapping read to see the pre-write snapshot, got %s", early.Inflows)
	}

	totals, err := store.DailyTotals(context.Background(), day)
	if err != nil {
		t.Fatalf("totals after write: %v", err)
	}
	if totals.Inflows.Int64() != 10000 {
		t.Fatalf("stale totals after committed write: inflows=%s want 10000", totals.Inflows)
	}
}

func TestCachedLedgerStore_FailedWriteKeepsReadsConsistent(t *testing.T) {
	base := &stubLedgerStore{}
	store := newTestCachedLedgerStore(t, base)
	day := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	seedEvent(t, base, core.DirectionInflow, 300, day)

	if _, err := store.SaveIssuance(context.Background(), core.IssuanceInput{
		Event: &core.LedgerEvent{
			Direction:   core.DirectionInflow,
			AmountMinor: big.NewInt(5),
			Currency:    "USD",
			OccurredAt:  day,
		},
		Mint: func(*core.LedgerEvent) (core.Credential, error) {
			return core.Credential{}, errors.New("signer unavailable")
		},
	}); err == nil {
		t.Fatalf("expected mint failure")
	}
	totals, err := store.DailyTotals(context.Background(), day)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Inflows.Int64() != 305 {
		t.Fatalf("expected totals to match the base store, got %s", totals.Inflows)
	}
}

func TestDailyTotalsCacheKey(t *testing.T) {
	key := DailyTotalsCacheKey(time.Date(2026, 3, 4, 23, 59, 0, 0, time.FixedZone("UTC-5", -5*3600)))
	if key != "credledger::daily_totals::v1::2026-03-05" {
		t.Fatalf("unexpected cache key %q", key)
	}
}

func TestNewCachedLedgerStore_RequiresDependencies(t *testing.T) {
	if _, err := NewCachedLedgerStore(nil, nil, newTestTotalsCacheService(t)); err == nil {
		t.Fatalf("expected nil base store to fail")
	}
	if _, err := NewCachedLedgerStore(&stubLedgerStore{}, nil, nil); err == nil {
		t.Fatalf("expected nil cache service to fail")
	}
}

func seedEvent(t *testing.T, base *stubLedgerStore, direction core.Direction, minor int64, at time.Time) {
	t.Helper()
	if _, err := base.RecordEvent(context.Background(), core.LedgerEvent{
		Direction:   direction,
		AmountMinor: big.NewInt(minor),
		Currency:    "USD",
		OccurredAt:  at,
	}); err != nil {
		t.Fatalf("seed event: %v", err)
	}
}

func seedThrough(t *testing.T, store *CachedLedgerStore, at time.Time) {
	t.Helper()
	if _, err := store.RecordEvent(context.Background(), core.LedgerEvent{
		Direction:   core.DirectionInflow,
		AmountMinor: big.NewInt(1),
		Currency:    "USD",
		OccurredAt:  at,
	}); err != nil {
		t.Fatalf("record event: %v", err)
	}
}

func newTestCachedLedgerStore(t *testing.T, base *stubLedgerStore) *CachedLedgerStore {
	t.Helper()
	store, err := NewCachedLedgerStore(base, &stubIssuanceStore{ledger: base}, newTestTotalsCacheService(t))
	if err != nil {
		t.Fatalf("new cached ledger store: %v", err)
	}
	return store
}

func newTestTotalsCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
