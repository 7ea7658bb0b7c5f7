package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-credledger/core"
)

type RepositoryFactory struct {
	db           *bun.DB
	totalsCache  repositorycache.CacheService
	ledger       *LedgerStore
	credentials  *CredentialStore
	cachedLedger *CachedLedgerStore
}

type FactoryOption func(*RepositoryFactory)

// WithTotalsCache routes daily totals and writes through CachedLedgerStore.
func WithTotalsCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.totalsCache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.ledger != nil && f.credentials != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) LedgerStore() core.LedgerStore {
	if f == nil {
		return nil
	}
	if f.cachedLedger != nil {
		return f.cachedLedger
	}
	return f.ledger
}

func (f *RepositoryFactory) IssuanceStore() core.IssuanceStore {
	if f == nil {
		return nil
	}
	if f.cachedLedger != nil {
		return f.cachedLedger
	}
	return f.credentials
}

func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil {
		return nil
	}
	return f.credentials
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	credentialRepo, err := newCredentialRepository(f.db)
	if err != nil {
		return err
	}

	ledger, err := NewLedgerStore(f.db)
	if err != nil {
		return err
	}
	f.ledger = ledger
	f.credentials = &CredentialStore{
		db:   f.db,
		repo: credentialRepo,
	}

	if f.totalsCache != nil {
		cached, cacheErr := NewCachedLedgerStore(f.ledger, f.credentials, f.totalsCache)
		if cacheErr != nil {
			return cacheErr
		}
		f.cachedLedger = cached
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
