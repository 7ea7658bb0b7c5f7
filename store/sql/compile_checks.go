package sqlstore

import "github.com/goliatone/go-credledger/core"

var (
	_ core.LedgerStore     = (*LedgerStore)(nil)
	_ core.IssuanceStore   = (*CredentialStore)(nil)
	_ core.CredentialStore = (*CredentialStore)(nil)
	_ core.StoreProvider   = (*RepositoryFactory)(nil)
)
