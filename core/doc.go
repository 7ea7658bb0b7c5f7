// Package core contains the ledger and credential lifecycle contracts,
// entities and orchestration. Storage, trust and the live feed are adapters
// that depend on this package; core reaches them only through the interfaces
// in contracts.go.
package core
