package trust

import (
	"encoding/json"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-credledger/core"
)

// Gate answers the two questions issuance asks before signing: is the type
// trusted right now, and does the subject satisfy its schema.
type Gate struct {
	registry *Registry
	catalog  *Catalog
}

func NewGate(registry *Registry, catalog *Catalog) *Gate {
	return &Gate{registry: registry, catalog: catalog}
}

func (g *Gate) IsRecognized(credentialType string) bool {
	if g == nil || g.registry == nil {
		return false
	}
	return g.registry.IsRecognized(credentialType)
}

func (g *Gate) Validate(credentialType string, subject map[string]any) core.SchemaResult {
	if g == nil || g.catalog == nil {
		return core.SchemaResult{Valid: true}
	}
	result := g.catalog.Validate(credentialType, subject)
	if result.Valid {
		return core.SchemaResult{Valid: true}
	}
	fields := make([]goerrors.FieldError, 0, len(result.Errors))
	for _, fieldErr := range result.Errors {
		fields = append(fields, goerrors.FieldError{Field: fieldErr.Field, Message: fieldErr.Message})
	}
	return core.SchemaResult{Valid: false, Errors: fields}
}

func (g *Gate) Slugs() []string {
	if g == nil || g.catalog == nil {
		return []string{}
	}
	return g.catalog.Slugs()
}

func (g *Gate) Schema(slug string) (json.RawMessage, bool) {
	if g == nil || g.catalog == nil {
		return nil, false
	}
	return g.catalog.Schema(slug)
}

// IssuerID is the issuer declared by the registry file, if any.
func (g *Gate) IssuerID() string {
	if g == nil || g.registry == nil {
		return ""
	}
	return g.registry.IssuerID()
}

var (
	_ core.TrustGate     = (*Gate)(nil)
	_ core.SchemaCatalog = (*Gate)(nil)
)
