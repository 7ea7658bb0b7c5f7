// Package migrations resolves the embedded ledger schema for a SQL dialect.
package migrations

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	persistence "github.com/goliatone/go-persistence-bun"

	credledger "github.com/goliatone/go-credledger"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const rootDir = "data/sql/migrations"

var ErrUnknownDialect = errors.New("migrations: unknown dialect")

// Registrar takes SQL migration filesystems. *persistence.Client is one.
type Registrar interface {
	RegisterSQLMigrations(migrations ...fs.FS) *persistence.Migrations
}

// DialectFor maps a database/sql driver name to its migration dialect.
func DialectFor(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres":
		return DialectPostgres, nil
	case "sqlite3":
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("%w: driver %q", ErrUnknownDialect, driver)
}

// FS returns the migrations of dialect found in root. A nil root reads the
// tree embedded in the module. Postgres files sit at the top of the tree and
// sqlite files under sqlite/.
func FS(dialect string, root fs.FS) (fs.FS, error) {
	if root == nil {
		root = credledger.GetMigrationsFS()
	}
	dir := rootDir
	switch dialect {
	case DialectPostgres:
	case DialectSQLite:
		dir += "/sqlite"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, dialect)
	}
	sub, err := fs.Sub(root, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", dir, err)
	}
	matches, err := fs.Glob(sub, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: glob %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("migrations: %s has no *.up.sql files", dir)
	}
	return sub, nil
}

// Register adds the embedded migrations of dialect to registrar.
func Register(registrar Registrar, dialect string) error {
	if registrar == nil {
		return fmt.Errorf("migrations: registrar is required")
	}
	fsys, err := FS(dialect, nil)
	if err != nil {
		return err
	}
	registrar.RegisterSQLMigrations(fsys)
	return nil
}
