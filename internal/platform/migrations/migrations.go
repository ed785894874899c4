// Package migrations holds the SQL schema for the relational KV backends and
// applies it at most once per file.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Dialect selects which migration directory applies.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

const migrationTable = "schema_migrations"

// Apply executes the embedded migrations for dialect in file-name order.
// Files already recorded in schema_migrations are skipped.
func Apply(ctx context.Context, db *sqlx.DB, dialect Dialect) error {
	if db == nil {
		return fmt.Errorf("sql db is required")
	}
	names, err := Files(dialect)
	if err != nil {
		return err
	}

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (name TEXT PRIMARY KEY)`, migrationTable)
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, name := range names {
		applied, err := isApplied(ctx, db, name)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}

		content, err := fs.ReadFile(files, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		upSQL := ExtractUp(string(content))
		if strings.TrimSpace(upSQL) == "" {
			continue
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, upSQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		insert := db.Rebind(fmt.Sprintf(`INSERT INTO %s (name) VALUES (?)`, migrationTable))
		if _, err := tx.ExecContext(ctx, insert, name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

// Files lists the migration paths for dialect, sorted.
func Files(dialect Dialect) ([]string, error) {
	switch dialect {
	case Postgres, SQLite:
	default:
		return nil, fmt.Errorf("unsupported migration dialect %q", dialect)
	}

	entries, err := fs.ReadDir(files, string(dialect))
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, path.Join(string(dialect), entry.Name()))
		}
	}
	sort.Strings(names)
	return names, nil
}

// ExtractUp returns the SQL between "-- +migrate Up" and "-- +migrate Down".
func ExtractUp(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	body := content[upIdx+len("-- +migrate Up"):]
	if downIdx := strings.Index(body, "-- +migrate Down"); downIdx != -1 {
		body = body[:downIdx]
	}
	return body
}

func isApplied(ctx context.Context, db *sqlx.DB, name string) (bool, error) {
	var count int
	query := db.Rebind(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE name = ?`, migrationTable))
	if err := db.GetContext(ctx, &count, query, name); err != nil {
		return false, err
	}
	return count > 0, nil
}
