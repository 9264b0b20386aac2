package store

import (
	"context"
	"database/sql"
	"embed"
	"sort"
	"strconv"
	"strings"

	"github.com/rendis/botforge/pkg/schema"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// applyMigrations brings the database up to the latest embedded schema.
// The applied version is tracked in SQLite's user_version pragma; each
// pending migration file runs inside its own transaction and bumps the
// version on commit, so a failed migration leaves the database at the
// last fully applied step.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	files, err := loadMigrationFiles()
	if err != nil {
		return err
	}

	var applied int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&applied); err != nil {
		return schema.NewError(schema.ErrCodeStore, "read schema version").WithCause(err)
	}

	for _, f := range files {
		if f.version <= applied {
			continue
		}
		if err := applyOne(ctx, db, f); err != nil {
			return err
		}
	}
	return nil
}

func applyOne(ctx context.Context, db *sql.DB, f migrationFile) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "begin migration %s", f.name).WithCause(err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range sqlStatements(f.body) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "apply migration %s", f.name).WithCause(err)
		}
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, "PRAGMA user_version = "+strconv.Itoa(f.version)); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "record migration %s", f.name).WithCause(err)
	}
	if err := tx.Commit(); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "commit migration %s", f.name).WithCause(err)
	}
	return nil
}

// migrationFile is one embedded migration, named NNN_description.sql.
type migrationFile struct {
	version int
	name    string
	body    string
}

func loadMigrationFiles() ([]migrationFile, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "read embedded migrations").WithCause(err)
	}

	files := make([]migrationFile, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "migration %s has no version prefix", name)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "migration %s has a non-numeric version", name).WithCause(err)
		}
		body, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "read migration %s", name).WithCause(err)
		}
		files = append(files, migrationFile{version: version, name: name, body: string(body)})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// sqlStatements splits a migration script into individual statements,
// dropping blank chunks and comment-only chunks. Semicolons inside
// literals are not handled; migration files keep their DDL simple.
func sqlStatements(script string) []string {
	var out []string
	for _, chunk := range strings.Split(script, ";") {
		stmt := strings.TrimSpace(chunk)
		if stmt == "" || commentOnly(stmt) {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

func commentOnly(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
