package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/botforge/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate applies any pending embedded schema migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return applyMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

func (s *LibSQLStore) CreateBot(ctx context.Context, bot *Bot) error {
	doc, err := json.Marshal(bot.Scenario)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "marshal scenario").WithCause(err)
	}
	now := time.Now().UTC()
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = now
	}
	bot.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bots (id, name, scenario, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		bot.ID, bot.Name, string(doc), bot.CreatedAt, bot.UpdatedAt,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "create bot %s", bot.ID).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) GetBot(ctx context.Context, id string) (*Bot, error) {
	return s.getBot(ctx, `SELECT id, name, scenario, created_at, updated_at FROM bots WHERE id = ?`, id)
}

func (s *LibSQLStore) GetBotByName(ctx context.Context, name string) (*Bot, error) {
	return s.getBot(ctx, `SELECT id, name, scenario, created_at, updated_at FROM bots WHERE name = ?`, name)
}

func (s *LibSQLStore) getBot(ctx context.Context, query, arg string) (*Bot, error) {
	b := &Bot{}
	var doc string
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&b.ID, &b.Name, &doc, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "bot %q not found", arg)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "get bot %q", arg).WithCause(err)
	}
	b.Scenario = &schema.ScenarioDocument{}
	if err := json.Unmarshal([]byte(doc), b.Scenario); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "decode stored scenario for bot %q", arg).WithCause(err)
	}
	return b, nil
}

func (s *LibSQLStore) UpdateBot(ctx context.Context, id string, update BotUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Scenario != nil {
		doc, err := json.Marshal(update.Scenario)
		if err != nil {
			return schema.NewError(schema.ErrCodeStore, "marshal scenario").WithCause(err)
		}
		sets = append(sets, "scenario = ?")
		args = append(args, string(doc))
	}

	query := "UPDATE bots SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE id = ?"
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "update bot %s", id).WithCause(err)
	}
	return checkRowsAffected(res, id)
}

func (s *LibSQLStore) ListBots(ctx context.Context) ([]*Bot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, scenario, created_at, updated_at FROM bots ORDER BY name`)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list bots").WithCause(err)
	}
	defer rows.Close()

	var bots []*Bot
	for rows.Next() {
		b := &Bot{}
		var doc string
		if err := rows.Scan(&b.ID, &b.Name, &doc, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, schema.NewError(schema.ErrCodeStore, "scan bot row").WithCause(err)
		}
		b.Scenario = &schema.ScenarioDocument{}
		if err := json.Unmarshal([]byte(doc), b.Scenario); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "decode stored scenario for bot %s", b.ID).WithCause(err)
		}
		bots = append(bots, b)
	}
	return bots, rows.Err()
}

func (s *LibSQLStore) DeleteBot(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bots WHERE id = ?`, id)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "delete bot %s", id).WithCause(err)
	}
	return checkRowsAffected(res, id)
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "rows affected").WithCause(err)
	}
	if n == 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "bot %q not found", id)
	}
	return nil
}
