package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"curator/internal/core"
)

// DatabaseFile is the SQLite file created inside the data directory.
const DatabaseFile = "curator.db"

const preferencesKey = "preferences"

// sqliteBackend keeps sites in their own table and the preference document as a
// JSON value in a key/value table.
type sqliteBackend struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the SQLite database in dataDir.
func NewSQLiteStore(dataDir string) (*Store, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	b := &sqliteBackend{db: db, path: dbPath}
	if err := b.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return newStore(b), nil
}

// initialize creates the necessary tables
func (b *sqliteBackend) initialize() error {
	sitesTable := `
	CREATE TABLE IF NOT EXISTS sites (
		url TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		added_at DATETIME NOT NULL
	);`

	kvTable := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);`

	for _, table := range []string{sitesTable, kvTable} {
		if _, err := b.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func (b *sqliteBackend) close() error {
	return b.db.Close()
}

func (b *sqliteBackend) loadPreferences(ctx context.Context) (*core.Preferences, error) {
	query, args, err := sq.Select("value").From("kv").Where(sq.Eq{"key": preferencesKey}).ToSql()
	if err != nil {
		return nil, err
	}

	var value string
	err = b.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DefaultPreferences(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}

	prefs := &core.Preferences{}
	if err := json.Unmarshal([]byte(value), prefs); err != nil {
		return nil, fmt.Errorf("failed to decode preferences: %w", err)
	}
	prefs.Normalize()
	return prefs, nil
}

func (b *sqliteBackend) savePreferences(ctx context.Context, prefs *core.Preferences) error {
	value, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	query, args, err := sq.Insert("kv").
		Options("OR REPLACE").
		Columns("key", "value", "updated_at").
		Values(preferencesKey, string(value), time.Now().UTC()).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}

func (b *sqliteBackend) listSites(ctx context.Context) ([]core.Source, error) {
	query, args, err := sq.Select("url", "category").
		From("sites").
		OrderBy("rowid").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sites: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sites := make([]core.Source, 0)
	for rows.Next() {
		var site core.Source
		if err := rows.Scan(&site.URL, &site.Category); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return sites, nil
}

func (b *sqliteBackend) insertSite(ctx context.Context, site core.Source, addedAt time.Time) error {
	query, args, err := sq.Insert("sites").
		Columns("url", "category", "added_at").
		Values(site.URL, site.Category, addedAt.UTC()).
		Suffix("ON CONFLICT(url) DO UPDATE SET category = excluded.category").
		ToSql()
	if err != nil {
		return err
	}

	_, err = b.db.ExecContext(ctx, query, args...)
	return err
}
