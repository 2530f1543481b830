package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/radar-cli/internal/model"
)

// SQLiteStore implements ItemStore using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// The parent directory is created when missing.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dsn); dsn != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "sqlite: create dir %s", dir)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS items (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	source             TEXT NOT NULL,
	url                TEXT NOT NULL UNIQUE,
	title              TEXT NOT NULL DEFAULT '',
	published_at       INTEGER NOT NULL,
	language           TEXT NOT NULL DEFAULT '',
	summary            TEXT NOT NULL DEFAULT '',
	credibility_weight REAL NOT NULL DEFAULT 0.5,
	source_group       TEXT NOT NULL DEFAULT 'MEDIA',
	fetched_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_items_published_at ON items(published_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertItems(ctx context.Context, items []model.RawItem) (int, error) {
	items = withURL(items)
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO items
		(source, url, title, published_at, language, summary, credibility_weight, source_group)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	var inserted int
	for _, it := range items {
		res, err := stmt.ExecContext(ctx,
			it.Source, it.URL, it.Title, it.PublishedAt, it.Language, it.Summary,
			it.CredibilityWeight, string(it.SourceGroup),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert item %s", it.URL)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit")
	}
	return inserted, nil
}

func (s *SQLiteStore) ItemsSince(ctx context.Context, since int64, limit int) ([]model.RawItem, error) {
	query := `SELECT source, url, title, published_at, language, summary, credibility_weight, source_group
		FROM items WHERE published_at >= ? ORDER BY published_at DESC, url ASC`
	args := []any{since}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query items")
	}
	defer rows.Close() //nolint:errcheck

	var items []model.RawItem
	for rows.Next() {
		var it model.RawItem
		var group string
		if err := rows.Scan(&it.Source, &it.URL, &it.Title, &it.PublishedAt, &it.Language,
			&it.Summary, &it.CredibilityWeight, &group); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan item")
		}
		it.SourceGroup = model.ParseSourceGroup(group)
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: iterate items")
}
