package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/radar-cli/internal/db"
	"github.com/sells-group/radar-cli/internal/model"
	"github.com/sells-group/radar-cli/internal/resilience"
)

// PostgresStore implements ItemStore using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

var itemColumns = []string{
	"source", "url", "title", "published_at", "language", "summary", "credibility_weight", "source_group",
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(5)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := ping(ctx, pool, pingBackoff); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// pingBackoff covers a database that is still starting up.
var pingBackoff = resilience.Backoff{
	Attempts: 3,
	Initial:  500 * time.Millisecond,
	Max:      2 * time.Second,
	Factor:   2,
}

// ping checks connectivity, retrying transient failures such as a refused
// connection.
func ping(ctx context.Context, pool db.Pool, b resilience.Backoff) error {
	b.OnRetry = resilience.RetryLogger("postgres", "ping")
	return resilience.Do(ctx, b, func(ctx context.Context) error {
		return eris.Wrap(pool.Ping(ctx), "postgres: ping")
	})
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS items (
	id                 BIGSERIAL PRIMARY KEY,
	source             TEXT NOT NULL,
	url                TEXT NOT NULL UNIQUE,
	title              TEXT NOT NULL DEFAULT '',
	published_at       BIGINT NOT NULL,
	language           TEXT NOT NULL DEFAULT '',
	summary            TEXT NOT NULL DEFAULT '',
	credibility_weight DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	source_group       TEXT NOT NULL DEFAULT 'MEDIA',
	fetched_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_items_published_at ON items(published_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertItems(ctx context.Context, items []model.RawItem) (int, error) {
	items = withURL(items)
	rows := make([][]any, len(items))
	for i, it := range items {
		rows[i] = []any{
			it.Source, it.URL, it.Title, it.PublishedAt, it.Language, it.Summary,
			it.CredibilityWeight, string(it.SourceGroup),
		}
	}
	n, err := db.BulkInsertIgnore(ctx, s.pool, db.InsertIgnoreConfig{
		Table:        "items",
		Columns:      itemColumns,
		ConflictKeys: []string{"url"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert items")
	}
	return int(n), nil
}

func (s *PostgresStore) ItemsSince(ctx context.Context, since int64, limit int) ([]model.RawItem, error) {
	query := `SELECT source, url, title, published_at, language, summary, credibility_weight, source_group
		FROM items WHERE published_at >= $1 ORDER BY published_at DESC, url ASC`
	args := []any{since}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query items")
	}
	defer rows.Close()

	var items []model.RawItem
	for rows.Next() {
		var it model.RawItem
		var group string
		if err := rows.Scan(&it.Source, &it.URL, &it.Title, &it.PublishedAt, &it.Language,
			&it.Summary, &it.CredibilityWeight, &group); err != nil {
			return nil, eris.Wrap(err, "postgres: scan item")
		}
		it.SourceGroup = model.ParseSourceGroup(group)
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: iterate items")
}
