// Package store persists raw news items keyed by URL.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/radar-cli/internal/config"
	"github.com/sells-group/radar-cli/internal/model"
)

// ItemStore is the persistence interface for raw items. Writes are
// idempotent per URL; reads return newest first.
type ItemStore interface {
	// UpsertItems inserts items whose URL is not stored yet and returns how
	// many were new. Items without a URL are skipped.
	UpsertItems(ctx context.Context, items []model.RawItem) (int, error)

	// ItemsSince returns items published at or after since (epoch seconds),
	// newest first. limit <= 0 means no limit.
	ItemsSince(ctx context.Context, since int64, limit int) ([]model.RawItem, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg config.StoreConfig) (ItemStore, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// withURL drops items that cannot be keyed.
func withURL(items []model.RawItem) []model.RawItem {
	out := make([]model.RawItem, 0, len(items))
	for _, it := range items {
		if it.URL != "" {
			out = append(out, it)
		}
	}
	return out
}
