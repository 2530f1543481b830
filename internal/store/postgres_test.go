package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/radar-cli/internal/model"
	"github.com/sells-group/radar-cli/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS items`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ItemsSince(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows(itemColumns).
		AddRow("CBR", "https://cbr.ru/1", "Key rate", int64(500), "ru", "", 1.0, "REG").
		AddRow("Blog", "https://blog/2", "Opinion", int64(400), "ru", "text", 0.4, "OTHER")
	mock.ExpectQuery(`SELECT source, url, title, published_at, language, summary, credibility_weight, source_group\s+FROM items WHERE published_at >= \$1 ORDER BY published_at DESC, url ASC LIMIT \$2`).
		WithArgs(int64(100), 50).
		WillReturnRows(rows)

	got, err := s.ItemsSince(context.Background(), 100, 50)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.RawItem{
		Source: "CBR", URL: "https://cbr.ru/1", Title: "Key rate", PublishedAt: 500,
		Language: "ru", CredibilityWeight: 1.0, SourceGroup: model.GroupRegulator,
	}, got[0])
	assert.Equal(t, model.GroupMedia, got[1].SourceGroup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ItemsSince_NoLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`ORDER BY published_at DESC, url ASC$`).
		WithArgs(int64(0)).
		WillReturnRows(pgxmock.NewRows(itemColumns))

	got, err := s.ItemsSince(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ItemsSince_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM items`).WithArgs(int64(0)).WillReturnError(errors.New("connection lost"))

	_, err := s.ItemsSince(context.Background(), 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: query items")
}

func TestPostgresStore_UpsertItems(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_insert_items"}, itemColumns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "items" .* ON CONFLICT \("url"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.UpsertItems(context.Background(), []model.RawItem{
		{URL: "https://a", Source: "A", SourceGroup: model.GroupTier1},
		{URL: "", Source: "no url"},
		{URL: "https://b", Source: "B", SourceGroup: model.GroupMedia},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertItems_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.UpsertItems(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var fastBackoff = resilience.Backoff{Attempts: 3, Initial: time.Millisecond, Max: time.Millisecond, Factor: 1}

func TestPing_RetriesTransient(t *testing.T) {
	_, mock := newMockPostgresStore(t)

	mock.ExpectPing().WillReturnError(resilience.NewTransientError(errors.New("connection refused"), 0))
	mock.ExpectPing()

	require.NoError(t, ping(context.Background(), mock, fastBackoff))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPing_PermanentErrorNotRetried(t *testing.T) {
	_, mock := newMockPostgresStore(t)

	mock.ExpectPing().WillReturnError(errors.New("password authentication failed"))

	err := ping(context.Background(), mock, fastBackoff)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: ping")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPing_GivesUpAfterAttempts(t *testing.T) {
	_, mock := newMockPostgresStore(t)

	for i := 0; i < 3; i++ {
		mock.ExpectPing().WillReturnError(resilience.NewTransientError(errors.New("connection refused"), 0))
	}

	require.Error(t, ping(context.Background(), mock, fastBackoff))
	assert.NoError(t, mock.ExpectationsWereMet())
}
