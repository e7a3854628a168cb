package symbols

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/tradegate/tradegate/internal/domain"
)

func newTestRepository(t *testing.T) (*Repository, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE symbols (
			symbol TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL DEFAULT 1,
			halted INTEGER NOT NULL DEFAULT 0,
			added_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		t.Fatalf("Failed to create test table: %v", err)
	}

	return NewRepository(db, zerolog.New(nil).Level(zerolog.Disabled)), db
}

func TestAdd_NormalizesAndRoundTrips(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	created, err := repo.Add(ctx, "  aapl ", true)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", created.Symbol)
	assert.True(t, created.Enabled)
	assert.False(t, created.Halted)

	loaded, err := repo.Get(ctx, "aapl")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "AAPL", loaded.Symbol)
}

func TestAdd_EmptySymbolFails(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.Add(context.Background(), "   ", true)
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
}

func TestAdd_DuplicateFails(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Add(ctx, "AAPL", true)
	require.NoError(t, err)

	_, err = repo.Add(ctx, "aapl", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestSetEnabled_UnknownSymbolFails(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.SetEnabled(context.Background(), "MSFT", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestFlags_RoundTrip(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Add(ctx, "AAPL", true)
	require.NoError(t, err)

	entry, err := repo.SetEnabled(ctx, "AAPL", false)
	require.NoError(t, err)
	assert.False(t, entry.Enabled)

	entry, err = repo.SetHalted(ctx, "AAPL", true)
	require.NoError(t, err)
	assert.True(t, entry.Halted)
	assert.False(t, entry.Enabled)
}

func TestList_EnabledFilterAndOrder(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Add(ctx, "MSFT", true)
	require.NoError(t, err)
	_, err = repo.Add(ctx, "AAPL", true)
	require.NoError(t, err)
	_, err = repo.Add(ctx, "NVDA", false)
	require.NoError(t, err)

	all, err := repo.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "AAPL", all[0].Symbol)
	assert.Equal(t, "MSFT", all[1].Symbol)
	assert.Equal(t, "NVDA", all[2].Symbol)

	enabled, err := repo.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	assert.Equal(t, "AAPL", enabled[0].Symbol)
	assert.Equal(t, "MSFT", enabled[1].Symbol)
}

func TestRemove(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Add(ctx, "AAPL", true)
	require.NoError(t, err)

	require.NoError(t, repo.Remove(ctx, "aapl"))

	entry, err := repo.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.Nil(t, entry)

	err = repo.Remove(ctx, "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
