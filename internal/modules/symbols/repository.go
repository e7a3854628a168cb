// Package symbols keeps the registry of symbols the cycle job trades.
// Entries can be disabled without losing their row, and flagged halted,
// which the validation gate treats as a hard stop.
package symbols

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/domain"
)

const symbolsColumns = `symbol, enabled, halted, added_at`

// Entry is one registered symbol
type Entry struct {
	Symbol  string    `json:"symbol"`
	Enabled bool      `json:"enabled"`
	Halted  bool      `json:"halted"`
	AddedAt time.Time `json:"added_at"`
}

// Repository persists the symbol registry in the app database
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "symbols").Logger(),
	}
}

// Add registers a symbol. Symbols are normalized to upper case; adding
// one that is already registered is an error.
func (r *Repository) Add(ctx context.Context, symbol string, enabled bool) (*Entry, error) {
	normalized := normalize(symbol)
	if normalized == "" {
		return nil, domain.NewValidationError("symbol", "symbol is required")
	}

	entry := &Entry{
		Symbol:  normalized,
		Enabled: enabled,
		AddedAt: time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO symbols (`+symbolsColumns+`) VALUES (?, ?, ?, ?)`,
		entry.Symbol, boolToInt(entry.Enabled), 0, entry.AddedAt.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("symbol %q already registered", normalized)
		}
		return nil, fmt.Errorf("failed to add symbol: %w", err)
	}

	r.log.Info().Str("symbol", entry.Symbol).Bool("enabled", entry.Enabled).Msg("Symbol registered")
	return entry, nil
}

// SetEnabled flips the enabled flag for a registered symbol
func (r *Repository) SetEnabled(ctx context.Context, symbol string, enabled bool) (*Entry, error) {
	return r.setFlag(ctx, symbol, "enabled", enabled)
}

// SetHalted flips the halted flag for a registered symbol
func (r *Repository) SetHalted(ctx context.Context, symbol string, halted bool) (*Entry, error) {
	return r.setFlag(ctx, symbol, "halted", halted)
}

func (r *Repository) setFlag(ctx context.Context, symbol, column string, value bool) (*Entry, error) {
	normalized := normalize(symbol)
	result, err := r.db.ExecContext(ctx,
		`UPDATE symbols SET `+column+` = ? WHERE symbol = ?`,
		boolToInt(value), normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to update symbol: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("symbol %q not found", normalized)
	}

	r.log.Info().Str("symbol", normalized).Str("flag", column).Bool("value", value).Msg("Symbol flag updated")
	return r.Get(ctx, normalized)
}

// Remove deletes a symbol from the registry
func (r *Repository) Remove(ctx context.Context, symbol string) error {
	normalized := normalize(symbol)
	result, err := r.db.ExecContext(ctx, `DELETE FROM symbols WHERE symbol = ?`, normalized)
	if err != nil {
		return fmt.Errorf("failed to remove symbol: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("symbol %q not found", normalized)
	}

	r.log.Info().Str("symbol", normalized).Msg("Symbol removed")
	return nil
}

// Get returns one registry entry, or nil when the symbol is not
// registered
func (r *Repository) Get(ctx context.Context, symbol string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+symbolsColumns+` FROM symbols WHERE symbol = ?`, normalize(symbol))

	entry, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get symbol: %w", err)
	}
	return entry, nil
}

// List returns registry entries ordered by symbol
func (r *Repository) List(ctx context.Context, onlyEnabled bool) ([]Entry, error) {
	query := `SELECT ` + symbolsColumns + ` FROM symbols`
	if onlyEnabled {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY symbol ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry   Entry
		enabled int
		halted  int
		addedAt int64
	)
	if err := row.Scan(&entry.Symbol, &enabled, &halted, &addedAt); err != nil {
		return nil, err
	}
	entry.Enabled = enabled != 0
	entry.Halted = halted != 0
	entry.AddedAt = time.Unix(addedAt, 0).UTC()
	return &entry, nil
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
