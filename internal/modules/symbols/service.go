package symbols

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/events"
)

// RepositoryInterface defines the interface for registry persistence
type RepositoryInterface interface {
	Add(ctx context.Context, symbol string, enabled bool) (*Entry, error)
	SetEnabled(ctx context.Context, symbol string, enabled bool) (*Entry, error)
	SetHalted(ctx context.Context, symbol string, halted bool) (*Entry, error)
	Remove(ctx context.Context, symbol string) error
	Get(ctx context.Context, symbol string) (*Entry, error)
	List(ctx context.Context, onlyEnabled bool) ([]Entry, error)
}

// Compile-time check that Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)

// Service coordinates the symbol registry. The cycle job trades the
// union of the statically configured symbols and the enabled registry
// entries, so operators can add or pause symbols without a restart.
type Service struct {
	log          zerolog.Logger
	repo         RepositoryInterface
	eventManager *events.Manager
	static       []string
}

// NewService creates a new symbol service. staticSymbols is the
// environment-configured list and participates in every cycle.
func NewService(repo RepositoryInterface, staticSymbols []string, eventManager *events.Manager, log zerolog.Logger) *Service {
	var static []string
	for _, s := range staticSymbols {
		if normalized := normalize(s); normalized != "" {
			static = append(static, normalized)
		}
	}
	return &Service{
		log:          log.With().Str("service", "symbols").Logger(),
		repo:         repo,
		eventManager: eventManager,
		static:       static,
	}
}

// Add registers a symbol and emits an event when it enters the cycle
// set enabled
func (s *Service) Add(ctx context.Context, symbol string, enabled bool) (*Entry, error) {
	entry, err := s.repo.Add(ctx, symbol, enabled)
	if err != nil {
		return nil, err
	}
	if entry.Enabled {
		s.eventManager.Emit(events.SymbolEnabled, "symbols", map[string]interface{}{
			"symbol": entry.Symbol,
		})
	}
	return entry, nil
}

// Enable puts a registered symbol back into the cycle set
func (s *Service) Enable(ctx context.Context, symbol string) (*Entry, error) {
	entry, err := s.repo.SetEnabled(ctx, symbol, true)
	if err != nil {
		return nil, err
	}
	s.eventManager.Emit(events.SymbolEnabled, "symbols", map[string]interface{}{
		"symbol": entry.Symbol,
	})
	return entry, nil
}

// Disable removes a registered symbol from the cycle set without
// deleting it
func (s *Service) Disable(ctx context.Context, symbol string) (*Entry, error) {
	entry, err := s.repo.SetEnabled(ctx, symbol, false)
	if err != nil {
		return nil, err
	}
	s.eventManager.Emit(events.SymbolDisabled, "symbols", map[string]interface{}{
		"symbol": entry.Symbol,
	})
	return entry, nil
}

// SetHalted flags or clears a trading halt on a registered symbol. The
// validation gate rejects halted symbols outright.
func (s *Service) SetHalted(ctx context.Context, symbol string, halted bool) (*Entry, error) {
	entry, err := s.repo.SetHalted(ctx, symbol, halted)
	if err != nil {
		return nil, err
	}
	if halted {
		s.log.Warn().Str("symbol", entry.Symbol).Msg("Symbol flagged halted")
	}
	return entry, nil
}

// Remove deletes a symbol from the registry
func (s *Service) Remove(ctx context.Context, symbol string) error {
	return s.repo.Remove(ctx, symbol)
}

// Get returns one registry entry, or nil when not registered
func (s *Service) Get(ctx context.Context, symbol string) (*Entry, error) {
	return s.repo.Get(ctx, symbol)
}

// List returns registry entries
func (s *Service) List(ctx context.Context, onlyEnabled bool) ([]Entry, error) {
	return s.repo.List(ctx, onlyEnabled)
}

// CycleSymbols returns the sorted union of static symbols and enabled
// registry entries. A registry read failure degrades to the static list
// so a database hiccup cannot stop the cycle.
func (s *Service) CycleSymbols(ctx context.Context) []string {
	set := make(map[string]struct{}, len(s.static))
	for _, symbol := range s.static {
		set[symbol] = struct{}{}
	}

	entries, err := s.repo.List(ctx, true)
	if err != nil {
		s.log.Warn().Err(err).Msg("Registry read failed, using static symbols only")
	}
	for _, entry := range entries {
		set[entry.Symbol] = struct{}{}
	}

	symbols := make([]string, 0, len(set))
	for symbol := range set {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// IsHalted reports whether a symbol carries the halted flag. Symbols
// not in the registry are not halted.
func (s *Service) IsHalted(ctx context.Context, symbol string) (bool, error) {
	entry, err := s.repo.Get(ctx, symbol)
	if err != nil {
		return false, err
	}
	return entry != nil && entry.Halted, nil
}
