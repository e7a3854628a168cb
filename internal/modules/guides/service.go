package guides

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/events"
)

// RepositoryInterface defines the interface for guide persistence
type RepositoryInterface interface {
	// Create stores version 1 of a new guide
	Create(ctx context.Context, guide *Guide) (*Guide, error)

	// Update writes the next version and deactivates prior versions
	Update(ctx context.Context, name string, hardRules, softRules, disqualifiers []string) (*Guide, error)

	// Deactivate retires every version of a guide
	Deactivate(ctx context.Context, name string) error

	// GetByName returns the active guide with the highest version
	GetByName(ctx context.Context, name string) (*Guide, error)

	// GetVersion returns a specific version regardless of active flag
	GetVersion(ctx context.Context, name string, version int) (*Guide, error)

	// List returns the newest version of every guide name
	List(ctx context.Context, includeInactive bool) ([]Guide, error)
}

// Compile-time check that Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)

// Service coordinates guide lifecycle and evaluation.
//
// Responsibilities:
//   - Create, version, and retire guides
//   - Evaluate observed signal labels against a named guide
//   - Emit guide lifecycle events
type Service struct {
	log          zerolog.Logger
	repo         RepositoryInterface
	eventManager *events.Manager
}

// NewService creates a new guide service
func NewService(repo RepositoryInterface, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		log:          log.With().Str("service", "guides").Logger(),
		repo:         repo,
		eventManager: eventManager,
	}
}

// Create stores a new guide and emits a lifecycle event
func (s *Service) Create(ctx context.Context, guide *Guide) (*Guide, error) {
	created, err := s.repo.Create(ctx, guide)
	if err != nil {
		return nil, err
	}
	s.eventManager.Emit(events.GuideCreated, "guides", map[string]interface{}{
		"guide_id": created.ID,
		"name":     created.Name,
		"version":  created.Version,
	})
	return created, nil
}

// Update writes the next version of a guide and emits a lifecycle event
func (s *Service) Update(ctx context.Context, name string, hardRules, softRules, disqualifiers []string) (*Guide, error) {
	updated, err := s.repo.Update(ctx, name, hardRules, softRules, disqualifiers)
	if err != nil {
		return nil, err
	}
	s.eventManager.Emit(events.GuideUpdated, "guides", map[string]interface{}{
		"guide_id": updated.ID,
		"name":     updated.Name,
		"version":  updated.Version,
	})
	return updated, nil
}

// Deactivate retires a guide and emits a lifecycle event
func (s *Service) Deactivate(ctx context.Context, name string) error {
	if err := s.repo.Deactivate(ctx, name); err != nil {
		return err
	}
	s.eventManager.Emit(events.GuideDeactivated, "guides", map[string]interface{}{
		"name": name,
	})
	return nil
}

// Get returns the active guide for a name, or nil when none exists
func (s *Service) Get(ctx context.Context, name string) (*Guide, error) {
	return s.repo.GetByName(ctx, name)
}

// GetVersion returns a specific guide version for audit reconstruction
func (s *Service) GetVersion(ctx context.Context, name string, version int) (*Guide, error) {
	return s.repo.GetVersion(ctx, name, version)
}

// List returns the newest version of every guide
func (s *Service) List(ctx context.Context, includeInactive bool) ([]Guide, error) {
	return s.repo.List(ctx, includeInactive)
}

// EvaluateSignals matches observed signal labels against a named guide.
// A missing guide returns (nil, nil) so callers can decide whether an
// unnamed strategy blocks or merely warns.
func (s *Service) EvaluateSignals(ctx context.Context, name string, observed []string) (*Evaluation, error) {
	guide, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if guide == nil {
		return nil, nil
	}

	eval := Evaluate(guide, observed)
	s.log.Debug().
		Str("guide", eval.GuideName).
		Int("version", eval.GuideVersion).
		Bool("allowed", eval.Allowed).
		Strs("unmet_hard_rules", eval.UnmetHardRules).
		Strs("present_disqualifiers", eval.PresentDisqualifiers).
		Msg("Guide evaluated")
	return &eval, nil
}
