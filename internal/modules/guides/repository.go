package guides

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/database"
)

const guidesColumns = `id, name, version, hard_rules_json, soft_rules_json, disqualifiers_json, active, created_at, updated_at`

// Repository persists guides in the app database. Guide versions are
// append-only rows: Update writes version n+1 and flips older versions
// inactive inside one transaction.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "guides").Logger(),
	}
}

// Create stores version 1 of a new guide. Names are unique per version,
// so creating a name that already exists returns an error.
func (r *Repository) Create(ctx context.Context, guide *Guide) (*Guide, error) {
	if err := guide.Validate(); err != nil {
		return nil, err
	}

	existing, err := r.GetByName(ctx, guide.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing guide: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("guide %q already exists, use update to add a version", guide.Name)
	}

	guide.ID = uuid.New().String()
	guide.Version = 1
	guide.Active = true
	now := time.Now().UTC()
	guide.CreatedAt = now
	guide.UpdatedAt = now

	if err := r.insert(ctx, r.db, guide); err != nil {
		return nil, err
	}

	r.log.Info().
		Str("guide_id", guide.ID).
		Str("name", guide.Name).
		Int("version", guide.Version).
		Msg("Guide created")

	return guide, nil
}

// Update writes the next version of an existing guide and deactivates
// prior versions. The previous rows stay queryable for audit trails.
func (r *Repository) Update(ctx context.Context, name string, hardRules, softRules, disqualifiers []string) (*Guide, error) {
	current, err := r.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("guide %q not found", name)
	}

	next := &Guide{
		ID:            uuid.New().String(),
		Name:          name,
		Version:       current.Version + 1,
		HardRules:     hardRules,
		SoftRules:     softRules,
		Disqualifiers: disqualifiers,
		Active:        true,
		CreatedAt:     current.CreatedAt,
		UpdatedAt:     time.Now().UTC(),
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}

	err = database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE guides SET active = 0, updated_at = ? WHERE name = ?`,
			next.UpdatedAt.Unix(), name); err != nil {
			return fmt.Errorf("failed to deactivate prior versions: %w", err)
		}
		return r.insert(ctx, tx, next)
	})
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Str("guide_id", next.ID).
		Str("name", next.Name).
		Int("version", next.Version).
		Msg("Guide updated")

	return next, nil
}

// Deactivate retires every version of a guide without deleting rows
func (r *Repository) Deactivate(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE guides SET active = 0, updated_at = ? WHERE name = ? AND active = 1`,
		time.Now().UTC().Unix(), name)
	if err != nil {
		return fmt.Errorf("failed to deactivate guide: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("guide %q not found or already inactive", name)
	}

	r.log.Info().Str("name", name).Msg("Guide deactivated")
	return nil
}

// GetByName returns the active guide with the highest version, or nil
// when no active version exists.
func (r *Repository) GetByName(ctx context.Context, name string) (*Guide, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+guidesColumns+` FROM guides WHERE name = ? AND active = 1 ORDER BY version DESC LIMIT 1`,
		name)
	return r.scanGuide(row)
}

// GetVersion returns a specific version of a guide regardless of its
// active flag, for reconstructing what a past decision was checked against.
func (r *Repository) GetVersion(ctx context.Context, name string, version int) (*Guide, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+guidesColumns+` FROM guides WHERE name = ? AND version = ?`,
		name, version)
	return r.scanGuide(row)
}

// List returns the newest version of every guide name. Inactive guides
// are included when includeInactive is set.
func (r *Repository) List(ctx context.Context, includeInactive bool) ([]Guide, error) {
	query := `SELECT ` + guidesColumns + ` FROM guides
		WHERE version = (SELECT MAX(version) FROM guides g2 WHERE g2.name = guides.name)`
	if !includeInactive {
		query += ` AND active = 1`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list guides: %w", err)
	}
	defer rows.Close()

	var guides []Guide
	for rows.Next() {
		guide, err := r.scanGuideRows(rows)
		if err != nil {
			return nil, err
		}
		guides = append(guides, *guide)
	}
	return guides, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *Repository) insert(ctx context.Context, ex execer, guide *Guide) error {
	hardJSON, err := encodeRules(guide.HardRules)
	if err != nil {
		return err
	}
	softJSON, err := encodeRules(guide.SoftRules)
	if err != nil {
		return err
	}
	disqJSON, err := encodeRules(guide.Disqualifiers)
	if err != nil {
		return err
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO guides (`+guidesColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		guide.ID,
		guide.Name,
		guide.Version,
		hardJSON,
		softJSON,
		disqJSON,
		boolToInt(guide.Active),
		guide.CreatedAt.Unix(),
		guide.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert guide: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanGuide(row rowScanner) (*Guide, error) {
	guide, err := r.scanGuideRows(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return guide, nil
}

func (r *Repository) scanGuideRows(row rowScanner) (*Guide, error) {
	var (
		guide     Guide
		hardJSON  string
		softJSON  sql.NullString
		disqJSON  sql.NullString
		active    int
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&guide.ID,
		&guide.Name,
		&guide.Version,
		&hardJSON,
		&softJSON,
		&disqJSON,
		&active,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if guide.HardRules, err = decodeRules(hardJSON); err != nil {
		return nil, fmt.Errorf("failed to decode hard rules: %w", err)
	}
	if guide.SoftRules, err = decodeRules(softJSON.String); err != nil {
		return nil, fmt.Errorf("failed to decode soft rules: %w", err)
	}
	if guide.Disqualifiers, err = decodeRules(disqJSON.String); err != nil {
		return nil, fmt.Errorf("failed to decode disqualifiers: %w", err)
	}
	guide.Active = active != 0
	guide.CreatedAt = time.Unix(createdAt, 0).UTC()
	guide.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &guide, nil
}

func encodeRules(rules []string) (string, error) {
	if rules == nil {
		rules = []string{}
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return "", fmt.Errorf("failed to encode rules: %w", err)
	}
	return string(data), nil
}

func decodeRules(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var rules []string
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}
	return rules, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
