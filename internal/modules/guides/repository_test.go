package guides

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE guides (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			version INTEGER NOT NULL,
			hard_rules_json TEXT NOT NULL,
			soft_rules_json TEXT,
			disqualifiers_json TEXT,
			active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE(name, version)
		)
	`)
	if err != nil {
		t.Fatalf("Failed to create test table: %v", err)
	}

	return NewRepository(db, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestCreate_StoresVersionOne(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, &Guide{
		Name:          "momentum-breakout",
		HardRules:     []string{"unusual_volume", "positive_sentiment"},
		SoftRules:     []string{"macro_event"},
		Disqualifiers: []string{"lawsuit_news"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1, created.Version)
	assert.True(t, created.Active)

	loaded, err := repo.GetByName(ctx, "momentum-breakout")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, created.ID, loaded.ID)
	assert.Equal(t, []string{"unusual_volume", "positive_sentiment"}, loaded.HardRules)
	assert.Equal(t, []string{"macro_event"}, loaded.SoftRules)
	assert.Equal(t, []string{"lawsuit_news"}, loaded.Disqualifiers)
}

func TestCreate_RejectsInvalidGuides(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	testCases := []struct {
		name  string
		guide Guide
	}{
		{name: "empty name", guide: Guide{Name: "  ", HardRules: []string{"rule"}}},
		{name: "no hard rules", guide: Guide{Name: "empty-rules"}},
		{name: "blank hard rule", guide: Guide{Name: "blank-rule", HardRules: []string{" "}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := repo.Create(ctx, &tc.guide)
			assert.Error(t, err)
		})
	}
}

func TestCreate_RejectsDuplicateName(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, &Guide{Name: "dup", HardRules: []string{"rule"}})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &Guide{Name: "dup", HardRules: []string{"other"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

// Updating must version rather than overwrite so past decisions can be
// traced to the exact rules they were checked against.
func TestUpdate_BumpsVersionAndKeepsHistory(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, &Guide{
		Name:      "swing",
		HardRules: []string{"earnings_beat"},
	})
	require.NoError(t, err)

	updated, err := repo.Update(ctx, "swing", []string{"earnings_beat", "unusual_volume"}, nil, []string{"fda_rejection"})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.True(t, updated.Active)

	// Active lookup resolves to the new version
	active, err := repo.GetByName(ctx, "swing")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, 2, active.Version)
	assert.Equal(t, []string{"earnings_beat", "unusual_volume"}, active.HardRules)

	// The old version stays queryable but inactive
	v1, err := repo.GetVersion(ctx, "swing", 1)
	require.NoError(t, err)
	require.NotNil(t, v1)
	assert.False(t, v1.Active)
	assert.Equal(t, []string{"earnings_beat"}, v1.HardRules)
}

func TestUpdate_UnknownGuideFails(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Update(context.Background(), "missing", []string{"rule"}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDeactivate_RetiresAllVersions(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, &Guide{Name: "retired", HardRules: []string{"rule"}})
	require.NoError(t, err)
	_, err = repo.Update(ctx, "retired", []string{"rule", "extra"}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, repo.Deactivate(ctx, "retired"))

	active, err := repo.GetByName(ctx, "retired")
	require.NoError(t, err)
	assert.Nil(t, active)

	// Versions remain for audit reconstruction
	v2, err := repo.GetVersion(ctx, "retired", 2)
	require.NoError(t, err)
	require.NotNil(t, v2)
	assert.False(t, v2.Active)

	// Second deactivate has nothing to do
	err = repo.Deactivate(ctx, "retired")
	assert.Error(t, err)
}

func TestGetByName_MissingReturnsNil(t *testing.T) {
	repo := newTestRepository(t)

	guide, err := repo.GetByName(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, guide)
}

func TestList_NewestVersionPerName(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, &Guide{Name: "alpha", HardRules: []string{"a"}})
	require.NoError(t, err)
	_, err = repo.Update(ctx, "alpha", []string{"a", "b"}, nil, nil)
	require.NoError(t, err)
	_, err = repo.Create(ctx, &Guide{Name: "beta", HardRules: []string{"c"}})
	require.NoError(t, err)
	require.NoError(t, repo.Deactivate(ctx, "beta"))

	activeOnly, err := repo.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, activeOnly, 1)
	assert.Equal(t, "alpha", activeOnly[0].Name)
	assert.Equal(t, 2, activeOnly[0].Version)

	all, err := repo.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
