package guides

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradegate/tradegate/internal/events"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	log := zerolog.New(nil).Level(zerolog.Disabled)
	return NewService(newTestRepository(t), events.NewManager(log), log)
}

func TestEvaluateSignals_MissingGuideReturnsNil(t *testing.T) {
	svc := newTestService(t)

	eval, err := svc.EvaluateSignals(context.Background(), "no-such-guide", []string{"unusual_volume"})
	require.NoError(t, err)
	assert.Nil(t, eval)
}

func TestEvaluateSignals_MatchesActiveGuide(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, &Guide{
		Name:          "momentum-breakout",
		HardRules:     []string{"unusual_volume"},
		Disqualifiers: []string{"lawsuit_news"},
	})
	require.NoError(t, err)

	eval, err := svc.EvaluateSignals(ctx, "momentum-breakout", []string{"unusual_volume"})
	require.NoError(t, err)
	require.NotNil(t, eval)
	assert.True(t, eval.Allowed)

	eval, err = svc.EvaluateSignals(ctx, "momentum-breakout", []string{"unusual_volume", "lawsuit_news"})
	require.NoError(t, err)
	require.NotNil(t, eval)
	assert.False(t, eval.Allowed)
	assert.Equal(t, "disqualifier_present", eval.Reason)
}

func TestEvaluateSignals_UsesNewestVersion(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, &Guide{
		Name:      "momentum-breakout",
		HardRules: []string{"unusual_volume"},
	})
	require.NoError(t, err)
	_, err = svc.Update(ctx, "momentum-breakout", []string{"unusual_volume", "positive_sentiment"}, nil, nil)
	require.NoError(t, err)

	eval, err := svc.EvaluateSignals(ctx, "momentum-breakout", []string{"unusual_volume"})
	require.NoError(t, err)
	require.NotNil(t, eval)
	assert.Equal(t, 2, eval.GuideVersion)
	assert.False(t, eval.Allowed)
	assert.Equal(t, []string{"positive_sentiment"}, eval.UnmetHardRules)
}

func TestEvaluateSignals_DeactivatedGuideIsGone(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, &Guide{
		Name:      "momentum-breakout",
		HardRules: []string{"unusual_volume"},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, "momentum-breakout"))

	eval, err := svc.EvaluateSignals(ctx, "momentum-breakout", []string{"unusual_volume"})
	require.NoError(t, err)
	assert.Nil(t, eval)
}
