package service

import (
	"testing"

	"adengine/internal/config"
	"adengine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultWeights(t *testing.T) config.PriorityWeights {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	return cfg.Business.Priority
}

func TestPriorityScorer(t *testing.T) {
	scorer := NewPriorityScorer(defaultWeights(t))

	c := &model.Campaign{
		BidAmount:    dec("2"),
		TotalBudget:  dec("100"),
		CurrentSpend: dec("25"),
		CTR:          1,
	}
	assert.InDelta(t, 50.0, scorer.Performance(c), 1e-9)
	assert.InDelta(t, 75.0, scorer.BudgetHealth(c), 1e-9)
	// 2*0.7 + 50*0.3
	assert.InDelta(t, 16.4, scorer.Light(c), 1e-9)
	// 2*0.5 + 50*0.3 + 75*0.2
	assert.InDelta(t, 31.0, scorer.Full(c), 1e-9)
	assert.InDelta(t, 36.0, scorer.Initial(c), 1e-9)
}

func TestPriorityScorer_Caps(t *testing.T) {
	scorer := NewPriorityScorer(defaultWeights(t))

	hot := &model.Campaign{CTR: 2.5, Conversions: 3, TotalBudget: dec("10")}
	assert.InDelta(t, 100.0, scorer.Performance(hot), 1e-9)
	assert.InDelta(t, 100.0, scorer.BudgetHealth(hot), 1e-9)

	overspent := &model.Campaign{TotalBudget: dec("10"), CurrentSpend: dec("10.8")}
	assert.Zero(t, scorer.BudgetHealth(overspent))
}

func TestRefreshPriority_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	env.fund(sellerID, "100")
	c := env.active(sellerID, nil)
	require.NoError(t, env.store.Campaigns().RecordInteraction(env.ctx, c.ID, 40, 2))

	c = env.reload(c.ID)
	first, err := env.campaigns.RefreshPriority(env.ctx, c)
	require.NoError(t, err)

	c = env.reload(c.ID)
	second, err := env.campaigns.RefreshPriority(env.ctx, c)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// ctr = 5，performance = 250 封顶 100：2*0.7 + 100*0.3
	assert.InDelta(t, 31.4, second, 1e-9)
	assert.InDelta(t, 5.0, env.reload(c.ID).CTR, 1e-9)
}

func TestCTR(t *testing.T) {
	assert.Zero(t, CTR(0, 3))
	assert.InDelta(t, 12.5, CTR(8, 1), 1e-9)
}

func TestIsCountryAvailable(t *testing.T) {
	assert.True(t, IsCountryAvailable("FR", nil, true))
	assert.True(t, IsCountryAvailable("us", []string{"US", "DE"}, false))
	assert.False(t, IsCountryAvailable("FR", []string{"US", "DE"}, false))
	assert.False(t, IsCountryAvailable("FR", nil, false))
}
