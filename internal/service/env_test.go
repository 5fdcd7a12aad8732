package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"adengine/internal/config"
	"adengine/internal/model"
	"adengine/internal/repository/memory"
	"adengine/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	sellerID = int64(1001)
	otherID  = int64(2002)
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	t     *testing.T
	ctx   context.Context
	cfg   *config.Config
	store *memory.Store
	clock time.Time

	nextTarget int64

	campaigns  *CampaignService
	settlement *SettlementService
	slots      *SlotAllocator
	wallets    *WalletService
}

func newTestEnv(t *testing.T, tweaks ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Scheduler.SlotCacheTTL = 0
	for _, tweak := range tweaks {
		tweak(cfg)
	}

	env := &testEnv{t: t, ctx: context.Background(), cfg: cfg, store: memory.NewStore(), clock: testNow}
	env.store.SetClock(env.now)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stores := env.stores()
	env.campaigns = NewCampaignService(stores, cfg, logger)
	env.campaigns.SetClock(env.now)
	env.settlement = NewSettlementService(stores, env.campaigns, cfg, logger)
	env.slots = NewSlotAllocator(stores.Campaigns, cfg, nil, logger)
	env.slots.SetClock(env.now)
	env.wallets = NewWalletService(stores, cfg, logger)
	return env
}

func (e *testEnv) now() time.Time { return e.clock }

func (e *testEnv) stores() Stores {
	return Stores{
		Wallets:     e.store.Wallets(),
		Campaigns:   e.store.Campaigns(),
		DailySpends: e.store.DailySpends(),
		Settlement:  e.store.Settlement(),
		Targets:     e.store.Targets(),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fund 直接入账，不经过充值单
func (e *testEnv) fund(owner int64, amount string) {
	e.t.Helper()
	w, err := e.store.Wallets().GetOrCreate(e.ctx, owner)
	require.NoError(e.t, err)
	_, _, err = e.store.Wallets().CompleteDeposit(e.ctx, w.ID, idgen.GenerateDepositNo(), dec(amount), nil)
	require.NoError(e.t, err)
}

func (e *testEnv) wallet(owner int64) *model.Wallet {
	e.t.Helper()
	w, err := e.store.Wallets().GetByOwnerID(e.ctx, owner)
	require.NoError(e.t, err)
	return w
}

func (e *testEnv) reload(id int64) *model.Campaign {
	e.t.Helper()
	c, err := e.store.Campaigns().GetByID(e.ctx, id)
	require.NoError(e.t, err)
	return c
}

// baseRequest CPC 出价 2.00，总预算 100，日预算 50，投放一周
func (e *testEnv) baseRequest(targetID int64) CreateCampaignRequest {
	return CreateCampaignRequest{
		CampaignType: model.CampaignTypeStore,
		TargetID:     targetID,
		TotalBudget:  dec("100"),
		DailyBudget:  dec("50"),
		BiddingType:  model.BiddingCPC,
		BidAmount:    dec("2.00"),
		StartDate:    e.clock.Add(-time.Hour),
		EndDate:      e.clock.Add(7 * 24 * time.Hour),
	}
}

func (e *testEnv) draft(owner int64, mutate func(*CreateCampaignRequest)) *model.Campaign {
	e.t.Helper()
	e.nextTarget++
	req := e.baseRequest(e.nextTarget)
	if mutate != nil {
		mutate(&req)
	}
	e.store.Targets().Register(req.CampaignType, req.TargetID, owner)
	c, err := e.campaigns.Create(e.ctx, model.Caller{UserID: owner}, req)
	require.NoError(e.t, err)
	return c
}

func (e *testEnv) active(owner int64, mutate func(*CreateCampaignRequest)) *model.Campaign {
	e.t.Helper()
	c := e.draft(owner, mutate)
	c, err := e.campaigns.Activate(e.ctx, model.Caller{UserID: owner}, c.ID)
	require.NoError(e.t, err)
	return c
}

// spend 绕过交互直接扣费，用来构造已消耗的状态
func (e *testEnv) spend(c *model.Campaign, amount string) {
	e.t.Helper()
	_, err := e.store.Settlement().SettleSpend(e.ctx, model.SpendRequest{
		CampaignID: c.ID,
		OwnerID:    c.OwnerID,
		Day:        e.campaigns.Today(),
		Amount:     dec(amount),
		DailyCap:   c.DailyBudget,
	})
	require.NoError(e.t, err)
}
