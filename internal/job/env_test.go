package job

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"adengine/internal/config"
	"adengine/internal/model"
	"adengine/internal/repository/memory"
	"adengine/internal/service"
	"adengine/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type jobEnv struct {
	t          *testing.T
	ctx        context.Context
	cfg        *config.Config
	store      *memory.Store
	clock      time.Time
	nextTarget int64

	svc       *service.CampaignService
	lifecycle *Lifecycle
}

func newJobEnv(t *testing.T) *jobEnv {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Scheduler.BatchSize = 2 // 小批量，顺带覆盖分页

	e := &jobEnv{t: t, ctx: context.Background(), cfg: cfg, store: memory.NewStore(), clock: t0}
	e.store.SetClock(e.now)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e.svc = service.NewCampaignService(service.Stores{
		Wallets:     e.store.Wallets(),
		Campaigns:   e.store.Campaigns(),
		DailySpends: e.store.DailySpends(),
		Settlement:  e.store.Settlement(),
		Targets:     e.store.Targets(),
	}, cfg, logger)
	e.svc.SetClock(e.now)
	e.lifecycle = NewLifecycle(e.store.Campaigns(), e.svc, cfg, logger)
	return e
}

func (e *jobEnv) now() time.Time { return e.clock }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (e *jobEnv) fund(owner int64, amount string) {
	e.t.Helper()
	w, err := e.store.Wallets().GetOrCreate(e.ctx, owner)
	require.NoError(e.t, err)
	_, _, err = e.store.Wallets().CompleteDeposit(e.ctx, w.ID, idgen.GenerateDepositNo(), dec(amount), nil)
	require.NoError(e.t, err)
}

type campaignOpts struct {
	total, daily string
	start, end   time.Duration // 相对当前时钟
}

func (e *jobEnv) draft(owner int64, o campaignOpts) *model.Campaign {
	e.t.Helper()
	if o.total == "" {
		o.total = "100"
	}
	if o.daily == "" {
		o.daily = "10"
	}
	if o.start == 0 {
		o.start = -time.Hour
	}
	if o.end == 0 {
		o.end = 7 * 24 * time.Hour
	}
	e.nextTarget++
	e.store.Targets().Register(model.CampaignTypeCoupon, e.nextTarget, owner)
	c, err := e.svc.Create(e.ctx, model.Caller{UserID: owner}, service.CreateCampaignRequest{
		CampaignType: model.CampaignTypeCoupon,
		TargetID:     e.nextTarget,
		TotalBudget:  dec(o.total),
		DailyBudget:  dec(o.daily),
		BiddingType:  model.BiddingCPC,
		BidAmount:    dec("2"),
		StartDate:    e.clock.Add(o.start),
		EndDate:      e.clock.Add(o.end),
	})
	require.NoError(e.t, err)
	return c
}

func (e *jobEnv) active(owner int64, o campaignOpts) *model.Campaign {
	e.t.Helper()
	c := e.draft(owner, o)
	c, err := e.svc.Activate(e.ctx, model.Caller{UserID: owner}, c.ID)
	require.NoError(e.t, err)
	return c
}

func (e *jobEnv) spend(c *model.Campaign, amount string) {
	e.t.Helper()
	_, err := e.store.Settlement().SettleSpend(e.ctx, model.SpendRequest{
		CampaignID: c.ID,
		OwnerID:    c.OwnerID,
		Day:        e.svc.Today(),
		Amount:     dec(amount),
		DailyCap:   c.DailyBudget,
	})
	require.NoError(e.t, err)
}

func (e *jobEnv) reload(id int64) *model.Campaign {
	e.t.Helper()
	c, err := e.store.Campaigns().GetByID(e.ctx, id)
	require.NoError(e.t, err)
	return c
}

func (e *jobEnv) wallet(owner int64) *model.Wallet {
	e.t.Helper()
	w, err := e.store.Wallets().GetByOwnerID(e.ctx, owner)
	require.NoError(e.t, err)
	return w
}

// drain 模拟账目漂移：计划的预留被释放后又被提走，计划本身仍是 active/paused
func (e *jobEnv) drain(c *model.Campaign) {
	e.t.Helper()
	w := e.wallet(c.OwnerID)
	_, err := e.store.Wallets().Release(e.ctx, c.OwnerID, w.ReservedBalance, c.ReferenceID(), nil)
	require.NoError(e.t, err)
	w = e.wallet(c.OwnerID)
	_, err = e.store.Wallets().Withdraw(e.ctx, c.OwnerID, w.Balance, "manual")
	require.NoError(e.t, err)
}
