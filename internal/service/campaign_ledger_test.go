package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"adengine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func campaignEvents(t *testing.T, env *testEnv, c *model.Campaign) []CampaignEvent {
	t.Helper()
	var out []CampaignEvent
	for _, m := range env.store.Outbox().All() {
		if m.MessageKey != c.ReferenceID() {
			continue
		}
		var evt CampaignEvent
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &evt))
		assert.Equal(t, m.EventType, evt.Event)
		out = append(out, evt)
	}
	return out
}

func eventNames(events []CampaignEvent) []string {
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.Event)
	}
	return names
}

func TestCampaignEvents_WrittenWithEachChange(t *testing.T) {
	env := newTestEnv(t)
	env.fund(sellerID, "200")
	c := env.active(sellerID, nil)

	click, err := env.settlement.TrackInteraction(env.ctx, c.ID, InteractionClick)
	require.NoError(t, err)
	require.True(t, click.Charged)

	result, err := env.campaigns.Cancel(env.ctx, model.Caller{UserID: sellerID}, c.ID)
	require.NoError(t, err)

	events := campaignEvents(t, env, c)
	assert.Equal(t, []string{
		model.EventCampaignActivated,
		model.EventCampaignCharged,
		model.EventCampaignCancelled,
		model.EventCampaignRefunded,
	}, eventNames(events))
	assert.True(t, events[0].Amount.Equal(dec("100")))
	assert.True(t, events[1].Amount.Equal(click.Cost))
	assert.NotEmpty(t, events[1].TransactionNo)
	assert.Equal(t, string(model.CampaignStatusCancelled), events[2].Status)
	assert.True(t, events[3].Amount.Equal(result.RefundAmount))

	// 转换没有生效就不会留下事件
	require.Error(t, env.campaigns.Finish(env.ctx, env.reload(c.ID), model.CampaignStatusExpired))
	assert.Len(t, campaignEvents(t, env, c), 4)
}

func TestCampaignEvents_RejectedChargeWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.fund(sellerID, "200")
	c := env.active(sellerID, nil)
	require.NoError(t, env.campaigns.Pause(env.ctx, c, "今日预算已用完"))

	before := len(env.store.Outbox().All())
	_, err := env.store.Settlement().SettleSpend(env.ctx, model.SpendRequest{
		CampaignID: c.ID,
		OwnerID:    c.OwnerID,
		Day:        env.campaigns.Today(),
		Amount:     dec("1"),
		DailyCap:   c.DailyBudget,
		Event:      env.settlement.events.campaignLedger(model.EventCampaignCharged, c, env.now()),
	})
	require.Error(t, err)
	assert.Len(t, env.store.Outbox().All(), before)
}

func TestRelease_CappedByCampaignReservation(t *testing.T) {
	env := newTestEnv(t)
	env.fund(sellerID, "200")
	a := env.active(sellerID, nil)
	b := env.active(sellerID, nil)
	env.spend(a, "30")

	// a 只剩 70 的预留，多要的部分不能从 b 的预留里扣
	trans, err := env.store.Wallets().Release(env.ctx, sellerID, dec("100"), a.ReferenceID(), nil)
	require.NoError(t, err)
	require.NotNil(t, trans)
	assert.True(t, trans.Amount.Equal(dec("70")), "released %s", trans.Amount)
	assert.True(t, env.wallet(sellerID).ReservedBalance.Equal(dec("100")))

	again, err := env.store.Wallets().Release(env.ctx, sellerID, dec("1"), a.ReferenceID(), nil)
	require.NoError(t, err)
	assert.Nil(t, again)

	result, err := env.campaigns.Cancel(env.ctx, model.Caller{UserID: sellerID}, b.ID)
	require.NoError(t, err)
	assert.True(t, result.RefundAmount.Equal(dec("100")))
	assert.True(t, env.wallet(sellerID).ReservedBalance.IsZero())
}

func TestCancel_ReportsActualRefundOnDrift(t *testing.T) {
	env := newTestEnv(t)
	env.fund(sellerID, "200")
	c := env.active(sellerID, nil)
	_, err := env.store.Wallets().Release(env.ctx, sellerID, dec("40"), c.ReferenceID(), nil)
	require.NoError(t, err)

	result, err := env.campaigns.Cancel(env.ctx, model.Caller{UserID: sellerID}, c.ID)
	require.NoError(t, err)
	assert.True(t, result.RefundAmount.Equal(dec("60")), "refund %s", result.RefundAmount)
	assert.True(t, env.wallet(sellerID).ReservedBalance.IsZero())
}

// racingStore 在第一次状态转换之前插入另一个转换，模拟调度任务与用户操作并发
type racingStore struct {
	CampaignStore
	race model.CampaignStatus
	once sync.Once
}

func (r *racingStore) TransitionStatus(ctx context.Context, id int64, t model.Transition) error {
	r.once.Do(func() {
		_ = r.CampaignStore.TransitionStatus(ctx, id, model.Transition{
			From: model.CampaignStatusActive,
			To:   r.race,
			At:   t.At,
		})
	})
	return r.CampaignStore.TransitionStatus(ctx, id, t)
}

func racingCampaigns(env *testEnv, race model.CampaignStatus) *CampaignService {
	stores := env.stores()
	stores.Campaigns = &racingStore{CampaignStore: stores.Campaigns, race: race}
	svc := NewCampaignService(stores, env.cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.SetClock(env.now)
	return svc
}

func TestCancel_RetriesAfterConcurrentPause(t *testing.T) {
	env := newTestEnv(t)
	env.fund(sellerID, "200")
	c := env.active(sellerID, nil)
	env.spend(c, "20")

	result, err := racingCampaigns(env, model.CampaignStatusPaused).Cancel(env.ctx, model.Caller{UserID: sellerID}, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusCancelled, env.reload(c.ID).Status)
	assert.True(t, result.RefundAmount.Equal(dec("80")))
	assert.True(t, env.wallet(sellerID).ReservedBalance.IsZero())
}

func TestCancel_ConcurrentTerminalWins(t *testing.T) {
	env := newTestEnv(t)
	env.fund(sellerID, "200")
	c := env.active(sellerID, nil)

	_, err := racingCampaigns(env, model.CampaignStatusExpired).Cancel(env.ctx, model.Caller{UserID: sellerID}, c.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, model.CampaignStatusExpired, env.reload(c.ID).Status)
}

func TestUpdateCampaign_SettingsPatch(t *testing.T) {
	env := newTestEnv(t)
	env.fund(sellerID, "200")
	c := env.active(sellerID, func(r *CreateCampaignRequest) {
		r.Settings.TargetCountries = []string{"US"}
	})
	require.False(t, c.IsWorldwide)
	caller := model.Caller{UserID: sellerID}

	placement := model.PlacementSearch
	updated, err := env.campaigns.Update(env.ctx, caller, c.ID, UpdateCampaignRequest{
		Settings: &SettingsPatch{Placement: &placement},
	})
	require.NoError(t, err)
	assert.Equal(t, model.PlacementSearch, updated.Placement)

	stored := env.reload(c.ID)
	assert.Equal(t, []string{"US"}, stored.TargetCountries)
	assert.False(t, stored.IsWorldwide)

	got, err := env.slots.List(env.ctx, ListQuery{CampaignType: model.CampaignTypeStore, Placement: model.PlacementSearch, Country: "FR"})
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = env.slots.List(env.ctx, ListQuery{CampaignType: model.CampaignTypeStore, Placement: model.PlacementSearch, Country: "US"})
	require.NoError(t, err)
	assert.Equal(t, []int64{c.ID}, ids(got))

	// 清空国家列表且不指定 is_worldwide 时变为全球投放
	empty := []string{}
	updated, err = env.campaigns.Update(env.ctx, caller, c.ID, UpdateCampaignRequest{
		Settings: &SettingsPatch{TargetCountries: &empty},
	})
	require.NoError(t, err)
	assert.True(t, updated.IsWorldwide)
	assert.Equal(t, model.PlacementSearch, updated.Placement)

	off := false
	_, err = env.campaigns.Update(env.ctx, caller, c.ID, UpdateCampaignRequest{
		Settings: &SettingsPatch{IsWorldwide: &off},
	})
	assert.ErrorIs(t, err, ErrValidation)
}
