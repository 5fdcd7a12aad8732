package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"adengine/internal/config"
	"adengine/internal/model"
	"adengine/internal/repository"

	"github.com/shopspring/decimal"
)

var (
	minBudget = decimal.NewFromInt(5)
	minBid    = decimal.New(1, -2)
)

type CampaignService struct {
	wallets   WalletStore
	campaigns CampaignStore
	daily     DailySpendStore
	targets   TargetDirectory
	events    *eventBuilder
	scorer    *PriorityScorer
	slots     map[string]config.SlotConfig
	biz       config.BusinessConfig
	loc       *time.Location
	logger    *slog.Logger
	now       func() time.Time
}

func NewCampaignService(stores Stores, cfg *config.Config, logger *slog.Logger) *CampaignService {
	logger = logger.With(slog.String("component", "campaign"))
	return &CampaignService{
		wallets:   stores.Wallets,
		campaigns: stores.Campaigns,
		daily:     stores.DailySpends,
		targets:   stores.Targets,
		events:    &eventBuilder{topic: cfg.Kafka.Topic.CampaignEvents, logger: logger},
		scorer:    NewPriorityScorer(cfg.Business.Priority),
		slots:     cfg.Slots,
		biz:       cfg.Business,
		loc:       cfg.Business.Location(),
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock 替换时间源，测试用
func (s *CampaignService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *CampaignService) Now() time.Time {
	return s.now()
}

// Today 业务时区下的日桶
func (s *CampaignService) Today() string {
	return s.now().In(s.loc).Format(model.DayLayout)
}

func (s *CampaignService) Scorer() *PriorityScorer {
	return s.scorer
}

func (s *CampaignService) MinAvailable() decimal.Decimal {
	return s.biz.MinAvailable()
}

type CampaignSettings struct {
	TargetCountries []string
	IsWorldwide     *bool
	Placement       string
}

// SettingsPatch 修改投放设置，nil 字段保持原值
// 只给国家列表、不给 IsWorldwide 时按列表是否为空推导
type SettingsPatch struct {
	TargetCountries *[]string
	IsWorldwide     *bool
	Placement       *string
}

type CreateCampaignRequest struct {
	CampaignType string
	TargetID     int64
	TotalBudget  decimal.Decimal
	DailyBudget  decimal.Decimal
	BiddingType  string
	BidAmount    decimal.Decimal
	StartDate    time.Time
	EndDate      time.Time
	Settings     CampaignSettings
}

// UpdateCampaignRequest 为 nil 的字段保持不变
type UpdateCampaignRequest struct {
	CampaignType *string
	TargetID     *int64
	TotalBudget  *decimal.Decimal
	DailyBudget  *decimal.Decimal
	BiddingType  *string
	BidAmount    *decimal.Decimal
	StartDate    *time.Time
	EndDate      *time.Time
	Settings     *SettingsPatch
}

// draftOnly 激活后不允许再改的字段
func (r UpdateCampaignRequest) draftOnly() bool {
	return r.CampaignType != nil || r.TargetID != nil || r.TotalBudget != nil || r.BiddingType != nil || r.StartDate != nil
}

type CancelResult struct {
	Campaign     *model.Campaign `json:"campaign"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	Spent        decimal.Decimal `json:"spent"`
}

type Analytics struct {
	CampaignID        int64                `json:"campaign_id"`
	Status            model.CampaignStatus `json:"status"`
	Metrics           model.Metrics        `json:"metrics"`
	TotalBudget       decimal.Decimal      `json:"total_budget"`
	CurrentSpend      decimal.Decimal      `json:"current_spend"`
	TodaySpend        decimal.Decimal      `json:"today_spend"`
	RemainingBudget   decimal.Decimal      `json:"remaining_budget"`
	DaysRemaining     int                  `json:"days_remaining"`
	AvgDailySpend     decimal.Decimal      `json:"avg_daily_spend"`
	BudgetUtilization float64              `json:"budget_utilization"`
	PriorityScore     float64              `json:"priority_score"`
}

func (s *CampaignService) Create(ctx context.Context, caller model.Caller, req CreateCampaignRequest) (*model.Campaign, error) {
	c := &model.Campaign{
		OwnerID:      caller.UserID,
		CampaignType: req.CampaignType,
		TargetID:     req.TargetID,
		TotalBudget:  req.TotalBudget,
		DailyBudget:  req.DailyBudget,
		BiddingType:  req.BiddingType,
		BidAmount:    req.BidAmount,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Status:       model.CampaignStatusDraft,
	}
	if err := applySettings(c, req.Settings); err != nil {
		return nil, err
	}
	if err := s.validate(c); err != nil {
		return nil, err
	}
	if err := s.checkTarget(ctx, caller, c); err != nil {
		return nil, err
	}
	if err := s.checkAdmission(ctx, c.CampaignType); err != nil {
		return nil, err
	}

	wallet, err := s.wallets.GetOrCreate(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if wallet.Available().LessThan(c.TotalBudget) {
		return nil, fmt.Errorf("%w: 可用 %s，需要 %s", ErrInsufficientBalance, wallet.Available(), c.TotalBudget)
	}

	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("推广计划已创建",
		slog.Int64("campaign_id", c.ID),
		slog.Int64("owner_id", c.OwnerID),
		slog.String("type", c.CampaignType))
	return c, nil
}

func (s *CampaignService) Activate(ctx context.Context, caller model.Caller, id int64) (*model.Campaign, error) {
	c, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignStatusDraft {
		return nil, fmt.Errorf("%w: 当前状态 %s", ErrInvalidState, c.Status)
	}
	if s.now().After(c.EndDate) {
		return nil, fmt.Errorf("%w: 已超过投放结束时间", ErrInvalidState)
	}
	if err := s.ActivateDraft(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ActivateDraft draft -> active：先预留总预算，再做条件状态转换，转换失败则把预留退回
func (s *CampaignService) ActivateDraft(ctx context.Context, c *model.Campaign) error {
	if err := s.checkAdmission(ctx, c.CampaignType); err != nil {
		return err
	}
	available, err := s.WalletAvailable(ctx, c.OwnerID)
	if err != nil {
		return err
	}
	if available.LessThan(c.TotalBudget) {
		return fmt.Errorf("%w: 可用 %s，需要 %s", ErrInsufficientBalance, available, c.TotalBudget)
	}
	if _, err := s.wallets.Reserve(ctx, c.OwnerID, c.TotalBudget, c.ReferenceID()); err != nil {
		return mapRepoError(err)
	}

	now := s.now()
	reserved := c.TotalBudget
	score := s.scorer.Initial(c)
	err = s.campaigns.TransitionStatus(ctx, c.ID, model.Transition{
		From:           model.CampaignStatusDraft,
		To:             model.CampaignStatusActive,
		ReservedBudget: &reserved,
		PriorityScore:  &score,
		At:             now,
		Event:          s.events.campaign(model.EventCampaignActivated, c, model.CampaignStatusActive, reserved, now),
	})
	if err != nil {
		if _, relErr := s.wallets.Release(ctx, c.OwnerID, reserved, c.ReferenceID(), nil); relErr != nil {
			s.logger.Error("激活失败后退回预留失败，需人工对账",
				slog.Int64("campaign_id", c.ID),
				slog.String("amount", reserved.String()),
				slog.Any("error", relErr))
		}
		return mapRepoError(err)
	}

	c.Status = model.CampaignStatusActive
	c.ReservedBudget = reserved
	c.PriorityScore = score
	c.ActivatedAt = &now
	s.logger.Info("推广计划已激活",
		slog.Int64("campaign_id", c.ID),
		slog.String("reserved", reserved.String()),
		slog.Float64("priority", score))
	return nil
}

func (s *CampaignService) Update(ctx context.Context, caller model.Caller, id int64, req UpdateCampaignRequest) (*model.Campaign, error) {
	c, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if c.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: 当前状态 %s", ErrInvalidState, c.Status)
	}
	isDraft := c.Status == model.CampaignStatusDraft
	if !isDraft && req.draftOnly() {
		return nil, fmt.Errorf("%w: 激活后只能修改日预算、出价、结束时间和投放设置", ErrInvalidState)
	}

	targetChanged := false
	if req.CampaignType != nil && *req.CampaignType != c.CampaignType {
		c.CampaignType = *req.CampaignType
		targetChanged = true
	}
	if req.TargetID != nil && *req.TargetID != c.TargetID {
		c.TargetID = *req.TargetID
		targetChanged = true
	}
	if req.TotalBudget != nil {
		c.TotalBudget = *req.TotalBudget
	}
	if req.DailyBudget != nil {
		c.DailyBudget = *req.DailyBudget
	}
	if req.BiddingType != nil {
		c.BiddingType = *req.BiddingType
	}
	if req.BidAmount != nil {
		c.BidAmount = *req.BidAmount
	}
	if req.StartDate != nil {
		c.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		c.EndDate = *req.EndDate
	}
	if req.Settings != nil {
		if err := applySettingsPatch(c, *req.Settings); err != nil {
			return nil, err
		}
	}

	if err := s.validate(c); err != nil {
		return nil, err
	}
	if targetChanged {
		if err := s.checkTarget(ctx, caller, c); err != nil {
			return nil, err
		}
	}
	if isDraft && req.TotalBudget != nil {
		available, err := s.WalletAvailable(ctx, c.OwnerID)
		if err != nil {
			return nil, err
		}
		if available.LessThan(c.TotalBudget) {
			return nil, fmt.Errorf("%w: 可用 %s，需要 %s", ErrInsufficientBalance, available, c.TotalBudget)
		}
	}
	if !isDraft {
		c.PriorityScore = s.scorer.Full(c)
	}

	if err := s.campaigns.Update(ctx, c); err != nil {
		return nil, mapRepoError(err)
	}
	return c, nil
}

// Cancel 任意非终态 -> cancelled
// 状态转换一定先完成；退款失败只记日志留给人工对账，不阻塞取消
func (s *CampaignService) Cancel(ctx context.Context, caller model.Caller, id int64) (*CancelResult, error) {
	c, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if c.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: 当前状态 %s", ErrInvalidState, c.Status)
	}

	now := s.now()
	err = s.cancelFrom(ctx, c, now)
	if errors.Is(err, repository.ErrStatusConflict) {
		// 读到状态之后被调度任务暂停/恢复了，按最新状态重试一次
		latest, getErr := s.campaigns.GetByID(ctx, c.ID)
		if getErr != nil {
			return nil, mapRepoError(getErr)
		}
		if latest.Status.IsTerminal() {
			return nil, fmt.Errorf("%w: 当前状态 %s", ErrInvalidState, latest.Status)
		}
		c = latest
		err = s.cancelFrom(ctx, c, now)
	}
	if err != nil {
		return nil, mapRepoError(err)
	}

	fresh := s.reload(ctx, c, model.CampaignStatusCancelled)
	refund := c.ReservedBudget.Sub(fresh.CurrentSpend)
	if refund.IsPositive() {
		refund = s.release(ctx, c, refund, now)
	} else {
		refund = decimal.Zero
	}

	s.logger.Info("推广计划已取消",
		slog.Int64("campaign_id", c.ID),
		slog.String("refund", refund.String()),
		slog.String("spent", fresh.CurrentSpend.String()))
	return &CancelResult{Campaign: fresh, RefundAmount: refund, Spent: fresh.CurrentSpend}, nil
}

func (s *CampaignService) cancelFrom(ctx context.Context, c *model.Campaign, now time.Time) error {
	zero := decimal.Zero
	return s.campaigns.TransitionStatus(ctx, c.ID, model.Transition{
		From:           c.Status,
		To:             model.CampaignStatusCancelled,
		ReservedBudget: &zero,
		At:             now,
		Event:          s.events.campaign(model.EventCampaignCancelled, c, model.CampaignStatusCancelled, decimal.Zero, now),
	})
}

// release 退回未消耗的预留并写 campaign.refunded 事件，返回实际退回的金额
// 实际退回少于预期说明该计划的预留账目已漂移，记日志留给对账
func (s *CampaignService) release(ctx context.Context, c *model.Campaign, amount decimal.Decimal, at time.Time) decimal.Decimal {
	trans, err := s.wallets.Release(ctx, c.OwnerID, amount, c.ReferenceID(),
		s.events.campaignLedger(model.EventCampaignRefunded, c, at))
	if err != nil {
		s.logger.Error("退回预留失败，需人工对账",
			slog.Int64("campaign_id", c.ID),
			slog.String("amount", amount.String()),
			slog.Any("error", err))
		return decimal.Zero
	}
	released := decimal.Zero
	if trans != nil {
		released = trans.Amount
	}
	if released.LessThan(amount) {
		s.logger.Warn("实际退回少于预期，预留账目可能已漂移",
			slog.Int64("campaign_id", c.ID),
			slog.String("expected", amount.String()),
			slog.String("released", released.String()))
	}
	return released
}

func (s *CampaignService) Get(ctx context.Context, caller model.Caller, id int64) (*model.Campaign, error) {
	return s.owned(ctx, caller, id)
}

func (s *CampaignService) List(ctx context.Context, caller model.Caller, page, pageSize int) ([]*model.Campaign, int64, error) {
	return s.campaigns.ListByOwnerID(ctx, caller.UserID, page, pageSize)
}

// Ledger 推广计划的资金流水：激活预留、每次扣费、结束或取消时的退款
func (s *CampaignService) Ledger(ctx context.Context, caller model.Caller, id int64) ([]*model.Transaction, error) {
	c, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.wallets.ListByReference(ctx, c.ReferenceID())
}

func (s *CampaignService) Analytics(ctx context.Context, caller model.Caller, id int64) (*Analytics, error) {
	c, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	today, err := s.TodaySpend(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	remaining := c.RemainingBudget()
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	daysRemaining := int(math.Ceil(c.EndDate.Sub(now).Hours() / 24))
	if daysRemaining < 0 {
		daysRemaining = 0
	}
	daysElapsed := int64(math.Ceil(now.Sub(c.StartDate).Hours() / 24))
	if daysElapsed < 1 {
		daysElapsed = 1
	}
	utilization := 0.0
	if c.TotalBudget.IsPositive() {
		utilization = c.CurrentSpend.Div(c.TotalBudget).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}

	return &Analytics{
		CampaignID:        c.ID,
		Status:            c.Status,
		Metrics:           c.Metrics(),
		TotalBudget:       c.TotalBudget,
		CurrentSpend:      c.CurrentSpend,
		TodaySpend:        today,
		RemainingBudget:   remaining,
		DaysRemaining:     daysRemaining,
		AvgDailySpend:     c.CurrentSpend.Div(decimal.NewFromInt(daysElapsed)).Round(6),
		BudgetUtilization: utilization,
		PriorityScore:     c.PriorityScore,
	}, nil
}

// ---- 供调度任务与实时结算使用的生命周期操作 ----

// Pause active -> paused
func (s *CampaignService) Pause(ctx context.Context, c *model.Campaign, reason string) error {
	now := s.now()
	err := s.campaigns.TransitionStatus(ctx, c.ID, model.Transition{
		From:  model.CampaignStatusActive,
		To:    model.CampaignStatusPaused,
		At:    now,
		Event: s.events.campaign(model.EventCampaignPaused, c, model.CampaignStatusPaused, decimal.Zero, now),
	})
	if err != nil {
		return mapRepoError(err)
	}
	c.Status = model.CampaignStatusPaused
	s.logger.Info("推广计划已暂停", slog.Int64("campaign_id", c.ID), slog.String("reason", reason))
	return nil
}

// Resume paused -> active，按当前预算健康度重新打分
func (s *CampaignService) Resume(ctx context.Context, c *model.Campaign) error {
	now := s.now()
	score := s.scorer.Full(c)
	err := s.campaigns.TransitionStatus(ctx, c.ID, model.Transition{
		From:          model.CampaignStatusPaused,
		To:            model.CampaignStatusActive,
		PriorityScore: &score,
		At:            now,
		Event:         s.events.campaign(model.EventCampaignResumed, c, model.CampaignStatusActive, decimal.Zero, now),
	})
	if err != nil {
		return mapRepoError(err)
	}
	c.Status = model.CampaignStatusActive
	c.PriorityScore = score
	s.logger.Info("推广计划已恢复投放", slog.Int64("campaign_id", c.ID))
	return nil
}

// Finish 进入 completed 或 expired，并把未消耗的预留退回钱包
func (s *CampaignService) Finish(ctx context.Context, c *model.Campaign, to model.CampaignStatus) error {
	if to != model.CampaignStatusCompleted && to != model.CampaignStatusExpired {
		return fmt.Errorf("%w: 不支持结束为 %s", ErrInvalidState, to)
	}
	event := model.EventCampaignExpired
	if to == model.CampaignStatusCompleted {
		event = model.EventCampaignCompleted
	}
	now := s.now()
	zero := decimal.Zero
	err := s.campaigns.TransitionStatus(ctx, c.ID, model.Transition{
		From:           c.Status,
		To:             to,
		ReservedBudget: &zero,
		At:             now,
		Event:          s.events.campaign(event, c, to, decimal.Zero, now),
	})
	if err != nil {
		return mapRepoError(err)
	}

	// 状态离开 active 后不会再有扣费，此时读到的 current_spend 是最终值
	fresh := s.reload(ctx, c, to)
	leftover := c.ReservedBudget.Sub(fresh.CurrentSpend)
	if leftover.IsPositive() {
		leftover = s.release(ctx, c, leftover, now)
	} else {
		leftover = decimal.Zero
	}
	*c = *fresh

	s.logger.Info("推广计划已结束",
		slog.Int64("campaign_id", c.ID),
		slog.String("status", string(to)),
		slog.String("released", leftover.String()))
	return nil
}

// RefreshPriority 批量刷新使用轻量公式，同样的输入得到同样的分数
func (s *CampaignService) RefreshPriority(ctx context.Context, c *model.Campaign) (float64, error) {
	c.CTR = CTR(c.Views, c.Clicks)
	score := s.scorer.Light(c)
	if err := s.campaigns.UpdateScore(ctx, c.ID, model.ScoreUpdate{CTR: c.CTR, PriorityScore: score}); err != nil {
		return 0, err
	}
	c.PriorityScore = score
	return score, nil
}

func (s *CampaignService) TodaySpend(ctx context.Context, campaignID int64) (decimal.Decimal, error) {
	row, err := s.daily.Get(ctx, campaignID, s.Today())
	if err != nil {
		return decimal.Zero, err
	}
	return row.Spend, nil
}

// WalletAvailable 没有钱包视为可用余额为 0
func (s *CampaignService) WalletAvailable(ctx context.Context, ownerID int64) (decimal.Decimal, error) {
	wallet, err := s.wallets.GetByOwnerID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return wallet.Available(), nil
}

// Fundable 推广计划还能动用的资金：钱包可用余额 + 该计划尚未消耗、且钱包里确实还预留着的部分
// 账目漂移（钱包预留比计划剩余预留少）时结果会变小，调度任务据此暂停计划
func (s *CampaignService) Fundable(ctx context.Context, c *model.Campaign) (decimal.Decimal, error) {
	wallet, err := s.wallets.GetByOwnerID(ctx, c.OwnerID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	outstanding := c.ReservedBudget.Sub(c.CurrentSpend)
	if outstanding.IsNegative() {
		outstanding = decimal.Zero
	}
	return wallet.Available().Add(decimal.Min(outstanding, wallet.ReservedBalance)), nil
}

func (s *CampaignService) owned(ctx context.Context, caller model.Caller, id int64) (*model.Campaign, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if c.OwnerID != caller.UserID {
		return nil, ErrNotOwner
	}
	return c, nil
}

// reload 终态转换后重新读取；读取失败时退回到内存里的副本
func (s *CampaignService) reload(ctx context.Context, c *model.Campaign, status model.CampaignStatus) *model.Campaign {
	fresh, err := s.campaigns.GetByID(ctx, c.ID)
	if err != nil {
		s.logger.Warn("重新读取推广计划失败", slog.Int64("campaign_id", c.ID), slog.Any("error", err))
		cp := *c
		cp.Status = status
		cp.ReservedBudget = decimal.Zero
		return &cp
	}
	return fresh
}

func (s *CampaignService) validate(c *model.Campaign) error {
	slot, ok := s.slots[c.CampaignType]
	if !ok {
		return invalid("campaign_type", "必须是 store、coupon 或 deal")
	}
	switch c.BiddingType {
	case model.BiddingCPC, model.BiddingCPM, model.BiddingCPA:
	default:
		return invalid("bidding_type", "必须是 CPC、CPM 或 CPA")
	}
	floor := decimal.Max(minBid, slot.MinBid())
	if c.BidAmount.LessThan(floor) {
		return invalid("bid_amount", fmt.Sprintf("不能低于 %s", floor))
	}
	if c.TotalBudget.LessThan(minBudget) {
		return invalid("total_budget", fmt.Sprintf("不能低于 %s", minBudget))
	}
	if c.DailyBudget.LessThan(minBudget) {
		return invalid("daily_budget", fmt.Sprintf("不能低于 %s", minBudget))
	}
	if c.DailyBudget.GreaterThan(c.TotalBudget) {
		return invalid("daily_budget", "不能超过总预算")
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return invalid("start_date", "开始和结束时间必填")
	}
	if !c.EndDate.After(c.StartDate) {
		return invalid("end_date", "必须晚于开始时间")
	}
	if !c.EndDate.After(s.now()) {
		return invalid("end_date", "必须晚于当前时间")
	}
	return nil
}

func (s *CampaignService) checkTarget(ctx context.Context, caller model.Caller, c *model.Campaign) error {
	owner, err := s.targets.OwnerOf(ctx, c.CampaignType, c.TargetID)
	if err != nil {
		if errors.Is(err, repository.ErrTargetNotFound) {
			return invalid("target_id", "推广目标不存在")
		}
		return err
	}
	if owner != caller.UserID {
		return invalid("target_id", "推广目标不属于当前用户")
	}
	return nil
}

// checkAdmission 每种类型同时投放的推广计划数量受全局上限控制
func (s *CampaignService) checkAdmission(ctx context.Context, campaignType string) error {
	active, err := s.campaigns.CountByStatus(ctx, campaignType, model.CampaignStatusActive)
	if err != nil {
		return err
	}
	if active >= int64(s.slots[campaignType].MaxActive) {
		return fmt.Errorf("%w（%s 已有 %d 个投放中）", ErrSlotsFull, campaignType, active)
	}
	return nil
}

// applySettingsPatch 以当前设置为底合并后再整体校验
func applySettingsPatch(c *model.Campaign, patch SettingsPatch) error {
	worldwide := c.IsWorldwide
	merged := CampaignSettings{
		TargetCountries: c.TargetCountries,
		IsWorldwide:     &worldwide,
		Placement:       c.Placement,
	}
	if patch.TargetCountries != nil {
		merged.TargetCountries = *patch.TargetCountries
		merged.IsWorldwide = nil
	}
	if patch.IsWorldwide != nil {
		merged.IsWorldwide = patch.IsWorldwide
	}
	if patch.Placement != nil {
		merged.Placement = *patch.Placement
	}
	return applySettings(c, merged)
}

func applySettings(c *model.Campaign, settings CampaignSettings) error {
	c.TargetCountries = normalizeCountries(settings.TargetCountries)
	if settings.IsWorldwide != nil {
		c.IsWorldwide = *settings.IsWorldwide
	} else {
		c.IsWorldwide = len(c.TargetCountries) == 0
	}
	if !c.IsWorldwide && len(c.TargetCountries) == 0 {
		return invalid("settings.target_countries", "非全球投放时必须指定国家")
	}

	switch settings.Placement {
	case "":
		c.Placement = model.PlacementAll
	case model.PlacementHomepage, model.PlacementCategory, model.PlacementSearch, model.PlacementAll:
		c.Placement = settings.Placement
	default:
		return invalid("settings.placement", "必须是 homepage、category、search 或 all")
	}
	return nil
}
