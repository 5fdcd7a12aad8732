package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"adengine/internal/config"
	"adengine/internal/model"
	"adengine/internal/repository"
	"adengine/pkg/idgen"

	"github.com/shopspring/decimal"
)

const (
	InteractionView  = "view"
	InteractionClick = "click"
)

var cpmDivisor = decimal.NewFromInt(1000)

// InteractionResult 一次曝光/点击的结算结果
type InteractionResult struct {
	CampaignID      int64                `json:"campaign_id"`
	Status          model.CampaignStatus `json:"status"`
	Metrics         model.Metrics        `json:"metrics"`
	Cost            decimal.Decimal      `json:"cost"`
	Charged         bool                 `json:"charged"`
	CurrentSpend    decimal.Decimal      `json:"current_spend"`
	RemainingBudget decimal.Decimal      `json:"remaining_budget"`
	PriorityScore   float64              `json:"priority_score"`
}

// SettlementService 实时扣费
type SettlementService struct {
	campaigns   CampaignStore
	daily       DailySpendStore
	settlement  SettlementStore
	lifecycle   *CampaignService
	events      *eventBuilder
	priceFactor decimal.Decimal
	logger      *slog.Logger
}

func NewSettlementService(stores Stores, lifecycle *CampaignService, cfg *config.Config, logger *slog.Logger) *SettlementService {
	logger = logger.With(slog.String("component", "settlement"))
	return &SettlementService{
		campaigns:   stores.Campaigns,
		daily:       stores.DailySpends,
		settlement:  stores.Settlement,
		lifecycle:   lifecycle,
		events:      &eventBuilder{topic: cfg.Kafka.Topic.CampaignEvents, logger: logger},
		priceFactor: decimal.NewFromFloat(cfg.Business.SecondPriceFactor),
		logger:      logger,
	}
}

// Cost 按计费方式计算一次交互的费用，返回 0 表示该交互不计费
//
//	view  + CPM: bid / 1000
//	click + CPC: bid * second_price_factor
func (s *SettlementService) Cost(c *model.Campaign, interaction string) decimal.Decimal {
	switch {
	case interaction == InteractionView && c.BiddingType == model.BiddingCPM:
		return c.BidAmount.Div(cpmDivisor).Round(6)
	case interaction == InteractionClick && c.BiddingType == model.BiddingCPC:
		return c.BidAmount.Mul(s.priceFactor).Round(6)
	}
	return decimal.Zero
}

// TrackInteraction 记录曝光/点击并实时扣费
//
// 【扣费失败为什么不返回错误？】
// 广告展示不能被计费问题阻塞。扣费失败（账目漂移、并发下预算被抢先用完）只记日志，
// 交互次数照常累加，调用方照常拿到成功；日预算巡检会把账目异常的计划暂停。
func (s *SettlementService) TrackInteraction(ctx context.Context, campaignID int64, interaction string) (*InteractionResult, error) {
	if interaction != InteractionView && interaction != InteractionClick {
		return nil, invalid("type", "必须是 view 或 click")
	}

	c, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if c.Status != model.CampaignStatusActive {
		return nil, fmt.Errorf("%w: 当前状态 %s", ErrNotActive, c.Status)
	}
	if c.BudgetExhausted() {
		s.finish(ctx, c, model.CampaignStatusExpired)
		return nil, fmt.Errorf("%w: 总预算已用完", ErrNotActive)
	}

	day := s.lifecycle.Today()
	todaySpend, err := s.todaySpend(ctx, c.ID, day)
	if err != nil {
		return nil, err
	}
	if todaySpend.GreaterThanOrEqual(c.DailyBudget) {
		if err := s.lifecycle.Pause(ctx, c, "今日预算已用完"); err != nil {
			s.logger.Warn("暂停推广计划失败", slog.Int64("campaign_id", c.ID), slog.Any("error", err))
		}
		return nil, fmt.Errorf("%w: 今日预算已用完", ErrNotActive)
	}

	var views, clicks int64
	if interaction == InteractionView {
		views = 1
	} else {
		clicks = 1
	}
	if err := s.campaigns.RecordInteraction(ctx, c.ID, views, clicks); err != nil {
		return nil, mapRepoError(err)
	}
	if err := s.daily.AddInteraction(ctx, c.ID, day, views, clicks); err != nil {
		s.logger.Warn("记录日交互失败", slog.Int64("campaign_id", c.ID), slog.Any("error", err))
	}

	cost := s.Cost(c, interaction)
	charged := false
	if cost.IsPositive() &&
		cost.LessThanOrEqual(c.RemainingBudget()) &&
		todaySpend.Add(cost).LessThanOrEqual(c.DailyBudget) {
		charged = s.debit(ctx, c, day, cost)
	}

	fresh, err := s.campaigns.GetByID(ctx, c.ID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	score := model.ScoreUpdate{CTR: CTR(fresh.Views, fresh.Clicks)}
	fresh.CTR = score.CTR
	if interaction == InteractionClick && cost.IsPositive() {
		score.ActualCPC = &cost
		fresh.ActualCPC = cost
	}
	score.PriorityScore = s.lifecycle.Scorer().Full(fresh)
	fresh.PriorityScore = score.PriorityScore
	if err := s.campaigns.UpdateScore(ctx, fresh.ID, score); err != nil {
		s.logger.Warn("回写评分失败", slog.Int64("campaign_id", fresh.ID), slog.Any("error", err))
	}

	if fresh.Status == model.CampaignStatusActive && fresh.BudgetExhausted() {
		s.finish(ctx, fresh, model.CampaignStatusCompleted)
	}

	remaining := fresh.RemainingBudget()
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return &InteractionResult{
		CampaignID:      fresh.ID,
		Status:          fresh.Status,
		Metrics:         fresh.Metrics(),
		Cost:            cost,
		Charged:         charged,
		CurrentSpend:    fresh.CurrentSpend,
		RemainingBudget: remaining,
		PriorityScore:   fresh.PriorityScore,
	}, nil
}

func (s *SettlementService) debit(ctx context.Context, c *model.Campaign, day string, cost decimal.Decimal) bool {
	_, err := s.settlement.SettleSpend(ctx, model.SpendRequest{
		CampaignID:    c.ID,
		OwnerID:       c.OwnerID,
		Day:           day,
		Amount:        cost,
		DailyCap:      c.DailyBudget,
		TransactionNo: idgen.GenerateTransactionNo(),
		Remark:        fmt.Sprintf("%s 推广消耗", c.BiddingType),
		Event:         s.events.campaignLedger(model.EventCampaignCharged, c, s.lifecycle.Now()),
	})
	if err == nil {
		return true
	}

	attrs := []any{
		slog.Int64("campaign_id", c.ID),
		slog.String("cost", cost.String()),
		slog.Any("error", err),
	}
	switch {
	case errors.Is(err, repository.ErrBudgetExhausted), errors.Is(err, repository.ErrDailyCapReached):
		s.logger.Info("并发下预算已被用完，本次不扣费", attrs...)
	default:
		s.logger.Error("扣费失败", attrs...)
	}
	return false
}

func (s *SettlementService) todaySpend(ctx context.Context, campaignID int64, day string) (decimal.Decimal, error) {
	row, err := s.daily.Get(ctx, campaignID, day)
	if err != nil {
		return decimal.Zero, err
	}
	return row.Spend, nil
}

func (s *SettlementService) finish(ctx context.Context, c *model.Campaign, to model.CampaignStatus) {
	if err := s.lifecycle.Finish(ctx, c, to); err != nil {
		s.logger.Warn("结束推广计划失败",
			slog.Int64("campaign_id", c.ID),
			slog.String("status", string(to)),
			slog.Any("error", err))
	}
}
