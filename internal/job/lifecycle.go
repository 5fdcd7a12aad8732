package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"adengine/internal/config"
	"adengine/internal/model"
	"adengine/internal/service"
)

// Report 一次调度执行的统计
type Report struct {
	Processed int `json:"processed"`
	Activated int `json:"activated"`
	Paused    int `json:"paused"`
	Resumed   int `json:"resumed"`
	Completed int `json:"completed"`
	Expired   int `json:"expired"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (r Report) attrs() []any {
	return []any{
		slog.Int("processed", r.Processed),
		slog.Int("activated", r.Activated),
		slog.Int("paused", r.Paused),
		slog.Int("resumed", r.Resumed),
		slog.Int("completed", r.Completed),
		slog.Int("expired", r.Expired),
		slog.Int("skipped", r.Skipped),
		slog.Int("failed", r.Failed),
	}
}

type CampaignLister interface {
	ListByStatus(ctx context.Context, statuses []model.CampaignStatus, afterID int64, limit int) ([]*model.Campaign, error)
}

// Lifecycle 与流量无关的状态推进：到期、预算耗尽、草稿激活、午夜恢复
// 每个计划单独处理，单个失败只计入 Failed，不影响同批其他计划
type Lifecycle struct {
	campaigns CampaignLister
	svc       *service.CampaignService
	batchSize int
	logger    *slog.Logger
}

func NewLifecycle(campaigns CampaignLister, svc *service.CampaignService, cfg *config.Config, logger *slog.Logger) *Lifecycle {
	batch := cfg.Scheduler.BatchSize
	if batch <= 0 {
		batch = 200
	}
	return &Lifecycle{
		campaigns: campaigns,
		svc:       svc,
		batchSize: batch,
		logger:    logger,
	}
}

// RunPriorityRefresh 每小时：过期的结束，预算用完的完成，其余按轻量公式重新打分，到期的草稿顺带激活
func (l *Lifecycle) RunPriorityRefresh(ctx context.Context) (Report, error) {
	var rep Report
	now := l.svc.Now()
	err := l.each(ctx, []model.CampaignStatus{model.CampaignStatusActive, model.CampaignStatusDraft}, func(c *model.Campaign) error {
		switch {
		case now.After(c.EndDate):
			rep.Processed++
			return l.finish(ctx, c, model.CampaignStatusExpired, &rep)
		case now.Before(c.StartDate):
			return nil
		}

		rep.Processed++
		if c.Status == model.CampaignStatusActive && c.BudgetExhausted() {
			return l.finish(ctx, c, model.CampaignStatusCompleted, &rep)
		}
		if _, err := l.svc.RefreshPriority(ctx, c); err != nil {
			return err
		}
		if c.Status == model.CampaignStatusDraft {
			return l.activate(ctx, c, &rep)
		}
		return nil
	}, &rep)
	return rep, err
}

// RunDraftActivation 每 15 分钟：投放窗口已打开的草稿，余额够就预留并激活，不够就留在草稿
func (l *Lifecycle) RunDraftActivation(ctx context.Context) (Report, error) {
	var rep Report
	now := l.svc.Now()
	err := l.each(ctx, []model.CampaignStatus{model.CampaignStatusDraft}, func(c *model.Campaign) error {
		if now.Before(c.StartDate) {
			return nil
		}
		rep.Processed++
		if now.After(c.EndDate) {
			return l.finish(ctx, c, model.CampaignStatusExpired, &rep)
		}
		return l.activate(ctx, c, &rep)
	}, &rep)
	return rep, err
}

// RunDailyBudgetCheck 每小时：总预算用完的过期；资金不足或今日预算用完的暂停
func (l *Lifecycle) RunDailyBudgetCheck(ctx context.Context) (Report, error) {
	var rep Report
	err := l.each(ctx, []model.CampaignStatus{model.CampaignStatusActive}, func(c *model.Campaign) error {
		rep.Processed++
		if c.BudgetExhausted() {
			return l.finish(ctx, c, model.CampaignStatusExpired, &rep)
		}

		fundable, err := l.svc.Fundable(ctx, c)
		if err != nil {
			return err
		}
		if fundable.LessThan(l.svc.MinAvailable()) {
			return l.pause(ctx, c, fmt.Sprintf("可用资金 %s 低于下限", fundable), &rep)
		}

		today, err := l.svc.TodaySpend(ctx, c.ID)
		if err != nil {
			return err
		}
		if today.GreaterThanOrEqual(c.DailyBudget) {
			return l.pause(ctx, c, "今日预算已用完", &rep)
		}
		return nil
	}, &rep)
	return rep, err
}

// RunMidnightReset 每天切日后：暂停中的计划还有预算且资金够就恢复，没有预算了就过期
func (l *Lifecycle) RunMidnightReset(ctx context.Context) (Report, error) {
	var rep Report
	now := l.svc.Now()
	err := l.each(ctx, []model.CampaignStatus{model.CampaignStatusPaused}, func(c *model.Campaign) error {
		rep.Processed++
		if c.BudgetExhausted() || now.After(c.EndDate) {
			return l.finish(ctx, c, model.CampaignStatusExpired, &rep)
		}
		if now.Before(c.StartDate) {
			rep.Skipped++
			return nil
		}

		fundable, err := l.svc.Fundable(ctx, c)
		if err != nil {
			return err
		}
		if fundable.LessThan(l.svc.MinAvailable()) {
			rep.Skipped++
			return nil
		}
		// 手动触发时可能还没切日
		today, err := l.svc.TodaySpend(ctx, c.ID)
		if err != nil {
			return err
		}
		if today.GreaterThanOrEqual(c.DailyBudget) {
			rep.Skipped++
			return nil
		}

		if err := l.svc.Resume(ctx, c); err != nil {
			return err
		}
		rep.Resumed++
		return nil
	}, &rep)
	return rep, err
}

// each 按 id 游标分批遍历，回调返回的错误只记日志并计入 Failed
func (l *Lifecycle) each(ctx context.Context, statuses []model.CampaignStatus, fn func(*model.Campaign) error, rep *Report) error {
	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := l.campaigns.ListByStatus(ctx, statuses, afterID, l.batchSize)
		if err != nil {
			return fmt.Errorf("查询推广计划失败: %w", err)
		}
		for _, c := range batch {
			afterID = c.ID
			if err := fn(c); err != nil {
				rep.Failed++
				l.logger.Warn("处理推广计划失败",
					slog.Int64("campaign_id", c.ID),
					slog.String("status", string(c.Status)),
					slog.Any("error", err))
			}
		}
		if len(batch) < l.batchSize {
			return nil
		}
	}
}

func (l *Lifecycle) activate(ctx context.Context, c *model.Campaign, rep *Report) error {
	err := l.svc.ActivateDraft(ctx, c)
	switch {
	case err == nil:
		rep.Activated++
		return nil
	case errors.Is(err, service.ErrInsufficientBalance), errors.Is(err, service.ErrSlotsFull):
		rep.Skipped++
		return nil
	}
	return err
}

func (l *Lifecycle) pause(ctx context.Context, c *model.Campaign, reason string, rep *Report) error {
	if err := l.svc.Pause(ctx, c, reason); err != nil {
		return err
	}
	rep.Paused++
	return nil
}

func (l *Lifecycle) finish(ctx context.Context, c *model.Campaign, to model.CampaignStatus, rep *Report) error {
	if err := l.svc.Finish(ctx, c, to); err != nil {
		return err
	}
	if to == model.CampaignStatusCompleted {
		rep.Completed++
	} else {
		rep.Expired++
	}
	return nil
}
