package repository

import (
	"context"
	"errors"

	"adengine/internal/model"

	"gorm.io/gorm"
)

type CampaignRepository struct {
	db         *gorm.DB
	outboxRepo *OutboxRepository
}

func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db, outboxRepo: NewOutboxRepository(db)}
}

func (r *CampaignRepository) Create(ctx context.Context, campaign *model.Campaign) error {
	return r.db.WithContext(ctx).Create(campaign).Error
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	var campaign model.Campaign
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return &campaign, nil
}

// Update 保存可编辑字段，以 campaign.Status 作为乐观条件，避免覆盖并发的状态变更
func (r *CampaignRepository) Update(ctx context.Context, campaign *model.Campaign) error {
	result := r.db.WithContext(ctx).
		Model(&model.Campaign{}).
		Where("id = ? AND status = ?", campaign.ID, campaign.Status).
		Select("campaign_type", "target_id", "total_budget", "daily_budget", "bidding_type", "bid_amount",
			"start_date", "end_date", "target_countries", "is_worldwide", "placement", "priority_score").
		Updates(campaign)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// TransitionStatus 条件状态转换：UPDATE ... WHERE id = ? AND status = from
// 带事件时状态变更和 outbox 写入在同一个事务里，转换没生效就不会留下事件
func (r *CampaignRepository) TransitionStatus(ctx context.Context, id int64, t model.Transition) error {
	if !model.CanTransitionTo(t.From, t.To) {
		return ErrStatusTransitionDeny
	}
	if t.Event == nil {
		return r.transition(r.db.WithContext(ctx), id, t)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.transition(tx, id, t); err != nil {
			return err
		}
		return r.outboxRepo.Create(ctx, tx, t.Event)
	})
}

func (r *CampaignRepository) transition(tx *gorm.DB, id int64, t model.Transition) error {

	updates := map[string]interface{}{
		"status": t.To,
	}
	if t.ReservedBudget != nil {
		updates["reserved_budget"] = *t.ReservedBudget
	}
	if t.PriorityScore != nil {
		updates["priority_score"] = *t.PriorityScore
	}
	switch {
	case t.From == model.CampaignStatusDraft && t.To == model.CampaignStatusActive:
		updates["activated_at"] = t.At
	case t.To.IsTerminal():
		updates["ended_at"] = t.At
	}

	result := tx.Model(&model.Campaign{}).
		Where("id = ? AND status = ?", id, t.From).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}

	return nil
}

// RecordInteraction 原子累加曝光/点击，无论是否扣费都会执行
func (r *CampaignRepository) RecordInteraction(ctx context.Context, id int64, views, clicks int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.Campaign{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"views":  gorm.Expr("views + ?", views),
			"clicks": gorm.Expr("clicks + ?", clicks),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

func (r *CampaignRepository) UpdateScore(ctx context.Context, id int64, score model.ScoreUpdate) error {
	updates := map[string]interface{}{
		"ctr":            score.CTR,
		"priority_score": score.PriorityScore,
	}
	if score.ActualCPC != nil {
		updates["actual_cpc"] = *score.ActualCPC
	}
	return r.db.WithContext(ctx).
		Model(&model.Campaign{}).
		Where("id = ?", id).
		UpdateColumns(updates).Error
}

func (r *CampaignRepository) CountByStatus(ctx context.Context, campaignType string, status model.CampaignStatus) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.Campaign{}).
		Where("campaign_type = ? AND status = ?", campaignType, status).
		Count(&total).Error
	return total, err
}

// ListByStatus 按 id 游标分批扫描，供定时任务使用
func (r *CampaignRepository) ListByStatus(ctx context.Context, statuses []model.CampaignStatus, afterID int64, limit int) ([]*model.Campaign, error) {
	var campaigns []*model.Campaign
	err := r.db.WithContext(ctx).
		Where("status IN ? AND id > ?", statuses, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&campaigns).Error
	return campaigns, err
}

// ListServable 广告位候选：active、在投放窗口内、总预算未花完
// 投放位置与地域在内存中过滤（target_countries 是 JSON 列）
func (r *CampaignRepository) ListServable(ctx context.Context, filter model.ServableFilter) ([]*model.Campaign, error) {
	var campaigns []*model.Campaign
	query := r.db.WithContext(ctx).
		Where("status = ? AND start_date <= ? AND end_date >= ? AND current_spend < total_budget",
			model.CampaignStatusActive, filter.Now, filter.Now)
	if filter.CampaignType != "" {
		query = query.Where("campaign_type = ?", filter.CampaignType)
	}
	err := query.
		Order("priority_score DESC, created_at ASC, id ASC").
		Find(&campaigns).Error
	return campaigns, err
}

func (r *CampaignRepository) ListByOwnerID(ctx context.Context, ownerID int64, page, pageSize int) ([]*model.Campaign, int64, error) {
	var campaigns []*model.Campaign
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Campaign{}).Where("owner_id = ?", ownerID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&campaigns).Error

	return campaigns, total, err
}
