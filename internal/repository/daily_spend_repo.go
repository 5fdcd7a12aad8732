package repository

import (
	"context"
	"errors"

	"adengine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DailySpendRepository struct {
	db *gorm.DB
}

func NewDailySpendRepository(db *gorm.DB) *DailySpendRepository {
	return &DailySpendRepository{db: db}
}

// Get 当天没有记录时返回零值，不报错
func (r *DailySpendRepository) Get(ctx context.Context, campaignID int64, day string) (*model.DailySpend, error) {
	var row model.DailySpend
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND day = ?", campaignID, day).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.DailySpend{CampaignID: campaignID, Day: day}, nil
		}
		return nil, err
	}
	return &row, nil
}

// AddInteraction INSERT ... ON DUPLICATE KEY UPDATE 累加当天曝光/点击
func (r *DailySpendRepository) AddInteraction(ctx context.Context, campaignID int64, day string, impressions, clicks int64) error {
	row := &model.DailySpend{
		CampaignID:  campaignID,
		Day:         day,
		Impressions: impressions,
		Clicks:      clicks,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "campaign_id"}, {Name: "day"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"impressions": gorm.Expr("impressions + ?", impressions),
				"clicks":      gorm.Expr("clicks + ?", clicks),
			}),
		}).
		Create(row).Error
}

// ensureDailyRow 保证 (campaign_id, day) 行存在，便于后续条件更新
func ensureDailyRow(tx *gorm.DB, campaignID int64, day string) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.DailySpend{CampaignID: campaignID, Day: day}).Error
}
