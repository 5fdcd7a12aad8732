package repository

import (
	"context"
	"fmt"

	"adengine/internal/model"

	"gorm.io/gorm"
)

// targetTables 店铺/优惠券/特价商品由目录服务维护，这里只读 id 和 owner_id
var targetTables = map[string]string{
	model.CampaignTypeStore:  "stores",
	model.CampaignTypeCoupon: "coupons",
	model.CampaignTypeDeal:   "deals",
}

type TargetRepository struct {
	db *gorm.DB
}

func NewTargetRepository(db *gorm.DB) *TargetRepository {
	return &TargetRepository{db: db}
}

// OwnerOf 返回推广目标的所有者
func (r *TargetRepository) OwnerOf(ctx context.Context, campaignType string, targetID int64) (int64, error) {
	table, ok := targetTables[campaignType]
	if !ok {
		return 0, fmt.Errorf("未知推广类型 %q: %w", campaignType, ErrTargetNotFound)
	}

	var rows []struct {
		OwnerID int64
	}
	err := r.db.WithContext(ctx).
		Table(table).
		Select("owner_id").
		Where("id = ?", targetID).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, ErrTargetNotFound
	}
	return rows[0].OwnerID, nil
}
