package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayLayout 日桶的格式，按业务时区切日
const DayLayout = "2006-01-02"

// DailySpend 推广计划按天聚合的消耗
// 只用于日预算校验，总预算以 campaign.current_spend 为准
type DailySpend struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID  int64           `gorm:"uniqueIndex:uk_campaign_day;not null" json:"campaign_id"`
	Day         string          `gorm:"type:char(10);uniqueIndex:uk_campaign_day;not null" json:"day"`
	Spend       decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"spend"`
	Impressions int64           `gorm:"not null;default:0" json:"impressions"`
	Clicks      int64           `gorm:"not null;default:0" json:"clicks"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DailySpend) TableName() string {
	return "campaign_daily_spend"
}

// SpendRequest 一次实时扣费：推广计划总预算、日预算、钱包预留三个条件同时满足才会落账
type SpendRequest struct {
	CampaignID    int64
	OwnerID       int64
	Day           string
	Amount        decimal.Decimal
	DailyCap      decimal.Decimal
	TransactionNo string
	Remark        string
	Event         LedgerEvent
}
