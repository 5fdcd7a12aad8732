package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusExpired   CampaignStatus = "expired"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// ValidStatusTransitions 推广计划状态机
//
//	draft  -> active | expired | cancelled
//	active -> paused | completed | expired | cancelled
//	paused -> active | expired | cancelled
var ValidStatusTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusDraft:  {CampaignStatusActive, CampaignStatusExpired, CampaignStatusCancelled},
	CampaignStatusActive: {CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusExpired, CampaignStatusCancelled},
	CampaignStatusPaused: {CampaignStatusActive, CampaignStatusExpired, CampaignStatusCancelled},
}

func CanTransitionTo(currentStatus, targetStatus CampaignStatus) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// IsTerminal completed / expired / cancelled 之后不再有任何转换
func (s CampaignStatus) IsTerminal() bool {
	_, exists := ValidStatusTransitions[s]
	return !exists
}

const (
	CampaignTypeStore  = "store"
	CampaignTypeCoupon = "coupon"
	CampaignTypeDeal   = "deal"
)

var CampaignTypes = []string{CampaignTypeStore, CampaignTypeCoupon, CampaignTypeDeal}

const (
	BiddingCPC = "CPC"
	BiddingCPM = "CPM"
	BiddingCPA = "CPA"
)

const (
	PlacementHomepage = "homepage"
	PlacementCategory = "category"
	PlacementSearch   = "search"
	PlacementAll      = "all"
)

// Campaign 付费推广计划
// 不做物理删除，取消也只是终态，保留历史数据
type Campaign struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID      int64  `gorm:"index;not null" json:"owner_id"`
	CampaignType string `gorm:"type:varchar(16);index:idx_campaign_type_status;not null" json:"campaign_type"`
	TargetID     int64  `gorm:"not null" json:"target_id"`

	TotalBudget    decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"total_budget"`
	DailyBudget    decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"daily_budget"`
	BiddingType    string          `gorm:"type:varchar(8);not null" json:"bidding_type"`
	BidAmount      decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"bid_amount"`
	CurrentSpend   decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"current_spend"`
	ReservedBudget decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"reserved_budget"`
	ActualCPC      decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"actual_cpc"`

	PriorityScore float64        `gorm:"not null;default:0;index" json:"priority_score"`
	Status        CampaignStatus `gorm:"type:varchar(16);index:idx_campaign_type_status;not null" json:"status"`

	Views       int64   `gorm:"not null;default:0" json:"views"`
	Clicks      int64   `gorm:"not null;default:0" json:"clicks"`
	Conversions int64   `gorm:"not null;default:0" json:"conversions"`
	CTR         float64 `gorm:"column:ctr;not null;default:0" json:"ctr"`

	StartDate time.Time `gorm:"not null;index" json:"start_date"`
	EndDate   time.Time `gorm:"not null;index" json:"end_date"`

	TargetCountries []string `gorm:"serializer:json;type:text" json:"target_countries"`
	IsWorldwide     bool     `gorm:"not null;default:true" json:"is_worldwide"`
	Placement       string   `gorm:"type:varchar(16);not null;default:all" json:"placement"`

	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaign"
}

// RemainingBudget totalBudget - currentSpend，可能为负（并发超扣窗口）
func (c *Campaign) RemainingBudget() decimal.Decimal {
	return c.TotalBudget.Sub(c.CurrentSpend)
}

func (c *Campaign) BudgetExhausted() bool {
	return c.CurrentSpend.GreaterThanOrEqual(c.TotalBudget)
}

// InWindow startDate <= now <= endDate
func (c *Campaign) InWindow(now time.Time) bool {
	return !now.Before(c.StartDate) && !now.After(c.EndDate)
}

// ReferenceID 推广计划在流水表里的关联号
func (c *Campaign) ReferenceID() string {
	return CampaignReference(c.ID)
}

func CampaignReference(id int64) string {
	return fmt.Sprintf("campaign:%d", id)
}

// Metrics 对外返回的效果数据
type Metrics struct {
	Views       int64   `json:"views"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	CTR         float64 `json:"ctr"`
}

func (c *Campaign) Metrics() Metrics {
	return Metrics{Views: c.Views, Clicks: c.Clicks, Conversions: c.Conversions, CTR: c.CTR}
}

// Transition 一次带条件的状态变更：只有当前状态仍为 From 时才会生效
type Transition struct {
	From           CampaignStatus
	To             CampaignStatus
	ReservedBudget *decimal.Decimal
	PriorityScore  *float64
	At             time.Time
	// Event 非空时与状态变更在同一个事务里写入 outbox
	Event *OutboxMessage
}

// ScoreUpdate 交互结算/优先级刷新后回写的评分字段
type ScoreUpdate struct {
	CTR           float64
	PriorityScore float64
	ActualCPC     *decimal.Decimal
}

// ServableFilter 广告位候选集的查询条件
type ServableFilter struct {
	CampaignType string // 为空表示不限类型
	Now          time.Time
}
