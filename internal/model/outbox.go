package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

const (
	EventCampaignActivated = "campaign.activated"
	EventCampaignPaused    = "campaign.paused"
	EventCampaignResumed   = "campaign.resumed"
	EventCampaignCompleted = "campaign.completed"
	EventCampaignExpired   = "campaign.expired"
	EventCampaignCancelled = "campaign.cancelled"
	EventCampaignCharged   = "campaign.charged"
	EventCampaignRefunded  = "campaign.refunded"
	EventDepositCompleted  = "wallet.deposit_completed"
)

// OutboxMessage 推广计划与钱包事件，和业务变更同库落地后由后台任务投递到 Kafka
// message_key 为 campaign:<id> 或 wallet:<id>，同一个 key 的事件落在同一分区，消费端按顺序处理
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventType  string    `gorm:"type:varchar(48);index;not null" json:"event_type"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	LastError  string    `gorm:"type:varchar(512)" json:"last_error,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// LedgerEvent 由落账后的流水生成事件，与资金变动写在同一个事务里；返回 nil 表示不发事件
type LedgerEvent func(trans *Transaction) *OutboxMessage

// Build e 为 nil 时返回 nil
func (e LedgerEvent) Build(trans *Transaction) *OutboxMessage {
	if e == nil || trans == nil {
		return nil
	}
	return e(trans)
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}
