package service

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"adengine/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CampaignEvent outbox 中推广计划事件的消息体
type CampaignEvent struct {
	EventID       string          `json:"event_id"`
	Event         string          `json:"event"`
	CampaignID    int64           `json:"campaign_id,omitempty"`
	OwnerID       int64           `json:"owner_id"`
	Status        string          `json:"status,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionNo string          `json:"transaction_no,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// eventBuilder 只负责组装 outbox 消息，写入由存储层和业务变更放在同一个事务里完成
type eventBuilder struct {
	topic  string
	logger *slog.Logger
}

// campaign 状态变更事件，随 model.Transition 一起落库
func (b *eventBuilder) campaign(event string, c *model.Campaign, status model.CampaignStatus, amount decimal.Decimal, at time.Time) *model.OutboxMessage {
	return b.build(c.ReferenceID(), CampaignEvent{
		Event:      event,
		CampaignID: c.ID,
		OwnerID:    c.OwnerID,
		Status:     string(status),
		Amount:     amount,
		OccurredAt: at,
	})
}

// campaignLedger 扣费、退款这类金额要等落账后才确定的事件
func (b *eventBuilder) campaignLedger(event string, c *model.Campaign, at time.Time) model.LedgerEvent {
	if b == nil {
		return nil
	}
	return func(trans *model.Transaction) *model.OutboxMessage {
		return b.build(c.ReferenceID(), CampaignEvent{
			Event:         event,
			CampaignID:    c.ID,
			OwnerID:       c.OwnerID,
			Amount:        trans.Amount,
			TransactionNo: trans.TransactionNo,
			OccurredAt:    at,
		})
	}
}

func (b *eventBuilder) deposit(at time.Time) model.LedgerEvent {
	if b == nil {
		return nil
	}
	return func(trans *model.Transaction) *model.OutboxMessage {
		return b.build(fmt.Sprintf("wallet:%d", trans.WalletID), CampaignEvent{
			Event:         model.EventDepositCompleted,
			OwnerID:       trans.OwnerID,
			Status:        trans.Status,
			Amount:        trans.Amount,
			TransactionNo: trans.TransactionNo,
			OccurredAt:    at,
		})
	}
}

// build 序列化失败时不带事件，业务变更照常落地
func (b *eventBuilder) build(key string, evt CampaignEvent) *model.OutboxMessage {
	if b == nil {
		return nil
	}
	evt.EventID = uuid.NewString()
	payload, err := json.Marshal(evt)
	if err != nil {
		b.logger.Error("序列化事件失败", slog.String("event", evt.Event), slog.String("key", key), slog.Any("error", err))
		return nil
	}
	return &model.OutboxMessage{
		EventType:  evt.Event,
		MessageKey: key,
		Topic:      b.topic,
		Payload:    string(payload),
	}
}
