package repository

import (
	"context"
	"time"
	"unicode/utf8"

	"adengine/internal/model"

	"gorm.io/gorm"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Create tx 非空时和业务变更同事务写入
func (r *OutboxRepository) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	if tx == nil {
		tx = r.db
	}
	if msg.Status == "" {
		msg.Status = model.OutboxStatusPending
	}
	return tx.WithContext(ctx).Create(msg).Error
}

// createIfAny msg 为 nil 时什么都不做
func (r *OutboxRepository) createIfAny(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	if msg == nil {
		return nil
	}
	return r.Create(ctx, tx, msg)
}

// GetPendingMessages 按写入顺序取，同一 key 的事件先写先发
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *OutboxRepository) MarkAsSent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusPending).
		Update("status", model.OutboxStatusSent).Error
}

// RecordFailure 一条语句里累加重试次数并在达到上限时置为 FAILED，返回消息是否已放弃投递
// MySQL 按从左到右的顺序计算 SET，status 必须写在 retry_count 前面
func (r *OutboxRepository) RecordFailure(ctx context.Context, id int64, cause string, maxRetries int) (bool, error) {
	err := r.db.WithContext(ctx).Exec(
		"UPDATE outbox_message SET status = CASE WHEN retry_count + 1 >= ? THEN ? ELSE status END, "+
			"retry_count = retry_count + 1, last_error = ?, updated_at = ? WHERE id = ? AND status = ?",
		maxRetries, model.OutboxStatusFailed, truncate(cause, 512), time.Now(), id, model.OutboxStatusPending,
	).Error
	if err != nil {
		return false, err
	}

	var msg model.OutboxMessage
	if err := r.db.WithContext(ctx).Select("status").Where("id = ?", id).Take(&msg).Error; err != nil {
		return false, err
	}
	return msg.Status == model.OutboxStatusFailed, nil
}

// truncate 截到不超过 n 字节，不切断多字节字符（last_error 里常有中文）
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
