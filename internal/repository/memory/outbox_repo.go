package memory

import (
	"context"

	"adengine/internal/model"
)

type OutboxRepository struct {
	s *Store
}

func (r *OutboxRepository) Create(_ context.Context, msg *model.OutboxMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.appendOutbox(msg)
	return nil
}

// appendOutbox 调用方需持有 s.mu；业务变更和事件在同一把锁里落地，msg 为 nil 时忽略
func (s *Store) appendOutbox(msg *model.OutboxMessage) {
	if msg == nil {
		return
	}
	s.outboxSeq++
	msg.ID = s.outboxSeq
	if msg.Status == "" {
		msg.Status = model.OutboxStatusPending
	}
	msg.CreatedAt = s.now()
	msg.UpdatedAt = msg.CreatedAt
	cp := *msg
	s.outbox = append(s.outbox, &cp)
}

func (r *OutboxRepository) GetPendingMessages(_ context.Context, limit int) ([]*model.OutboxMessage, error) {
	return r.listByStatus(model.OutboxStatusPending, limit), nil
}

// All 按写入顺序返回全部消息，测试断言用
func (r *OutboxRepository) All() []*model.OutboxMessage {
	return r.listByStatus("", 0)
}

func (r *OutboxRepository) listByStatus(status string, limit int) []*model.OutboxMessage {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.OutboxMessage
	for _, m := range r.s.outbox {
		if status != "" && m.Status != status {
			continue
		}
		cp := *m
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (r *OutboxRepository) MarkAsSent(_ context.Context, id int64) error {
	return r.update(id, func(m *model.OutboxMessage) {
		if m.Status == model.OutboxStatusPending {
			m.Status = model.OutboxStatusSent
		}
	})
}

func (r *OutboxRepository) RecordFailure(_ context.Context, id int64, cause string, maxRetries int) (bool, error) {
	failed := false
	err := r.update(id, func(m *model.OutboxMessage) {
		if m.Status != model.OutboxStatusPending {
			failed = m.Status == model.OutboxStatusFailed
			return
		}
		m.RetryCount++
		m.LastError = cause
		if m.RetryCount >= maxRetries {
			m.Status = model.OutboxStatusFailed
			failed = true
		}
	})
	return failed, err
}

func (r *OutboxRepository) update(id int64, fn func(*model.OutboxMessage)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.outbox {
		if m.ID == id {
			fn(m)
			m.UpdatedAt = r.s.now()
			return nil
		}
	}
	return nil
}
