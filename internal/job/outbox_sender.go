package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"adengine/internal/config"
	"adengine/internal/model"
)

type OutboxStore interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkAsSent(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, id int64, cause string, maxRetries int) (bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic, key, value string) error
}

// OutboxSender 把推广计划事件从 outbox 表投递到 Kafka
type OutboxSender struct {
	outbox     OutboxStore
	publisher  Publisher
	maxRetries int
	interval   time.Duration
	batchSize  int
	logger     *slog.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewOutboxSender(outbox OutboxStore, publisher Publisher, cfg *config.Config, logger *slog.Logger) *OutboxSender {
	interval := cfg.Scheduler.OutboxFlushEvery
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &OutboxSender{
		outbox:     outbox,
		publisher:  publisher,
		maxRetries: cfg.Business.MaxRetryCount,
		interval:   interval,
		batchSize:  100,
		logger:     logger.With(slog.String("job", "outbox_sender")),
		stopCh:     make(chan struct{}),
	}
}

// Start 在后台按固定间隔投递，Stop 或 ctx 取消后退出
func (s *OutboxSender) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
	s.logger.Info("消息发送任务启动", slog.Duration("interval", s.interval))
}

func (s *OutboxSender) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

// Stop 等待正在进行的一批投递结束，可重复调用
func (s *OutboxSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Info("消息发送任务停止")
}

// Flush 发送一批待投递消息，返回成功条数
func (s *OutboxSender) Flush(ctx context.Context) int {
	messages, err := s.outbox.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("查询消息失败", slog.Any("error", err))
		return 0
	}

	// 同一个 key 前面的消息发送失败时，本批次后面的同 key 消息先不发，避免乱序
	blocked := make(map[string]bool)
	sent := 0
	for _, msg := range messages {
		if blocked[msg.MessageKey] {
			continue
		}
		if s.send(ctx, msg) {
			sent++
		} else {
			blocked[msg.MessageKey] = true
		}
	}
	return sent
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(ctx, msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outbox.MarkAsSent(ctx, msg.ID); updateErr != nil {
			s.logger.Error("更新消息状态失败", slog.Int64("id", msg.ID), slog.Any("error", updateErr))
		}
		return true
	}

	s.logger.Warn("消息发送失败",
		slog.Int64("id", msg.ID),
		slog.String("event", msg.EventType),
		slog.String("key", msg.MessageKey),
		slog.Any("error", err))

	failed, recErr := s.outbox.RecordFailure(ctx, msg.ID, err.Error(), s.maxRetries)
	switch {
	case recErr != nil:
		s.logger.Error("记录发送失败次数失败", slog.Int64("id", msg.ID), slog.Any("error", recErr))
	case failed:
		s.logger.Warn("消息超过最大重试次数，标记为失败", slog.Int64("id", msg.ID), slog.Int("max_retries", s.maxRetries))
	}
	return false
}
