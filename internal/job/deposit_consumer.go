package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"adengine/internal/model"
	"adengine/internal/service"

	"github.com/IBM/sarama"
)

// errBadPayload 消息体无法解析，重投也不会成功
var errBadPayload = errors.New("消息格式错误")

// 暂时性错误后等一会儿再结束会话，避免数据库不可用时空转
const defaultRetryBackoff = time.Second

type DepositCompleter interface {
	CompleteDeposit(ctx context.Context, result service.DepositResult) (*model.Transaction, error)
}

// DepositConsumer 消费支付网关的充值结果，和 HTTP 回调走同一个入账逻辑
type DepositConsumer struct {
	group        sarama.ConsumerGroup
	topic        string
	wallets      DepositCompleter
	retryBackoff time.Duration
	logger       *slog.Logger
}

func NewDepositConsumer(group sarama.ConsumerGroup, topic string, wallets DepositCompleter, logger *slog.Logger) *DepositConsumer {
	return &DepositConsumer{
		group:        group,
		topic:        topic,
		wallets:      wallets,
		retryBackoff: defaultRetryBackoff,
		logger:       logger.With(slog.String("job", "deposit_consumer")),
	}
}

// Start 阻塞直到 ctx 取消；rebalance 后 Consume 返回，需要重新进入
func (c *DepositConsumer) Start(ctx context.Context) {
	c.logger.Info("充值结果消费启动", slog.String("topic", c.topic))
	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("消费者组错误", slog.Any("error", err))
		}
	}()

	for {
		if err := c.group.Consume(ctx, []string{c.topic}, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			c.logger.Error("消费失败", slog.Any("error", err))
		}
		if ctx.Err() != nil {
			c.logger.Info("收到停止信号，任务退出")
			return
		}
	}
}

func (c *DepositConsumer) Close() error {
	return c.group.Close()
}

func (c *DepositConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *DepositConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim 成功或永久性错误才提交位点
// 暂时性错误（数据库不可用等）不提交并结束本次会话，重新 Consume 后从这条消息重投；入账按 referenceId 幂等
func (c *DepositConsumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		err := c.Handle(sess.Context(), msg)
		switch {
		case err == nil:
		case permanent(err):
			c.logger.Warn("充值结果无法处理，跳过",
				slog.Int64("offset", msg.Offset),
				slog.Int("partition", int(msg.Partition)),
				slog.Any("error", err))
		default:
			c.logger.Error("处理充值结果失败，稍后重投",
				slog.Int64("offset", msg.Offset),
				slog.Int("partition", int(msg.Partition)),
				slog.Any("error", err))
			c.wait(sess.Context())
			return fmt.Errorf("处理充值结果失败 partition=%d offset=%d: %w", msg.Partition, msg.Offset, err)
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}

func (c *DepositConsumer) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var result service.DepositResult
	if err := json.Unmarshal(msg.Value, &result); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	_, err := c.wallets.CompleteDeposit(ctx, result)
	return err
}

func (c *DepositConsumer) wait(ctx context.Context) {
	if c.retryBackoff <= 0 {
		return
	}
	timer := time.NewTimer(c.retryBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// permanent 重试也不会成功：消息格式错误、参数或金额校验失败、充值单不存在
func permanent(err error) bool {
	return errors.Is(err, errBadPayload) ||
		errors.Is(err, service.ErrValidation) ||
		errors.Is(err, service.ErrNotFound)
}
