package service

import (
	"context"
	"log/slog"
	"time"

	"adengine/internal/config"
	"adengine/internal/model"
	"adengine/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DepositStatusCompleted = "completed"
	DepositStatusFailed    = "failed"
)

// DepositResult 支付网关的充值结果通知
// ReferenceID 必填：本服务发起的充值为 deposit:<uuid>，网关直接入账时为网关单号，同一钱包同一单号只入账一次
type DepositResult struct {
	WalletID    int64           `json:"walletId"`
	ReferenceID string          `json:"referenceId"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
}

type WalletService struct {
	wallets WalletStore
	events  *eventBuilder
	logger  *slog.Logger
	now     func() time.Time
}

func NewWalletService(stores Stores, cfg *config.Config, logger *slog.Logger) *WalletService {
	logger = logger.With(slog.String("component", "wallet"))
	return &WalletService{
		wallets: stores.Wallets,
		events:  &eventBuilder{topic: cfg.Kafka.Topic.CampaignEvents, logger: logger},
		logger:  logger,
		now:     time.Now,
	}
}

// GetWallet 首次访问时创建钱包
func (s *WalletService) GetWallet(ctx context.Context, caller model.Caller) (*model.Wallet, error) {
	return s.wallets.GetOrCreate(ctx, caller.UserID)
}

func (s *WalletService) ListTransactions(ctx context.Context, caller model.Caller, page, pageSize int) ([]*model.Transaction, int64, error) {
	return s.wallets.ListTransactions(ctx, caller.UserID, page, pageSize)
}

// InitiateDeposit 生成一张 pending 充值单，referenceId 交给支付网关回传
func (s *WalletService) InitiateDeposit(ctx context.Context, caller model.Caller, amount decimal.Decimal) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, invalid("amount", "充值金额必须大于0")
	}
	ref := model.DepositOrderReference(uuid.NewString())
	trans, err := s.wallets.CreatePendingDeposit(ctx, caller.UserID, amount, ref)
	if err != nil {
		return nil, err
	}
	s.logger.Info("充值单已创建",
		slog.Int64("owner_id", caller.UserID),
		slog.String("reference_id", ref),
		slog.String("amount", amount.String()))
	return trans, nil
}

// CompleteDeposit 处理网关回调或 MQ 消息，同一 referenceId 重复通知不会重复入账
func (s *WalletService) CompleteDeposit(ctx context.Context, result DepositResult) (*model.Transaction, error) {
	if result.WalletID <= 0 {
		return nil, invalid("walletId", "必填")
	}
	if result.ReferenceID == "" {
		return nil, invalid("referenceId", "充值通知必须携带充值单号")
	}

	switch result.Status {
	case DepositStatusCompleted:
		if !result.Amount.IsPositive() {
			return nil, invalid("amount", "充值金额必须大于0")
		}
		trans, applied, err := s.wallets.CompleteDeposit(ctx, result.WalletID, result.ReferenceID, result.Amount, s.events.deposit(s.now()))
		if err != nil {
			return nil, mapRepoError(err)
		}
		if !applied {
			s.logger.Info("充值通知重复，忽略", slog.String("reference_id", result.ReferenceID))
			return trans, nil
		}
		s.logger.Info("充值已到账",
			slog.Int64("wallet_id", trans.WalletID),
			slog.String("reference_id", trans.ReferenceID),
			slog.String("amount", trans.Amount.String()))
		return trans, nil

	case DepositStatusFailed:
		applied, err := s.wallets.FailDeposit(ctx, result.WalletID, result.ReferenceID)
		if err != nil {
			return nil, mapRepoError(err)
		}
		if applied {
			s.logger.Warn("充值失败", slog.Int64("wallet_id", result.WalletID), slog.String("reference_id", result.ReferenceID))
		}
		return nil, nil
	}
	return nil, invalid("status", "必须是 completed 或 failed")
}

// Withdraw 提现只能动用可用余额，已预留给推广计划的部分不可提
func (s *WalletService) Withdraw(ctx context.Context, caller model.Caller, amount decimal.Decimal) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, invalid("amount", "提现金额必须大于0")
	}
	trans, err := s.wallets.Withdraw(ctx, caller.UserID, amount, idgen.GenerateWithdrawalNo())
	if err != nil {
		return nil, mapRepoError(err)
	}
	s.logger.Info("提现成功", slog.Int64("owner_id", caller.UserID), slog.String("amount", amount.String()))
	return trans, nil
}
