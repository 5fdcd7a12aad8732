package repository

import (
	"context"

	"adengine/internal/model"

	"gorm.io/gorm"
)

// SettlementRepository 实时扣费
//
// 【为什么放在一个事务里？】
//
// 一次扣费要同时满足三个条件：
//  1. current_spend + cost <= total_budget
//  2. 当天 spend + cost <= daily_budget
//  3. 钱包的 reserved_balance >= cost 且 balance >= cost
//
// 每个条件都写成带 WHERE 的原子 UPDATE，任一条件不满足就整体回滚。
// 这样两个并发请求即使都在应用层读到"预算充足"，落库时也只会有一个成功。
// 扣费事件（req.Event）也在这个事务里写入 outbox。
type SettlementRepository struct {
	db         *gorm.DB
	txnRepo    *TransactionRepository
	outboxRepo *OutboxRepository
}

func NewSettlementRepository(db *gorm.DB) *SettlementRepository {
	return &SettlementRepository{
		db:         db,
		txnRepo:    NewTransactionRepository(db),
		outboxRepo: NewOutboxRepository(db),
	}
}

func (r *SettlementRepository) SettleSpend(ctx context.Context, req model.SpendRequest) (*model.Transaction, error) {
	var trans *model.Transaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Campaign{}).
			Where("id = ? AND status = ? AND current_spend + ? <= total_budget",
				req.CampaignID, model.CampaignStatusActive, req.Amount).
			UpdateColumn("current_spend", gorm.Expr("current_spend + ?", req.Amount))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrBudgetExhausted
		}

		if err := ensureDailyRow(tx, req.CampaignID, req.Day); err != nil {
			return err
		}
		result = tx.Model(&model.DailySpend{}).
			Where("campaign_id = ? AND day = ? AND spend + ? <= ?", req.CampaignID, req.Day, req.Amount, req.DailyCap).
			UpdateColumn("spend", gorm.Expr("spend + ?", req.Amount))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrDailyCapReached
		}

		result = tx.Model(&model.Wallet{}).
			Where("owner_id = ? AND reserved_balance >= ? AND balance >= ?", req.OwnerID, req.Amount, req.Amount).
			Updates(map[string]interface{}{
				"balance":          gorm.Expr("balance - ?", req.Amount),
				"reserved_balance": gorm.Expr("reserved_balance - ?", req.Amount),
				"total_spent":      gorm.Expr("total_spent + ?", req.Amount),
				"version":          gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrReservationShort
		}

		var wallet model.Wallet
		if err := tx.Where("owner_id = ?", req.OwnerID).First(&wallet).Error; err != nil {
			return err
		}

		trans = &model.Transaction{
			TransactionNo: req.TransactionNo,
			OwnerID:       req.OwnerID,
			WalletID:      wallet.ID,
			Type:          model.TransactionTypeCampaignSpend,
			Amount:        req.Amount,
			BalanceAfter:  wallet.Balance,
			ReferenceID:   model.CampaignReference(req.CampaignID),
			Status:        model.TransactionStatusCompleted,
			Remark:        req.Remark,
		}
		if err := r.txnRepo.Create(ctx, tx, trans); err != nil {
			return err
		}
		return r.outboxRepo.createIfAny(ctx, tx, req.Event.Build(trans))
	})
	if err != nil {
		return nil, err
	}
	return trans, nil
}
