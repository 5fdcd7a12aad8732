package repository

import (
	"context"
	"errors"

	"adengine/internal/model"
	"adengine/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletRepository 钱包 + 流水
//
// 所有余额变动都写成 SQL 表达式（balance = balance - ?），并带上 WHERE 条件，
// 不在应用层做"读-改-写"。每次变动和对应流水在同一个数据库事务里落地。
type WalletRepository struct {
	db         *gorm.DB
	txnRepo    *TransactionRepository
	outboxRepo *OutboxRepository
	currency   string
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{
		db:         db,
		txnRepo:    NewTransactionRepository(db),
		outboxRepo: NewOutboxRepository(db),
		currency:   model.DefaultCurrency,
	}
}

func (r *WalletRepository) GetByOwnerID(ctx context.Context, ownerID int64) (*model.Wallet, error) {
	return r.getBy(r.db.WithContext(ctx), "owner_id = ?", ownerID)
}

func (r *WalletRepository) GetByID(ctx context.Context, walletID int64) (*model.Wallet, error) {
	return r.getBy(r.db.WithContext(ctx), "id = ?", walletID)
}

func (r *WalletRepository) getBy(tx *gorm.DB, query string, arg int64) (*model.Wallet, error) {
	var wallet model.Wallet
	err := tx.Where(query, arg).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *WalletRepository) getForUpdate(tx *gorm.DB, query string, arg int64) (*model.Wallet, error) {
	return r.getBy(tx.Clauses(clause.Locking{Strength: "UPDATE"}), query, arg)
}

// GetOrCreate 钱包在第一次访问时惰性创建
func (r *WalletRepository) GetOrCreate(ctx context.Context, ownerID int64) (*model.Wallet, error) {
	wallet, err := r.GetByOwnerID(ctx, ownerID)
	if err == nil {
		return wallet, nil
	}

	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	newWallet := &model.Wallet{
		OwnerID:  ownerID,
		Currency: r.currency,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}},
			DoNothing: true,
		}).
		Create(newWallet).Error

	if err != nil {
		return nil, err
	}

	return r.GetByOwnerID(ctx, ownerID)
}

// Reserve 预留预算：reserved_balance += amount，要求 balance - reserved_balance >= amount
func (r *WalletRepository) Reserve(ctx context.Context, ownerID int64, amount decimal.Decimal, referenceID string) (*model.Transaction, error) {
	var trans *model.Transaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Wallet{}).
			Where("owner_id = ? AND balance - reserved_balance >= ?", ownerID, amount).
			Updates(map[string]interface{}{
				"reserved_balance": gorm.Expr("reserved_balance + ?", amount),
				"version":          gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if _, err := r.getBy(tx, "owner_id = ?", ownerID); err != nil {
				return err
			}
			return ErrInsufficientAvailable
		}

		wallet, err := r.getBy(tx, "owner_id = ?", ownerID)
		if err != nil {
			return err
		}
		trans = newCampaignTransaction(wallet, model.TransactionTypeCampaignReserve, amount, referenceID, "推广预算预留")
		return r.txnRepo.Create(ctx, tx, trans)
	})
	if err != nil {
		return nil, err
	}
	return trans, nil
}

// Release 释放预留，实际释放 min(amount, 该计划未结清的预留, reserved_balance)
// 未结清的预留按同一 reference 的流水计算（预留 - 扣费 - 已退回），一个计划不会退走别的计划的预留。
// 返回的流水 amount 为实际释放的金额；没有可释放的预留时返回 nil
func (r *WalletRepository) Release(ctx context.Context, ownerID int64, amount decimal.Decimal, referenceID string, event model.LedgerEvent) (*model.Transaction, error) {
	var trans *model.Transaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, err := r.getForUpdate(tx, "owner_id = ?", ownerID)
		if err != nil {
			return err
		}
		outstanding, err := r.txnRepo.Outstanding(ctx, tx, wallet.ID, referenceID)
		if err != nil {
			return err
		}
		released := decimal.Min(amount, outstanding, wallet.ReservedBalance)
		if !released.IsPositive() {
			return nil
		}

		result := tx.Model(&model.Wallet{}).
			Where("id = ? AND reserved_balance >= ?", wallet.ID, released).
			Updates(map[string]interface{}{
				"reserved_balance": gorm.Expr("reserved_balance - ?", released),
				"version":          gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrReservationShort
		}

		trans = newCampaignTransaction(wallet, model.TransactionTypeCampaignRefund, released, referenceID, "推广预算释放")
		if err := r.txnRepo.Create(ctx, tx, trans); err != nil {
			return err
		}
		return r.outboxRepo.createIfAny(ctx, tx, event.Build(trans))
	})
	if err != nil {
		return nil, err
	}
	return trans, nil
}

// Withdraw 提现只能动用可用余额
func (r *WalletRepository) Withdraw(ctx context.Context, ownerID int64, amount decimal.Decimal, referenceID string) (*model.Transaction, error) {
	var trans *model.Transaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Wallet{}).
			Where("owner_id = ? AND balance - reserved_balance >= ?", ownerID, amount).
			Updates(map[string]interface{}{
				"balance": gorm.Expr("balance - ?", amount),
				"version": gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if _, err := r.getBy(tx, "owner_id = ?", ownerID); err != nil {
				return err
			}
			return ErrInsufficientAvailable
		}

		wallet, err := r.getBy(tx, "owner_id = ?", ownerID)
		if err != nil {
			return err
		}
		trans = &model.Transaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			OwnerID:       wallet.OwnerID,
			WalletID:      wallet.ID,
			Type:          model.TransactionTypeWithdrawal,
			Amount:        amount,
			BalanceAfter:  wallet.Balance,
			ReferenceID:   referenceID,
			Status:        model.TransactionStatusCompleted,
			Remark:        "提现",
		}
		return r.txnRepo.Create(ctx, tx, trans)
	})
	if err != nil {
		return nil, err
	}
	return trans, nil
}

// CreatePendingDeposit 发起充值：只记一笔 pending 流水，等待网关回调
func (r *WalletRepository) CreatePendingDeposit(ctx context.Context, ownerID int64, amount decimal.Decimal, referenceID string) (*model.Transaction, error) {
	wallet, err := r.GetOrCreate(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	trans := &model.Transaction{
		TransactionNo:  idgen.GenerateTransactionNo(),
		OwnerID:        wallet.OwnerID,
		WalletID:       wallet.ID,
		Type:           model.TransactionTypeDeposit,
		Amount:         amount,
		BalanceAfter:   wallet.Balance,
		ReferenceID:    referenceID,
		IdempotencyKey: model.DepositKey(wallet.ID, referenceID),
		Status:         model.TransactionStatusPending,
		Remark:         "充值待到账",
	}
	if err := r.txnRepo.Create(ctx, nil, trans); err != nil {
		return nil, err
	}
	return trans, nil
}

// CompleteDeposit 充值到账
//
// 有 pending 充值单时按单结算，pending 以外的状态直接返回 applied=false；
// 没有充值单表示网关直接入账，新建一笔 completed 流水，idempotency_key 唯一索引挡住重复通知。
// 入账成功时 event 生成的消息在同一个事务里写入 outbox。
func (r *WalletRepository) CompleteDeposit(ctx context.Context, walletID int64, referenceID string, amount decimal.Decimal, event model.LedgerEvent) (*model.Transaction, bool, error) {
	if referenceID == "" {
		return nil, false, ErrDepositReferenceMissing
	}
	var (
		trans   *model.Transaction
		applied bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trans, applied = nil, false
		pending, err := r.txnRepo.GetDepositForUpdate(ctx, tx, walletID, referenceID)
		if err != nil && (!errors.Is(err, ErrDepositNotFound) || model.IsDepositOrder(referenceID)) {
			return err
		}
		if pending != nil {
			trans = pending
			if pending.Status != model.TransactionStatusPending {
				return nil
			}
			if !pending.Amount.Equal(amount) {
				return ErrDepositAmountMismatch
			}
		}

		result := tx.Model(&model.Wallet{}).
			Where("id = ?", walletID).
			Updates(map[string]interface{}{
				"balance":         gorm.Expr("balance + ?", amount),
				"total_deposited": gorm.Expr("total_deposited + ?", amount),
				"version":         gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrWalletNotFound
		}

		wallet, err := r.getBy(tx, "id = ?", walletID)
		if err != nil {
			return err
		}

		if pending == nil {
			trans = &model.Transaction{
				TransactionNo:  idgen.GenerateTransactionNo(),
				OwnerID:        wallet.OwnerID,
				WalletID:       wallet.ID,
				Type:           model.TransactionTypeDeposit,
				Amount:         amount,
				BalanceAfter:   wallet.Balance,
				ReferenceID:    referenceID,
				IdempotencyKey: model.DepositKey(wallet.ID, referenceID),
				Status:         model.TransactionStatusCompleted,
				Remark:         "充值到账",
			}
			if err := r.txnRepo.Create(ctx, tx, trans); err != nil {
				return err
			}
		} else {
			ok, err := r.txnRepo.SettleStatus(ctx, tx, trans.ID, model.TransactionStatusCompleted, wallet.Balance)
			if err != nil {
				return err
			}
			if !ok {
				return ErrStatusConflict
			}
			trans.Status = model.TransactionStatusCompleted
			trans.BalanceAfter = wallet.Balance
		}
		applied = true
		return r.outboxRepo.createIfAny(ctx, tx, event.Build(trans))
	})
	if isDuplicateKey(err) {
		// 同一通知被并发处理，另一个事务已经入账，本次整体回滚
		existing, getErr := r.txnRepo.GetDeposit(ctx, walletID, referenceID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return trans, applied, nil
}

// FailDeposit 网关通知充值失败
func (r *WalletRepository) FailDeposit(ctx context.Context, walletID int64, referenceID string) (bool, error) {
	var applied bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pending, err := r.txnRepo.GetDepositForUpdate(ctx, tx, walletID, referenceID)
		if err != nil {
			return err
		}
		if pending.Status != model.TransactionStatusPending {
			return nil
		}
		applied, err = r.txnRepo.SettleStatus(ctx, tx, pending.ID, model.TransactionStatusFailed, nil)
		return err
	})
	return applied, err
}

func (r *WalletRepository) ListTransactions(ctx context.Context, ownerID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	return r.txnRepo.ListByOwnerID(ctx, ownerID, page, pageSize)
}

// ListByReference 某个推广计划（campaign:<id>）的预留、扣费、退款流水
func (r *WalletRepository) ListByReference(ctx context.Context, referenceID string) ([]*model.Transaction, error) {
	return r.txnRepo.ListByReference(ctx, referenceID)
}

func newCampaignTransaction(wallet *model.Wallet, txType string, amount decimal.Decimal, referenceID, remark string) *model.Transaction {
	return &model.Transaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		OwnerID:       wallet.OwnerID,
		WalletID:      wallet.ID,
		Type:          txType,
		Amount:        amount,
		BalanceAfter:  wallet.Balance,
		ReferenceID:   referenceID,
		Status:        model.TransactionStatusCompleted,
		Remark:        remark,
	}
}
