package repository

import (
	"context"
	"errors"

	"adengine/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.Transaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

// GetDepositForUpdate 锁定一笔充值流水，用于回调结算
func (r *TransactionRepository) GetDepositForUpdate(ctx context.Context, tx *gorm.DB, walletID int64, referenceID string) (*model.Transaction, error) {
	return r.getDeposit(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), walletID, referenceID)
}

func (r *TransactionRepository) GetDeposit(ctx context.Context, walletID int64, referenceID string) (*model.Transaction, error) {
	return r.getDeposit(r.db.WithContext(ctx), walletID, referenceID)
}

func (r *TransactionRepository) getDeposit(tx *gorm.DB, walletID int64, referenceID string) (*model.Transaction, error) {
	var trans model.Transaction
	err := tx.
		Where("wallet_id = ? AND reference_id = ? AND type = ?", walletID, referenceID, model.TransactionTypeDeposit).
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDepositNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// SettleStatus 只允许 pending 状态的流水结算一次
func (r *TransactionRepository) SettleStatus(ctx context.Context, tx *gorm.DB, id int64, status string, balanceAfter interface{}) (bool, error) {
	updates := map[string]interface{}{"status": status}
	if balanceAfter != nil {
		updates["balance_after"] = balanceAfter
	}
	result := tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, model.TransactionStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Outstanding 某个推广计划尚未消耗也未退回的预留：预留 - 扣费 - 退回
func (r *TransactionRepository) Outstanding(ctx context.Context, tx *gorm.DB, walletID int64, referenceID string) (decimal.Decimal, error) {
	var row struct {
		Outstanding decimal.NullDecimal
	}
	err := tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Select("SUM(CASE WHEN type = ? THEN amount ELSE -amount END) AS outstanding", model.TransactionTypeCampaignReserve).
		Where("wallet_id = ? AND reference_id = ? AND status = ? AND type IN ?",
			walletID, referenceID, model.TransactionStatusCompleted, campaignLedgerTypes).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !row.Outstanding.Valid {
		return decimal.Zero, nil
	}
	return row.Outstanding.Decimal, nil
}

var campaignLedgerTypes = []string{
	model.TransactionTypeCampaignReserve,
	model.TransactionTypeCampaignSpend,
	model.TransactionTypeCampaignRefund,
}

func (r *TransactionRepository) ListByOwnerID(ctx context.Context, ownerID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	var transactions []*model.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("owner_id = ?", ownerID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

func (r *TransactionRepository) ListByReference(ctx context.Context, referenceID string) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("reference_id = ?", referenceID).
		Order("id ASC").
		Find(&transactions).Error
	return transactions, err
}
