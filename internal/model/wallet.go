package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "USD"

// Wallet 卖家预付费钱包，每个卖家一个
// 是推广引擎唯一的共享可变资源：激活预留、实时扣费、取消退款、充值到账都会修改它
//
// 不变量：
//
//	balance >= 0
//	reserved_balance >= 0
//	reserved_balance <= balance
type Wallet struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID         int64           `gorm:"uniqueIndex;not null" json:"owner_id"`
	Balance         decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"balance"`
	ReservedBalance decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"reserved_balance"` // 已为推广计划预留的金额
	TotalDeposited  decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"total_deposited"`
	TotalSpent      decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"total_spent"`
	Currency        string          `gorm:"type:varchar(8);not null;default:USD" json:"currency"`
	Version         int             `gorm:"not null;default:0" json:"version"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallet"
}

// Available 可用余额 = balance - reserved_balance，永不为负
func (w *Wallet) Available() decimal.Decimal {
	available := w.Balance.Sub(w.ReservedBalance)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}
