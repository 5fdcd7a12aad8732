package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TransactionTypeDeposit         = "deposit"          // 充值
	TransactionTypeCampaignReserve = "campaign_reserve" // 推广计划激活时预留预算
	TransactionTypeCampaignSpend   = "campaign_spend"   // 曝光/点击实时扣费
	TransactionTypeCampaignRefund  = "campaign_refund"  // 取消/结束时释放未消耗预算
	TransactionTypeWithdrawal      = "withdrawal"       // 提现
)

const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// ============================================================================
// 钱包流水实体
// ============================================================================

// Transaction 钱包流水表
// 记录钱包的每一笔资金变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不删除；唯一允许的更新是异步充值的状态结算
// 2. 每笔流水都有 reference_id：推广相关流水为 campaign:<id>，充值为 deposit:<uuid> 或网关单号
// 3. 金额恒为正数，方向由 type 决定；balance_after 记录变动后的余额
type Transaction struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo  string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	OwnerID        int64           `gorm:"index;not null" json:"owner_id"`
	WalletID       int64           `gorm:"index;not null" json:"wallet_id"`
	Type           string          `gorm:"type:varchar(32);not null" json:"type"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"amount"`
	BalanceAfter   decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"balance_after"`
	ReferenceID    string          `gorm:"type:varchar(64);index;not null" json:"reference_id"`
	// IdempotencyKey 只有充值流水填写；唯一索引保证同一钱包的同一充值单号只入账一次
	IdempotencyKey *string         `gorm:"type:varchar(128);uniqueIndex" json:"-"`
	Status         string          `gorm:"type:varchar(20);not null" json:"status"`
	Remark         string          `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

// depositOrderPrefix 本服务发起的充值单，其余 reference 视为网关单号
const depositOrderPrefix = "deposit:"

func DepositOrderReference(id string) string {
	return depositOrderPrefix + id
}

// IsDepositOrder 充值单必须先由 InitiateDeposit 创建，网关单号允许直接入账
func IsDepositOrder(referenceID string) bool {
	return strings.HasPrefix(referenceID, depositOrderPrefix)
}

// DepositKey 充值流水的幂等键
func DepositKey(walletID int64, referenceID string) *string {
	key := fmt.Sprintf("deposit:%d:%s", walletID, referenceID)
	return &key
}

func (Transaction) TableName() string {
	return "wallet_transaction"
}
