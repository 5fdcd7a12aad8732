package repository

import (
	"errors"

	driver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	ErrWalletNotFound          = errors.New("钱包不存在")
	ErrInsufficientAvailable   = errors.New("可用余额不足")
	ErrReservationShort        = errors.New("预留余额不足，账目可能已漂移")
	ErrDepositNotFound         = errors.New("充值单不存在")
	ErrDepositAmountMismatch   = errors.New("充值金额与充值单不一致")
	ErrDepositReferenceMissing = errors.New("充值通知缺少充值单号")

	ErrCampaignNotFound     = errors.New("推广计划不存在")
	ErrStatusConflict       = errors.New("推广计划状态已变化，请重试")
	ErrStatusTransitionDeny = errors.New("推广计划状态不允许该转换")
	ErrBudgetExhausted      = errors.New("推广计划总预算不足")
	ErrDailyCapReached      = errors.New("推广计划今日预算已用完")

	ErrTargetNotFound = errors.New("推广目标不存在")
)

// mysqlDuplicateEntry ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

// isDuplicateKey 唯一索引冲突；gorm 开启 TranslateError 时返回 ErrDuplicatedKey，否则是驱动原始错误
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *driver.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
