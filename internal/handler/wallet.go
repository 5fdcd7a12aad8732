package handler

import (
	"adengine/internal/service"
	"adengine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// GetWallet GET /api/v1/wallet
func (h *Handler) GetWallet(c *gin.Context) {
	wallet, err := h.wallets.GetWallet(c.Request.Context(), callerFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"wallet_id":         wallet.ID,
		"balance":           wallet.Balance,
		"reserved_balance":  wallet.ReservedBalance,
		"available_balance": wallet.Available(),
		"total_deposited":   wallet.TotalDeposited,
		"total_spent":       wallet.TotalSpent,
	})
}

// ListTransactions GET /api/v1/wallet/transactions?page=1&page_size=10
func (h *Handler) ListTransactions(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, total, err := h.wallets.ListTransactions(c.Request.Context(), callerFrom(c), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Paged(c, list, total, page, pageSize)
}

type AmountRequest struct {
	Amount *decimal.Decimal `json:"amount" binding:"required"`
}

// InitiateDeposit 生成充值单，reference_id 交给支付网关
// POST /api/v1/wallet/deposits
func (h *Handler) InitiateDeposit(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	trans, err := h.wallets.InitiateDeposit(c.Request.Context(), callerFrom(c), *req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"wallet_id":    trans.WalletID,
		"reference_id": trans.ReferenceID,
		"amount":       trans.Amount,
		"status":       trans.Status,
	})
}

// DepositCallback 支付网关回调，重复通知幂等
// POST /api/v1/wallet/deposits/callback
func (h *Handler) DepositCallback(c *gin.Context) {
	var req service.DepositResult
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	trans, err := h.wallets.CompleteDeposit(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	if trans == nil {
		response.Success(c, gin.H{"status": req.Status})
		return
	}
	response.Success(c, gin.H{
		"transaction_no": trans.TransactionNo,
		"status":         trans.Status,
		"balance_after":  trans.BalanceAfter,
	})
}

// Withdraw 只能提取可用余额
// POST /api/v1/wallet/withdrawals
func (h *Handler) Withdraw(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	trans, err := h.wallets.Withdraw(c.Request.Context(), callerFrom(c), *req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, trans)
}
