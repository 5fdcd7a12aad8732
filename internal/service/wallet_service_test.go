package service

import (
	"testing"

	"adengine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeposit_PendingThenCompletedOnce(t *testing.T) {
	env := newTestEnv(t)
	caller := model.Caller{UserID: sellerID}

	pending, err := env.wallets.InitiateDeposit(env.ctx, caller, dec("80"))
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusPending, pending.Status)
	assert.True(t, env.wallet(sellerID).Balance.IsZero(), "pending deposit must not credit")

	result := DepositResult{WalletID: pending.WalletID, ReferenceID: pending.ReferenceID, Amount: dec("80"), Status: DepositStatusCompleted}
	done, err := env.wallets.CompleteDeposit(env.ctx, result)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusCompleted, done.Status)

	again, err := env.wallets.CompleteDeposit(env.ctx, result)
	require.NoError(t, err)
	assert.Equal(t, pending.TransactionNo, again.TransactionNo)

	w := env.wallet(sellerID)
	assert.True(t, w.Balance.Equal(dec("80")))
	assert.True(t, w.TotalDeposited.Equal(dec("80")))

	var completed int
	for _, m := range env.store.Outbox().All() {
		if m.MessageKey == "wallet:1" {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestDeposit_Rejections(t *testing.T) {
	env := newTestEnv(t)
	caller := model.Caller{UserID: sellerID}

	_, err := env.wallets.InitiateDeposit(env.ctx, caller, dec("0"))
	assert.ErrorIs(t, err, ErrValidation)

	pending, err := env.wallets.InitiateDeposit(env.ctx, caller, dec("80"))
	require.NoError(t, err)

	_, err = env.wallets.CompleteDeposit(env.ctx, DepositResult{WalletID: pending.WalletID, ReferenceID: pending.ReferenceID, Amount: dec("81"), Status: DepositStatusCompleted})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.wallets.CompleteDeposit(env.ctx, DepositResult{WalletID: pending.WalletID, ReferenceID: "deposit:missing", Amount: dec("80"), Status: DepositStatusCompleted})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.wallets.CompleteDeposit(env.ctx, DepositResult{WalletID: pending.WalletID, ReferenceID: pending.ReferenceID, Amount: dec("80"), Status: "refunded"})
	assert.ErrorIs(t, err, ErrValidation)

	assert.True(t, env.wallet(sellerID).Balance.IsZero())
}

func TestDeposit_FailedNeverCredits(t *testing.T) {
	env := newTestEnv(t)
	pending, err := env.wallets.InitiateDeposit(env.ctx, model.Caller{UserID: sellerID}, dec("30"))
	require.NoError(t, err)

	_, err = env.wallets.CompleteDeposit(env.ctx, DepositResult{WalletID: pending.WalletID, ReferenceID: pending.ReferenceID, Status: DepositStatusFailed})
	require.NoError(t, err)

	// 失败之后的成功通知不再入账
	_, err = env.wallets.CompleteDeposit(env.ctx, DepositResult{WalletID: pending.WalletID, ReferenceID: pending.ReferenceID, Amount: dec("30"), Status: DepositStatusCompleted})
	require.NoError(t, err)
	assert.True(t, env.wallet(sellerID).Balance.IsZero())

	txns, _, err := env.wallets.ListTransactions(env.ctx, model.Caller{UserID: sellerID}, 1, 10)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, model.TransactionStatusFailed, txns[0].Status)
}

func TestDeposit_GatewayCreditRedeliveredOnce(t *testing.T) {
	env := newTestEnv(t)
	env.fund(sellerID, "0.01")
	w := env.wallet(sellerID)

	// 网关直接入账的通知被重复投递（回调重试 + MQ 重放）
	result := DepositResult{WalletID: w.ID, ReferenceID: "PAY-20260310-0001", Amount: dec("40"), Status: DepositStatusCompleted}
	first, err := env.wallets.CompleteDeposit(env.ctx, result)
	require.NoError(t, err)
	assert.True(t, first.BalanceAfter.Equal(dec("40.01")))
	assert.Equal(t, "PAY-20260310-0001", first.ReferenceID)

	second, err := env.wallets.CompleteDeposit(env.ctx, result)
	require.NoError(t, err)
	assert.Equal(t, first.TransactionNo, second.TransactionNo)

	w = env.wallet(sellerID)
	assert.True(t, w.Balance.Equal(dec("40.01")), "balance %s", w.Balance)
	assert.True(t, w.TotalDeposited.Equal(dec("40.01")))

	var events int
	for _, m := range env.store.Outbox().All() {
		if m.EventType == model.EventDepositCompleted {
			events++
		}
	}
	assert.Equal(t, 1, events)
}

func TestDeposit_ReferenceRequired(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.wallets.GetWallet(env.ctx, model.Caller{UserID: sellerID})
	require.NoError(t, err)

	for _, status := range []string{DepositStatusCompleted, DepositStatusFailed} {
		_, err := env.wallets.CompleteDeposit(env.ctx, DepositResult{WalletID: w.ID, Amount: dec("12.5"), Status: status})
		assert.ErrorIs(t, err, ErrValidation, status)
	}
	assert.True(t, env.wallet(sellerID).Balance.IsZero())
}

func TestWithdraw_OnlyAvailableBalance(t *testing.T) {
	env := newTestEnv(t)
	env.fund(sellerID, "150")
	env.active(sellerID, nil)
	caller := model.Caller{UserID: sellerID}

	_, err := env.wallets.Withdraw(env.ctx, caller, dec("60"))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	trans, err := env.wallets.Withdraw(env.ctx, caller, dec("50"))
	require.NoError(t, err)
	assert.Equal(t, model.TransactionTypeWithdrawal, trans.Type)

	w := env.wallet(sellerID)
	assert.True(t, w.Balance.Equal(dec("100")))
	assert.True(t, w.ReservedBalance.Equal(dec("100")))
	assert.True(t, w.Available().IsZero())
	assert.True(t, w.ReservedBalance.LessThanOrEqual(w.Balance))
}
