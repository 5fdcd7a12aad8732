package repository

import (
	"context"
	"testing"

	"adengine/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spendRequest() model.SpendRequest {
	return model.SpendRequest{
		CampaignID:    12,
		OwnerID:       7,
		Day:           "2026-03-10",
		Amount:        decimal.RequireFromString("1.8"),
		DailyCap:      decimal.RequireFromString("50"),
		TransactionNo: "TXN-1",
		Remark:        "CPC 推广消耗",
	}
}

var (
	campaignSpendSQL = pattern("UPDATE `campaign` SET `current_spend`=current_spend + ?",
		"WHERE", "id = ? AND status = ? AND current_spend + ? <= total_budget")
	dailyRowSQL   = pattern("INSERT INTO `campaign_daily_spend`", "ON DUPLICATE KEY UPDATE")
	dailySpendSQL = pattern("UPDATE `campaign_daily_spend` SET `spend`=spend + ?",
		"WHERE", "campaign_id = ? AND day = ? AND spend + ? <= ?")
	walletDebitSQL = pattern("UPDATE `wallet` SET", "WHERE", "owner_id = ? AND reserved_balance >= ? AND balance >= ?")
)

func TestSettleSpend_AllConditionsInOneTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSettlementRepository(db)
	req := spendRequest()
	req.Event = func(trans *model.Transaction) *model.OutboxMessage {
		return &model.OutboxMessage{EventType: model.EventCampaignCharged, MessageKey: "campaign:12", Topic: "campaign_events", Payload: trans.TransactionNo}
	}

	mock.ExpectBegin()
	mock.ExpectExec(campaignSpendSQL).
		WithArgs(sqlmock.AnyArg(), int64(12), string(model.CampaignStatusActive), sqlmock.AnyArg()).
		WillReturnResult(affected(1))
	mock.ExpectExec(dailyRowSQL).WillReturnResult(affected(0))
	mock.ExpectExec(dailySpendSQL).
		WithArgs(sqlmock.AnyArg(), int64(12), "2026-03-10", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(affected(1))
	mock.ExpectExec(walletDebitSQL).WillReturnResult(affected(1))
	mock.ExpectQuery(pattern("SELECT * FROM `wallet` WHERE owner_id = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "balance", "reserved_balance"}).
			AddRow(3, 7, "98.2", "48.2"))
	mock.ExpectExec(pattern("INSERT INTO `wallet_transaction`")).WillReturnResult(sqlmock.NewResult(21, 1))
	mock.ExpectExec(pattern("INSERT INTO `outbox_message`")).WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectCommit()

	trans, err := repo.SettleSpend(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "TXN-1", trans.TransactionNo)
	assert.Equal(t, int64(3), trans.WalletID)
	assert.Equal(t, model.TransactionTypeCampaignSpend, trans.Type)
	assert.Equal(t, "campaign:12", trans.ReferenceID)
	assert.True(t, trans.BalanceAfter.Equal(decimal.RequireFromString("98.2")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleSpend_RollsBackOnFailedCondition(t *testing.T) {
	cases := []struct {
		name   string
		expect func(sqlmock.Sqlmock)
		want   error
	}{
		{
			name: "total budget",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(campaignSpendSQL).WillReturnResult(affected(0))
			},
			want: ErrBudgetExhausted,
		},
		{
			name: "daily cap",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(campaignSpendSQL).WillReturnResult(affected(1))
				mock.ExpectExec(dailyRowSQL).WillReturnResult(affected(1))
				mock.ExpectExec(dailySpendSQL).WillReturnResult(affected(0))
			},
			want: ErrDailyCapReached,
		},
		{
			name: "wallet reservation",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(campaignSpendSQL).WillReturnResult(affected(1))
				mock.ExpectExec(dailyRowSQL).WillReturnResult(affected(0))
				mock.ExpectExec(dailySpendSQL).WillReturnResult(affected(1))
				mock.ExpectExec(walletDebitSQL).WillReturnResult(affected(0))
			},
			want: ErrReservationShort,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			mock.ExpectBegin()
			tc.expect(mock)
			mock.ExpectRollback()

			trans, err := NewSettlementRepository(db).SettleSpend(context.Background(), spendRequest())
			assert.ErrorIs(t, err, tc.want)
			assert.Nil(t, trans)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
