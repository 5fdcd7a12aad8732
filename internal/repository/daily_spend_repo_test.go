package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDailyRow_IgnoresExisting(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(pattern("INSERT INTO `campaign_daily_spend`", "ON DUPLICATE KEY UPDATE `id`=`id`")).
		WillReturnResult(affected(0))

	require.NoError(t, ensureDailyRow(db, 12, "2026-03-10"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddInteraction_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(pattern("INSERT INTO `campaign_daily_spend`", "ON DUPLICATE KEY UPDATE",
		"`clicks`=clicks + ?", "`impressions`=impressions + ?")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewDailySpendRepository(db).AddInteraction(context.Background(), 12, "2026-03-10", 1, 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDailySpendGet_MissingRowIsZero(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(pattern("SELECT * FROM `campaign_daily_spend`", "campaign_id = ? AND day = ?")).
		WithArgs(int64(12), "2026-03-10").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	row, err := NewDailySpendRepository(db).Get(context.Background(), 12, "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, int64(12), row.CampaignID)
	assert.True(t, row.Spend.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
