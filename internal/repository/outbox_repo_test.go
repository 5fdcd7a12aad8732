package repository

import (
	"context"
	"database/sql/driver"
	"strings"
	"testing"
	"unicode/utf8"

	"adengine/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lastError last_error 参数必须是合法 UTF-8 且不超过列宽
type lastError struct{}

func (lastError) Match(v driver.Value) bool {
	s, ok := v.(string)
	return ok && len(s) <= 512 && utf8.ValidString(s)
}

var recordFailureSQL = pattern(
	"UPDATE outbox_message SET status = CASE WHEN retry_count + 1 >= ? THEN ? ELSE status END, ",
	"retry_count = retry_count + 1, last_error = ?, updated_at = ? WHERE id = ? AND status = ?")

func TestRecordFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOutboxRepository(db)

	mock.ExpectExec(recordFailureSQL).
		WithArgs(int64(3), model.OutboxStatusFailed, "kafka: broker not available", sqlmock.AnyArg(), int64(9), model.OutboxStatusPending).
		WillReturnResult(affected(1))
	mock.ExpectQuery(pattern("SELECT", "status", "FROM `outbox_message` WHERE id = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(model.OutboxStatusPending))

	gaveUp, err := repo.RecordFailure(context.Background(), 9, "kafka: broker not available", 3)
	require.NoError(t, err)
	assert.False(t, gaveUp)

	mock.ExpectExec(recordFailureSQL).
		WithArgs(int64(3), model.OutboxStatusFailed, lastError{}, sqlmock.AnyArg(), int64(9), model.OutboxStatusPending).
		WillReturnResult(affected(1))
	mock.ExpectQuery(pattern("SELECT", "status", "FROM `outbox_message`")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(model.OutboxStatusFailed))

	gaveUp, err = repo.RecordFailure(context.Background(), 9, strings.Repeat("投递失败", 60), 3)
	require.NoError(t, err)
	assert.True(t, gaveUp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxCreate_DefaultsToPending(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(pattern("INSERT INTO `outbox_message`")).WillReturnResult(sqlmock.NewResult(4, 1))

	msg := &model.OutboxMessage{EventType: model.EventCampaignCharged, MessageKey: "campaign:12", Topic: "campaign_events", Payload: "{}"}
	require.NoError(t, NewOutboxRepository(db).Create(context.Background(), nil, msg))
	assert.Equal(t, int64(4), msg.ID)
	assert.Equal(t, model.OutboxStatusPending, msg.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 512))
	assert.Equal(t, "abc", truncate("abcdef", 3))
	// 每个汉字 3 字节
	assert.Equal(t, "充", truncate("充值失败", 4))
	assert.Equal(t, "充值", truncate("充值失败", 6))
	assert.Equal(t, "", truncate("充值", 2))

	long := strings.Repeat("投递失败", 60)
	got := truncate(long, 512)
	assert.LessOrEqual(t, len(got), 512)
	assert.True(t, utf8.ValidString(got))
}
