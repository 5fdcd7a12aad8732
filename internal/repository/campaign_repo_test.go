package repository

import (
	"context"
	"testing"
	"time"

	"adengine/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

var transitionSQL = pattern("UPDATE `campaign` SET", "`status`=?", "WHERE", "id = ? AND status = ?")

func pauseTransition() model.Transition {
	return model.Transition{
		From: model.CampaignStatusActive,
		To:   model.CampaignStatusPaused,
		At:   time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
	}
}

func TestTransitionStatus_ConditionalOnCurrentStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	mock.ExpectExec(transitionSQL).WillReturnResult(affected(1))
	assert.NoError(t, repo.TransitionStatus(context.Background(), 12, pauseTransition()))

	// 状态已被别的请求改掉
	mock.ExpectExec(transitionSQL).WillReturnResult(affected(0))
	assert.ErrorIs(t, repo.TransitionStatus(context.Background(), 12, pauseTransition()), ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatus_DeniedWithoutSQL(t *testing.T) {
	db, mock := newMockDB(t)
	err := NewCampaignRepository(db).TransitionStatus(context.Background(), 12, model.Transition{
		From: model.CampaignStatusCancelled,
		To:   model.CampaignStatusActive,
	})
	assert.ErrorIs(t, err, ErrStatusTransitionDeny)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatus_EventInSameTransaction(t *testing.T) {
	event := func() *model.OutboxMessage {
		return &model.OutboxMessage{EventType: model.EventCampaignPaused, MessageKey: "campaign:12", Topic: "campaign_events", Payload: "{}"}
	}

	t.Run("committed together", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(transitionSQL).WillReturnResult(affected(1))
		mock.ExpectExec(pattern("INSERT INTO `outbox_message`")).WillReturnResult(sqlmock.NewResult(8, 1))
		mock.ExpectCommit()

		tr := pauseTransition()
		tr.Event = event()
		assert.NoError(t, NewCampaignRepository(db).TransitionStatus(context.Background(), 12, tr))
		assert.Equal(t, int64(8), tr.Event.ID)
		assert.Equal(t, model.OutboxStatusPending, tr.Event.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflict writes no event", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(transitionSQL).WillReturnResult(affected(0))
		mock.ExpectRollback()

		tr := pauseTransition()
		tr.Event = event()
		assert.ErrorIs(t, NewCampaignRepository(db).TransitionStatus(context.Background(), 12, tr), ErrStatusConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
