package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"event":"campaign.activated"}` {
			return errors.New("unexpected payload")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewPublisher(producer)
	require.NoError(t, p.Publish(context.Background(), "campaign_events", "campaign:1", `{"event":"campaign.activated"}`))
	assert.ErrorIs(t, p.Publish(context.Background(), "campaign_events", "campaign:1", `{}`), sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}
