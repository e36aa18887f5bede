package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/audit-risk-service/internal/config"
	"github.com/banking/audit-risk-service/internal/domain"
	"github.com/banking/audit-risk-service/internal/pkg/logger"
)

func testKafkaConfig() *config.KafkaConfig {
	return &config.KafkaConfig{
		RiskEvents: "audit.risk.recalculated",
		Breaker: config.BreakerConfig{
			MaxRequests:         1,
			Interval:            time.Minute,
			Timeout:             time.Minute,
			ConsecutiveFailures: 2,
		},
	}
}

func testEvent() *domain.RecalculationEvent {
	return &domain.RecalculationEvent{
		EventID:         uuid.New(),
		AuditableAreaID: uuid.New(),
		Trigger:         domain.TriggerRatingsChanged,
		WeightsVersion:  3,
		OccurredAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	defer func() { require.NoError(t, producer.Close()) }()

	evt := testEvent()
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got domain.RecalculationEvent
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.AuditableAreaID != evt.AuditableAreaID || got.Trigger != evt.Trigger {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewKafkaPublisherWithProducer(producer, testKafkaConfig(), logger.NewNop())
	assert.NoError(t, p.Publish(context.Background(), evt))
}

func TestKafkaPublisher_BreakerOpensAfterFailures(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	defer func() { require.NoError(t, producer.Close()) }()

	boom := errors.New("broker unavailable")
	producer.ExpectSendMessageAndFail(boom)
	producer.ExpectSendMessageAndFail(boom)

	p := NewKafkaPublisherWithProducer(producer, testKafkaConfig(), logger.NewNop())

	err := p.Publish(context.Background(), testEvent())
	assert.ErrorIs(t, err, boom)
	err = p.Publish(context.Background(), testEvent())
	assert.ErrorIs(t, err, boom)

	// third call never reaches the producer
	err = p.Publish(context.Background(), testEvent())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestKafkaPublisher_CancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	defer func() { require.NoError(t, producer.Close()) }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewKafkaPublisherWithProducer(producer, testKafkaConfig(), logger.NewNop())
	assert.ErrorIs(t, p.Publish(ctx, testEvent()), context.Canceled)
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(1)
	require.NoError(t, r.Publish(context.Background(), testEvent()))
	require.NoError(t, r.Publish(context.Background(), testEvent()))

	assert.Len(t, r.Drain(), 1)
	assert.Empty(t, r.Drain())
}
