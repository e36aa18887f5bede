package events

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/m-mizutani/goerr/v2"
	"github.com/sony/gobreaker"

	"github.com/banking/audit-risk-service/internal/config"
	"github.com/banking/audit-risk-service/internal/domain"
	"github.com/banking/audit-risk-service/internal/pkg/logger"
)

// KafkaPublisher publishes recalculation events keyed by area, so every
// event of one area lands on the same partition in commit order.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	breaker  *gobreaker.CircuitBreaker
	log      *logger.Logger
}

// NewKafkaPublisher connects a synchronous producer to the configured brokers
func NewKafkaPublisher(cfg *config.KafkaConfig, log *logger.Logger) (*KafkaPublisher, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = cfg.MaxRetries
	sc.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create kafka producer", goerr.V("brokers", cfg.Brokers))
	}
	return NewKafkaPublisherWithProducer(producer, cfg, log), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, cfg *config.KafkaConfig, log *logger.Logger) *KafkaPublisher {
	l := log.Named("kafka_publisher")
	failures := cfg.Breaker.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kafka-" + cfg.RiskEvents,
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("circuit breaker state changed",
				logger.StringField("breaker", name),
				logger.StringField("from", from.String()),
				logger.StringField("to", to.String()),
			)
		},
	})

	return &KafkaPublisher{
		producer: producer,
		topic:    cfg.RiskEvents,
		breaker:  breaker,
		log:      l,
	}
}

// Publish sends one event. When the breaker is open the call fails fast.
func (p *KafkaPublisher) Publish(ctx context.Context, evt *domain.RecalculationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return goerr.Wrap(err, "failed to encode recalculation event", goerr.V("area_id", evt.AuditableAreaID))
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(evt.AuditableAreaID.String()),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: evt.OccurredAt,
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte("risk.recalculated")},
			{Key: []byte("trigger"), Value: []byte(evt.Trigger)},
		},
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		_, _, sendErr := p.producer.SendMessage(msg)
		return nil, sendErr
	})
	if err != nil {
		return goerr.Wrap(err, "failed to publish recalculation event",
			goerr.V("area_id", evt.AuditableAreaID), goerr.V("topic", p.topic))
	}
	return nil
}

// Close flushes and closes the producer
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// Nop drops every event. Used when Kafka is disabled.
type Nop struct{}

// Publish implements the publisher contract
func (Nop) Publish(context.Context, *domain.RecalculationEvent) error { return nil }

// Recorder keeps published events in memory
type Recorder struct {
	events chan *domain.RecalculationEvent
}

// NewRecorder buffers up to size events; later events are dropped
func NewRecorder(size int) *Recorder {
	return &Recorder{events: make(chan *domain.RecalculationEvent, size)}
}

// Publish implements the publisher contract
func (r *Recorder) Publish(_ context.Context, evt *domain.RecalculationEvent) error {
	select {
	case r.events <- evt:
	default:
	}
	return nil
}

// Drain returns everything recorded so far
func (r *Recorder) Drain() []*domain.RecalculationEvent {
	var out []*domain.RecalculationEvent
	for {
		select {
		case evt := <-r.events:
			out = append(out, evt)
		default:
			return out
		}
	}
}
