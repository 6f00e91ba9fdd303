/*
Package notify delivers SIRW decision events outside the service.

PURPOSE:
  The service publishes a sirw.DecisionEvent after each committed automatic
  decision and each human review. Downstream consumers (employee e-mail,
  HR systems) pick them up from Kafka. Without brokers the events are only
  logged.

DELIVERY:
  Best effort. A failed publish is logged by the service and never undoes
  the decision.

MESSAGE FORMAT (Kafka):
  key:     employee ID (keeps one employee's events ordered on a partition)
  value:   JSON DecisionEvent
  headers: event_type, reference_number, status

SEE ALSO:
  - sirw/events.go: DecisionEvent and DecisionPublisher
  - cmd/server/main.go: publisher selection
*/
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/warp/sirw-engine/sirw"
)

const EventTypeDecision = "sirw.request.decided"

// =============================================================================
// KAFKA
// =============================================================================

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

var _ sirw.DecisionPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher builds a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaPublisher(w, topic, logger)
}

func newKafkaPublisher(w messageWriter, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{writer: w, topic: topic, logger: logger.Named("notify.kafka")}
}

func (p *KafkaPublisher) PublishDecision(ctx context.Context, event sirw.DecisionEvent) error {
	msg, err := buildMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.ReferenceNumber, p.topic, err)
	}
	p.logger.Debug("decision event published",
		zap.String("reference", event.ReferenceNumber),
		zap.String("status", string(event.Status)))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// buildMessage leaves Topic empty; the writer carries it.
func buildMessage(event sirw.DecisionEvent) (kafkago.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("encode decision event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.EmployeeID),
		Value: payload,
		Time:  event.DecidedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(EventTypeDecision)},
			{Key: "reference_number", Value: []byte(event.ReferenceNumber)},
			{Key: "status", Value: []byte(event.Status)},
		},
	}, nil
}

// =============================================================================
// LOG
// =============================================================================

// LogPublisher writes events to the structured log. Used when no brokers
// are configured.
type LogPublisher struct {
	logger *zap.Logger
}

var _ sirw.DecisionPublisher = (*LogPublisher)(nil)

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("notify")}
}

func (p *LogPublisher) PublishDecision(_ context.Context, event sirw.DecisionEvent) error {
	p.logger.Info("decision event",
		zap.String("reference", event.ReferenceNumber),
		zap.String("employee_id", event.EmployeeID),
		zap.String("destination", event.DestinationCountry),
		zap.String("status", string(event.Status)),
		zap.String("source", string(event.DecisionSource)),
		zap.Strings("flags", event.Flags.Strings()),
		zap.String("reason", event.Reason))
	return nil
}
