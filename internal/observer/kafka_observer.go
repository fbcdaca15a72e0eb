package observer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// messageWriter is the subset of kafka.Writer the observer needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaObserver streams identification outcomes to a Kafka topic
type KafkaObserver struct {
	writer  messageWriter
	timeout time.Duration
	logger  *logrus.Logger
}

// NewKafkaObserver creates an observer producing to topic on brokers
func NewKafkaObserver(brokers []string, topic string, logger *logrus.Logger) *KafkaObserver {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return newKafkaObserver(writer, logger)
}

func newKafkaObserver(writer messageWriter, logger *logrus.Logger) *KafkaObserver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &KafkaObserver{
		writer:  writer,
		timeout: 10 * time.Second,
		logger:  logger,
	}
}

// OnEvent publishes terminal outcomes and saves, keyed by session
func (o *KafkaObserver) OnEvent(ctx context.Context, event IdentificationEvent) {
	switch event.EventType {
	case IdentificationSucceeded, IdentificationFailed, PlantSaved:
	default:
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		o.logger.WithError(err).Error("Failed to encode identification event")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.SessionID),
		Value: payload,
		Time:  event.Timestamp,
	}
	if err := o.writer.WriteMessages(ctx, msg); err != nil {
		o.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": event.EventType,
			"session_id": event.SessionID,
		}).Error("Failed to publish identification event")
	}
}

// GetObserverName returns the observer name
func (o *KafkaObserver) GetObserverName() string {
	return "kafka_observer"
}

// Close flushes and closes the underlying writer
func (o *KafkaObserver) Close() error {
	return o.writer.Close()
}
