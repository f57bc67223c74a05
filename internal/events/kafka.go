package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/apperrors"
)

// KafkaPublisher writes events to a single Kafka topic.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *logrus.Logger
}

// NewKafkaPublisher dials the brokers and returns a synchronous publisher.
func NewKafkaPublisher(brokers []string, topic string, log *logrus.Logger) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	log.WithField("topic", topic).Info("Kafka producer created")
	return NewKafkaPublisherWithProducer(producer, topic, log), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(p sarama.SyncProducer, topic string, log *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic, log: log}
}

func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}

func (k *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := ev.Key
	if key == "" {
		key = ev.ID.String()
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(ev.Type)},
			{Key: []byte("event_id"), Value: []byte(ev.ID.String())},
			{Key: []byte("timestamp"), Value: []byte(ev.Timestamp.Format(time.RFC3339))},
		},
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("%w: send to topic %s: %v", apperrors.ErrUpstreamUnavailable, k.topic, err)
	}

	k.log.WithFields(logrus.Fields{
		"topic":      k.topic,
		"partition":  partition,
		"offset":     offset,
		"event_type": ev.Type,
		"event_id":   ev.ID,
	}).Debug("Event published")
	return nil
}
