package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/dunamismax/variantflow/internal/logging"
)

// KafkaPublisher implements ReportPublisher using confluent-kafka-go.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
	doneCh   chan struct{}
}

func NewKafkaPublisher(brokers, topic string) (*KafkaPublisher, error) {
	if err := ensureTopic(brokers, topic, 1); err != nil {
		l := logging.L()
		l.Warn().Err(err).Str("topic", topic).Msg("ensure topic failed, it may already exist")
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	kp := &KafkaPublisher{
		producer: p,
		topic:    topic,
		doneCh:   make(chan struct{}),
	}

	go kp.deliveryReportHandler()

	return kp, nil
}

func ensureTopic(brokers, topic string, partitions int) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return fmt.Errorf("create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{
		{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		},
	})
	if err != nil {
		return err
	}

	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError && result.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("create topic %s: %v", result.Topic, result.Error)
		}
	}

	return nil
}

func (kp *KafkaPublisher) deliveryReportHandler() {
	l := logging.L()
	for e := range kp.producer.Events() {
		if ev, ok := e.(*kafka.Message); ok && ev.TopicPartition.Error != nil {
			l.Error().Err(ev.TopicPartition.Error).Msg("kafka delivery failed")
		}
	}
	close(kp.doneCh)
}

// PublishReport sends a report. Messages are keyed by the source object so
// reports for one object stay ordered within a partition.
func (kp *KafkaPublisher) PublishReport(_ context.Context, report domain.Report) error {
	msg, err := reportMessage(kp.topic, report)
	if err != nil {
		return err
	}
	if err := kp.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("produce report message: %w", err)
	}
	return nil
}

func reportMessage(topic string, report domain.Report) (*kafka.Message, error) {
	value, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(report.Bucket + "/" + report.Key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(report.Status)},
			{Key: "invocation_id", Value: []byte(report.InvocationID)},
		},
	}, nil
}

// Close flushes pending messages and releases producer resources.
func (kp *KafkaPublisher) Close() error {
	kp.producer.Flush(5000)
	kp.producer.Close()
	<-kp.doneCh
	return nil
}
