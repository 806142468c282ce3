package mq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/dunamismax/variantflow/internal/logging"
	"github.com/dunamismax/variantflow/internal/trigger"
)

type ConsumerConfig struct {
	Brokers          string
	Topic            string
	GroupID          string
	EventNameFilters []string
}

// KafkaConsumer implements NotificationConsumer using confluent-kafka-go.
// Messages are handled one at a time in the consume loop; each invocation
// already fans out across its variants.
type KafkaConsumer struct {
	consumer *kafka.Consumer
	cfg      ConsumerConfig
	handler  TriggerHandler
	doneCh   chan struct{}
}

func NewKafkaConsumer(cfg ConsumerConfig, handler TriggerHandler) (*KafkaConsumer, error) {
	if handler == nil {
		return nil, errors.New("trigger handler is required")
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           cfg.GroupID,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	return &KafkaConsumer{
		consumer: c,
		cfg:      cfg,
		handler:  handler,
		doneCh:   make(chan struct{}),
	}, nil
}

// Start subscribes and begins consuming in a background goroutine.
func (kc *KafkaConsumer) Start(ctx context.Context) error {
	if err := kc.consumer.Subscribe(kc.cfg.Topic, nil); err != nil {
		return fmt.Errorf("subscribe to topic %s: %w", kc.cfg.Topic, err)
	}

	l := logging.Ctx(ctx)
	l.Info().Str("topic", kc.cfg.Topic).Str("group", kc.cfg.GroupID).Msg("notification consumer started")

	go kc.consumeLoop(ctx)
	return nil
}

func (kc *KafkaConsumer) consumeLoop(ctx context.Context) {
	l := logging.Ctx(ctx)
	defer close(kc.doneCh)

	for {
		select {
		case <-ctx.Done():
			l.Info().Msg("notification consumer shutting down")
			return
		default:
		}

		msg, err := kc.consumer.ReadMessage(100 * time.Millisecond)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
				continue
			}
			l.Error().Err(err).Msg("kafka consumer error")
			continue
		}
		// In-flight invocations finish even after the shutdown signal.
		kc.processMessage(context.WithoutCancel(ctx), msg.Value)
	}
}

func (kc *KafkaConsumer) processMessage(ctx context.Context, value []byte) {
	l := logging.Ctx(ctx)

	ev, ok, err := decodeNotification(value, kc.cfg.EventNameFilters)
	if err != nil {
		l.Error().Err(err).Msg("decode bucket notification")
		return
	}
	if !ok {
		l.Debug().Str("event_name", ev.EventName).Msg("notification filtered")
		return
	}

	l.Info().
		Str(logging.FieldBucket, ev.Bucket).
		Str(logging.FieldKey, ev.Key).
		Int64("size", ev.Size).
		Msg("received object-created notification")

	if err := kc.handler.HandleTrigger(ctx, ev); err != nil {
		l.Error().Err(err).Str(logging.FieldKey, ev.Key).Msg("handle notification")
	}
}

// decodeNotification parses value and reports whether its event name passes
// filters.
func decodeNotification(value []byte, filters []string) (domain.TriggerEvent, bool, error) {
	ev, err := trigger.Parse(value)
	if err != nil {
		if errors.Is(err, trigger.ErrNoRecords) {
			return domain.TriggerEvent{}, false, nil
		}
		return domain.TriggerEvent{}, false, err
	}
	return ev, trigger.MatchesEventName(ev.EventName, filters), nil
}

// Close waits for the consume loop to drain, then closes the Kafka client.
// ctx passed to Start must already be cancelled.
func (kc *KafkaConsumer) Close() error {
	<-kc.doneCh
	if err := kc.consumer.Close(); err != nil {
		return fmt.Errorf("close kafka consumer: %w", err)
	}
	return nil
}
