package mq

import (
	"context"

	"github.com/dunamismax/variantflow/internal/domain"
)

// TriggerHandler is the callback the consumer hands each accepted
// notification to.
type TriggerHandler interface {
	HandleTrigger(ctx context.Context, ev domain.TriggerEvent) error
}

type TriggerHandlerFunc func(ctx context.Context, ev domain.TriggerEvent) error

func (f TriggerHandlerFunc) HandleTrigger(ctx context.Context, ev domain.TriggerEvent) error {
	return f(ctx, ev)
}

// NotificationConsumer abstracts the Kafka consumer for bucket notifications.
type NotificationConsumer interface {
	Start(ctx context.Context) error
	Close() error
}

// ReportPublisher abstracts the Kafka producer for terminal reports.
type ReportPublisher interface {
	PublishReport(ctx context.Context, report domain.Report) error
	Close() error
}

var (
	_ NotificationConsumer = (*KafkaConsumer)(nil)
	_ ReportPublisher      = (*KafkaPublisher)(nil)
)
