package events

import (
	"context"

	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	drepo "github.com/paeltech/savannaFx-sub000/internal/domain/repository"
	pkgkafka "github.com/paeltech/savannaFx-sub000/pkg/kafka"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
)

// HeaderEventType lets consumers filter without decoding the value.
const HeaderEventType = "event_type"

// KafkaPublisher writes domain events to one topic keyed by aggregate id, so
// events of one signal or subscription stay ordered within a partition.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ drepo.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishEvent(ctx context.Context, ev models.DomainEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.Key), ev,
		pkgkafka.Header{Key: HeaderEventType, Value: []byte(ev.Type)})
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// LogPublisher is used when no broker is configured.
type LogPublisher struct {
	logger *logger.Logger
}

var _ drepo.EventPublisher = (*LogPublisher)(nil)

func NewLogPublisher(lgr *logger.Logger) *LogPublisher {
	return &LogPublisher{logger: lgr}
}

func (p *LogPublisher) PublishEvent(_ context.Context, ev models.DomainEvent) error {
	p.logger.Debug("domain event",
		logger.String("type", ev.Type),
		logger.String("key", ev.Key),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
