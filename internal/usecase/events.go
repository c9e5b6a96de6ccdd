package usecase

import (
	"context"

	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	drepo "github.com/paeltech/savannaFx-sub000/internal/domain/repository"
	"github.com/paeltech/savannaFx-sub000/pkg/clock"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
)

// eventSink publishes domain events after a commit. Failures are logged and
// never reach the caller: the mutation is already durable.
type eventSink struct {
	pub    drepo.EventPublisher
	clock  clock.Clock
	logger *logger.Logger
}

func (s eventSink) emit(ctx context.Context, typ, key string, payload interface{}) {
	if s.pub == nil {
		return
	}
	ev := models.DomainEvent{Type: typ, Key: key, OccurredAt: s.clock.Now(), Payload: payload}
	if err := s.pub.PublishEvent(ctx, ev); err != nil {
		s.logger.Warn("publish domain event failed",
			logger.String("type", typ),
			logger.String("key", key),
			logger.Error(err))
	}
}
