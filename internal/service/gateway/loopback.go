package gateway

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/paeltech/savannaFx-sub000/pkg/logger"
)

// Loopback logs messages instead of sending them. Used when no gateway URL is
// configured.
type Loopback struct {
	logger   *logger.Logger
	channels atomic.Int64
}

func NewLoopback(lgr *logger.Logger) *Loopback {
	return &Loopback{logger: lgr}
}

func (l *Loopback) Send(_ context.Context, target, message string) error {
	l.logger.Info("loopback gateway send",
		logger.String("target", target),
		logger.Int("bytes", len(message)))
	return nil
}

func (l *Loopback) ProvisionChannel(_ context.Context, name string) (string, error) {
	id := fmt.Sprintf("loopback-%d", l.channels.Add(1))
	l.logger.Info("loopback gateway channel", logger.String("name", name), logger.String("channel_id", id))
	return id, nil
}
