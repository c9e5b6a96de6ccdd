package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paeltech/savannaFx-sub000/internal/domain/errs"
	"github.com/paeltech/savannaFx-sub000/pkg/kafka"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
)

// PaymentEvent is published by the payment processor integration.
type PaymentEvent struct {
	SubscriptionID   string `json:"subscription_id"`
	PaymentReference string `json:"payment_reference"`
	Status           string `json:"status"`
}

// PipUsageEvent is published by the metering integration.
type PipUsageEvent struct {
	SubscriptionID string `json:"subscription_id"`
	Pips           int64  `json:"pips"`
}

var (
	_ kafka.MessageHandler = (*PaymentEventsHandler)(nil)
	_ kafka.MessageHandler = (*PipUsageHandler)(nil)
)

// PaymentEventsHandler confirms subscriptions from completed payment events.
type PaymentEventsHandler struct {
	topic   string
	account *SubscriptionAccount
	logger  *logger.Logger
}

func NewPaymentEventsHandler(topic string, account *SubscriptionAccount, lgr *logger.Logger) *PaymentEventsHandler {
	return &PaymentEventsHandler{topic: topic, account: account, logger: lgr}
}

func (h *PaymentEventsHandler) Topic() string { return h.topic }

func (h *PaymentEventsHandler) Handle(ctx context.Context, data []byte) error {
	var ev PaymentEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		h.logger.Warn("drop malformed payment event", logger.Error(err))
		return nil
	}
	if ev.Status != "" && ev.Status != "completed" {
		h.logger.Debug("ignore payment event",
			logger.SubscriptionID(ev.SubscriptionID),
			logger.String("status", ev.Status))
		return nil
	}
	_, err := h.account.ConfirmPayment(ctx, ev.SubscriptionID, ev.PaymentReference)
	return settle(h.logger, "confirm payment", ev.SubscriptionID, err)
}

// PipUsageHandler deducts metered pip usage.
type PipUsageHandler struct {
	topic   string
	account *SubscriptionAccount
	logger  *logger.Logger
}

func NewPipUsageHandler(topic string, account *SubscriptionAccount, lgr *logger.Logger) *PipUsageHandler {
	return &PipUsageHandler{topic: topic, account: account, logger: lgr}
}

func (h *PipUsageHandler) Topic() string { return h.topic }

func (h *PipUsageHandler) Handle(ctx context.Context, data []byte) error {
	var ev PipUsageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		h.logger.Warn("drop malformed pip usage event", logger.Error(err))
		return nil
	}
	_, err := h.account.ConsumePips(ctx, ev.SubscriptionID, ev.Pips)
	return settle(h.logger, "consume pips", ev.SubscriptionID, err)
}

// settle drops domain rejections, which a redelivery cannot fix, and hands
// anything else back to the consumer for retry.
func settle(lgr *logger.Logger, op, id string, err error) error {
	if err == nil {
		return nil
	}
	switch errs.KindOf(err) {
	case errs.KindValidation, errs.KindNotFound, errs.KindConflict, errs.KindQuotaExceeded:
		lgr.Warn("billing event rejected",
			logger.String("op", op),
			logger.SubscriptionID(id),
			logger.Error(err))
		return nil
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}
