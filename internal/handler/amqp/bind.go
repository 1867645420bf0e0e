package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/post-feed-service/internal/domain/event"
	"github.com/webitel/post-feed-service/internal/domain/model"
)

// DomainHandler defines the functional signature for business logic.
type DomainHandler[T any] func(ctx context.Context, payload *T) (event.Eventer, error)

// validator is implemented by payloads that check their own required fields.
type validator interface {
	Validate() error
}

// [INFRASTRUCTURE_BRIDGE]
// Bind connects Watermill to domain logic, handling panic recovery, validation and fan-out.
// Returning an error nacks the delivery; nil acks it.
func Bind[T any](h *MessageHandler, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) (err error) {
		// [PANIC_RECOVERY]
		// Keep the consumer alive and leave the delivery unacknowledged.
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("PANIC_RECOVERED",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID)
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()

		// [DECODING]
		payload := new(T)
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			return h.reject(msg, &model.ValidationError{Field: "payload", Reason: "is not valid JSON: " + err.Error()})
		}

		// [VALIDATION]
		if v, ok := any(payload).(validator); ok {
			if err := v.Validate(); err != nil {
				return h.reject(msg, err)
			}
		}

		// [EXECUTION]
		ev, err := fn(msg.Context(), payload)
		if err != nil {
			h.logger.Error("MESSAGE_PROCESSING_FAILED",
				"err", err,
				"msg_id", msg.UUID,
				"trace_id", TraceIDFromContext(msg.Context()))
			return err // NACK: broker redelivers.
		}
		if ev == nil {
			return nil
		}

		// [FAN_OUT_DISPATCH]
		// Local delivery only. The row is stored, so from here on the message is acked.
		n := h.hub.Publish(ev.GetTopic(), ev)
		h.logger.Debug("EVENT_FANNED_OUT",
			"event_id", ev.GetID(),
			"topic", ev.GetTopic(),
			"subscribers", n)

		return nil
	}
}

// reject logs a malformed delivery and hands back the error that nacks it.
func (h *MessageHandler) reject(msg *message.Message, err error) error {
	h.logger.Warn("MESSAGE_REJECTED",
		"err", err,
		"msg_id", msg.UUID,
		"trace_id", TraceIDFromContext(msg.Context()))
	return err
}
