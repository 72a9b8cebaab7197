package mq

import (
	"context"

	"github.com/messagely/apiserver/internal/logging"
)

// NotifyHandler logs a delivery notice for every message event. Malformed
// events are logged and discarded.
func NotifyHandler(logger logging.Logger) Handler {
	return func(ctx context.Context, msg Message) error {
		event, err := DecodeMessageEvent(msg)
		if err != nil {
			logger.Warn(ctx, "dropping message event", "id", msg.ID, "error", err)
			return err
		}

		switch event.Type {
		case EventMessageSent:
			logger.Info(ctx, "new message for recipient",
				"message_id", event.MessageID,
				"to", event.ToUsername,
				"from", event.FromUsername,
				"at", event.At,
			)
		case EventMessageRead:
			logger.Info(ctx, "message read by recipient",
				"message_id", event.MessageID,
				"notify", event.FromUsername,
				"reader", event.ToUsername,
				"at", event.At,
			)
		}
		return nil
	}
}
