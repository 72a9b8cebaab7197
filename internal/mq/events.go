package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/messagely/apiserver/types"
)

// Event types published on the message events channel.
const (
	EventMessageSent = "message.sent"
	EventMessageRead = "message.read"
)

// Attribute keys set on published events.
const (
	AttrEventType   = "event_type"
	AttrContentType = "content_type"
)

// MessageEvent is the JSON payload describing a message lifecycle change.
type MessageEvent struct {
	Type         string    `json:"type"`
	MessageID    int64     `json:"message_id"`
	FromUsername string    `json:"from_username"`
	ToUsername   string    `json:"to_username"`
	At           time.Time `json:"at"`
}

// NewMessageEvent builds an event of eventType for message.
func NewMessageEvent(eventType string, message types.Message, at time.Time) MessageEvent {
	return MessageEvent{
		Type:         eventType,
		MessageID:    message.ID,
		FromUsername: message.Sender(),
		ToUsername:   message.Recipient(),
		At:           at.UTC(),
	}
}

// EventPublisher writes MessageEvents to a single channel.
type EventPublisher struct {
	mq      *MQ
	channel string
}

func NewEventPublisher(m *MQ, channel string) *EventPublisher {
	return &EventPublisher{mq: m, channel: channel}
}

// Publish encodes event and sends it.
func (p *EventPublisher) Publish(ctx context.Context, event MessageEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode message event: %w", err)
	}
	attrs := map[string]string{
		AttrEventType:   event.Type,
		AttrContentType: "application/json",
	}
	if _, err := p.mq.Publish(ctx, p.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s for message %d: %w", event.Type, event.MessageID, err)
	}
	return nil
}

// DecodeMessageEvent parses msg. Malformed payloads and unknown event types
// wrap ErrDiscard.
func DecodeMessageEvent(msg Message) (MessageEvent, error) {
	var event MessageEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return MessageEvent{}, fmt.Errorf("%w: decode message event %q: %v", ErrDiscard, msg.ID, err)
	}
	switch event.Type {
	case EventMessageSent, EventMessageRead:
	default:
		return MessageEvent{}, fmt.Errorf("%w: unknown event type %q", ErrDiscard, event.Type)
	}
	if event.MessageID <= 0 {
		return MessageEvent{}, fmt.Errorf("%w: event without message id", ErrDiscard)
	}
	return event, nil
}
