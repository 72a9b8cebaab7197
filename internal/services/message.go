package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/messagely/apiserver/internal/logging"
	"github.com/messagely/apiserver/internal/mq"
	"github.com/messagely/apiserver/internal/store"
	"github.com/messagely/apiserver/types"
)

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, message types.Message) (types.Message, error)
	Get(ctx context.Context, id int64) (types.Message, error)
	ListFrom(ctx context.Context, username string) ([]types.Message, error)
	ListTo(ctx context.Context, username string) ([]types.Message, error)
	MarkRead(ctx context.Context, id int64, at time.Time) (types.Message, bool, error)
}

// EventPublisher receives message lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event mq.MessageEvent) error
}

// MessageService creates, fetches and lists messages and records reads.
// Methods taking a caller identity enforce AccessGuard; the others do not.
type MessageService struct {
	messages MessageRepository
	users    UserRepository
	guard    AccessGuard
	events   EventPublisher
	logger   logging.Logger
	now      func() time.Time
}

// NewMessageService wires the repositories. events may be nil.
func NewMessageService(messages MessageRepository, users UserRepository, events EventPublisher, logger logging.Logger) *MessageService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &MessageService{
		messages: messages,
		users:    users,
		events:   events,
		logger:   logger,
		now:      storeNow,
	}
}

// Create stores a new unread message from one user to another.
func (s *MessageService) Create(ctx context.Context, from, to, body string) (types.Message, error) {
	if strings.TrimSpace(body) == "" {
		return types.Message{}, fmt.Errorf("%w: message body is required", ErrValidation)
	}
	if strings.TrimSpace(to) == "" {
		return types.Message{}, fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	for _, username := range []string{from, to} {
		if _, err := s.users.GetByUsername(ctx, username); err != nil {
			return types.Message{}, userError(username, err)
		}
	}

	message, err := s.messages.Create(ctx, types.Message{
		FromUsername: from,
		ToUsername:   to,
		Body:         body,
		SentAt:       s.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Message{}, fmt.Errorf("message participants: %w", ErrNotFound)
		}
		return types.Message{}, err
	}

	s.publish(ctx, mq.EventMessageSent, message, message.SentAt)
	return message, nil
}

// Get returns the message with both participants resolved.
func (s *MessageService) Get(ctx context.Context, id int64) (types.Message, error) {
	message, err := s.messages.Get(ctx, id)
	if err != nil {
		return types.Message{}, messageError(id, err)
	}
	return message, nil
}

// ListSentBy returns messages sent by username, oldest first.
func (s *MessageService) ListSentBy(ctx context.Context, username string) ([]types.Message, error) {
	if _, err := s.users.GetByUsername(ctx, username); err != nil {
		return nil, userError(username, err)
	}
	return s.messages.ListFrom(ctx, username)
}

// ListReceivedBy returns messages received by username, oldest first.
func (s *MessageService) ListReceivedBy(ctx context.Context, username string) ([]types.Message, error) {
	if _, err := s.users.GetByUsername(ctx, username); err != nil {
		return nil, userError(username, err)
	}
	return s.messages.ListTo(ctx, username)
}

// MarkRead sets the read timestamp if it is unset. Repeated calls keep the
// first timestamp.
func (s *MessageService) MarkRead(ctx context.Context, id int64) (types.Message, error) {
	message, _, err := s.markRead(ctx, id)
	return message, err
}

func (s *MessageService) markRead(ctx context.Context, id int64) (types.Message, bool, error) {
	message, transitioned, err := s.messages.MarkRead(ctx, id, s.now())
	if err != nil {
		return types.Message{}, false, messageError(id, err)
	}
	return message, transitioned, nil
}

// GetMessage returns a message visible to caller.
func (s *MessageService) GetMessage(ctx context.Context, caller types.Identity, id int64) (types.Message, error) {
	message, err := s.Get(ctx, id)
	if err != nil {
		return types.Message{}, err
	}
	if !s.guard.CanView(caller, message) {
		return types.Message{}, fmt.Errorf("message %d: %w", id, ErrAuthorization)
	}
	return message, nil
}

// SendMessage sends body from caller to the named recipient.
func (s *MessageService) SendMessage(ctx context.Context, caller types.Identity, to, body string) (types.Message, error) {
	if caller.Username == "" {
		return types.Message{}, ErrAuthorization
	}
	return s.Create(ctx, caller.Username, to, body)
}

// MarkMessageRead marks a message read on behalf of its recipient.
func (s *MessageService) MarkMessageRead(ctx context.Context, caller types.Identity, id int64) (types.Message, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return types.Message{}, err
	}
	if !s.guard.CanMarkRead(caller, current) {
		return types.Message{}, fmt.Errorf("message %d: %w", id, ErrAuthorization)
	}

	updated, transitioned, err := s.markRead(ctx, id)
	if err != nil {
		return types.Message{}, err
	}
	if transitioned && updated.ReadAt != nil {
		s.publish(ctx, mq.EventMessageRead, current, *updated.ReadAt)
	}
	return updated, nil
}

// MessagesFrom lists messages sent by username. Only username may list them.
func (s *MessageService) MessagesFrom(ctx context.Context, caller types.Identity, username string) ([]types.Message, error) {
	if err := ensureSelf(caller, username); err != nil {
		return nil, err
	}
	return s.ListSentBy(ctx, username)
}

// MessagesTo lists messages received by username. Only username may list them.
func (s *MessageService) MessagesTo(ctx context.Context, caller types.Identity, username string) ([]types.Message, error) {
	if err := ensureSelf(caller, username); err != nil {
		return nil, err
	}
	return s.ListReceivedBy(ctx, username)
}

func (s *MessageService) publish(ctx context.Context, eventType string, message types.Message, at time.Time) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, mq.NewMessageEvent(eventType, message, at)); err != nil {
		s.logger.Warn(ctx, "failed to publish message event",
			"event", eventType,
			"message_id", message.ID,
			"error", err,
		)
	}
}

func ensureSelf(caller types.Identity, username string) error {
	if caller.Username == "" || caller.Username != username {
		return fmt.Errorf("messages of %q: %w", username, ErrAuthorization)
	}
	return nil
}

func messageError(id int64, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	return err
}
