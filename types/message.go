package types

import "time"

// Message represents a direct message between two users.
// A message is unread while ReadAt is nil; once set, ReadAt never changes.
type Message struct {
	// ID is the unique, monotonically assigned identifier of the message.
	ID int64 `json:"id" db:"id"`

	// FromUsername identifies the sender.
	FromUsername string `json:"from_username,omitempty" db:"from_username"`

	// ToUsername identifies the recipient.
	ToUsername string `json:"to_username,omitempty" db:"to_username"`

	// Body is the message text. It is never empty.
	Body string `json:"body" db:"body"`

	// SentAt is the timestamp when the message was created.
	SentAt time.Time `json:"sent_at" db:"sent_at"`

	// ReadAt is the timestamp when the recipient first marked the message read.
	ReadAt *time.Time `json:"read_at" db:"read_at"`

	// FromUser is the resolved sender profile.
	// Omitted for creation results and sent-message listings.
	FromUser *UserProfile `json:"from_user,omitempty"`

	// ToUser is the resolved recipient profile.
	// Omitted for creation results and received-message listings.
	ToUser *UserProfile `json:"to_user,omitempty"`
}

// MessageState is the read state of a message.
type MessageState int

const (
	// MessageUnread is the initial state of every message.
	MessageUnread MessageState = iota

	// MessageRead is terminal.
	MessageRead
)

// String returns the lowercase state name.
func (s MessageState) String() string {
	switch s {
	case MessageUnread:
		return "unread"
	case MessageRead:
		return "read"
	default:
		return "unknown"
	}
}

// State reports whether the message has been read.
func (m Message) State() MessageState {
	if m.ReadAt != nil {
		return MessageRead
	}
	return MessageUnread
}

// Sender returns the sender username, preferring the resolved profile.
func (m Message) Sender() string {
	if m.FromUser != nil {
		return m.FromUser.Username
	}
	return m.FromUsername
}

// Recipient returns the recipient username, preferring the resolved profile.
func (m Message) Recipient() string {
	if m.ToUser != nil {
		return m.ToUser.Username
	}
	return m.ToUsername
}
