package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/messagely/apiserver/types"
)

// MessageRepository handles persistence for messages.
type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts the message. Unknown participants surface as ErrNotFound
// through the foreign keys on messages.
func (r *MessageRepository) Create(ctx context.Context, message types.Message) (types.Message, error) {
	const query = `
		INSERT INTO messages (from_username, to_username, body, sent_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		message.FromUsername,
		message.ToUsername,
		message.Body,
		message.SentAt,
	).Scan(&message.ID); err != nil {
		if pqErrorName(err) == pqForeignKeyViolation {
			return types.Message{}, ErrNotFound
		}
		return types.Message{}, err
	}
	message.ReadAt = nil
	return message, nil
}

// Get returns the message with both participant profiles resolved.
func (r *MessageRepository) Get(ctx context.Context, id int64) (types.Message, error) {
	const query = `
		SELECT m.id, m.body, m.sent_at, m.read_at,
		       f.username, f.first_name, f.last_name, f.phone,
		       t.username, t.first_name, t.last_name, t.phone
		FROM messages AS m
		JOIN users AS f ON m.from_username = f.username
		JOIN users AS t ON m.to_username = t.username
		WHERE m.id = $1`
	var message types.Message
	var readAt sql.NullTime
	from := &types.UserProfile{}
	to := &types.UserProfile{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&message.ID,
		&message.Body,
		&message.SentAt,
		&readAt,
		&from.Username,
		&from.FirstName,
		&from.LastName,
		&from.Phone,
		&to.Username,
		&to.FirstName,
		&to.LastName,
		&to.Phone,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, ErrNotFound
		}
		return types.Message{}, err
	}

	message.FromUsername = from.Username
	message.ToUsername = to.Username
	message.FromUser = from
	message.ToUser = to
	message.ReadAt = nullTimePtr(readAt)
	return message, nil
}

// ListFrom returns messages sent by username with the recipient resolved,
// oldest first.
func (r *MessageRepository) ListFrom(ctx context.Context, username string) ([]types.Message, error) {
	const query = `
		SELECT m.id, m.body, m.sent_at, m.read_at,
		       u.username, u.first_name, u.last_name, u.phone
		FROM messages AS m
		JOIN users AS u ON m.to_username = u.username
		WHERE m.from_username = $1
		ORDER BY m.sent_at, m.id`
	return r.list(ctx, query, username, func(message *types.Message, peer *types.UserProfile) {
		message.FromUsername = username
		message.ToUsername = peer.Username
		message.ToUser = peer
	})
}

// ListTo returns messages received by username with the sender resolved,
// oldest first.
func (r *MessageRepository) ListTo(ctx context.Context, username string) ([]types.Message, error) {
	const query = `
		SELECT m.id, m.body, m.sent_at, m.read_at,
		       u.username, u.first_name, u.last_name, u.phone
		FROM messages AS m
		JOIN users AS u ON m.from_username = u.username
		WHERE m.to_username = $1
		ORDER BY m.sent_at, m.id`
	return r.list(ctx, query, username, func(message *types.Message, peer *types.UserProfile) {
		message.FromUsername = peer.Username
		message.ToUsername = username
		message.FromUser = peer
	})
}

// MarkRead sets read_at only while it is still null. The boolean reports
// whether this call made the transition; later and concurrent callers get
// the stored timestamp and false.
func (r *MessageRepository) MarkRead(ctx context.Context, id int64, at time.Time) (types.Message, bool, error) {
	const update = `
		UPDATE messages
		SET read_at = $1
		WHERE id = $2 AND read_at IS NULL
		RETURNING id, from_username, to_username, body, sent_at, read_at`
	message, err := scanMessageRow(r.db.QueryRowContext(ctx, update, at, id))
	if err == nil {
		return message, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return types.Message{}, false, err
	}

	const current = `
		SELECT id, from_username, to_username, body, sent_at, read_at
		FROM messages
		WHERE id = $1`
	message, err = scanMessageRow(r.db.QueryRowContext(ctx, current, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, false, ErrNotFound
		}
		return types.Message{}, false, err
	}
	return message, false, nil
}

func scanMessageRow(row *sql.Row) (types.Message, error) {
	var message types.Message
	var readAt sql.NullTime
	if err := row.Scan(
		&message.ID,
		&message.FromUsername,
		&message.ToUsername,
		&message.Body,
		&message.SentAt,
		&readAt,
	); err != nil {
		return types.Message{}, err
	}
	message.ReadAt = nullTimePtr(readAt)
	return message, nil
}

func (r *MessageRepository) list(
	ctx context.Context,
	query string,
	username string,
	assign func(message *types.Message, peer *types.UserProfile),
) ([]types.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]types.Message, 0)
	for rows.Next() {
		var message types.Message
		var readAt sql.NullTime
		peer := &types.UserProfile{}
		if err := rows.Scan(
			&message.ID,
			&message.Body,
			&message.SentAt,
			&readAt,
			&peer.Username,
			&peer.FirstName,
			&peer.LastName,
			&peer.Phone,
		); err != nil {
			return nil, err
		}
		message.ReadAt = nullTimePtr(readAt)
		assign(&message, peer)
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
