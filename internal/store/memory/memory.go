// Package memory provides process-local repositories with the same contracts
// as the Postgres repositories in package store. State is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/messagely/apiserver/internal/store"
	"github.com/messagely/apiserver/types"
)

// DB holds the users and messages record sets behind one lock, mirroring the
// foreign keys between them.
type DB struct {
	mu       sync.RWMutex
	users    map[string]types.User
	messages map[int64]types.Message
	nextID   int64
}

func New() *DB {
	return &DB{
		users:    make(map[string]types.User),
		messages: make(map[int64]types.Message),
	}
}

// Users returns a user repository bound to db.
func (db *DB) Users() *UserRepository {
	return &UserRepository{db: db}
}

// Messages returns a message repository bound to db.
func (db *DB) Messages() *MessageRepository {
	return &MessageRepository{db: db}
}

// MessageCount reports how many messages are stored.
func (db *DB) MessageCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.messages)
}

type UserRepository struct {
	db *DB
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	user, ok := r.db.users[username]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, exists := r.db.users[user.Username]; exists {
		return types.User{}, store.ErrConflict
	}
	r.db.users[user.Username] = user
	return user, nil
}

func (r *UserRepository) TouchLogin(ctx context.Context, username string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	user, ok := r.db.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.LastLoginAt = at
	r.db.users[username] = user
	return nil
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	users := make([]types.User, 0, len(r.db.users))
	for _, user := range r.db.users {
		user.PasswordHash = ""
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

type MessageRepository struct {
	db *DB
}

func (r *MessageRepository) Create(ctx context.Context, message types.Message) (types.Message, error) {
	if err := ctx.Err(); err != nil {
		return types.Message{}, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.users[message.FromUsername]; !ok {
		return types.Message{}, store.ErrNotFound
	}
	if _, ok := r.db.users[message.ToUsername]; !ok {
		return types.Message{}, store.ErrNotFound
	}

	r.db.nextID++
	message.ID = r.db.nextID
	message.ReadAt = nil
	message.FromUser = nil
	message.ToUser = nil
	r.db.messages[message.ID] = message
	return message, nil
}

func (r *MessageRepository) Get(ctx context.Context, id int64) (types.Message, error) {
	if err := ctx.Err(); err != nil {
		return types.Message{}, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	message, ok := r.db.messages[id]
	if !ok {
		return types.Message{}, store.ErrNotFound
	}
	message.FromUser = r.profile(message.FromUsername)
	message.ToUser = r.profile(message.ToUsername)
	return copyReadAt(message), nil
}

func (r *MessageRepository) ListFrom(ctx context.Context, username string) ([]types.Message, error) {
	return r.list(ctx, func(m types.Message) bool { return m.FromUsername == username }, func(m *types.Message) {
		m.ToUser = r.profile(m.ToUsername)
	})
}

func (r *MessageRepository) ListTo(ctx context.Context, username string) ([]types.Message, error) {
	return r.list(ctx, func(m types.Message) bool { return m.ToUsername == username }, func(m *types.Message) {
		m.FromUser = r.profile(m.FromUsername)
	})
}

// MarkRead stores at only when the message is still unread and reports
// whether this call did so.
func (r *MessageRepository) MarkRead(ctx context.Context, id int64, at time.Time) (types.Message, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.Message{}, false, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	message, ok := r.db.messages[id]
	if !ok {
		return types.Message{}, false, store.ErrNotFound
	}
	transitioned := message.ReadAt == nil
	if transitioned {
		readAt := at
		message.ReadAt = &readAt
		r.db.messages[id] = message
	}
	return copyReadAt(message), transitioned, nil
}

func (r *MessageRepository) list(
	ctx context.Context,
	match func(types.Message) bool,
	resolve func(*types.Message),
) ([]types.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	messages := make([]types.Message, 0)
	for _, message := range r.db.messages {
		if !match(message) {
			continue
		}
		message = copyReadAt(message)
		resolve(&message)
		messages = append(messages, message)
	}
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].SentAt.Equal(messages[j].SentAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].SentAt.Before(messages[j].SentAt)
	})
	return messages, nil
}

// profile must be called with the lock held.
func (r *MessageRepository) profile(username string) *types.UserProfile {
	profile := r.db.users[username].Profile()
	return &profile
}

func copyReadAt(message types.Message) types.Message {
	if message.ReadAt != nil {
		readAt := *message.ReadAt
		message.ReadAt = &readAt
	}
	return message
}
