package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/messagely/apiserver/internal/mq"
	"github.com/messagely/apiserver/internal/store/memory"
	"github.com/messagely/apiserver/types"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	db       *memory.DB
	vault    *PasswordVault
	tokens   *TokenIssuer
	users    *UserService
	auth     *AuthService
	messages *MessageService
	events   *recordingPublisher
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []mq.MessageEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event mq.MessageEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	vault, err := NewPasswordVault(bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	db := memory.New()
	events := &recordingPublisher{}
	users := NewUserService(db.Users(), vault)
	return &fixture{
		db:       db,
		vault:    vault,
		tokens:   tokens,
		users:    users,
		auth:     NewAuthService(users, tokens),
		messages: NewMessageService(db.Messages(), db.Users(), events, nil),
		events:   events,
	}
}

func (f *fixture) register(t *testing.T, username, password string) {
	t.Helper()
	_, err := f.users.Register(context.Background(), RegisterInput{
		Username:  username,
		Password:  password,
		FirstName: username + "-first",
		LastName:  username + "-last",
		Phone:     "555-0100",
	})
	require.NoError(t, err)
}

func id(username string) types.Identity {
	return types.Identity{Username: username}
}

var errBroker = errors.New("broker unavailable")
