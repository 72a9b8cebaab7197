package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/messagely/apiserver/internal/mq"
	"github.com/messagely/apiserver/internal/store/memory"
	"github.com/messagely/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageService_AliceBobScenario(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw1")
	f.register(t, "bob", "pw2")
	ctx := context.Background()

	sent, err := f.messages.SendMessage(ctx, id("alice"), "bob", "hi")
	require.NoError(t, err)
	assert.Nil(t, sent.ReadAt)
	assert.Equal(t, "alice", sent.FromUsername)
	assert.Equal(t, "bob", sent.ToUsername)

	got, err := f.messages.GetMessage(ctx, id("bob"), sent.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Body)
	require.NotNil(t, got.FromUser)
	assert.Equal(t, "alice-first", got.FromUser.FirstName)

	read, err := f.messages.MarkMessageRead(ctx, id("bob"), sent.ID)
	require.NoError(t, err)
	require.NotNil(t, read.ReadAt)

	_, err = f.messages.MarkMessageRead(ctx, id("alice"), sent.ID)
	assert.ErrorIs(t, err, ErrAuthorization)

	assert.Equal(t, []string{mq.EventMessageSent, mq.EventMessageRead}, f.events.eventTypes())
}

func TestMessageService_VisibilityIsLimitedToParticipants(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a", "pw")
	f.register(t, "b", "pw")
	f.register(t, "c", "pw")
	ctx := context.Background()

	msg, err := f.messages.SendMessage(ctx, id("a"), "b", "secret")
	require.NoError(t, err)

	_, err = f.messages.GetMessage(ctx, id("a"), msg.ID)
	assert.NoError(t, err)
	_, err = f.messages.GetMessage(ctx, id("b"), msg.ID)
	assert.NoError(t, err)
	_, err = f.messages.GetMessage(ctx, id("c"), msg.ID)
	assert.ErrorIs(t, err, ErrAuthorization)
	_, err = f.messages.MarkMessageRead(ctx, id("c"), msg.ID)
	assert.ErrorIs(t, err, ErrAuthorization)
}

func TestMessageService_MarkReadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw")
	f.register(t, "bob", "pw")
	ctx := context.Background()

	msg, err := f.messages.SendMessage(ctx, id("alice"), "bob", "hi")
	require.NoError(t, err)

	first, err := f.messages.MarkMessageRead(ctx, id("bob"), msg.ID)
	require.NoError(t, err)
	f.messages.now = func() time.Time { return time.Now().Add(time.Hour) }
	second, err := f.messages.MarkMessageRead(ctx, id("bob"), msg.ID)
	require.NoError(t, err)

	require.NotNil(t, first.ReadAt)
	require.NotNil(t, second.ReadAt)
	assert.True(t, first.ReadAt.Equal(*second.ReadAt))
	assert.Equal(t, []string{mq.EventMessageSent, mq.EventMessageRead}, f.events.eventTypes())
}

func TestMessageService_ConcurrentMarkReadConverges(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw")
	f.register(t, "bob", "pw")
	ctx := context.Background()

	msg, err := f.messages.SendMessage(ctx, id("alice"), "bob", "hi")
	require.NoError(t, err)

	const n = 8
	results := make([]time.Time, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			read, err := f.messages.MarkRead(ctx, msg.ID)
			if assert.NoError(t, err) && assert.NotNil(t, read.ReadAt) {
				results[i] = *read.ReadAt
			}
		}(i)
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.True(t, results[0].Equal(r))
	}
}

func TestMessageService_UnknownRecipientCreatesNothing(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw")

	_, err := f.messages.SendMessage(context.Background(), id("alice"), "ghost", "hello?")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, f.db.MessageCount())
	assert.Empty(t, f.events.eventTypes())
}

func TestMessageService_Create_Validation(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw")
	f.register(t, "bob", "pw")
	ctx := context.Background()

	_, err := f.messages.Create(ctx, "alice", "bob", "   ")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.messages.Create(ctx, "alice", "", "hi")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.messages.SendMessage(ctx, id(""), "bob", "hi")
	assert.ErrorIs(t, err, ErrAuthorization)
	assert.Zero(t, f.db.MessageCount())
}

func TestMessageService_SelfMessageIsAllowed(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw")

	msg, err := f.messages.SendMessage(context.Background(), id("alice"), "alice", "note to self")
	require.NoError(t, err)

	read, err := f.messages.MarkMessageRead(context.Background(), id("alice"), msg.ID)
	require.NoError(t, err)
	assert.NotNil(t, read.ReadAt)
}

func TestMessageService_NotFound(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw")
	ctx := context.Background()

	_, err := f.messages.GetMessage(ctx, id("alice"), 999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.messages.MarkMessageRead(ctx, id("alice"), 999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.messages.MarkRead(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageService_Listings(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw")
	f.register(t, "bob", "pw")
	f.register(t, "carol", "pw")
	ctx := context.Background()

	base := time.Now()
	step := 0
	f.messages.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	_, err := f.messages.SendMessage(ctx, id("alice"), "bob", "first")
	require.NoError(t, err)
	_, err = f.messages.SendMessage(ctx, id("carol"), "bob", "second")
	require.NoError(t, err)
	_, err = f.messages.SendMessage(ctx, id("alice"), "carol", "third")
	require.NoError(t, err)

	sent, err := f.messages.MessagesFrom(ctx, id("alice"), "alice")
	require.NoError(t, err)
	require.Len(t, sent, 2)
	assert.Equal(t, "first", sent[0].Body)
	assert.Equal(t, "third", sent[1].Body)
	require.NotNil(t, sent[1].ToUser)
	assert.Equal(t, "carol", sent[1].ToUser.Username)
	assert.Nil(t, sent[1].FromUser)

	received, err := f.messages.MessagesTo(ctx, id("bob"), "bob")
	require.NoError(t, err)
	require.Len(t, received, 2)
	assert.Equal(t, "alice", received[0].FromUser.Username)
	assert.Equal(t, "carol", received[1].FromUser.Username)

	_, err = f.messages.MessagesFrom(ctx, id("bob"), "alice")
	assert.ErrorIs(t, err, ErrAuthorization)
	_, err = f.messages.MessagesTo(ctx, id("alice"), "bob")
	assert.ErrorIs(t, err, ErrAuthorization)

	_, err = f.messages.ListSentBy(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.messages.ListReceivedBy(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageService_PublishFailureDoesNotFailSend(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw")
	f.register(t, "bob", "pw")
	f.events.err = errBroker

	msg, err := f.messages.SendMessage(context.Background(), id("alice"), "bob", "hi")
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, 1, f.db.MessageCount())
}

func TestMessageService_NilPublisher(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw")
	f.register(t, "bob", "pw")
	svc := NewMessageService(f.db.Messages(), f.db.Users(), nil, nil)

	msg, err := svc.SendMessage(context.Background(), id("alice"), "bob", "hi")
	require.NoError(t, err)
	_, err = svc.MarkMessageRead(context.Background(), id("bob"), msg.ID)
	require.NoError(t, err)
}

// slowMessages stretches Get so concurrent callers all read the message
// before any of them updates it.
type slowMessages struct {
	*memory.MessageRepository
	delay time.Duration
}

func (r slowMessages) Get(ctx context.Context, id int64) (types.Message, error) {
	msg, err := r.MessageRepository.Get(ctx, id)
	time.Sleep(r.delay)
	return msg, err
}

func TestMessageService_ConcurrentMarkMessageReadPublishesOnce(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw")
	f.register(t, "bob", "pw")
	ctx := context.Background()

	svc := NewMessageService(slowMessages{MessageRepository: f.db.Messages(), delay: 20 * time.Millisecond}, f.db.Users(), f.events, nil)
	msg, err := svc.SendMessage(ctx, id("alice"), "bob", "hi")
	require.NoError(t, err)

	const n = 4
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.MarkMessageRead(ctx, id("bob"), msg.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{mq.EventMessageSent, mq.EventMessageRead}, f.events.eventTypes())
}

func TestMessageService_TimestampsMatchStoredPrecision(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw")
	f.register(t, "bob", "pw")
	ctx := context.Background()

	sent, err := f.messages.SendMessage(ctx, id("alice"), "bob", "hi")
	require.NoError(t, err)
	assert.Equal(t, sent.SentAt, sent.SentAt.Truncate(time.Microsecond))
	assert.Equal(t, time.UTC, sent.SentAt.Location())

	got, err := f.messages.GetMessage(ctx, id("bob"), sent.ID)
	require.NoError(t, err)
	assert.Equal(t, sent.SentAt, got.SentAt)

	read, err := f.messages.MarkMessageRead(ctx, id("bob"), sent.ID)
	require.NoError(t, err)
	require.NotNil(t, read.ReadAt)
	assert.Equal(t, *read.ReadAt, read.ReadAt.Truncate(time.Microsecond))
}
