package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/messagely/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMessageRepoWithMock(t *testing.T) (*MessageRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewMessageRepository(db), mock
}

var profileColumns = []string{"id", "body", "sent_at", "read_at", "username", "first_name", "last_name", "phone"}

func TestMessageRepository_Create_Success(t *testing.T) {
	repo, mock := newMessageRepoWithMock(t)
	sent := time.Now()

	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+messages\s*\(from_username,\s*to_username,\s*body,\s*sent_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*RETURNING\s+id\s*$`).
		WithArgs("alice", "bob", "hi", sent).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	got, err := repo.Create(context.Background(), types.Message{
		FromUsername: "alice",
		ToUsername:   "bob",
		Body:         "hi",
		SentAt:       sent,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
	assert.Nil(t, got.ReadAt)
	assert.Equal(t, types.MessageUnread, got.State())
}

func TestMessageRepository_Create_ForeignKeyViolationIsNotFound(t *testing.T) {
	repo, mock := newMessageRepoWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+messages`).
		WillReturnError(&pq.Error{Code: "23503"})

	_, err := repo.Create(context.Background(), types.Message{FromUsername: "alice", ToUsername: "ghost", Body: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageRepository_Get_ResolvesBothParticipants(t *testing.T) {
	repo, mock := newMessageRepoWithMock(t)
	sent := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "body", "sent_at", "read_at",
		"f_username", "f_first_name", "f_last_name", "f_phone",
		"t_username", "t_first_name", "t_last_name", "t_phone",
	}).AddRow(int64(1), "hi", sent, nil, "alice", "Alice", "L", "1", "bob", "Bob", "B", "2")
	mock.ExpectQuery(`(?s)FROM\s+messages\s+AS\s+m\s+JOIN\s+users\s+AS\s+f.*JOIN\s+users\s+AS\s+t.*WHERE\s+m\.id\s*=\s*\$1`).
		WithArgs(int64(1)).
		WillReturnRows(rows)

	got, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, got.FromUser)
	require.NotNil(t, got.ToUser)
	assert.Equal(t, "alice", got.FromUser.Username)
	assert.Equal(t, "2", got.ToUser.Phone)
	assert.Equal(t, "alice", got.FromUsername)
	assert.Equal(t, "bob", got.ToUsername)
	assert.Nil(t, got.ReadAt)
}

func TestMessageRepository_Get_NotFound(t *testing.T) {
	repo, mock := newMessageRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+messages`).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageRepository_ListFrom_EmbedsRecipient(t *testing.T) {
	repo, mock := newMessageRepoWithMock(t)
	sent := time.Now()
	read := sent.Add(time.Minute)

	rows := sqlmock.NewRows(profileColumns).
		AddRow(int64(1), "one", sent, read, "bob", "Bob", "B", "2").
		AddRow(int64(2), "two", sent, nil, "carol", "Carol", "C", "3")
	mock.ExpectQuery(`(?s)JOIN\s+users\s+AS\s+u\s+ON\s+m\.to_username\s*=\s*u\.username\s+WHERE\s+m\.from_username\s*=\s*\$1\s+ORDER\s+BY\s+m\.sent_at,\s*m\.id`).
		WithArgs("alice").
		WillReturnRows(rows)

	got, err := repo.ListFrom(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[0].ToUser.Username)
	assert.Nil(t, got[0].FromUser)
	assert.Equal(t, "alice", got[0].FromUsername)
	require.NotNil(t, got[0].ReadAt)
	assert.True(t, got[0].ReadAt.Equal(read))
	assert.Nil(t, got[1].ReadAt)
}

func TestMessageRepository_ListTo_EmbedsSender(t *testing.T) {
	repo, mock := newMessageRepoWithMock(t)

	rows := sqlmock.NewRows(profileColumns).
		AddRow(int64(3), "hey", time.Now(), nil, "alice", "Alice", "L", "1")
	mock.ExpectQuery(`(?s)ON\s+m\.from_username\s*=\s*u\.username\s+WHERE\s+m\.to_username\s*=\s*\$1`).
		WithArgs("bob").
		WillReturnRows(rows)

	got, err := repo.ListTo(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].FromUser.Username)
	assert.Nil(t, got[0].ToUser)
	assert.Equal(t, "bob", got[0].ToUsername)
}

func messageRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "from_username", "to_username", "body", "sent_at", "read_at"})
}

func TestMessageRepository_MarkRead_FirstCallTransitions(t *testing.T) {
	repo, mock := newMessageRepoWithMock(t)
	sent := time.Now()
	at := sent.Add(time.Minute)

	mock.ExpectQuery(`(?s)UPDATE\s+messages\s+SET\s+read_at\s*=\s*\$1\s+WHERE\s+id\s*=\s*\$2\s+AND\s+read_at\s+IS\s+NULL`).
		WithArgs(at, int64(1)).
		WillReturnRows(messageRow().AddRow(int64(1), "alice", "bob", "hi", sent, at))

	got, transitioned, err := repo.MarkRead(context.Background(), 1, at)
	require.NoError(t, err)
	assert.True(t, transitioned)
	require.NotNil(t, got.ReadAt)
	assert.True(t, got.ReadAt.Equal(at))
	assert.Equal(t, types.MessageRead, got.State())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_MarkRead_KeepsFirstTimestamp(t *testing.T) {
	repo, mock := newMessageRepoWithMock(t)
	sent := time.Now()
	first := sent.Add(time.Minute)
	second := first.Add(time.Minute)

	mock.ExpectQuery(`UPDATE\s+messages`).
		WithArgs(second, int64(1)).
		WillReturnRows(messageRow())
	mock.ExpectQuery(`(?s)SELECT\s+id,.*FROM\s+messages\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs(int64(1)).
		WillReturnRows(messageRow().AddRow(int64(1), "alice", "bob", "hi", sent, first))

	got, transitioned, err := repo.MarkRead(context.Background(), 1, second)
	require.NoError(t, err)
	assert.False(t, transitioned)
	require.NotNil(t, got.ReadAt)
	assert.True(t, got.ReadAt.Equal(first))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_MarkRead_NotFound(t *testing.T) {
	repo, mock := newMessageRepoWithMock(t)

	mock.ExpectQuery(`UPDATE\s+messages`).WillReturnRows(messageRow())
	mock.ExpectQuery(`SELECT\s+id`).WillReturnRows(messageRow())

	_, transitioned, err := repo.MarkRead(context.Background(), 42, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, transitioned)
}
