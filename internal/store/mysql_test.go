package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// setupMockDB creates a MySQLStore over a sqlmock connection with a fixed clock.
func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *MySQLStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	return db, mock, &MySQLStore{db: db, now: func() time.Time { return fixedNow }}
}

func q(s string) string { return regexp.QuoteMeta(s) }

var userCols = []string{"id", "username", "first_name", "last_name"}

func TestMySQLStore_GetSession(t *testing.T) {
	req := require.New(t)
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(q("FROM chat_sessions WHERE id = ?")).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at", "last_activity_at", "is_active"}).
			AddRow(7, "general", fixedNow, fixedNow, true))
	mock.ExpectQuery(q("FROM chat_session_participants p JOIN users u")).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("U1", "alice", "Alice", "").
			AddRow("U2", "bob", "", ""))

	cs, err := s.GetSession(context.Background(), 7)
	req.NoError(err)
	req.Equal("general", cs.Name)
	req.True(cs.IsActive)
	req.Len(cs.Participants, 2)
	req.Equal("alice", cs.Participants[0].Username)
	req.NoError(mock.ExpectationsWereMet())
}

func TestMySQLStore_GetSession_NotFound(t *testing.T) {
	req := require.New(t)
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(q("FROM chat_sessions WHERE id = ?")).WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetSession(context.Background(), 99)
	req.ErrorIs(err, ErrNotFound)
	req.NoError(mock.ExpectationsWereMet())
}

func TestMySQLStore_GetParticipant(t *testing.T) {
	req := require.New(t)
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(q("SELECT EXISTS(SELECT 1 FROM chat_session_participants")).WithArgs(int64(7), "U1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.GetParticipant(context.Background(), 7, "U1")
	req.NoError(err)
	req.True(ok)
	req.NoError(mock.ExpectationsWereMet())
}

func TestMySQLStore_GetUser_NotFound(t *testing.T) {
	req := require.New(t)
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(q("FROM users u WHERE u.id = ?")).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := s.GetUser(context.Background(), "ghost")
	req.ErrorIs(err, ErrNotFound)
}

func TestMySQLStore_CreateMessage(t *testing.T) {
	tests := []struct {
		name     string
		last     any
		wantTime time.Time
	}{
		{name: "first message uses the clock", last: nil, wantTime: fixedNow},
		{name: "older last message uses the clock", last: fixedNow.Add(-time.Second), wantTime: fixedNow},
		{name: "same instant is bumped", last: fixedNow, wantTime: fixedNow.Add(time.Microsecond)},
		{name: "clock behind last message is bumped", last: fixedNow.Add(time.Second), wantTime: fixedNow.Add(time.Second + time.Microsecond)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			db, mock, s := setupMockDB(t)
			defer db.Close()

			mock.ExpectBegin()
			mock.ExpectQuery(q("SELECT id FROM chat_sessions WHERE id = ? FOR UPDATE")).WithArgs(int64(7)).
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
			mock.ExpectQuery(q("FROM users u WHERE u.id = ?")).WithArgs("U1").
				WillReturnRows(sqlmock.NewRows(userCols).AddRow("U1", "alice", "", ""))
			mock.ExpectQuery(q("SELECT MAX(created_at) FROM messages WHERE chat_session_id = ?")).WithArgs(int64(7)).
				WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(tt.last))
			mock.ExpectExec(q("INSERT INTO messages")).
				WithArgs(int64(7), "U1", "hi", tt.wantTime, false).
				WillReturnResult(sqlmock.NewResult(42, 1))
			mock.ExpectCommit()

			msg, err := s.CreateMessage(context.Background(), 7, "U1", "hi")
			req.NoError(err)
			req.Equal(int64(42), msg.ID)
			req.Equal(int64(7), msg.SessionID)
			req.Equal("alice", msg.Sender.Username)
			req.Equal(tt.wantTime, msg.CreatedAt)
			req.False(msg.IsRead)
			req.NoError(mock.ExpectationsWereMet())
		})
	}
}

func TestMySQLStore_CreateMessage_UnknownSession(t *testing.T) {
	req := require.New(t)
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WithArgs(int64(8)).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.CreateMessage(context.Background(), 8, "U1", "hi")
	req.ErrorIs(err, ErrNotFound)
	req.NoError(mock.ExpectationsWereMet())
}

func TestMySQLStore_CreateMessage_InsertFails(t *testing.T) {
	req := require.New(t)
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(q("FROM users u WHERE u.id = ?")).WithArgs("U1").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("U1", "alice", "", ""))
	mock.ExpectQuery(q("SELECT MAX(created_at)")).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectExec(q("INSERT INTO messages")).WillReturnError(errors.New("connection refused"))
	mock.ExpectRollback()

	_, err := s.CreateMessage(context.Background(), 7, "U1", "hi")
	req.ErrorContains(err, "failed to insert message")
	req.NotErrorIs(err, ErrNotFound)
	req.NoError(mock.ExpectationsWereMet())
}

func TestMySQLStore_TouchSession(t *testing.T) {
	req := require.New(t)
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(q("SET last_activity_at = GREATEST(last_activity_at, ?) WHERE id = ?")).
		WithArgs(fixedNow, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req.NoError(s.TouchSession(context.Background(), 7, fixedNow))
	req.NoError(mock.ExpectationsWereMet())
}

func TestMySQLStore_ListSessionsForUser_ReconcilesActivity(t *testing.T) {
	req := require.New(t)
	db, mock, s := setupMockDB(t)
	defer db.Close()

	older := fixedNow.Add(-time.Hour)
	mock.ExpectQuery(q("FROM chat_sessions s JOIN chat_session_participants p")).WithArgs("U1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at", "last_activity_at", "is_active", "latest"}).
			AddRow(1, "stored-newer", older, fixedNow.Add(-time.Minute), true, nil).
			AddRow(2, "touch-missed", older, older, true, fixedNow))
	mock.ExpectQuery(q("WHERE p.chat_session_id IN")).WithArgs("U1").
		WillReturnRows(sqlmock.NewRows(append([]string{"chat_session_id"}, userCols...)).
			AddRow(1, "U1", "alice", "", "").
			AddRow(2, "U1", "alice", "", "").
			AddRow(2, "U2", "bob", "", ""))

	sessions, err := s.ListSessionsForUser(context.Background(), "U1")
	req.NoError(err)
	req.Len(sessions, 2)

	// The session whose touch was missed is ordered by its newest message
	req.Equal(int64(2), sessions[0].ID)
	req.Equal(fixedNow, sessions[0].LastActivityAt)
	req.Len(sessions[0].Participants, 2)
	req.Equal(int64(1), sessions[1].ID)
	req.Len(sessions[1].Participants, 1)
	req.NoError(mock.ExpectationsWereMet())
}

func TestMySQLStore_ListSessionsForUser_Empty(t *testing.T) {
	req := require.New(t)
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(q("FROM chat_sessions s")).WithArgs("U9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at", "last_activity_at", "is_active", "latest"}))

	sessions, err := s.ListSessionsForUser(context.Background(), "U9")
	req.NoError(err)
	req.NotNil(sessions)
	req.Empty(sessions)
	req.NoError(mock.ExpectationsWereMet())
}

func TestMySQLStore_ListMessagesForSession(t *testing.T) {
	req := require.New(t)
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(q("ORDER BY m.created_at ASC, m.id ASC")).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(append([]string{"id", "chat_session_id", "content", "created_at", "is_read"}, userCols...)).
			AddRow(1, 7, "A", fixedNow, false, "U1", "alice", "", "").
			AddRow(2, 7, "B", fixedNow.Add(time.Microsecond), true, "U2", "bob", "", ""))

	msgs, err := s.ListMessagesForSession(context.Background(), 7)
	req.NoError(err)
	req.Len(msgs, 2)
	req.Equal("A", msgs[0].Content)
	req.Equal("bob", msgs[1].Sender.Username)
	req.True(msgs[1].IsRead)
	req.NoError(mock.ExpectationsWereMet())
}
