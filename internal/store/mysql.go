package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"chatroom/internal/model"
)

// MySQLStore implements Store on MariaDB/MySQL
type MySQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQL creates a MySQLStore backed by db
func NewMySQL(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db, now: time.Now}
}

// Ping checks that the database is reachable.
func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = "u.id, u.username, u.first_name, u.last_name"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, extra ...any) (model.User, error) {
	var u model.User
	dest := append(extra, &u.ID, &u.Username, &u.FirstName, &u.LastName)
	err := row.Scan(dest...)
	return u, err
}

func (s *MySQLStore) GetSession(ctx context.Context, id int64) (model.ChatSession, error) {
	var cs model.ChatSession
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at, last_activity_at, is_active FROM chat_sessions WHERE id = ?", id,
	).Scan(&cs.ID, &cs.Name, &cs.CreatedAt, &cs.LastActivityAt, &cs.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ChatSession{}, ErrNotFound
	}
	if err != nil {
		return model.ChatSession{}, fmt.Errorf("failed to get session %d: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM chat_session_participants p JOIN users u ON u.id = p.user_id "+
			"WHERE p.chat_session_id = ? ORDER BY u.username, u.id", id)
	if err != nil {
		return model.ChatSession{}, fmt.Errorf("failed to list participants of session %d: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return model.ChatSession{}, fmt.Errorf("failed to scan participant: %w", err)
		}
		cs.Participants = append(cs.Participants, u)
	}
	if err := rows.Err(); err != nil {
		return model.ChatSession{}, fmt.Errorf("failed to list participants of session %d: %w", id, err)
	}
	return cs, nil
}

func (s *MySQLStore) GetParticipant(ctx context.Context, sessionID int64, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM chat_session_participants WHERE chat_session_id = ? AND user_id = ?)",
		sessionID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return exists, nil
}

func (s *MySQLStore) GetUser(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users u WHERE u.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user %q: %w", id, err)
	}
	return u, nil
}

// CreateMessage inserts the message inside a transaction that holds the
// session row lock, so timestamps within a session are strictly increasing
// even across processes.
func (s *MySQLStore) CreateMessage(ctx context.Context, sessionID int64, senderID, content string) (model.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM chat_sessions WHERE id = ? FOR UPDATE", sessionID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, ErrNotFound
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to lock session %d: %w", sessionID, err)
	}

	sender, err := scanUser(tx.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users u WHERE u.id = ?", senderID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, ErrNotFound
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to get sender %q: %w", senderID, err)
	}

	var last sql.NullTime
	err = tx.QueryRowContext(ctx, "SELECT MAX(created_at) FROM messages WHERE chat_session_id = ?", sessionID).Scan(&last)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to read last message time: %w", err)
	}

	msg := model.Message{
		SessionID: sessionID,
		Sender:    sender,
		Content:   content,
		CreatedAt: nextTimestamp(s.now(), last.Time),
	}

	result, err := tx.ExecContext(ctx,
		"INSERT INTO messages (chat_session_id, sender_id, content, created_at, is_read) VALUES (?, ?, ?, ?, ?)",
		msg.SessionID, sender.ID, msg.Content, msg.CreatedAt, false)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}

	msg.ID, err = result.LastInsertId()
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to retrieve message id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Message{}, fmt.Errorf("failed to commit message: %w", err)
	}
	return msg, nil
}

func (s *MySQLStore) TouchSession(ctx context.Context, sessionID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE chat_sessions SET last_activity_at = GREATEST(last_activity_at, ?) WHERE id = ?",
		at.UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session %d: %w", sessionID, err)
	}
	return nil
}

// ListSessionsForUser orders by the later of the stored activity time and
// the newest message, so a failed TouchSession does not misorder the list.
func (s *MySQLStore) ListSessionsForUser(ctx context.Context, userID string) ([]model.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT s.id, s.name, s.created_at, s.last_activity_at, s.is_active, "+
			"(SELECT MAX(m.created_at) FROM messages m WHERE m.chat_session_id = s.id) "+
			"FROM chat_sessions s JOIN chat_session_participants p ON p.chat_session_id = s.id "+
			"WHERE p.user_id = ? ORDER BY s.last_activity_at DESC, s.id DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.ChatSession
	for rows.Next() {
		var cs model.ChatSession
		var latest sql.NullTime
		if err := rows.Scan(&cs.ID, &cs.Name, &cs.CreatedAt, &cs.LastActivityAt, &cs.IsActive, &latest); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if latest.Valid && latest.Time.After(cs.LastActivityAt) {
			cs.LastActivityAt = latest.Time
		}
		sessions = append(sessions, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return []model.ChatSession{}, nil
	}

	participants, err := s.participantsForUserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].Participants = participants[sessions[i].ID]
	}

	sortByActivity(sessions)
	return sessions, nil
}

type participantRow struct {
	sessionID int64
	user      model.User
}

func (s *MySQLStore) participantsForUserSessions(ctx context.Context, userID string) (map[int64][]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT p.chat_session_id, "+userColumns+" FROM chat_session_participants p JOIN users u ON u.id = p.user_id "+
			"WHERE p.chat_session_id IN (SELECT chat_session_id FROM chat_session_participants WHERE user_id = ?) "+
			"ORDER BY p.chat_session_id, u.username, u.id", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var found []participantRow
	for rows.Next() {
		var r participantRow
		r.user, err = scanUser(rows, &r.sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	grouped := lo.GroupBy(found, func(r participantRow) int64 { return r.sessionID })
	return lo.MapValues(grouped, func(rs []participantRow, _ int64) []model.User {
		return lo.Map(rs, func(r participantRow, _ int) model.User { return r.user })
	}), nil
}

func (s *MySQLStore) ListMessagesForSession(ctx context.Context, sessionID int64) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT m.id, m.chat_session_id, m.content, m.created_at, m.is_read, "+userColumns+
			" FROM messages m JOIN users u ON u.id = m.sender_id "+
			"WHERE m.chat_session_id = ? ORDER BY m.created_at ASC, m.id ASC", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	msgList := []model.Message{}
	for rows.Next() {
		var m model.Message
		m.Sender, err = scanUser(rows, &m.ID, &m.SessionID, &m.Content, &m.CreatedAt, &m.IsRead)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgList = append(msgList, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgList, nil
}

func sortByActivity(sessions []model.ChatSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].LastActivityAt.Equal(sessions[j].LastActivityAt) {
			return sessions[i].ID > sessions[j].ID
		}
		return sessions[i].LastActivityAt.After(sessions[j].LastActivityAt)
	})
}
