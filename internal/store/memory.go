package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"chatroom/internal/model"
)

// MemoryStore is an in-process Store used by tests and local runs.
type MemoryStore struct {
	mu            sync.RWMutex
	now           func() time.Time
	users         map[string]model.User
	sessions      map[int64]*model.ChatSession
	messages      map[int64][]model.Message
	nextSessionID int64
	nextMessageID int64
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		users:    map[string]model.User{},
		sessions: map[int64]*model.ChatSession{},
		messages: map[int64][]model.Message{},
	}
}

// AddUser registers a user.
func (m *MemoryStore) AddUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// AddSession creates an active session whose participants are the given
// (already added) user ids. Unknown ids are ignored.
func (m *MemoryStore) AddSession(name string, participantIDs ...string) model.ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSessionID++
	now := m.now().UTC().Truncate(time.Microsecond)
	cs := &model.ChatSession{
		ID:             m.nextSessionID,
		Name:           name,
		CreatedAt:      now,
		LastActivityAt: now,
		IsActive:       true,
	}
	for _, id := range participantIDs {
		if u, ok := m.users[id]; ok {
			cs.Participants = append(cs.Participants, u)
		}
	}
	m.sessions[cs.ID] = cs
	return cloneSession(cs)
}

// SetActive soft-activates or deactivates a session.
func (m *MemoryStore) SetActive(sessionID int64, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs, ok := m.sessions[sessionID]; ok {
		cs.IsActive = active
	}
}

func cloneSession(cs *model.ChatSession) model.ChatSession {
	out := *cs
	out.Participants = append([]model.User(nil), cs.Participants...)
	return out
}

func (m *MemoryStore) GetSession(ctx context.Context, id int64) (model.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cs, ok := m.sessions[id]
	if !ok {
		return model.ChatSession{}, ErrNotFound
	}
	return cloneSession(cs), nil
}

func (m *MemoryStore) GetParticipant(ctx context.Context, sessionID int64, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cs, ok := m.sessions[sessionID]
	return ok && cs.HasParticipant(userID), nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) CreateMessage(ctx context.Context, sessionID int64, senderID, content string) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return model.Message{}, ErrNotFound
	}
	sender, ok := m.users[senderID]
	if !ok {
		return model.Message{}, ErrNotFound
	}

	var last time.Time
	if prior := m.messages[sessionID]; len(prior) > 0 {
		last = prior[len(prior)-1].CreatedAt
	}

	m.nextMessageID++
	msg := model.Message{
		ID:        m.nextMessageID,
		SessionID: sessionID,
		Sender:    sender,
		Content:   content,
		CreatedAt: nextTimestamp(m.now(), last),
	}
	m.messages[sessionID] = append(m.messages[sessionID], msg)
	return msg, nil
}

func (m *MemoryStore) TouchSession(ctx context.Context, sessionID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if at.After(cs.LastActivityAt) {
		cs.LastActivityAt = at.UTC()
	}
	return nil
}

func (m *MemoryStore) ListSessionsForUser(ctx context.Context, userID string) ([]model.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := []model.ChatSession{}
	for _, cs := range m.sessions {
		if !cs.HasParticipant(userID) {
			continue
		}
		out := cloneSession(cs)
		if msgs := m.messages[cs.ID]; len(msgs) > 0 {
			if latest := msgs[len(msgs)-1].CreatedAt; latest.After(out.LastActivityAt) {
				out.LastActivityAt = latest
			}
		}
		sessions = append(sessions, out)
	}
	sortByActivity(sessions)
	return sessions, nil
}

func (m *MemoryStore) ListMessagesForSession(ctx context.Context, sessionID int64) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := slices.Clone(m.messages[sessionID])
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}
