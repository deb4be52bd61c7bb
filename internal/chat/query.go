package chat

import (
	"context"
	"errors"
	"fmt"

	"chatroom/internal/model"
	"chatroom/internal/store"
)

// QueryService serves read-only history. Every call reads through to the store.
type QueryService struct {
	store store.Store
}

// NewQueryService creates a QueryService
func NewQueryService(st store.Store) *QueryService {
	return &QueryService{store: st}
}

// ListSessions returns the sessions userID participates in, most recently
// active first.
func (q *QueryService) ListSessions(ctx context.Context, userID string) ([]model.ChatSession, error) {
	sessions, err := q.store.ListSessionsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return sessions, nil
}

// ListMessages returns the session's messages, oldest first.
func (q *QueryService) ListMessages(ctx context.Context, sessionID int64, userID string) ([]model.Message, error) {
	if err := q.authorize(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	msgs, err := q.store.ListMessagesForSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return msgs, nil
}

// GetSession returns the session with its participants and full history.
func (q *QueryService) GetSession(ctx context.Context, sessionID int64, userID string) (model.SessionDetail, error) {
	cs, err := q.getSession(ctx, sessionID)
	if err != nil {
		return model.SessionDetail{}, err
	}
	if !cs.HasParticipant(userID) {
		return model.SessionDetail{}, fmt.Errorf("%w: %q is not a participant of chat session %d", ErrForbidden, userID, sessionID)
	}

	msgs, err := q.store.ListMessagesForSession(ctx, sessionID)
	if err != nil {
		return model.SessionDetail{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	detail := model.SessionDetail{ChatSession: cs, Messages: msgs}
	if n := len(msgs); n > 0 {
		latest := msgs[n-1]
		detail.LatestMessage = &latest
		if latest.CreatedAt.After(detail.LastActivityAt) {
			detail.LastActivityAt = latest.CreatedAt
		}
	}
	return detail, nil
}

func (q *QueryService) getSession(ctx context.Context, sessionID int64) (model.ChatSession, error) {
	cs, err := q.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return model.ChatSession{}, fmt.Errorf("%w: chat session %d", ErrNotFound, sessionID)
	}
	if err != nil {
		return model.ChatSession{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return cs, nil
}

// CheckAccess verifies the session exists and userID participates in it.
func (q *QueryService) CheckAccess(ctx context.Context, sessionID int64, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrForbidden)
	}
	return q.authorize(ctx, sessionID, userID)
}

func (q *QueryService) authorize(ctx context.Context, sessionID int64, userID string) error {
	if _, err := q.getSession(ctx, sessionID); err != nil {
		return err
	}
	ok, err := q.store.GetParticipant(ctx, sessionID, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !ok {
		return fmt.Errorf("%w: %q is not a participant of chat session %d", ErrForbidden, userID, sessionID)
	}
	return nil
}
