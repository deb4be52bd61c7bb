// Package store persists chat sessions, participants and messages.
package store

import (
	"context"
	"errors"
	"time"

	"chatroom/internal/model"
)

// ErrNotFound is returned when a session or user does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the create/read contract the chat core depends on.
//
// CreateMessage assigns the message id and a timestamp strictly greater than
// every earlier message of the same session, and returns the message with its
// sender hydrated.
type Store interface {
	GetSession(ctx context.Context, id int64) (model.ChatSession, error)
	GetParticipant(ctx context.Context, sessionID int64, userID string) (bool, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	CreateMessage(ctx context.Context, sessionID int64, senderID, content string) (model.Message, error)
	TouchSession(ctx context.Context, sessionID int64, at time.Time) error
	ListSessionsForUser(ctx context.Context, userID string) ([]model.ChatSession, error)
	ListMessagesForSession(ctx context.Context, sessionID int64) ([]model.Message, error)
}

// nextTimestamp returns now truncated to the storage resolution, bumped past
// last when the clock has not advanced.
func nextTimestamp(now, last time.Time) time.Time {
	ts := now.UTC().Truncate(time.Microsecond)
	if !ts.After(last) {
		ts = last.Add(time.Microsecond)
	}
	return ts
}
