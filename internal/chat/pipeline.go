// Package chat implements message ingestion and history queries on top of
// a store.Store and a hub.Broadcaster.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"chatroom/internal/hub"
	"chatroom/internal/metrics"
	"chatroom/internal/model"
	"chatroom/internal/store"
)

// Ingest sources, used as a metrics label.
const (
	SourceWebSocket = "websocket"
	SourceHTTP      = "http"
)

// IngestRequest is one message submitted by a sender
type IngestRequest struct {
	SessionID int64
	SenderID  string
	Content   string
	Source    string
}

// Pipeline validates, persists and broadcasts messages.
type Pipeline struct {
	store            store.Store
	broadcaster      hub.Broadcaster
	log              *slog.Logger
	metrics          *metrics.Metrics
	maxContentLength int
	locks            *keyedMutex
}

// NewPipeline creates a Pipeline. m may be nil; maxContentLength <= 0
// disables the length check.
func NewPipeline(st store.Store, b hub.Broadcaster, log *slog.Logger, m *metrics.Metrics, maxContentLength int) *Pipeline {
	return &Pipeline{
		store:            st,
		broadcaster:      b,
		log:              log,
		metrics:          m,
		maxContentLength: maxContentLength,
		locks:            newKeyedMutex(),
	}
}

// Ingest persists the message and broadcasts it to the session's live
// connections. The returned message is committed even if no connection
// received it.
//
// Ingests for the same session are serialized from the participant check
// through the broadcast, so messages are broadcast in persist order.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (model.Message, error) {
	start := time.Now()
	msg, err := p.ingest(ctx, req)
	p.metrics.Ingested(req.Source, resultLabel(err), time.Since(start))
	return msg, err
}

func (p *Pipeline) ingest(ctx context.Context, req IngestRequest) (model.Message, error) {
	if err := p.validate(req); err != nil {
		return model.Message{}, err
	}

	unlock := p.locks.Lock(req.SessionID)
	defer unlock()

	cs, err := p.store.GetSession(ctx, req.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Message{}, fmt.Errorf("%w: chat session %d", ErrNotFound, req.SessionID)
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !cs.IsActive {
		return model.Message{}, fmt.Errorf("%w: chat session %d is inactive", ErrNotFound, req.SessionID)
	}

	ok, err := p.store.GetParticipant(ctx, req.SessionID, req.SenderID)
	if err != nil {
		return model.Message{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !ok {
		return model.Message{}, fmt.Errorf("%w: %q is not a participant of chat session %d", ErrNotFound, req.SenderID, req.SessionID)
	}

	msg, err := p.store.CreateMessage(ctx, req.SessionID, req.SenderID, req.Content)
	if errors.Is(err, store.ErrNotFound) {
		return model.Message{}, fmt.Errorf("%w: chat session %d or sender %q", ErrNotFound, req.SessionID, req.SenderID)
	}
	if err != nil {
		p.log.ErrorContext(ctx, "failed to persist message", "session_id", req.SessionID, "sender_id", req.SenderID, "error", err)
		return model.Message{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// The message is committed; list ordering falls back to the newest
	// message time if this write is lost.
	if err := p.store.TouchSession(ctx, req.SessionID, msg.CreatedAt); err != nil {
		p.log.WarnContext(ctx, "failed to update session activity", "session_id", req.SessionID, "message_id", msg.ID, "error", err)
	}

	delivered := p.broadcaster.Broadcast(ctx, req.SessionID, model.NewMessageEvent(msg.Payload()))
	p.log.InfoContext(ctx, "message ingested",
		"session_id", req.SessionID, "message_id", msg.ID, "sender_id", req.SenderID,
		"source", req.Source, "delivered", delivered)
	return msg, nil
}

func (p *Pipeline) validate(req IngestRequest) error {
	switch {
	case req.SessionID <= 0:
		return fmt.Errorf("%w: session_id is required", ErrValidation)
	case req.SenderID == "":
		return fmt.Errorf("%w: sender_id is required", ErrValidation)
	case strings.TrimSpace(req.Content) == "":
		return fmt.Errorf("%w: message must not be empty", ErrValidation)
	case p.maxContentLength > 0 && utf8.RuneCountInString(req.Content) > p.maxContentLength:
		return fmt.Errorf("%w: message exceeds %d characters", ErrValidation, p.maxContentLength)
	}
	return nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "error"
	}
}
