package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"chatroom/internal/chat"
	"chatroom/internal/hub"
	"chatroom/internal/model"
)

// createUpgrader creates a WebSocket upgrader with the given allowed origins
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedMap[origin]
		},
	}
}

type connState int32

const (
	stateConnecting connState = iota
	stateOpen
	stateClosing
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateOpen:
		return "open"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("connState(%d)", int32(s))
	}
}

// wsConn is one live client connection bound to a chat session. It
// implements hub.Subscriber.
type wsConn struct {
	id        string
	sessionID int64
	userID    string
	h         *Handler
	conn      *websocket.Conn

	// mu orders Deliver against the Closing transition so nothing is queued
	// once close has started.
	mu        sync.Mutex
	state     atomic.Int32
	send      chan model.Event
	closeOnce sync.Once
	cancel    context.CancelFunc
}

// HandleWebSocket handles GET /ws/chat/{session_id}/
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(mux.Vars(r)["session_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	userID := r.Header.Get(h.Config.IdentityHeader)
	if userID == "" {
		h.Log.Warn("[WebSocket] missing identity", "session_id", sessionID, "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := h.Query.CheckAccess(r.Context(), sessionID, userID); err != nil {
		status, text := statusFor(err)
		h.Log.Warn("[WebSocket] connection refused", "session_id", sessionID, "user_id", userID, "error", err)
		writeError(w, status, text)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("[WebSocket] upgrade error", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		id:        uuid.NewString(),
		sessionID: sessionID,
		userID:    userID,
		h:         h,
		conn:      conn,
		send:      make(chan model.Event, h.Config.SendBufferSize),
		cancel:    cancel,
	}
	c.open()

	go c.writePump()
	c.readPump(ctx)
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) currentState() connState { return connState(c.state.Load()) }

// open moves Connecting → Open and joins the session.
func (c *wsConn) open() {
	c.state.Store(int32(stateOpen))
	c.h.Registry.Join(c.sessionID, c)
	c.h.Metrics.ConnectionOpened()
	c.h.Log.Info("[WebSocket] new connection",
		"conn_id", c.id, "session_id", c.sessionID, "user_id", c.userID,
		"session_clients", c.h.Registry.Len(c.sessionID))
}

// Deliver queues an event for the write pump without blocking.
func (c *wsConn) Deliver(e model.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentState() != stateOpen {
		return hub.ErrClosed
	}
	select {
	case c.send <- e:
		return nil
	default:
		return hub.ErrSlowConsumer
	}
}

// Close moves the connection to Closing once, whichever of the read pump,
// write pump, broadcaster or shutdown gets here first. The write pump then
// sends the close frame and releases the socket.
func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state.Store(int32(stateClosing))
		close(c.send)
		c.mu.Unlock()

		c.h.Registry.Leave(c.sessionID, c)
		c.cancel()
		c.h.Metrics.ConnectionClosed()
		c.h.Log.Info("[WebSocket] client disconnected",
			"conn_id", c.id, "session_id", c.sessionID,
			"session_clients", c.h.Registry.Len(c.sessionID))
	})
}

func (c *wsConn) readPump(ctx context.Context) {
	defer c.Close()

	c.conn.SetReadLimit(c.h.Config.MaxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(c.h.Config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.h.Config.PongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.h.Log.Warn("[WebSocket] read error", "conn_id", c.id, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.reject(model.ErrCodeMalformed, "only text frames are supported")
			continue
		}
		c.handleFrame(ctx, data)
	}
}

// handleFrame decodes one inbound frame and forwards it to the pipeline.
// Malformed frames are answered with an error frame and never ingested.
func (c *wsConn) handleFrame(ctx context.Context, data []byte) {
	var frame model.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.reject(model.ErrCodeMalformed, "invalid JSON frame")
		return
	}
	if err := c.h.validate.Struct(frame); err != nil {
		c.reject(model.ErrCodeMalformed, "message is required")
		return
	}

	if frame.SenderID != "" && frame.SenderID != c.userID {
		c.reply(model.NewErrorEvent(model.ErrCodeValidation, "sender_id does not match the authenticated user"))
		return
	}

	_, err := c.h.Pipeline.Ingest(ctx, chat.IngestRequest{
		SessionID: c.sessionID,
		SenderID:  c.userID,
		Content:   *frame.Message,
		Source:    chat.SourceWebSocket,
	})
	if err != nil {
		c.h.Log.Info("[WebSocket] message rejected", "conn_id", c.id, "session_id", c.sessionID, "error", err)
		c.reply(errorEvent(err))
	}
}

func (c *wsConn) reject(code, msg string) {
	c.h.Metrics.Malformed()
	c.reply(model.NewErrorEvent(code, msg))
}

// reply queues a frame for this connection only.
func (c *wsConn) reply(e model.Event) {
	if err := c.Deliver(e); err != nil {
		c.h.Log.Debug("[WebSocket] dropped reply", "conn_id", c.id, "error", err)
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.h.Config.PingInterval())
	defer func() {
		ticker.Stop()
		c.Close()
		c.conn.Close()
		c.state.Store(int32(stateClosed))
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.h.Config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				c.h.Log.Debug("[WebSocket] write error", "conn_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.h.Config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
