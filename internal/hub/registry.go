// Package hub tracks live connections per chat session and fans messages
// out to them.
package hub

import (
	"errors"
	"sync"

	"chatroom/internal/model"
)

var (
	// ErrClosed is returned by Deliver once a subscriber started closing.
	ErrClosed = errors.New("hub: subscriber closed")

	// ErrSlowConsumer is returned by Deliver when the subscriber's buffer is full.
	ErrSlowConsumer = errors.New("hub: subscriber buffer full")
)

// Subscriber is one live connection bound to a session.
//
// Deliver must not block: it either queues the event for the connection's
// writer or fails.
type Subscriber interface {
	ID() string
	Deliver(event model.Event) error
	Close()
}

const shardCount = 32

type shard struct {
	mu       sync.RWMutex
	sessions map[int64]map[string]Subscriber
}

// Registry maps session ids to their live subscribers. Sessions are spread
// over independently locked shards; all operations on one session go through
// the same shard lock.
type Registry struct {
	shards [shardCount]shard
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].sessions = make(map[int64]map[string]Subscriber)
	}
	return r
}

func (r *Registry) shardFor(sessionID int64) *shard {
	return &r.shards[uint64(sessionID)%shardCount]
}

// Join adds sub to the session. Joining twice is a no-op.
func (r *Registry) Join(sessionID int64, sub Subscriber) {
	s := r.shardFor(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.sessions[sessionID]
	if !ok {
		members = make(map[string]Subscriber)
		s.sessions[sessionID] = members
	}
	members[sub.ID()] = sub
}

// Leave removes sub from the session. Leaving when absent is a no-op.
func (r *Registry) Leave(sessionID int64, sub Subscriber) {
	s := r.shardFor(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	delete(members, sub.ID())
	if len(members) == 0 {
		delete(s.sessions, sessionID)
	}
}

// Members returns a snapshot of the session's subscribers.
func (r *Registry) Members(sessionID int64) []Subscriber {
	s := r.shardFor(sessionID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.sessions[sessionID]
	if len(members) == 0 {
		return nil
	}
	out := make([]Subscriber, 0, len(members))
	for _, sub := range members {
		out = append(out, sub)
	}
	return out
}

// Len returns the number of subscribers of the session.
func (r *Registry) Len(sessionID int64) int {
	s := r.shardFor(sessionID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[sessionID])
}

// Sessions returns the number of sessions with at least one subscriber.
func (r *Registry) Sessions() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.sessions)
		s.mu.RUnlock()
	}
	return n
}

// Close empties the registry and returns every subscriber it held so the
// caller can close them.
func (r *Registry) Close() []Subscriber {
	var out []Subscriber
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for _, members := range s.sessions {
			for _, sub := range members {
				out = append(out, sub)
			}
		}
		s.sessions = make(map[int64]map[string]Subscriber)
		s.mu.Unlock()
	}
	return out
}
