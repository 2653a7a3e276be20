package runtime

import (
	"sync"

	"pairchat/contract"
	"pairchat/errors"
)

// pair is an unordered pair as recorded from the joiner's point of view.
type pair struct {
	Self int64
	Peer int64
}

type session struct {
	user  int64 // 0 until bound
	sink  contract.EventSink
	pairs map[pair]struct{}
}

// SessionRegistry tracks each live transport connection, the user identity
// bound to it and the pairs it has joined. The joined-pair index is what makes
// disconnect cleanup reachable from every termination path: the transport only
// knows the connection id, the registry remembers the rest.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*session)}
}

// Open records a new connection and its outbound sink.
func (r *SessionRegistry) Open(connID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[connID] = &session{sink: sink, pairs: make(map[pair]struct{})}
}

// Close removes the connection and returns the identity it was bound to and
// the pairs it had joined, so the caller can run implicit leaves.
func (r *SessionRegistry) Close(connID string) (int64, []pair, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return 0, nil, false
	}
	delete(r.sessions, connID)

	pairs := make([]pair, 0, len(s.pairs))
	for p := range s.pairs {
		pairs = append(pairs, p)
	}
	return s.user, pairs, true
}

// Bind records that the connection now represents the user.
// Binding twice to the same user is idempotent; a different user fails.
func (r *SessionRegistry) Bind(connID string, user int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return errors.ErrNotFound
	}
	if s.user != 0 && s.user != user {
		return errors.ErrAlreadyBound
	}
	s.user = user
	return nil
}

// Lookup returns the user bound to the connection, if any.
func (r *SessionRegistry) Lookup(connID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connID]
	if !ok || s.user == 0 {
		return 0, false
	}
	return s.user, true
}

// Sink returns the outbound sink of the connection.
func (r *SessionRegistry) Sink(connID string) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connID]
	if !ok {
		return nil, false
	}
	return s.sink, true
}

// Track records that the connection joined the pair.
func (r *SessionRegistry) Track(connID string, self, peer int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[connID]; ok {
		s.pairs[pair{Self: self, Peer: peer}] = struct{}{}
	}
}

// Untrack forgets a joined pair after an explicit leave.
func (r *SessionRegistry) Untrack(connID string, self, peer int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[connID]; ok {
		delete(s.pairs, pair{Self: self, Peer: peer})
	}
}

// Count returns the number of live connections.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
