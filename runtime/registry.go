package runtime

import (
	"sync"

	"pairchat/domain"
	"pairchat/errors"
	"pairchat/repositories"
)

// roomState wraps a room with its own lock so that join, leave, append and
// the presence check are atomic per key while distinct keys never contend.
// deleted marks a state that lost the race against teardown; a goroutine that
// acquires a deleted state retries the registry lookup.
type roomState struct {
	mu      sync.Mutex
	room    *domain.Room
	deleted bool
}

// RoomRegistry exclusively owns the live rooms and their history. History is
// logically part of each room: teardown destroys both inside the same room
// critical section, so no operation can observe a room with empty membership
// but surviving history.
type RoomRegistry struct {
	mu      sync.Mutex
	rooms   map[string]*roomState
	history repositories.HistoryRepository
}

func NewRoomRegistry(history repositories.HistoryRepository) *RoomRegistry {
	return &RoomRegistry{
		rooms:   make(map[string]*roomState),
		history: history,
	}
}

// acquire returns the locked state for the key, creating the room if asked.
// Callers must unlock st.mu. created reports a fresh room.
func (r *RoomRegistry) acquire(key string, create bool) (st *roomState, created, ok bool) {
	for {
		r.mu.Lock()
		st, ok = r.rooms[key]
		if !ok {
			if !create {
				r.mu.Unlock()
				return nil, false, false
			}
			st = &roomState{room: domain.NewRoom(key)}
			r.rooms[key] = st
			created = true
		}
		r.mu.Unlock()

		st.mu.Lock()
		if st.deleted {
			// Teardown won the race; the map entry is gone, retry.
			st.mu.Unlock()
			created = false
			continue
		}
		return st, created, true
	}
}

// JoinResult is what the presence check decided for one join call.
type JoinResult struct {
	RoomKey     string
	RoomCreated bool
	// Deliver is true when membership became exactly the pair and this
	// connection has not been synchronized yet: the snapshot goes to the
	// joining connection only.
	Deliver  bool
	Snapshot []repositories.StoredMessage
}

// Join resolves or creates the room for {user, peer}, adds the user to its
// membership through connID and runs the presence-gated delivery check.
func (r *RoomRegistry) Join(user, peer int64, connID string) (JoinResult, error) {
	key := domain.RoomKey(user, peer)
	st, created, _ := r.acquire(key, true)
	defer st.mu.Unlock()

	st.room.AddMember(user, connID)

	res := JoinResult{RoomKey: key, RoomCreated: created}
	if st.room.Complete(user, peer) && !st.room.Synced(connID) {
		snapshot, err := r.history.Snapshot(key)
		if err != nil {
			return res, err
		}
		st.room.MarkSynced(connID)
		res.Deliver = true
		res.Snapshot = snapshot
	}
	return res, nil
}

// Leave removes the user from the room's membership. When membership becomes
// empty the room and its history are deleted atomically. Leaving a room that
// does not exist returns ErrNotFound; callers treat it as a no-op.
func (r *RoomRegistry) Leave(user, peer int64) (deleted bool, err error) {
	key := domain.RoomKey(user, peer)
	st, _, ok := r.acquire(key, false)
	if !ok {
		return false, errors.ErrNotFound
	}
	defer st.mu.Unlock()

	st.room.RemoveMember(user)
	if !st.room.Empty() {
		return false, nil
	}

	if err := r.history.Destroy(key); err != nil {
		return false, err
	}
	st.deleted = true
	r.mu.Lock()
	delete(r.rooms, key)
	r.mu.Unlock()
	return true, nil
}

// AppendResult carries the stored message and the connections to relay it to.
type AppendResult struct {
	RoomKey     string
	RoomCreated bool
	Message     repositories.StoredMessage
	Targets     []string
}

// Append assigns the next sequence number, buffers the ciphertext and returns
// the other present members' connections. The room is created on demand: a
// sender is never blocked by the receiver's absence, the room then exists as
// a pure history buffer until the pair joins.
func (r *RoomRegistry) Append(sender int64, msg repositories.StoredMessage, peer int64) (AppendResult, error) {
	key := domain.RoomKey(sender, peer)
	st, created, _ := r.acquire(key, true)
	defer st.mu.Unlock()

	msg.Sequence = st.room.NextSequence()
	if err := r.history.Append(key, msg); err != nil {
		return AppendResult{}, err
	}
	return AppendResult{
		RoomKey:     key,
		RoomCreated: created,
		Message:     msg,
		Targets:     st.room.PeerConnections(sender),
	}, nil
}

// RelayTargets returns the connections of present members other than the
// sender. Key exchange is never buffered, so an absent room relays to no one.
func (r *RoomRegistry) RelayTargets(sender, receiver int64) (string, []string) {
	key := domain.RoomKey(sender, receiver)
	st, _, ok := r.acquire(key, false)
	if !ok {
		return key, nil
	}
	defer st.mu.Unlock()
	return key, st.room.PeerConnections(sender)
}

// Members returns the users currently joined to the room.
func (r *RoomRegistry) Members(key string) []int64 {
	r.mu.Lock()
	st, ok := r.rooms[key]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.deleted {
		return nil
	}
	return st.room.Members()
}

// Count returns the number of live rooms.
func (r *RoomRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
