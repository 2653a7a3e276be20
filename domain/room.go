// Package domain contains core concepts of the pairwise relay.
// This file defines Room identity and membership invariants.
// No runtime, network, or storage logic should be added here.
package domain

import "fmt"

// RoomKey derives the canonical key for the unordered pair {a, b}.
// Both participants compute the same key regardless of who initiates.
func RoomKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("room_%d_%d", a, b)
}

// Room is the ephemeral state scoped to exactly one unordered pair of users.
// Membership is a set (0, 1 or 2 users in the two-party model). The room also
// tracks which connection currently represents each member and which
// connections have already received the history snapshot, so duplicate joins
// never trigger a second delivery.
//
// Room is not safe for concurrent use; the registry serializes access per key.
type Room struct {
	Key     string
	members map[int64]struct{}
	conns   map[int64]string
	synced  map[string]struct{}
	nextSeq uint64
}

func NewRoom(key string) *Room {
	return &Room{
		Key:     key,
		members: make(map[int64]struct{}),
		conns:   make(map[int64]string),
		synced:  make(map[string]struct{}),
	}
}

// AddMember joins a user through the given connection.
// Re-joining is idempotent; a reconnect replaces the previous connection.
func (r *Room) AddMember(user int64, connID string) {
	if previous, ok := r.conns[user]; ok && previous != connID {
		delete(r.synced, previous)
	}
	r.members[user] = struct{}{}
	r.conns[user] = connID
}

// RemoveMember leaves a user and clears its synchronized flag, so a later
// rejoin is treated as a fresh join.
func (r *Room) RemoveMember(user int64) {
	if connID, ok := r.conns[user]; ok {
		delete(r.synced, connID)
	}
	delete(r.conns, user)
	delete(r.members, user)
}

// Complete reports whether membership is exactly {a, b}.
func (r *Room) Complete(a, b int64) bool {
	if len(r.members) != 2 {
		return false
	}
	_, hasA := r.members[a]
	_, hasB := r.members[b]
	return hasA && hasB
}

// Synced reports whether the connection already received the history snapshot.
func (r *Room) Synced(connID string) bool {
	_, ok := r.synced[connID]
	return ok
}

func (r *Room) MarkSynced(connID string) {
	r.synced[connID] = struct{}{}
}

func (r *Room) Empty() bool {
	return len(r.members) == 0
}

func (r *Room) Members() []int64 {
	res := make([]int64, 0, len(r.members))
	for user := range r.members {
		res = append(res, user)
	}
	return res
}

// ConnectionOf returns the connection currently representing the user.
func (r *Room) ConnectionOf(user int64) (string, bool) {
	connID, ok := r.conns[user]
	return connID, ok
}

// PeerConnections returns the connections of every present member except the
// given user, for exclude-self relay.
func (r *Room) PeerConnections(except int64) []string {
	var res []string
	for user, connID := range r.conns {
		if user == except {
			continue
		}
		res = append(res, connID)
	}
	return res
}

// NextSequence assigns the next monotonically increasing sequence number.
func (r *Room) NextSequence() uint64 {
	r.nextSeq++
	return r.nextSeq
}
