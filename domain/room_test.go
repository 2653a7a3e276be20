package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomKey_Symmetric(t *testing.T) {
	req := require.New(t)

	// Both participants derive the same key regardless of order
	req.Equal(RoomKey(1, 2), RoomKey(2, 1))
	req.Equal("room_1_2", RoomKey(2, 1))
	req.Equal("room_7_42", RoomKey(42, 7))
}

func TestRoomKey_Distinct_Pairs_Distinct_Keys(t *testing.T) {
	req := require.New(t)

	req.NotEqual(RoomKey(1, 2), RoomKey(1, 3))
	req.NotEqual(RoomKey(1, 2), RoomKey(2, 3))
}

func TestRoom_Membership_Is_A_Set(t *testing.T) {
	req := require.New(t)
	room := NewRoom(RoomKey(1, 2))

	// Given a user joining twice through the same connection
	room.AddMember(1, "conn-a")
	room.AddMember(1, "conn-a")

	// Then membership holds the user once
	req.Len(room.Members(), 1)
	req.False(room.Complete(1, 2))

	// When the peer joins, membership is complete
	room.AddMember(2, "conn-b")
	req.True(room.Complete(1, 2))
	req.False(room.Complete(1, 3))
}

func TestRoom_Reconnect_Replaces_Connection_And_Resets_Sync(t *testing.T) {
	req := require.New(t)
	room := NewRoom(RoomKey(1, 2))

	// Given a synchronized member
	room.AddMember(1, "conn-old")
	room.MarkSynced("conn-old")
	req.True(room.Synced("conn-old"))

	// When the same user rejoins through a new connection
	room.AddMember(1, "conn-new")

	// Then the new connection represents the user and starts unsynchronized
	connID, ok := room.ConnectionOf(1)
	req.True(ok)
	req.Equal("conn-new", connID)
	req.False(room.Synced("conn-new"))
	req.False(room.Synced("conn-old"))
}

func TestRoom_RemoveMember_Clears_Sync_Flag(t *testing.T) {
	req := require.New(t)
	room := NewRoom(RoomKey(1, 2))

	room.AddMember(1, "conn-a")
	room.MarkSynced("conn-a")

	// When the user leaves and rejoins through the same connection
	room.RemoveMember(1)
	room.AddMember(1, "conn-a")

	// Then the rejoin is treated as fresh
	req.False(room.Synced("conn-a"))
}

func TestRoom_Empty_After_All_Members_Leave(t *testing.T) {
	req := require.New(t)
	room := NewRoom(RoomKey(1, 2))

	room.AddMember(1, "conn-a")
	room.AddMember(2, "conn-b")
	req.False(room.Empty())

	room.RemoveMember(1)
	req.False(room.Empty())

	room.RemoveMember(2)
	req.True(room.Empty())
}

func TestRoom_PeerConnections_Excludes_Sender(t *testing.T) {
	req := require.New(t)
	room := NewRoom(RoomKey(1, 2))

	room.AddMember(1, "conn-a")
	room.AddMember(2, "conn-b")

	req.Equal([]string{"conn-b"}, room.PeerConnections(1))
	req.Equal([]string{"conn-a"}, room.PeerConnections(2))

	// A lone member relays to no one
	room.RemoveMember(2)
	req.Empty(room.PeerConnections(1))
}

func TestRoom_NextSequence_Monotonic(t *testing.T) {
	req := require.New(t)
	room := NewRoom(RoomKey(1, 2))

	req.Equal(uint64(1), room.NextSequence())
	req.Equal(uint64(2), room.NextSequence())
	req.Equal(uint64(3), room.NextSequence())
}
