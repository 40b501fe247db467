package domain

import "time"

// Member represents user's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	Room     RoomID
	Session  SessionID
	Identity Identity
	Addr     string
	ConnID   string
	JoinedAt time.Time
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(room RoomID, sid SessionID, id Identity, addr, connID string) *Member {
	return &Member{
		Room:     room,
		Session:  sid,
		Identity: id,
		Addr:     addr,
		ConnID:   connID,
		JoinedAt: time.Now().UTC(),
	}
}
