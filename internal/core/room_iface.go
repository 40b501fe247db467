package core

import (
	"errors"
	"time"

	"github.com/dkeye/Relay/internal/domain"
)

var (
	ErrAlreadyRegistered = errors.New("already registered")
	ErrIPLimitExceeded   = errors.New("ip limit exceeded")
)

// PublishResult reports delivery stats to the orchestrator. Dropped members
// have already been removed from the room when it is returned.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// RoomService is the core-facing API of a room.
// It owns the membership set and the per-address ledger but never closes
// transport resources.
type RoomService interface {
	ID() domain.RoomID
	Options() domain.RoomOptions
	SetOptions(domain.RoomOptions)

	MemberCount() int
	Members() []domain.Identity
	Has(MemberKey) bool

	// Admit records ms if its slot is free and, for private rooms, its
	// address is under the ceiling. Both checks and the insert are atomic.
	// reclaimed is true when ms took over a restored ledger entry.
	Admit(ms MemberSession) (reclaimed bool, err error)
	RemoveMember(key MemberKey) (MemberSession, bool)
	// RemoveConn removes m only while its own connection still holds the
	// slot, so a late disconnect cannot evict a newer connection.
	RemoveConn(m *domain.Member) (MemberSession, bool)

	AddressMembers(addr string) []domain.Identity
	// SeedAddress restores ledger entries recorded before a restart. They
	// count against the ceiling for ttl unless their identity is admitted
	// again. It is a no-op once the address has been seen by this room.
	SeedAddress(addr string, ids []domain.Identity, ttl time.Duration)
	AddressKnown(addr string) bool

	// Broadcast delivers to every member skip does not exclude. Members
	// whose send fails are removed in the same pass.
	Broadcast(data Frame, skip func(*domain.Member) bool) PublishResult
	// SendTo delivers only to the connections of one identity.
	SendTo(to domain.Identity, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID     `json:"roomId"`
	Visibility  domain.Visibility `json:"visibility"`
	MemberCount int               `json:"client_count"`
}
