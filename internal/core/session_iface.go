package core

import "github.com/dkeye/Relay/internal/domain"

// MemberSession binds domain.Member and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	Meta() *domain.Member
	Signal() SignalConnection
}

// MemberKey identifies one connection slot inside a room.
type MemberKey struct {
	Session  domain.SessionID
	Identity domain.Identity
}

func KeyOf(m *domain.Member) MemberKey {
	return MemberKey{Session: m.Session, Identity: m.Identity}
}
