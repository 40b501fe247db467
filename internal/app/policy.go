package app

import "github.com/dkeye/Relay/internal/domain"

// Policy decides the configuration of a room nobody has configured yet.
type Policy interface {
	DefaultOptions(room domain.RoomID) domain.RoomOptions
	// DefaultCeiling fills in a private room configured without a ceiling.
	DefaultCeiling() int
}

// SimplePolicy gives every unseen room the same visibility. Ceiling is used
// when that visibility is private.
type SimplePolicy struct {
	Visibility domain.Visibility
	Ceiling    int
}

func (p SimplePolicy) DefaultOptions(room domain.RoomID) domain.RoomOptions {
	opts := domain.RoomOptions{RoomID: room, Visibility: p.Visibility, MaxConnectionsPerIP: p.Ceiling}
	if opts.Visibility == "" {
		opts.Visibility = domain.Public
	}
	if norm, err := opts.Normalize(); err == nil {
		return norm
	}
	// a private default without a usable ceiling falls back to public
	return domain.RoomOptions{RoomID: room, Visibility: domain.Public}
}

func (p SimplePolicy) DefaultCeiling() int { return p.Ceiling }
