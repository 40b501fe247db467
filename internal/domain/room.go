package domain

import (
	"errors"
	"strings"
)

const MaxRoomIDLen = 64

var (
	ErrInvalidRoom       = errors.New("invalid room id")
	ErrInvalidVisibility = errors.New("invalid room visibility")
	ErrInvalidCeiling    = errors.New("private room needs a positive connection ceiling")
)

type RoomID string

func NewRoomID(raw string) (RoomID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > MaxRoomIDLen {
		return "", ErrInvalidRoom
	}
	return RoomID(raw), nil
}

type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(strings.ToLower(strings.TrimSpace(s))) {
	case Public:
		return Public, nil
	case Private:
		return Private, nil
	}
	return "", ErrInvalidVisibility
}

// RoomOptions is the durable configuration of a room.
// MaxConnectionsPerIP is only meaningful for private rooms.
type RoomOptions struct {
	RoomID              RoomID     `json:"roomId"`
	Visibility          Visibility `json:"visibility"`
	MaxConnectionsPerIP int        `json:"maxConnectionsPerIp,omitempty"`
}

// Normalize clears the ceiling of public rooms and rejects private rooms
// without a usable one.
func (o RoomOptions) Normalize() (RoomOptions, error) {
	switch o.Visibility {
	case Public:
		o.MaxConnectionsPerIP = 0
	case Private:
		if o.MaxConnectionsPerIP <= 0 {
			return o, ErrInvalidCeiling
		}
	default:
		return o, ErrInvalidVisibility
	}
	return o, nil
}

// Ceiling reports the per-address limit and whether one applies at all.
func (o RoomOptions) Ceiling() (int, bool) {
	if o.Visibility != Private {
		return 0, false
	}
	return o.MaxConnectionsPerIP, true
}
