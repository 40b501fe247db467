// Package store holds the durable side of the relay: per-room append logs,
// room configuration, the per-address membership mirror and public keys.
package store

//go:generate mockgen -destination=mock_store.go -package=store github.com/dkeye/Relay/internal/store Store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Relay/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Store is the capability the relay needs from durable storage. Reads may
// fail transiently; callers surface that instead of assuming empty state.
type Store interface {
	AppendMessage(ctx context.Context, room domain.RoomID, msg domain.ChatMessage) error
	History(ctx context.Context, room domain.RoomID) ([]domain.ChatMessage, error)

	SaveRoomOptions(ctx context.Context, opts domain.RoomOptions) error
	// LoadRoomOptions returns ErrNotFound for rooms never configured.
	LoadRoomOptions(ctx context.Context, room domain.RoomID) (domain.RoomOptions, error)

	// AddAddressMember appends id to the address list and resets the list
	// expiry to ttl.
	AddAddressMember(ctx context.Context, room domain.RoomID, addr string, id domain.Identity, ttl time.Duration) error
	// RemoveAddressMember removes one occurrence of id.
	RemoveAddressMember(ctx context.Context, room domain.RoomID, addr string, id domain.Identity) error
	AddressMembers(ctx context.Context, room domain.RoomID, addr string) ([]domain.Identity, error)

	SavePublicKey(ctx context.Context, id domain.Identity, key string) error
	// PublicKey returns ErrNotFound when id never published a key.
	PublicKey(ctx context.Context, id domain.Identity) (string, error)

	Close() error
}

type Driver string

const (
	DriverMemory Driver = "memory"
	DriverSQLite Driver = "sqlite"
	DriverRedis  Driver = "redis"
)

// Options selects and parameterizes a backend.
type Options struct {
	Driver        Driver
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open builds the configured backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverSQLite:
		return NewSQLite(opts.SQLitePath)
	case DriverRedis:
		return NewRedis(ctx, RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			Prefix:   opts.RedisPrefix,
		})
	}
	return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
}
