package orch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/auth"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/store"
)

const CloseGoingAway = 1001

var (
	ErrRateLimited  = errors.New("rate limited")
	ErrRoomMismatch = errors.New("frame addressed to another room")
	ErrNotPersisted = errors.New("message was not persisted")
)

// RejectCode is the machine readable reason an admission was refused.
type RejectCode string

const (
	RejectInvalidSession    RejectCode = "invalid_session"
	RejectDuplicate         RejectCode = "duplicate_connection"
	RejectIPLimit           RejectCode = "ip_limit_exceeded"
	RejectRoomConfiguration RejectCode = "invalid_room_configuration"
)

// CloseCode maps a rejection to the private-use websocket close code range.
func (c RejectCode) CloseCode() int {
	switch c {
	case RejectInvalidSession:
		return 4001
	case RejectDuplicate:
		return 4002
	case RejectIPLimit:
		return 4003
	case RejectRoomConfiguration:
		return 4004
	}
	return 4000
}

type RejectError struct {
	Code   RejectCode
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Orchestrator wires admission, membership announcements, fan-out and
// ingest together. It is the Announcer of its Registry.
type Orchestrator struct {
	Registry *app.Registry
	Auth     *auth.Authority
	Store    store.Store
	Limiter  *app.RoomRateLimiter

	closing atomic.Bool
}

func New(reg *app.Registry, authority *auth.Authority, st store.Store, limiter *app.RoomRateLimiter) *Orchestrator {
	o := &Orchestrator{
		Registry: reg,
		Auth:     authority,
		Store:    st,
		Limiter:  limiter,
	}
	reg.SetAnnouncer(o)
	return o
}

// Shutdown closes every live connection with going-away. Announcements are
// suppressed from here on.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.closing.Store(true)
	all := o.Registry.All()
	p := pool.New().WithMaxGoroutines(16)
	for _, ms := range all {
		p.Go(func() {
			if ctx.Err() != nil {
				ms.Signal().Close()
				return
			}
			ms.Signal().CloseWithReason(CloseGoingAway, "server shutting down")
		})
	}
	p.Wait()
	log.Info().Str("module", "orch").Int("connections", len(all)).Msg("all connections closed")
}

func (o *Orchestrator) ListRooms() []core.RoomInfo {
	return o.Registry.Rooms.List()
}

func (o *Orchestrator) History(ctx context.Context, room domain.RoomID) ([]domain.ChatMessage, error) {
	msgs, err := o.Store.History(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", room, err)
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return msgs, nil
}

// ErrorCode names err for an error event sent back to a client.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		return string(RejectInvalidSession)
	case errors.Is(err, domain.ErrUnsafeContent):
		return "unsafe_content"
	case errors.Is(err, domain.ErrEmptyContent):
		return "empty_content"
	case errors.Is(err, domain.ErrMalformedFrame):
		return "malformed_frame"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrRoomMismatch):
		return "room_mismatch"
	case errors.Is(err, ErrNotPersisted):
		return "not_persisted"
	}
	return "internal_error"
}
