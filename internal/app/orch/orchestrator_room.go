package orch

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

// AdmitRequest carries what the transport knows about a connection attempt.
type AdmitRequest struct {
	Room     domain.RoomID
	Identity domain.Identity
	Token    string
	Addr     string
	ConnID   string
	Conn     core.SignalConnection
	// Cancel stops the connection's pumps when the registry drops it.
	Cancel context.CancelFunc
}

// Admit runs the admission checks in order and registers the connection.
// A rejected attempt has its connection closed with the matching code before
// Admit returns a *RejectError.
func (o *Orchestrator) Admit(ctx context.Context, req AdmitRequest) (core.MemberSession, error) {
	sess, err := o.Auth.ValidateFor(req.Token, req.Identity)
	if err != nil {
		return nil, o.reject(req, RejectInvalidSession, "session token is not valid for this user")
	}
	if req.ConnID == "" {
		req.ConnID = uuid.NewString()
	}
	meta := domain.NewMember(req.Room, sess.ID, req.Identity, req.Addr, req.ConnID)
	if room, ok := o.Registry.Rooms.Get(req.Room); ok && room.Has(core.KeyOf(meta)) {
		return nil, o.reject(req, RejectDuplicate, "this session is already connected to the room")
	}

	ms := core.NewMemberSession(meta, req.Conn)
	if err := o.Registry.Register(ctx, ms, req.Cancel); err != nil {
		switch {
		case errors.Is(err, core.ErrAlreadyRegistered):
			return nil, o.reject(req, RejectDuplicate, "this session is already connected to the room")
		case errors.Is(err, core.ErrIPLimitExceeded):
			return nil, o.reject(req, RejectIPLimit, "too many connections from this address")
		default:
			log.Error().Err(err).Str("module", "orch").Str("room", string(req.Room)).Msg("room configuration unavailable")
			return nil, o.reject(req, RejectRoomConfiguration, "room configuration is unavailable")
		}
	}

	o.welcome(ctx, ms, req.Token)
	return ms, nil
}

func (o *Orchestrator) reject(req AdmitRequest, code RejectCode, reason string) error {
	log.Warn().Str("module", "orch").Str("room", string(req.Room)).Str("user", string(req.Identity)).
		Str("addr", req.Addr).Str("code", string(code)).Msg("admission rejected")
	if req.Conn != nil {
		req.Conn.CloseWithReason(code.CloseCode(), reason)
	}
	return &RejectError{Code: code, Reason: reason}
}

// welcome sends the room history and the session echo to a new member.
func (o *Orchestrator) welcome(ctx context.Context, ms core.MemberSession, token string) {
	m := ms.Meta()
	msgs, err := o.Store.History(ctx, m.Room)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(m.Room)).Msg("history read failed")
		o.deliver(ctx, ms, domain.NewErrorEvent("history_unavailable", "message history could not be loaded"))
	} else {
		o.deliver(ctx, ms, domain.NewHistory(m.Room, msgs))
	}
	o.deliver(ctx, ms, domain.NewSessionEvent(m.Room, token, m.Identity))
}

// Leave releases a connection from every structure that references it.
func (o *Orchestrator) Leave(ctx context.Context, m *domain.Member) bool {
	return o.Registry.Unregister(ctx, m)
}

func (o *Orchestrator) OnJoin(room domain.RoomID, id domain.Identity) {
	if o.closing.Load() {
		return
	}
	o.announce(room, fmt.Sprintf("%s has joined the chat", id))
}

func (o *Orchestrator) OnLeave(room domain.RoomID, id domain.Identity) {
	if !slices.Contains(o.Registry.Members(room), id) {
		o.Limiter.Forget(room, id)
	}
	if o.closing.Load() {
		return
	}
	o.announce(room, fmt.Sprintf("%s has left the chat", id))
}

// announce is best effort: its outcome never reaches register/unregister.
func (o *Orchestrator) announce(room domain.RoomID, text string) {
	ctx := context.Background()
	if _, err := o.Broadcast(ctx, room, domain.NewNotification(room, text), nil); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(room)).Msg("notification failed")
	}
	users := domain.NewUsersSnapshot(room, o.Registry.Members(room))
	if _, err := o.Broadcast(ctx, room, users, nil); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(room)).Msg("users snapshot failed")
	}
}

func (o *Orchestrator) SetRoomOptions(ctx context.Context, opts domain.RoomOptions) (domain.RoomOptions, error) {
	return o.Registry.SetRoomOptions(ctx, opts)
}

func (o *Orchestrator) GetRoomOptions(ctx context.Context, room domain.RoomID) (domain.RoomOptions, error) {
	return o.Registry.GetRoomOptions(ctx, room)
}
