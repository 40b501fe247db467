package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

// Broadcast fans ev out to the live members of room that skip does not
// exclude. Members whose send fails are pruned during the pass; their
// connections are closed and their departure announced afterwards.
func (o *Orchestrator) Broadcast(ctx context.Context, room domain.RoomID, ev domain.Event, skip func(*domain.Member) bool) (int, error) {
	rs, ok := o.Registry.Rooms.Get(room)
	if !ok {
		return 0, nil
	}
	data, err := domain.Encode(ev)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", ev.Kind(), err)
	}
	res := rs.Broadcast(core.Frame(data), skip)
	o.settle(ctx, res.Dropped)
	return res.SendTo, nil
}

// SendPrivate delivers only to the connections of msg.To in the room. An
// absent recipient is not an error.
func (o *Orchestrator) SendPrivate(ctx context.Context, msg domain.PrivateMessage) (int, error) {
	rs, ok := o.Registry.Rooms.Get(msg.RoomID)
	if !ok {
		return 0, nil
	}
	data, err := domain.Encode(msg)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	res := rs.SendTo(msg.To, core.Frame(data))
	o.settle(ctx, res.Dropped)
	if res.SendTo == 0 {
		log.Debug().Str("module", "orch").Str("room", string(msg.RoomID)).Str("to", string(msg.To)).Msg("private recipient not connected")
	}
	return res.SendTo, nil
}

func (o *Orchestrator) settle(ctx context.Context, dropped []core.MemberSession) {
	if len(dropped) == 0 {
		return
	}
	for _, ms := range dropped {
		ms.Signal().Close()
	}
	o.Registry.Retract(ctx, dropped)
}

// deliver writes one event to one member, pruning it on failure.
func (o *Orchestrator) deliver(ctx context.Context, ms core.MemberSession, ev domain.Event) {
	data, err := domain.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("kind", string(ev.Kind())).Msg("encode event")
		return
	}
	if err := ms.Signal().TrySend(core.Frame(data)); err != nil {
		m := ms.Meta()
		log.Warn().Err(err).Str("module", "orch").Str("room", string(m.Room)).Str("user", string(m.Identity)).
			Msg("direct send failed, dropping connection")
		ms.Signal().Close()
		o.Leave(ctx, m)
	}
}

// Notify sends an event to a single member without touching the room.
func (o *Orchestrator) Notify(ctx context.Context, ms core.MemberSession, ev domain.Event) {
	o.deliver(ctx, ms, ev)
}

// Ingest classifies one decoded frame from member m and acts on it.
func (o *Orchestrator) Ingest(ctx context.Context, m *domain.Member, in domain.Inbound) error {
	switch f := in.(type) {
	case domain.ChatFrame:
		if err := o.admitFrame(m, f.Room); err != nil {
			return err
		}
		return o.PublishMessage(ctx, domain.ChatMessage{
			Type:      f.Kind,
			Username:  m.Identity,
			Content:   f.Content,
			RoomID:    m.Room,
			Timestamp: stamp(f.Timestamp),
		})
	case domain.PublicKeyFrame:
		if err := o.admitFrame(m, f.Room); err != nil {
			return err
		}
		return o.PublishKey(ctx, domain.PublicKeyMessage{
			Type:      domain.KindPublicKey,
			Username:  m.Identity,
			PublicKey: f.PublicKey,
			RoomID:    m.Room,
			Timestamp: stamp(f.Timestamp),
		})
	case domain.PrivateFrame:
		if err := o.admitFrame(m, f.Room); err != nil {
			return err
		}
		_, err := o.SendPrivate(ctx, domain.PrivateMessage{
			Type:      domain.KindPrivate,
			Username:  m.Identity,
			To:        f.To,
			Content:   f.Content,
			RoomID:    m.Room,
			Timestamp: stamp(f.Timestamp),
		})
		return err
	case domain.PingFrame:
		if ms, ok := o.Registry.GetSession(m.ConnID); ok {
			o.deliver(ctx, ms, domain.Pong{Type: domain.KindPong})
		}
		return nil
	case domain.UnknownFrame:
		log.Debug().Str("module", "orch").Str("room", string(m.Room)).Str("type", f.Type).Msg("ignoring frame")
		return nil
	default:
		return fmt.Errorf("unhandled frame %T", in)
	}
}

// admitFrame checks the room binding and the sender's rate.
func (o *Orchestrator) admitFrame(m *domain.Member, room domain.RoomID) error {
	if room != "" && room != m.Room {
		return fmt.Errorf("%w: bound to %s, got %s", ErrRoomMismatch, m.Room, room)
	}
	if !o.Limiter.Allow(m.Room, m.Identity) {
		return ErrRateLimited
	}
	return nil
}

// PublishMessage appends msg to the room log and fans it out. The fan-out
// happens even when the append fails, but the failure is returned.
func (o *Orchestrator) PublishMessage(ctx context.Context, msg domain.ChatMessage) error {
	appendErr := o.Store.AppendMessage(ctx, msg.RoomID, msg)
	if appendErr != nil {
		log.Error().Err(appendErr).Str("module", "orch").Str("room", string(msg.RoomID)).Msg("append failed")
	}
	if _, err := o.Broadcast(ctx, msg.RoomID, msg, nil); err != nil {
		return err
	}
	if appendErr != nil {
		return fmt.Errorf("%w: %v", ErrNotPersisted, appendErr)
	}
	return nil
}

// PublishKey stores the sender's key and relays it to everyone but the
// sender.
func (o *Orchestrator) PublishKey(ctx context.Context, msg domain.PublicKeyMessage) error {
	saveErr := o.Store.SavePublicKey(ctx, msg.Username, msg.PublicKey)
	if saveErr != nil {
		log.Error().Err(saveErr).Str("module", "orch").Str("user", string(msg.Username)).Msg("save public key failed")
	}
	notSender := func(m *domain.Member) bool { return m.Identity == msg.Username }
	if _, err := o.Broadcast(ctx, msg.RoomID, msg, notSender); err != nil {
		return err
	}
	if saveErr != nil {
		return fmt.Errorf("%w: %v", ErrNotPersisted, saveErr)
	}
	return nil
}

func stamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts
}

// Submit ingests a frame that arrived without a live connection, e.g. over
// REST. The token alone decides who the sender is.
func (o *Orchestrator) Submit(ctx context.Context, token string, room domain.RoomID, in domain.Inbound) (domain.Identity, error) {
	sess, err := o.Auth.Validate(token)
	if err != nil {
		return "", err
	}
	m := domain.NewMember(room, sess.ID, sess.Identity, "", "")
	return sess.Identity, o.Ingest(ctx, m, in)
}
