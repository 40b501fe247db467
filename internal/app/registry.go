package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/store"
)

// Announcer is told about membership changes after they happen. Calls are
// made without any registry lock held.
type Announcer interface {
	OnJoin(room domain.RoomID, id domain.Identity)
	OnLeave(room domain.RoomID, id domain.Identity)
}

type sessionEntry struct {
	Room    domain.RoomID
	Session core.MemberSession
	Cancel  context.CancelFunc
	// joined is set once the join has been mirrored and is about to be
	// announced. A connection pruned before that is forgotten silently.
	joined bool
}

// Registry is the single source of truth for who is connected where. Room
// membership and address ledgers live in the rooms; the registry indexes live
// connections by id and identity and keeps the store mirror in step.
type Registry struct {
	Rooms *RoomManagerImpl

	store     store.Store
	ledgerTTL time.Duration
	announcer Announcer

	mu         sync.RWMutex
	conns      map[string]*sessionEntry
	identities map[domain.Identity]map[domain.SessionID]int
}

func NewRegistry(rooms *RoomManagerImpl, st store.Store, ledgerTTL time.Duration) *Registry {
	if ledgerTTL <= 0 {
		ledgerTTL = time.Hour
	}
	return &Registry{
		Rooms:      rooms,
		store:      st,
		ledgerTTL:  ledgerTTL,
		conns:      make(map[string]*sessionEntry),
		identities: make(map[domain.Identity]map[domain.SessionID]int),
	}
}

func (r *Registry) SetAnnouncer(a Announcer) { r.announcer = a }

// Register admits ms into its room. It fails with core.ErrAlreadyRegistered
// or core.ErrIPLimitExceeded, or ErrRoomConfig when the room cannot be
// resolved.
func (r *Registry) Register(ctx context.Context, ms core.MemberSession, cancel context.CancelFunc) error {
	m := ms.Meta()
	room, err := r.Rooms.GetOrCreate(ctx, m.Room)
	if err != nil {
		return err
	}
	if room.Options().Visibility == domain.Private && !room.AddressKnown(m.Addr) {
		r.restoreLedger(ctx, room, m.Addr)
	}

	// indexed before the room publishes it, so a fan-out that prunes it
	// straight away always finds the entry
	entry := &sessionEntry{Room: m.Room, Session: ms, Cancel: cancel}
	if !r.index(m, entry) {
		return core.ErrAlreadyRegistered
	}
	reclaimed, err := room.Admit(ms)
	if err != nil {
		r.unindex(m)
		return err
	}

	mirrored := false
	if room.Options().Visibility == domain.Private && !reclaimed {
		if err := r.store.AddAddressMember(ctx, m.Room, m.Addr, m.Identity, r.ledgerTTL); err != nil {
			log.Warn().Err(err).Str("module", "app.registry").Str("room", string(m.Room)).
				Str("addr", m.Addr).Msg("ledger mirror write failed")
		} else {
			mirrored = true
		}
	}

	r.mu.Lock()
	live := r.conns[m.ConnID] == entry
	entry.joined = live
	r.mu.Unlock()
	if !live {
		// pruned before the join completed; forget left the mirror to us
		if mirrored {
			r.removeMirror(ctx, m)
		}
		log.Info().Str("module", "app.registry").Str("room", string(m.Room)).Str("conn", m.ConnID).
			Msg("connection dropped during registration")
		return nil
	}

	log.Info().Str("module", "app.registry").Str("room", string(m.Room)).Str("sid", string(m.Session)).
		Str("user", string(m.Identity)).Str("conn", m.ConnID).Bool("reclaimed", reclaimed).Msg("registered")
	if r.announcer != nil {
		r.announcer.OnJoin(m.Room, m.Identity)
	}
	return nil
}

// index refuses a connection id that is already held.
func (r *Registry) index(m *domain.Member, entry *sessionEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[m.ConnID]; ok {
		return false
	}
	r.conns[m.ConnID] = entry
	sessions, ok := r.identities[m.Identity]
	if !ok {
		sessions = make(map[domain.SessionID]int)
		r.identities[m.Identity] = sessions
	}
	sessions[m.Session]++
	return true
}

// unindex drops the connection and reports whether its join had completed.
func (r *Registry) unindex(m *domain.Member) (*sessionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[m.ConnID]
	if !ok {
		return nil, false
	}
	delete(r.conns, m.ConnID)
	if sessions, ok := r.identities[m.Identity]; ok {
		if sessions[m.Session]--; sessions[m.Session] <= 0 {
			delete(sessions, m.Session)
		}
		if len(sessions) == 0 {
			delete(r.identities, m.Identity)
		}
	}
	return entry, entry.joined
}

func (r *Registry) restoreLedger(ctx context.Context, room core.RoomService, addr string) {
	ids, err := r.store.AddressMembers(ctx, room.ID(), addr)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.registry").Str("room", string(room.ID())).
			Str("addr", addr).Msg("ledger restore failed, continuing with in-memory state")
		return
	}
	room.SeedAddress(addr, ids, r.ledgerTTL)
}

// Unregister removes the connection described by m. Unregistering an absent
// entry is a no-op: disconnects may race with eviction.
func (r *Registry) Unregister(ctx context.Context, m *domain.Member) bool {
	room, ok := r.Rooms.Get(m.Room)
	if !ok {
		return false
	}
	ms, ok := room.RemoveConn(m)
	if !ok {
		return false
	}
	r.forget(ctx, room, ms)
	return true
}

// Retract finishes the removal of members a room already pruned during a
// fan-out.
func (r *Registry) Retract(ctx context.Context, dropped []core.MemberSession) {
	for _, ms := range dropped {
		room, ok := r.Rooms.Get(ms.Meta().Room)
		if !ok {
			continue
		}
		r.forget(ctx, room, ms)
	}
}

func (r *Registry) forget(ctx context.Context, room core.RoomService, ms core.MemberSession) {
	m := ms.Meta()
	entry, joined := r.unindex(m)
	if entry == nil {
		return
	}
	if entry.Cancel != nil {
		entry.Cancel()
	}
	if !joined {
		log.Info().Str("module", "app.registry").Str("room", string(m.Room)).Str("conn", m.ConnID).
			Msg("unregistered before join completed")
		return
	}
	if room.Options().Visibility == domain.Private {
		r.removeMirror(ctx, m)
	}
	log.Info().Str("module", "app.registry").Str("room", string(m.Room)).Str("sid", string(m.Session)).
		Str("user", string(m.Identity)).Str("conn", m.ConnID).Msg("unregistered")
	if r.announcer != nil {
		r.announcer.OnLeave(m.Room, m.Identity)
	}
}

func (r *Registry) removeMirror(ctx context.Context, m *domain.Member) {
	if err := r.store.RemoveAddressMember(ctx, m.Room, m.Addr, m.Identity); err != nil {
		log.Warn().Err(err).Str("module", "app.registry").Str("room", string(m.Room)).
			Str("addr", m.Addr).Msg("ledger mirror remove failed")
	}
}

// Members is a deduplicated snapshot of the identities in room.
func (r *Registry) Members(room domain.RoomID) []domain.Identity {
	rs, ok := r.Rooms.Get(room)
	if !ok {
		return []domain.Identity{}
	}
	return rs.Members()
}

func (r *Registry) AddressMembers(room domain.RoomID, addr string) []domain.Identity {
	rs, ok := r.Rooms.Get(room)
	if !ok {
		return []domain.Identity{}
	}
	return rs.AddressMembers(addr)
}

func (r *Registry) SetRoomOptions(ctx context.Context, opts domain.RoomOptions) (domain.RoomOptions, error) {
	return r.Rooms.SetOptions(ctx, opts)
}

func (r *Registry) GetRoomOptions(ctx context.Context, room domain.RoomID) (domain.RoomOptions, error) {
	return r.Rooms.Options(ctx, room)
}

// Sessions lists the live session ids of an identity across all rooms.
func (r *Registry) Sessions(id domain.Identity) []domain.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.SessionID, 0, len(r.identities[id]))
	for sid := range r.identities[id] {
		out = append(out, sid)
	}
	return out
}

func (r *Registry) GetSession(connID string) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[connID]; ok {
		return e.Session, true
	}
	return nil, false
}

// All returns every live connection.
func (r *Registry) All() []core.MemberSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.MemberSession, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, e.Session)
	}
	return out
}
