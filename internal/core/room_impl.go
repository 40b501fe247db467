package core

import (
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

type ledgerEntry struct {
	identity domain.Identity
	// restored entries come from a previous process and have no live
	// connection behind them until that identity is admitted again. They
	// stop counting at expires.
	restored bool
	expires  time.Time
}

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	id      domain.RoomID
	mu      sync.RWMutex
	options domain.RoomOptions
	members map[MemberKey]MemberSession
	order   []MemberKey
	ledger  map[string][]ledgerEntry
	seen    map[string]bool
	now     func() time.Time
}

func NewRoomService(opts domain.RoomOptions) RoomService {
	return &roomImpl{
		id:      opts.RoomID,
		options: opts,
		members: make(map[MemberKey]MemberSession),
		ledger:  make(map[string][]ledgerEntry),
		seen:    make(map[string]bool),
		now:     time.Now,
	}
}

func (r *roomImpl) ID() domain.RoomID { return r.id }

func (r *roomImpl) Options() domain.RoomOptions {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.options
}

// SetOptions swaps the configuration. Becoming private rebuilds the ledger
// from live members; becoming public drops it.
func (r *roomImpl) SetOptions(opts domain.RoomOptions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wasPrivate := r.options.Visibility == domain.Private
	r.options = opts
	switch {
	case opts.Visibility == domain.Private && !wasPrivate:
		r.ledger = make(map[string][]ledgerEntry)
		for _, key := range r.order {
			m := r.members[key].Meta()
			r.ledger[m.Addr] = append(r.ledger[m.Addr], ledgerEntry{identity: m.Identity})
			r.seen[m.Addr] = true
		}
	case opts.Visibility != domain.Private:
		r.ledger = make(map[string][]ledgerEntry)
		r.seen = make(map[string]bool)
	}
	log.Info().Str("module", "core.room").Str("room", string(r.id)).
		Str("visibility", string(opts.Visibility)).Int("ceiling", opts.MaxConnectionsPerIP).Msg("options set")
}

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *roomImpl) Has(key MemberKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[key]
	return ok
}

func (r *roomImpl) Admit(ms MemberSession) (bool, error) {
	m := ms.Meta()
	key := KeyOf(m)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[key]; ok {
		return false, ErrAlreadyRegistered
	}
	reclaimed := false
	if limit, ok := r.options.Ceiling(); ok {
		entries := r.expireLocked(m.Addr)
		if i := r.restoredIndex(entries, m.Identity); i >= 0 {
			entries[i].restored = false
			entries[i].expires = time.Time{}
			reclaimed = true
		} else {
			if len(entries) >= limit {
				return false, ErrIPLimitExceeded
			}
			r.ledger[m.Addr] = append(entries, ledgerEntry{identity: m.Identity})
		}
		r.seen[m.Addr] = true
	}
	r.members[key] = ms
	r.order = append(r.order, key)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(m.Session)).
		Str("user", string(m.Identity)).Str("addr", m.Addr).Bool("reclaimed", reclaimed).Msg("member added")
	return reclaimed, nil
}

// expireLocked drops restored entries of addr whose window has passed.
func (r *roomImpl) expireLocked(addr string) []ledgerEntry {
	entries := r.ledger[addr]
	now := r.now()
	kept := entries[:0]
	for _, e := range entries {
		if e.restored && !now.Before(e.expires) {
			log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("addr", addr).
				Str("user", string(e.identity)).Bool("restored", true).Msg("restored ledger entry expired")
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == 0 {
		delete(r.ledger, addr)
		return nil
	}
	r.ledger[addr] = kept
	return kept
}

func (r *roomImpl) restoredIndex(entries []ledgerEntry, id domain.Identity) int {
	for i, e := range entries {
		if e.restored && e.identity == id {
			return i
		}
	}
	return -1
}

func (r *roomImpl) RemoveMember(key MemberKey) (MemberSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.removeLocked(key)
	if ok {
		log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(key.Session)).
			Str("user", string(key.Identity)).Msg("member removed")
	}
	return ms, ok
}

func (r *roomImpl) RemoveConn(m *domain.Member) (MemberSession, bool) {
	key := KeyOf(m)
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.members[key]; !ok || cur.Meta().ConnID != m.ConnID {
		return nil, false
	}
	ms, _ := r.removeLocked(key)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(key.Session)).
		Str("user", string(key.Identity)).Str("conn", m.ConnID).Msg("member removed")
	return ms, true
}

// removeLocked drops the member and its ledger entry together.
func (r *roomImpl) removeLocked(key MemberKey) (MemberSession, bool) {
	ms, ok := r.members[key]
	if !ok {
		return nil, false
	}
	delete(r.members, key)
	if i := slices.Index(r.order, key); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}

	addr := ms.Meta().Addr
	entries := r.ledger[addr]
	for i, e := range entries {
		if !e.restored && e.identity == key.Identity {
			entries = slices.Delete(entries, i, i+1)
			break
		}
	}
	if len(entries) == 0 {
		delete(r.ledger, addr)
	} else {
		r.ledger[addr] = entries
	}
	return ms, true
}

func (r *roomImpl) Members() []domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Identity, 0, len(r.members))
	for key := range r.members {
		if !slices.Contains(out, key.Identity) {
			out = append(out, key.Identity)
		}
	}
	slices.Sort(out)
	return out
}

func (r *roomImpl) AddressMembers(addr string) []domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.ledger[addr]
	now := r.now()
	out := make([]domain.Identity, 0, len(entries))
	for _, e := range entries {
		if e.restored && !now.Before(e.expires) {
			continue
		}
		out = append(out, e.identity)
	}
	return out
}

func (r *roomImpl) AddressKnown(addr string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seen[addr]
}

func (r *roomImpl) SeedAddress(addr string, ids []domain.Identity, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[addr] || r.options.Visibility != domain.Private {
		return
	}
	r.seen[addr] = true
	expires := r.now().Add(ttl)
	for _, id := range ids {
		r.ledger[addr] = append(r.ledger[addr], ledgerEntry{identity: id, restored: true, expires: expires})
	}
	if len(ids) > 0 {
		log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("addr", addr).
			Int("entries", len(ids)).Bool("restored", true).Time("expires", expires).Msg("ledger restored")
	}
}

func (r *roomImpl) Broadcast(data Frame, skip func(*domain.Member) bool) PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := PublishResult{}
	for _, key := range slices.Clone(r.order) {
		m := r.members[key]
		if skip != nil && skip(m.Meta()) {
			continue
		}
		r.deliverLocked(key, m, data, &res)
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Int("sent_to", res.SendTo).
		Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) SendTo(to domain.Identity, data Frame) PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := PublishResult{}
	for _, key := range slices.Clone(r.order) {
		if key.Identity != to {
			continue
		}
		r.deliverLocked(key, r.members[key], data, &res)
	}
	return res
}

func (r *roomImpl) deliverLocked(key MemberKey, m MemberSession, data Frame, res *PublishResult) {
	if err := m.Signal().TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "core.room").Str("room", string(r.id)).
			Str("user", string(key.Identity)).Msg("send failed, pruning member")
		r.removeLocked(key)
		res.Dropped = append(res.Dropped, m)
		return
	}
	res.SendTo++
}
