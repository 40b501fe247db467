package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/domain"
)

type addrKey struct {
	room domain.RoomID
	addr string
}

type addrList struct {
	ids     []domain.Identity
	expires time.Time
}

// Memory keeps everything in process. Useful for tests and single-node dev
// setups where history need not survive a restart.
type Memory struct {
	mu      sync.RWMutex
	logs    map[domain.RoomID][]domain.ChatMessage
	options map[domain.RoomID]domain.RoomOptions
	addrs   map[addrKey]*addrList
	keys    map[domain.Identity]string
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		logs:    make(map[domain.RoomID][]domain.ChatMessage),
		options: make(map[domain.RoomID]domain.RoomOptions),
		addrs:   make(map[addrKey]*addrList),
		keys:    make(map[domain.Identity]string),
		now:     time.Now,
	}
}

func (m *Memory) AppendMessage(_ context.Context, room domain.RoomID, msg domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[room] = append(m.logs[room], msg)
	return nil
}

func (m *Memory) History(_ context.Context, room domain.RoomID) ([]domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.logs[room]), nil
}

func (m *Memory) SaveRoomOptions(_ context.Context, opts domain.RoomOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options[opts.RoomID] = opts
	return nil
}

func (m *Memory) LoadRoomOptions(_ context.Context, room domain.RoomID) (domain.RoomOptions, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	opts, ok := m.options[room]
	if !ok {
		return domain.RoomOptions{}, ErrNotFound
	}
	return opts, nil
}

func (m *Memory) AddAddressMember(_ context.Context, room domain.RoomID, addr string, id domain.Identity, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := addrKey{room, addr}
	l := m.liveList(k)
	if l == nil {
		l = &addrList{}
		m.addrs[k] = l
	}
	l.ids = append(l.ids, id)
	l.expires = m.now().Add(ttl)
	return nil
}

func (m *Memory) RemoveAddressMember(_ context.Context, room domain.RoomID, addr string, id domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := addrKey{room, addr}
	l := m.liveList(k)
	if l == nil {
		return nil
	}
	if i := slices.Index(l.ids, id); i >= 0 {
		l.ids = slices.Delete(l.ids, i, i+1)
	}
	if len(l.ids) == 0 {
		delete(m.addrs, k)
	}
	return nil
}

func (m *Memory) AddressMembers(_ context.Context, room domain.RoomID, addr string) ([]domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.liveList(addrKey{room, addr})
	if l == nil {
		return nil, nil
	}
	return slices.Clone(l.ids), nil
}

// liveList drops the list if it has expired. Callers hold mu for writing.
func (m *Memory) liveList(k addrKey) *addrList {
	l, ok := m.addrs[k]
	if !ok {
		return nil
	}
	if !l.expires.IsZero() && !m.now().Before(l.expires) {
		delete(m.addrs, k)
		return nil
	}
	return l
}

func (m *Memory) SavePublicKey(_ context.Context, id domain.Identity, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[id] = key
	return nil
}

func (m *Memory) PublicKey(_ context.Context, id domain.Identity) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.keys[id]
	if !ok {
		return "", ErrNotFound
	}
	return key, nil
}

func (m *Memory) Close() error { return nil }
