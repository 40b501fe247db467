package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/store"
)

var ErrRoomConfig = errors.New("invalid room configuration")

// RoomManagerImpl resolves room ids to live rooms. A room's options are
// loaded from the store the first time it is referenced and fall back to the
// policy when the store has none.
type RoomManagerImpl struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomID]core.RoomService
	store  store.Store
	policy Policy
}

func NewRoomManager(st store.Store, policy Policy) *RoomManagerImpl {
	if policy == nil {
		policy = SimplePolicy{Visibility: domain.Public}
	}
	return &RoomManagerImpl{
		rooms:  make(map[domain.RoomID]core.RoomService),
		store:  st,
		policy: policy,
	}
}

func (f *RoomManagerImpl) Get(id domain.RoomID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManagerImpl) GetOrCreate(ctx context.Context, id domain.RoomID) (core.RoomService, error) {
	if room, ok := f.Get(id); ok {
		return room, nil
	}

	opts, err := f.resolveOptions(ctx, id)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok := f.rooms[id]; ok {
		return room, nil
	}
	room := core.NewRoomService(opts)
	f.rooms[id] = room
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("visibility", string(opts.Visibility)).
		Int("ceiling", opts.MaxConnectionsPerIP).Msg("room created")
	return room, nil
}

func (f *RoomManagerImpl) resolveOptions(ctx context.Context, id domain.RoomID) (domain.RoomOptions, error) {
	opts, err := f.store.LoadRoomOptions(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return f.policy.DefaultOptions(id), nil
	case err != nil:
		return domain.RoomOptions{}, fmt.Errorf("%w: %v", ErrRoomConfig, err)
	}
	opts.RoomID = id
	norm, err := opts.Normalize()
	if err != nil {
		return domain.RoomOptions{}, fmt.Errorf("%w: stored options for %s: %v", ErrRoomConfig, id, err)
	}
	return norm, nil
}

// SetOptions persists first so a failed write leaves the live room as it was.
func (f *RoomManagerImpl) SetOptions(ctx context.Context, opts domain.RoomOptions) (domain.RoomOptions, error) {
	if opts.Visibility == domain.Private && opts.MaxConnectionsPerIP == 0 {
		opts.MaxConnectionsPerIP = f.policy.DefaultCeiling()
	}
	norm, err := opts.Normalize()
	if err != nil {
		return domain.RoomOptions{}, fmt.Errorf("%w: %v", ErrRoomConfig, err)
	}
	if err := f.store.SaveRoomOptions(ctx, norm); err != nil {
		return domain.RoomOptions{}, fmt.Errorf("persist room options: %w", err)
	}
	f.mu.Lock()
	room, ok := f.rooms[norm.RoomID]
	if !ok {
		room = core.NewRoomService(norm)
		f.rooms[norm.RoomID] = room
	}
	f.mu.Unlock()
	if ok {
		room.SetOptions(norm)
	}
	return norm, nil
}

func (f *RoomManagerImpl) Options(ctx context.Context, id domain.RoomID) (domain.RoomOptions, error) {
	if room, ok := f.Get(id); ok {
		return room.Options(), nil
	}
	return f.resolveOptions(ctx, id)
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{ID: id, Visibility: r.Options().Visibility, MemberCount: r.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
