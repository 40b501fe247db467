package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/store"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error     { return nil }
func (nopConn) CloseWithReason(int, string) {}
func (nopConn) Close()                      {}

type deadConn struct{ nopConn }

func (deadConn) TrySend(core.Frame) error { return core.ErrConnectionClosed }

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) OnJoin(room domain.RoomID, id domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "join:"+string(room)+":"+string(id))
}

func (r *recorder) OnLeave(room domain.RoomID, id domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "leave:"+string(room)+":"+string(id))
}

func session(room, id, addr string) core.MemberSession {
	m := domain.NewMember(domain.RoomID(room), domain.SessionID("s-"+id+"-"+addr), domain.Identity(id), addr, "c-"+id+"-"+addr)
	return core.NewMemberSession(m, nopConn{})
}

func newRegistry(t *testing.T, st store.Store) (*Registry, *recorder) {
	t.Helper()
	reg := NewRegistry(NewRoomManager(st, SimplePolicy{Visibility: domain.Public}), st, time.Hour)
	rec := &recorder{}
	reg.SetAnnouncer(rec)
	return reg, rec
}

func TestRegistry_PrivateRoomCeiling(t *testing.T) {
	st := store.NewMemory()
	reg, rec := newRegistry(t, st)
	ctx := context.Background()
	_, err := reg.SetRoomOptions(ctx, domain.RoomOptions{RoomID: "42", Visibility: domain.Private, MaxConnectionsPerIP: 2})
	require.NoError(t, err)

	require.NoError(t, reg.Register(ctx, session("42", "alice", "10.0.0.1"), nil))
	require.NoError(t, reg.Register(ctx, session("42", "bob", "10.0.0.1"), nil))
	assert.ErrorIs(t, reg.Register(ctx, session("42", "carol", "10.0.0.1"), nil), core.ErrIPLimitExceeded)
	require.NoError(t, reg.Register(ctx, session("42", "carol", "10.0.0.2"), nil))

	assert.Equal(t, []domain.Identity{"alice", "bob", "carol"}, reg.Members("42"))
	assert.Equal(t, []domain.Identity{"alice", "bob"}, reg.AddressMembers("42", "10.0.0.1"))

	mirrored, err := st.AddressMembers(ctx, "42", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Identity{"alice", "bob"}, mirrored)

	alice := session("42", "alice", "10.0.0.1")
	assert.True(t, reg.Unregister(ctx, alice.Meta()))
	assert.Equal(t, []domain.Identity{"bob"}, reg.AddressMembers("42", "10.0.0.1"))
	require.NoError(t, reg.Register(ctx, session("42", "carol", "10.0.0.1"), nil))
	assert.Equal(t, []domain.Identity{"bob", "carol"}, reg.AddressMembers("42", "10.0.0.1"))

	assert.Equal(t, []string{
		"join:42:alice", "join:42:bob", "join:42:carol", "leave:42:alice", "join:42:carol",
	}, rec.events)
}

func TestRegistry_PublicRoomHasNoCeiling(t *testing.T) {
	st := store.NewMemory()
	reg, _ := newRegistry(t, st)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, reg.Register(ctx, session("lobby", id, "10.0.0.1"), nil))
	}
	assert.Len(t, reg.Members("lobby"), 5)
	assert.Empty(t, reg.AddressMembers("lobby", "10.0.0.1"))

	mirrored, err := st.AddressMembers(ctx, "lobby", "10.0.0.1")
	require.NoError(t, err)
	assert.Empty(t, mirrored)
}

func TestRegistry_DuplicateSlotRejected(t *testing.T) {
	reg, rec := newRegistry(t, store.NewMemory())
	ctx := context.Background()
	require.NoError(t, reg.Register(ctx, session("lobby", "alice", "10.0.0.1"), nil))
	assert.ErrorIs(t, reg.Register(ctx, session("lobby", "alice", "10.0.0.1"), nil), core.ErrAlreadyRegistered)
	assert.Equal(t, []string{"join:lobby:alice"}, rec.events)
}

func TestRegistry_UnregisterIsIdempotentAndCancels(t *testing.T) {
	reg, rec := newRegistry(t, store.NewMemory())
	ctx := context.Background()
	ms := session("lobby", "alice", "10.0.0.1")
	connCtx, cancel := context.WithCancel(ctx)
	require.NoError(t, reg.Register(ctx, ms, cancel))
	assert.Equal(t, []domain.SessionID{"s-alice-10.0.0.1"}, reg.Sessions("alice"))

	assert.True(t, reg.Unregister(ctx, ms.Meta()))
	assert.False(t, reg.Unregister(ctx, ms.Meta()))
	assert.False(t, reg.Unregister(ctx, session("ghost", "x", "10.0.0.9").Meta()))

	assert.ErrorIs(t, connCtx.Err(), context.Canceled)
	assert.Empty(t, reg.Sessions("alice"))
	assert.Empty(t, reg.All())
	assert.Equal(t, []string{"join:lobby:alice", "leave:lobby:alice"}, rec.events)
}

func TestRegistry_RetractPrunedMembers(t *testing.T) {
	reg, rec := newRegistry(t, store.NewMemory())
	ctx := context.Background()
	ms := session("lobby", "bob", "10.0.0.2")
	require.NoError(t, reg.Register(ctx, ms, nil))

	room, ok := reg.Rooms.Get("lobby")
	require.True(t, ok)
	removed, ok := room.RemoveMember(core.KeyOf(ms.Meta()))
	require.True(t, ok)

	reg.Retract(ctx, []core.MemberSession{removed})
	_, ok = reg.GetSession(ms.Meta().ConnID)
	assert.False(t, ok)
	assert.Equal(t, []string{"join:lobby:bob", "leave:lobby:bob"}, rec.events)
}

func TestRegistry_RestoresLedgerFromStore(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.SaveRoomOptions(ctx, domain.RoomOptions{RoomID: "42", Visibility: domain.Private, MaxConnectionsPerIP: 2}))
	require.NoError(t, st.AddAddressMember(ctx, "42", "10.0.0.1", "alice", time.Hour))
	require.NoError(t, st.AddAddressMember(ctx, "42", "10.0.0.1", "bob", time.Hour))

	reg, _ := newRegistry(t, st)
	assert.ErrorIs(t, reg.Register(ctx, session("42", "carol", "10.0.0.1"), nil), core.ErrIPLimitExceeded)
	// a restored slot belongs to the identity that held it
	alice := session("42", "alice", "10.0.0.1")
	require.NoError(t, reg.Register(ctx, alice, nil))
	assert.Equal(t, []domain.Identity{"alice"}, reg.Members("42"))

	// reclaiming does not add a second copy to the mirror
	mirrored, err := st.AddressMembers(ctx, "42", "10.0.0.1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.Identity{"alice", "bob"}, mirrored)

	assert.True(t, reg.Unregister(ctx, alice.Meta()))
	mirrored, err = st.AddressMembers(ctx, "42", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Identity{"bob"}, mirrored)
	assert.Equal(t, []domain.Identity{"bob"}, reg.AddressMembers("42", "10.0.0.1"))
}

func TestRegistry_RestoredLedgerExpires(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	ttl := 50 * time.Millisecond
	require.NoError(t, st.SaveRoomOptions(ctx, domain.RoomOptions{RoomID: "42", Visibility: domain.Private, MaxConnectionsPerIP: 2}))
	require.NoError(t, st.AddAddressMember(ctx, "42", "10.0.0.1", "alice", ttl))
	require.NoError(t, st.AddAddressMember(ctx, "42", "10.0.0.1", "bob", ttl))

	reg := NewRegistry(NewRoomManager(st, SimplePolicy{Visibility: domain.Public}), st, ttl)
	carol := session("42", "carol", "10.0.0.1")
	assert.ErrorIs(t, reg.Register(ctx, carol, nil), core.ErrIPLimitExceeded)

	time.Sleep(3 * ttl)
	assert.Empty(t, reg.AddressMembers("42", "10.0.0.1"))
	require.NoError(t, reg.Register(ctx, carol, nil))
	assert.Equal(t, []domain.Identity{"carol"}, reg.AddressMembers("42", "10.0.0.1"))
}

func TestRegistry_PrunedDuringRegistration(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := store.NewMockStore(ctrl)
	ctx := context.Background()
	var reg *Registry

	st.EXPECT().LoadRoomOptions(gomock.Any(), domain.RoomID("42")).
		Return(domain.RoomOptions{RoomID: "42", Visibility: domain.Private, MaxConnectionsPerIP: 2}, nil)
	st.EXPECT().AddressMembers(gomock.Any(), domain.RoomID("42"), "10.0.0.1").Return(nil, nil)
	// a fan-out lands while the join is being mirrored and prunes the dead peer
	st.EXPECT().AddAddressMember(gomock.Any(), domain.RoomID("42"), "10.0.0.1", domain.Identity("alice"), time.Hour).
		DoAndReturn(func(ctx context.Context, _ domain.RoomID, _ string, _ domain.Identity, _ time.Duration) error {
			room, ok := reg.Rooms.Get("42")
			require.True(t, ok)
			res := room.Broadcast(core.Frame("hi"), nil)
			require.Len(t, res.Dropped, 1)
			reg.Retract(ctx, res.Dropped)
			return nil
		})
	st.EXPECT().RemoveAddressMember(gomock.Any(), domain.RoomID("42"), "10.0.0.1", domain.Identity("alice")).Return(nil)

	reg, rec := newRegistry(t, st)
	m := domain.NewMember("42", "s-alice", "alice", "10.0.0.1", "c-alice")
	connCtx, cancel := context.WithCancel(ctx)
	require.NoError(t, reg.Register(ctx, core.NewMemberSession(m, deadConn{}), cancel))

	assert.ErrorIs(t, connCtx.Err(), context.Canceled)
	_, ok := reg.GetSession("c-alice")
	assert.False(t, ok)
	assert.Empty(t, reg.Sessions("alice"))
	assert.Empty(t, reg.Members("42"))
	assert.Empty(t, reg.AddressMembers("42", "10.0.0.1"))
	assert.Empty(t, rec.events)
}

func TestRegistry_StoreFailuresAreNotFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := store.NewMockStore(ctrl)
	ctx := context.Background()
	boom := errors.New("store down")

	st.EXPECT().LoadRoomOptions(gomock.Any(), domain.RoomID("42")).
		Return(domain.RoomOptions{RoomID: "42", Visibility: domain.Private, MaxConnectionsPerIP: 1}, nil)
	st.EXPECT().AddressMembers(gomock.Any(), domain.RoomID("42"), "10.0.0.1").Return(nil, boom)
	st.EXPECT().AddAddressMember(gomock.Any(), domain.RoomID("42"), "10.0.0.1", domain.Identity("alice"), time.Hour).Return(boom)
	st.EXPECT().RemoveAddressMember(gomock.Any(), domain.RoomID("42"), "10.0.0.1", domain.Identity("alice")).Return(boom)

	reg, _ := newRegistry(t, st)
	ms := session("42", "alice", "10.0.0.1")
	require.NoError(t, reg.Register(ctx, ms, nil))
	assert.True(t, reg.Unregister(ctx, ms.Meta()))
}

func TestRegistry_UnresolvableRoom(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := store.NewMockStore(ctrl)
	st.EXPECT().LoadRoomOptions(gomock.Any(), domain.RoomID("42")).
		Return(domain.RoomOptions{RoomID: "42", Visibility: domain.Private}, nil)

	reg, rec := newRegistry(t, st)
	err := reg.Register(context.Background(), session("42", "alice", "10.0.0.1"), nil)
	assert.ErrorIs(t, err, ErrRoomConfig)
	assert.Empty(t, rec.events)
}
