package integrationtest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	infra_memory_directory "github.com/humanbelnik/judgement/internal/infra/memory/directory"
	usecase_room "github.com/humanbelnik/judgement/internal/usecase/room"
	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type SessionIntegrationSuite struct {
	suite.Suite
}

func (s *SessionIntegrationSuite) TestLobbyToGame(t provider.T) {
	t.Parallel()
	ctx := context.Background()
	dir := infra_memory_directory.New()
	uc := usecase_room.New(dir)

	host := newSession(t, uc, "host")
	defer host.Close()
	guest := newSession(t, uc, "a")
	defer guest.Close()

	room, err := host.Create(ctx)
	require.NoError(t, err)
	waitFor(t, host, inState(usecase_room.StateInLobby, 1))

	_, err = guest.Join(ctx, room.Code)
	require.NoError(t, err)
	waitFor(t, guest, inState(usecase_room.StateInLobby, 2))
	waitFor(t, host, inState(usecase_room.StateInLobby, 2))

	_, err = guest.Start(ctx)
	assert.ErrorIs(t, err, usecase_room.ErrNotHost)

	_, err = host.Start(ctx)
	require.NoError(t, err)
	ev := waitFor(t, guest, inState(usecase_room.StateInGame, 2))
	assert.True(t, ev.Room.GameStarted)
	waitFor(t, host, inState(usecase_room.StateInGame, 2))

	state := guest.State()
	assert.Equal(t, usecase_room.StateInGame, state.State)
	assert.Equal(t, room.Code, state.Code)
}

func (s *SessionIntegrationSuite) TestHostLeaveClosesLobbyForEveryone(t provider.T) {
	t.Parallel()
	ctx := context.Background()
	dir := infra_memory_directory.New()
	uc := usecase_room.New(dir)

	host := newSession(t, uc, "host")
	defer host.Close()
	room, err := host.Create(ctx)
	require.NoError(t, err)

	guests := []*usecase_room.Session{newSession(t, uc, "a"), newSession(t, uc, "b")}
	for _, g := range guests {
		defer g.Close()
		_, err := g.Join(ctx, room.Code)
		require.NoError(t, err)
		waitFor(t, g, inState(usecase_room.StateInLobby, 0))
	}

	require.NoError(t, host.Leave(ctx))
	waitFor(t, host, left)

	for _, g := range guests {
		ev := waitFor(t, g, left)
		assert.ErrorIs(t, ev.Reason, usecase_room.ErrRoomClosed)
		assert.Equal(t, usecase_room.StateNoSession, g.State().State)
		assert.Empty(t, g.State().Code)
	}
	assert.Zero(t, dir.Subscribers(room.Code))
}

func (s *SessionIntegrationSuite) TestRemovedMember(t provider.T) {
	t.Parallel()
	ctx := context.Background()
	uc := usecase_room.New(infra_memory_directory.New())

	room, err := uc.CreateRoom(ctx, player("host"))
	require.NoError(t, err)

	guest := newSession(t, uc, "a")
	defer guest.Close()
	_, err = guest.Join(ctx, room.Code)
	require.NoError(t, err)
	waitFor(t, guest, inState(usecase_room.StateInLobby, 2))

	require.NoError(t, uc.LeaveRoom(ctx, room.Code, "a"))
	ev := waitFor(t, guest, left)
	assert.ErrorIs(t, ev.Reason, usecase_room.ErrRemovedFromRoom)

	_, err = guest.Join(ctx, room.Code)
	require.NoError(t, err)
	waitFor(t, guest, inState(usecase_room.StateInLobby, 2))
}

func (s *SessionIntegrationSuite) TestOneRoomAtATime(t provider.T) {
	t.Parallel()
	ctx := context.Background()
	uc := usecase_room.New(infra_memory_directory.New())

	first, err := uc.CreateRoom(ctx, player("h1"))
	require.NoError(t, err)
	second, err := uc.CreateRoom(ctx, player("h2"))
	require.NoError(t, err)

	guest := newSession(t, uc, "a")
	defer guest.Close()
	_, err = guest.Join(ctx, first.Code)
	require.NoError(t, err)

	_, err = guest.Join(ctx, second.Code)
	assert.ErrorIs(t, err, usecase_room.ErrAlreadyInRoom)
	_, err = guest.Create(ctx)
	assert.ErrorIs(t, err, usecase_room.ErrAlreadyInRoom)

	_, err = guest.Join(ctx, first.Code)
	assert.NoError(t, err)
	waitFor(t, guest, inState(usecase_room.StateInLobby, 2))
}

func (s *SessionIntegrationSuite) TestSupersededJoinIsUndone(t provider.T) {
	t.Parallel()
	ctx := context.Background()

	var (
		armed   atomic.Bool
		reached = make(chan struct{})
		release = make(chan struct{})
	)
	dir := infra_memory_directory.New(infra_memory_directory.WithBeforeCommit(func(string) {
		if armed.CompareAndSwap(true, false) {
			close(reached)
			<-release
		}
	}))
	uc := usecase_room.New(dir)

	room, err := uc.CreateRoom(ctx, player("host"))
	require.NoError(t, err)

	guest := newSession(t, uc, "a")
	defer guest.Close()

	armed.Store(true)
	joined := make(chan error, 1)
	go func() {
		_, err := guest.Join(ctx, room.Code)
		joined <- err
	}()

	<-reached
	// The user navigates away while the join is still in flight.
	require.NoError(t, guest.Leave(ctx))
	close(release)

	assert.ErrorIs(t, <-joined, usecase_room.ErrSessionSuperseded)
	assert.Equal(t, usecase_room.StateNoSession, guest.State().State)

	got, err := uc.GetRoom(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, []string{"host"}, got.PlayerIDs())
}

func (s *SessionIntegrationSuite) TestDirectoryFailureEndsSession(t provider.T) {
	t.Parallel()
	ctx := context.Background()
	dir := infra_memory_directory.New()
	uc := usecase_room.New(dir)

	host := newSession(t, uc, "host")
	defer host.Close()
	_, err := host.Create(ctx)
	require.NoError(t, err)
	waitFor(t, host, inState(usecase_room.StateInLobby, 1))

	dir.SetFailure(infra_memory_directory.ErrInjected)
	ev := waitFor(t, host, left)
	assert.ErrorIs(t, ev.Reason, usecase_room.ErrDirectoryUnavailable)
	assert.True(t, errors.Is(ev.Reason, infra_memory_directory.ErrInjected))

	_, err = host.Start(ctx)
	assert.ErrorIs(t, err, usecase_room.ErrNoSession)
}

func (s *SessionIntegrationSuite) TestFailedLeaveIsRetried(t provider.T) {
	t.Parallel()
	ctx := context.Background()
	dir := infra_memory_directory.New()
	uc := usecase_room.New(dir)

	host := newSession(t, uc, "host")
	defer host.Close()
	room, err := host.Create(ctx)
	require.NoError(t, err)
	waitFor(t, host, inState(usecase_room.StateInLobby, 1))

	dir.SetFailure(infra_memory_directory.ErrInjected)
	err = host.Leave(ctx)
	require.ErrorIs(t, err, usecase_room.ErrDirectoryUnavailable)

	_, err = host.Create(ctx)
	assert.ErrorIs(t, err, usecase_room.ErrAlreadyInRoom)

	dir.SetFailure(nil)
	_, err = uc.GetRoom(ctx, room.Code)
	require.NoError(t, err, "room must survive the failed leave")

	require.NoError(t, host.Leave(ctx))
	_, err = uc.GetRoom(ctx, room.Code)
	assert.ErrorIs(t, err, usecase_room.ErrRoomNotFound)

	require.NoError(t, host.Leave(ctx))
	_, err = host.Create(ctx)
	assert.NoError(t, err)
}

func (s *SessionIntegrationSuite) TestRejoinAfterFailedWatch(t provider.T) {
	t.Parallel()
	ctx := context.Background()
	dir := infra_memory_directory.New()
	uc := usecase_room.New(dir)

	host := newSession(t, uc, "host")
	defer host.Close()
	room, err := host.Create(ctx)
	require.NoError(t, err)
	waitFor(t, host, inState(usecase_room.StateInLobby, 1))

	dir.SetFailure(infra_memory_directory.ErrInjected)
	waitFor(t, host, left)
	dir.SetFailure(nil)

	_, err = host.Create(ctx)
	assert.ErrorIs(t, err, usecase_room.ErrAlreadyInRoom)

	require.Zero(t, dir.Subscribers(room.Code))
	_, err = host.Join(ctx, room.Code)
	require.NoError(t, err)
	waitFor(t, host, inState(usecase_room.StateInLobby, 1))
	assert.Equal(t, 1, dir.Subscribers(room.Code))
}

func (s *SessionIntegrationSuite) TestClosedSession(t provider.T) {
	t.Parallel()
	uc := usecase_room.New(infra_memory_directory.New())

	sess := newSession(t, uc, "host")
	sess.Close()
	sess.Close()

	_, err := sess.Create(context.Background())
	assert.ErrorIs(t, err, usecase_room.ErrSessionClosed)

	_, err = uc.NewSession(player(""))
	assert.Error(t, err)
}

func TestSessionIntegrationSuite(t *testing.T) {
	suite.RunSuite(t, new(SessionIntegrationSuite))
}
