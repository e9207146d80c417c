// Package directorytest holds the behaviour every room directory backend
// must show. Backend packages run it against their own constructor.
package directorytest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/humanbelnik/judgement/internal/model"
	usecase_room "github.com/humanbelnik/judgement/internal/usecase/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Factory func(t *testing.T) usecase_room.RoomDirectory

const waitTimeout = 2 * time.Second

var errAbort = errors.New("abort")

func Run(t *testing.T, newDirectory Factory) {
	t.Run("create and get", func(t *testing.T) { testCreateGet(t, newDirectory(t)) })
	t.Run("create conflict", func(t *testing.T) { testCreateConflict(t, newDirectory(t)) })
	t.Run("transact put and delete", func(t *testing.T) { testTransactPutDelete(t, newDirectory(t)) })
	t.Run("transact abort", func(t *testing.T) { testTransactAbort(t, newDirectory(t)) })
	t.Run("concurrent transacts", func(t *testing.T) { testConcurrentTransacts(t, newDirectory(t)) })
	t.Run("subscribe", func(t *testing.T) { testSubscribe(t, newDirectory(t)) })
	t.Run("subscribe absent", func(t *testing.T) { testSubscribeAbsent(t, newDirectory(t)) })
	t.Run("close stops delivery", func(t *testing.T) { testCloseStopsDelivery(t, newDirectory(t)) })
}

func Room(code string, players ...string) *model.Room {
	r := &model.Room{
		Code:      code,
		HostID:    players[0],
		HostName:  "name-" + players[0],
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	for _, id := range players {
		r.Players = append(r.Players, model.Player{ID: id, Name: "name-" + id})
	}
	return r
}

// Next waits for one event on sub.
func Next(t *testing.T, sub model.Subscription) model.RoomEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("no event delivered")
	}
	return model.RoomEvent{}
}

func appendPlayer(id string) model.TxFunc {
	return func(current *model.Room) (model.TxResult, error) {
		if current == nil {
			return model.Keep(), usecase_room.ErrRoomNotFound
		}
		next := current.Clone()
		next.Players = append(next.Players, model.Player{ID: id, Name: "name-" + id})
		return model.Put(next), nil
	}
}

func testCreateGet(t *testing.T, d usecase_room.RoomDirectory) {
	ctx := context.Background()

	got, err := d.Get(ctx, "AAAA")
	require.NoError(t, err)
	assert.Nil(t, got)

	created, err := d.Create(ctx, Room("AAAA", "host"))
	require.NoError(t, err)
	assert.Equal(t, "AAAA", created.Code)
	assert.Positive(t, created.Version)

	got, err = d.Get(ctx, "AAAA")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.Version, got.Version)
	assert.Equal(t, []string{"host"}, got.PlayerIDs())
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt))
}

func testCreateConflict(t *testing.T, d usecase_room.RoomDirectory) {
	ctx := context.Background()

	_, err := d.Create(ctx, Room("BBBB", "host"))
	require.NoError(t, err)
	_, err = d.Create(ctx, Room("BBBB", "other"))
	assert.ErrorIs(t, err, usecase_room.ErrCodeConflict)

	got, err := d.Get(ctx, "BBBB")
	require.NoError(t, err)
	assert.Equal(t, "host", got.HostID)
}

func testTransactPutDelete(t *testing.T, d usecase_room.RoomDirectory) {
	ctx := context.Background()

	created, err := d.Create(ctx, Room("CCCC", "host"))
	require.NoError(t, err)

	updated, err := d.Transact(ctx, "CCCC", appendPlayer("a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"host", "a"}, updated.PlayerIDs())
	assert.Greater(t, updated.Version, created.Version)

	kept, err := d.Transact(ctx, "CCCC", func(*model.Room) (model.TxResult, error) {
		return model.Keep(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, updated.Version, kept.Version)

	deleted, err := d.Transact(ctx, "CCCC", func(*model.Room) (model.TxResult, error) {
		return model.Delete(), nil
	})
	require.NoError(t, err)
	assert.Nil(t, deleted)

	got, err := d.Get(ctx, "CCCC")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = d.Transact(ctx, "CCCC", appendPlayer("b"))
	assert.ErrorIs(t, err, usecase_room.ErrRoomNotFound)
}

func testTransactAbort(t *testing.T, d usecase_room.RoomDirectory) {
	ctx := context.Background()

	created, err := d.Create(ctx, Room("DDDD", "host"))
	require.NoError(t, err)

	_, err = d.Transact(ctx, "DDDD", func(current *model.Room) (model.TxResult, error) {
		next := current.Clone()
		next.GameStarted = true
		return model.Put(next), errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	got, err := d.Get(ctx, "DDDD")
	require.NoError(t, err)
	assert.False(t, got.GameStarted)
	assert.Equal(t, created.Version, got.Version)
}

func testConcurrentTransacts(t *testing.T, d usecase_room.RoomDirectory) {
	ctx := context.Background()

	_, err := d.Create(ctx, Room("EEEE", "host"))
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Transact(ctx, "EEEE", appendPlayer(fmt.Sprintf("p%d", i)))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	got, err := d.Get(ctx, "EEEE")
	require.NoError(t, err)
	assert.Len(t, got.Players, writers+1)
	seen := map[string]bool{}
	for _, p := range got.Players {
		assert.False(t, seen[p.ID], "duplicate %s", p.ID)
		seen[p.ID] = true
	}
}

func testSubscribe(t *testing.T, d usecase_room.RoomDirectory) {
	ctx := context.Background()

	_, err := d.Create(ctx, Room("FFFF", "host"))
	require.NoError(t, err)

	sub, err := d.Subscribe(ctx, "FFFF")
	require.NoError(t, err)
	defer sub.Close()

	first := Next(t, sub)
	require.NoError(t, first.Err)
	require.NotNil(t, first.Room)
	assert.Equal(t, []string{"host"}, first.Room.PlayerIDs())

	for _, id := range []string{"a", "b"} {
		_, err := d.Transact(ctx, "FFFF", appendPlayer(id))
		require.NoError(t, err)
	}

	ev := Next(t, sub)
	require.NotNil(t, ev.Room)
	assert.Equal(t, []string{"host", "a"}, ev.Room.PlayerIDs())
	ev = Next(t, sub)
	require.NotNil(t, ev.Room)
	assert.Equal(t, []string{"host", "a", "b"}, ev.Room.PlayerIDs())

	_, err = d.Transact(ctx, "FFFF", func(*model.Room) (model.TxResult, error) {
		return model.Delete(), nil
	})
	require.NoError(t, err)
	assert.True(t, Next(t, sub).Absent())
}

func testSubscribeAbsent(t *testing.T, d usecase_room.RoomDirectory) {
	ctx := context.Background()

	sub, err := d.Subscribe(ctx, "GGGG")
	require.NoError(t, err)
	defer sub.Close()

	assert.True(t, Next(t, sub).Absent())
}

func testCloseStopsDelivery(t *testing.T, d usecase_room.RoomDirectory) {
	ctx := context.Background()

	_, err := d.Create(ctx, Room("HHHH", "host"))
	require.NoError(t, err)

	sub, err := d.Subscribe(ctx, "HHHH")
	require.NoError(t, err)
	Next(t, sub)
	sub.Close()

	_, err = d.Transact(ctx, "HHHH", appendPlayer("late"))
	require.NoError(t, err)

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok, "event delivered after Close")
	case <-time.After(waitTimeout):
		t.Fatal("events channel left open after Close")
	}
}
