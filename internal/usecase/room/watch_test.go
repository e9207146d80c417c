package usecase_room

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/humanbelnik/judgement/internal/model"
	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscription struct {
	events chan model.RoomEvent
	closed atomic.Int32
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{events: make(chan model.RoomEvent, 8)}
}

func (s *fakeSubscription) Events() <-chan model.RoomEvent {
	return s.events
}

func (s *fakeSubscription) Close() {
	s.closed.Add(1)
}

func nextWatchEvent(t provider.T, w *RoomWatch) WatchEvent {
	select {
	case ev, ok := <-w.Updates():
		require.True(t, ok, "updates closed")
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no watch event")
	}
	return WatchEvent{}
}

func updatesClosed(t provider.T, w *RoomWatch) {
	select {
	case _, ok := <-w.Updates():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatalf("updates left open")
	}
}

func (suite *UsecaseRoomUnitSuite) TestWatchRoom(t provider.T) {
	t.Parallel()

	t.Run("Should forward snapshots then close with the room", func(t provider.T) {
		t.Parallel()
		r := initResources(t)
		sub := newFakeSubscription()
		r.directory.On("Subscribe", r.ctx, validRoomCode()).Return(sub, nil).Once()

		w, err := r.usecase.WatchRoom(r.ctx, "abcd")
		require.NoError(t, err)
		assert.Equal(t, validRoomCode(), w.Code())

		sub.events <- model.RoomEvent{Room: lobby()}
		sub.events <- model.RoomEvent{Room: lobby(player("a"))}
		sub.events <- model.RoomEvent{}

		ev := nextWatchEvent(t, w)
		assert.Equal(t, WatchUpdated, ev.Kind)
		assert.Equal(t, []string{"host"}, ev.Room.PlayerIDs())
		ev = nextWatchEvent(t, w)
		assert.Equal(t, []string{"host", "a"}, ev.Room.PlayerIDs())
		assert.Equal(t, WatchClosed, nextWatchEvent(t, w).Kind)

		updatesClosed(t, w)
		assert.Equal(t, int32(1), sub.closed.Load())
		w.Stop()
	})

	t.Run("Should fail on feed errors", func(t provider.T) {
		t.Parallel()
		r := initResources(t)
		sub := newFakeSubscription()
		r.directory.On("Subscribe", r.ctx, validRoomCode()).Return(sub, nil).Once()

		w, err := r.usecase.WatchRoom(r.ctx, validRoomCode())
		require.NoError(t, err)

		sub.events <- model.RoomEvent{Err: errBackend}
		ev := nextWatchEvent(t, w)
		assert.Equal(t, WatchFailed, ev.Kind)
		assert.ErrorIs(t, ev.Err, ErrDirectoryUnavailable)
		assert.ErrorIs(t, ev.Err, errBackend)
		updatesClosed(t, w)
	})

	t.Run("Should fail when the feed ends", func(t provider.T) {
		t.Parallel()
		r := initResources(t)
		sub := newFakeSubscription()
		r.directory.On("Subscribe", r.ctx, validRoomCode()).Return(sub, nil).Once()

		w, err := r.usecase.WatchRoom(r.ctx, validRoomCode())
		require.NoError(t, err)

		close(sub.events)
		ev := nextWatchEvent(t, w)
		assert.Equal(t, WatchFailed, ev.Kind)
		assert.ErrorIs(t, ev.Err, ErrDirectoryUnavailable)
	})

	t.Run("Should deliver nothing after Stop", func(t provider.T) {
		t.Parallel()
		r := initResources(t)
		sub := newFakeSubscription()
		r.directory.On("Subscribe", r.ctx, validRoomCode()).Return(sub, nil).Once()

		w, err := r.usecase.WatchRoom(r.ctx, validRoomCode())
		require.NoError(t, err)

		w.Stop()
		w.Stop()
		sub.events <- model.RoomEvent{Room: lobby()}
		updatesClosed(t, w)
		assert.Equal(t, int32(1), sub.closed.Load())
	})

	t.Run("Should report subscribe failures", func(t provider.T) {
		t.Parallel()
		r := initResources(t)
		r.directory.On("Subscribe", r.ctx, validRoomCode()).Return(nil, errors.New("dial tcp: timeout")).Once()

		_, err := r.usecase.WatchRoom(r.ctx, validRoomCode())
		assert.ErrorIs(t, err, ErrDirectoryUnavailable)
	})
}
