package feed

import (
	"errors"
	"testing"
	"time"

	"github.com/humanbelnik/judgement/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roomEvent(v int64) model.RoomEvent {
	return model.RoomEvent{Room: &model.Room{Code: "ABCD", Version: v}}
}

func next(t *testing.T, q *Queue) model.RoomEvent {
	t.Helper()
	select {
	case ev, ok := <-q.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	return model.RoomEvent{}
}

func TestQueueDeliversInOrderWithoutBlockingProducer(t *testing.T) {
	q := NewQueue(nil)
	defer q.Close()

	for v := int64(1); v <= 100; v++ {
		assert.True(t, q.Push(roomEvent(v), v))
	}
	for v := int64(1); v <= 100; v++ {
		assert.Equal(t, v, next(t, q).Room.Version)
	}
}

func TestQueueDropsStaleVersions(t *testing.T) {
	q := NewQueue(nil)
	defer q.Close()

	assert.True(t, q.Push(model.RoomEvent{}, 0))
	assert.True(t, q.Push(roomEvent(3), 3))
	assert.False(t, q.Push(roomEvent(3), 3))
	assert.False(t, q.Push(roomEvent(2), 2))
	assert.True(t, q.Push(model.RoomEvent{Err: errors.New("boom")}, 0))

	assert.True(t, next(t, q).Absent())
	assert.Equal(t, int64(3), next(t, q).Room.Version)
	assert.Error(t, next(t, q).Err)
}

func TestQueueCloseStopsDelivery(t *testing.T) {
	closed := false
	q := NewQueue(func() { closed = true })
	q.Push(roomEvent(1), 1)
	q.Push(roomEvent(2), 2)

	q.Close()
	q.Close()

	assert.True(t, closed)
	assert.False(t, q.Push(roomEvent(3), 3))
	_, ok := <-q.Events()
	assert.False(t, ok)
}

func TestHubFanOut(t *testing.T) {
	h := NewHub()
	a := h.Add("ABCD")
	b := h.Add("ABCD")
	other := h.Add("WXYZ")
	defer other.Close()

	assert.Equal(t, 2, h.Subscribers("ABCD"))
	assert.ElementsMatch(t, []string{"ABCD", "WXYZ"}, h.Codes())

	h.Publish("ABCD", roomEvent(1), 1)
	assert.Equal(t, int64(1), next(t, a).Room.Version)
	assert.Equal(t, int64(1), next(t, b).Room.Version)

	a.Close()
	assert.Equal(t, 1, h.Subscribers("ABCD"))
	b.Close()
	assert.Zero(t, h.Subscribers("ABCD"))
	assert.Equal(t, []string{"WXYZ"}, h.Codes())
}
