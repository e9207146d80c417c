package feed

import (
	"sync"

	"github.com/humanbelnik/judgement/internal/model"
)

// Queue delivers events to one consumer in push order. Push never blocks
// the producer; Close stops delivery and closes the Events channel.
type Queue struct {
	mu      sync.Mutex
	pending []model.RoomEvent
	seen    int64
	closed  bool

	signal chan struct{}
	out    chan model.RoomEvent
	done   chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
	onClose   func()
}

func NewQueue(onClose func()) *Queue {
	q := &Queue{
		seen:    -1,
		signal:  make(chan struct{}, 1),
		out:     make(chan model.RoomEvent),
		done:    make(chan struct{}),
		onClose: onClose,
	}
	q.wg.Add(1)
	go q.pump()
	return q
}

func (q *Queue) Events() <-chan model.RoomEvent {
	return q.out
}

// Push enqueues ev unless version is not newer than the last accepted one.
// Errors (version 0) are always accepted.
func (q *Queue) Push(ev model.RoomEvent, version int64) bool {
	q.mu.Lock()
	if q.closed || (ev.Err == nil && version <= q.seen) {
		q.mu.Unlock()
		return false
	}
	if ev.Err == nil {
		q.seen = version
	}
	q.pending = append(q.pending, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.pending = nil
		q.mu.Unlock()

		close(q.done)
		q.wg.Wait()
		if q.onClose != nil {
			q.onClose()
		}
	})
}

func (q *Queue) pump() {
	defer q.wg.Done()
	defer close(q.out)

	for {
		select {
		case <-q.done:
			return
		case <-q.signal:
		}
		for {
			q.mu.Lock()
			if len(q.pending) == 0 {
				q.mu.Unlock()
				break
			}
			ev := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()

			select {
			case q.out <- ev:
			case <-q.done:
				return
			}
		}
	}
}

// Hub fans events out to the queues registered for a room code.
type Hub struct {
	mu     sync.Mutex
	queues map[string]map[*Queue]struct{}
}

func NewHub() *Hub {
	return &Hub{queues: make(map[string]map[*Queue]struct{})}
}

// Add registers a new queue for code. Closing the queue unregisters it.
func (h *Hub) Add(code string) *Queue {
	var q *Queue
	q = NewQueue(func() { h.remove(code, q) })

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.queues[code]; !ok {
		h.queues[code] = make(map[*Queue]struct{})
	}
	h.queues[code][q] = struct{}{}
	return q
}

func (h *Hub) remove(code string, q *Queue) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if qs, ok := h.queues[code]; ok {
		delete(qs, q)
		if len(qs) == 0 {
			delete(h.queues, code)
		}
	}
}

func (h *Hub) Publish(code string, ev model.RoomEvent, version int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for q := range h.queues[code] {
		q.Push(ev, version)
	}
}

// Codes lists the room codes that currently have subscribers.
func (h *Hub) Codes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	codes := make([]string, 0, len(h.queues))
	for code := range h.queues {
		codes = append(codes, code)
	}
	return codes
}

func (h *Hub) Subscribers(code string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queues[code])
}
