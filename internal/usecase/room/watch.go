package usecase_room

import (
	"context"
	"errors"
	"sync"

	"github.com/humanbelnik/judgement/internal/model"
)

var errFeedEnded = errors.New("change feed ended")

type WatchEventKind int

const (
	WatchUpdated WatchEventKind = iota
	WatchClosed
	WatchFailed
)

func (k WatchEventKind) String() string {
	switch k {
	case WatchUpdated:
		return "updated"
	case WatchClosed:
		return "closed"
	case WatchFailed:
		return "failed"
	}
	return "unknown"
}

type WatchEvent struct {
	Kind WatchEventKind
	Room *model.Room
	Err  error
}

// RoomWatch turns a directory subscription into room updates. Closed and
// Failed are terminal: the watch tears itself down after delivering them.
type RoomWatch struct {
	code string
	sub  model.Subscription
	out  chan WatchEvent

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func (u *Usecase) WatchRoom(ctx context.Context, code string) (*RoomWatch, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	sub, err := u.directory.Subscribe(ctx, code)
	if err != nil {
		return nil, unavailable(err)
	}

	w := &RoomWatch{
		code: code,
		sub:  sub,
		out:  make(chan WatchEvent),
		stop: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *RoomWatch) Code() string {
	return w.code
}

// Updates is closed once the watch stops.
func (w *RoomWatch) Updates() <-chan WatchEvent {
	return w.out
}

// Stop tears the watch down. Nothing is delivered after Stop returns.
func (w *RoomWatch) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	w.wg.Wait()
}

func (w *RoomWatch) run() {
	defer w.wg.Done()
	defer close(w.out)
	defer w.sub.Close()

	for {
		var ev WatchEvent
		select {
		case <-w.stop:
			return
		case raw, ok := <-w.sub.Events():
			switch {
			case !ok:
				ev = WatchEvent{Kind: WatchFailed, Err: errors.Join(ErrDirectoryUnavailable, errFeedEnded)}
			case raw.Err != nil:
				ev = WatchEvent{Kind: WatchFailed, Err: unavailable(raw.Err)}
			case raw.Absent():
				ev = WatchEvent{Kind: WatchClosed}
			default:
				ev = WatchEvent{Kind: WatchUpdated, Room: raw.Room}
			}
		}

		select {
		case w.out <- ev:
		case <-w.stop:
			return
		}
		if ev.Kind != WatchUpdated {
			return
		}
	}
}
