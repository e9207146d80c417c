package infra_memory_directory

import (
	"context"
	"errors"
	"sync"

	"github.com/humanbelnik/judgement/internal/infra/feed"
	"github.com/humanbelnik/judgement/internal/model"
	usecase_room "github.com/humanbelnik/judgement/internal/usecase/room"
)

const DefaultTxRetries = 16

var ErrInjected = errors.New("injected failure")

type record struct {
	room    *model.Room
	version int64
}

// Directory keeps rooms in process memory. Writes are compare-and-swap on
// the record version, like the networked backends.
type Directory struct {
	mu      sync.Mutex
	records map[string]*record
	hub     *feed.Hub

	retries int
	// beforeCommit runs between the read and the commit of every Transact
	// attempt. Tests use it to force interleavings.
	beforeCommit func(code string)
	fail         error
}

type Option func(*Directory)

func WithTxRetries(n int) Option {
	return func(d *Directory) {
		if n > 0 {
			d.retries = n
		}
	}
}

func WithBeforeCommit(hook func(code string)) Option {
	return func(d *Directory) {
		d.beforeCommit = hook
	}
}

func New(opts ...Option) *Directory {
	d := &Directory{
		records: make(map[string]*record),
		hub:     feed.NewHub(),
		retries: DefaultTxRetries,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetFailure makes every following call fail with err until it is reset
// with nil. Live subscriptions receive err once.
func (d *Directory) SetFailure(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
	if err == nil {
		return
	}
	for _, code := range d.hub.Codes() {
		d.hub.Publish(code, model.RoomEvent{Err: err}, 0)
	}
}

func (d *Directory) Subscribers(code string) int {
	return d.hub.Subscribers(code)
}

func (d *Directory) Get(ctx context.Context, code string) (*model.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return nil, d.fail
	}
	rec, ok := d.records[code]
	if !ok {
		return nil, nil
	}
	return rec.room.Clone(), nil
}

func (d *Directory) Create(ctx context.Context, room *model.Room) (*model.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return nil, d.fail
	}
	rec, ok := d.records[room.Code]
	if ok && rec.room != nil {
		return nil, usecase_room.ErrCodeConflict
	}
	if !ok {
		rec = &record{}
		d.records[room.Code] = rec
	}
	d.commitLocked(room.Code, rec, room)
	return rec.room.Clone(), nil
}

func (d *Directory) Transact(ctx context.Context, code string, fn model.TxFunc) (*model.Room, error) {
	for attempt := 0; attempt < d.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		d.mu.Lock()
		if d.fail != nil {
			d.mu.Unlock()
			return nil, d.fail
		}
		current, version := d.readLocked(code)
		d.mu.Unlock()

		res, err := fn(current.Clone())
		if err != nil {
			return nil, err
		}
		if res.Op == model.TxKeep || (res.Op == model.TxDelete && current == nil) {
			return current, nil
		}
		if d.beforeCommit != nil {
			d.beforeCommit(code)
		}

		d.mu.Lock()
		if _, latest := d.readLocked(code); latest != version {
			d.mu.Unlock()
			continue
		}
		rec, ok := d.records[code]
		if !ok {
			rec = &record{}
			d.records[code] = rec
		}
		var next *model.Room
		if res.Op == model.TxPut {
			next = res.Room
		}
		d.commitLocked(code, rec, next)
		out := rec.room.Clone()
		d.mu.Unlock()
		return out, nil
	}
	return nil, usecase_room.ErrTxConflict
}

func (d *Directory) Subscribe(ctx context.Context, code string) (model.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return nil, d.fail
	}
	q := d.hub.Add(code)
	current, version := d.readLocked(code)
	q.Push(model.RoomEvent{Room: current}, version)
	return q, nil
}

func (d *Directory) readLocked(code string) (*model.Room, int64) {
	rec, ok := d.records[code]
	if !ok {
		return nil, 0
	}
	return rec.room.Clone(), rec.version
}

// commitLocked stores room (nil deletes) under the next version. Versions
// survive deletion so a recreated code never reuses one.
func (d *Directory) commitLocked(code string, rec *record, room *model.Room) {
	rec.version++
	if room == nil {
		rec.room = nil
	} else {
		rec.room = room.Clone()
		rec.room.Code = code
		rec.room.Version = rec.version
	}
	d.hub.Publish(code, model.RoomEvent{Room: rec.room.Clone()}, rec.version)
}
