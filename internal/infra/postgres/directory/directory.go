package infra_postgres_directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/humanbelnik/judgement/internal/infra/feed"
	"github.com/humanbelnik/judgement/internal/model"
	usecase_room "github.com/humanbelnik/judgement/internal/usecase/room"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	DefaultTxRetries = 16
	FeedChannel      = "room_feed"

	minReconnect = 100 * time.Millisecond
	maxReconnect = 10 * time.Second
)

var ErrClosed = errors.New("postgres directory closed")

type row struct {
	Version int64  `db:"version"`
	Deleted bool   `db:"deleted"`
	Doc     []byte `db:"doc"`
}

// Directory keeps rooms in the rooms table created by the postgres
// migrations and fans changes out through LISTEN/NOTIFY.
type Directory struct {
	db       *sqlx.DB
	listener *pq.Listener
	hub      *feed.Hub
	retries  int
	logger   *slog.Logger

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type Option func(*Directory)

func WithTxRetries(n int) Option {
	return func(d *Directory) {
		if n > 0 {
			d.retries = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Directory) {
		d.logger = logger
	}
}

// New starts listening on FeedChannel with a dedicated connection opened
// from dsn; db serves every other query.
func New(db *sqlx.DB, dsn string, opts ...Option) (*Directory, error) {
	d := &Directory{
		db:      db,
		hub:     feed.NewHub(),
		retries: DefaultTxRetries,
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.listener = pq.NewListener(dsn, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			d.logger.Warn("room feed listener", "event", ev, "error", err)
		}
	})
	if err := d.listener.Listen(FeedChannel); err != nil {
		d.listener.Close()
		return nil, fmt.Errorf("listen %s: %w", FeedChannel, err)
	}

	d.wg.Add(1)
	go d.listen()
	return d, nil
}

func notifyPayload(code string, version int64) string {
	return code + ":" + strconv.FormatInt(version, 10)
}

func parsePayload(payload string) (string, int64, error) {
	code, raw, ok := strings.Cut(payload, ":")
	if !ok || code == "" {
		return "", 0, fmt.Errorf("malformed feed payload %q", payload)
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed feed payload %q: %w", payload, err)
	}
	return code, version, nil
}

func (d *Directory) listen() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case n, ok := <-d.listener.Notify:
			if !ok {
				d.failSubscribers(ErrClosed)
				return
			}
			if n == nil {
				// Reconnected: notifications may have been lost meanwhile.
				for _, code := range d.hub.Codes() {
					d.refresh(code)
				}
				continue
			}
			code, _, err := parsePayload(n.Extra)
			if err != nil {
				d.logger.Warn("bad room feed notification", "error", err)
				continue
			}
			if d.hub.Subscribers(code) > 0 {
				d.refresh(code)
			}
		}
	}
}

// refresh publishes the stored record of code to its subscribers. The
// notification only names the version; the record itself is re-read.
func (d *Directory) refresh(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	room, version, err := d.read(ctx, d.db, code)
	if err != nil {
		d.logger.Warn("failed to refresh room", "code", code, "error", err)
		d.hub.Publish(code, model.RoomEvent{Err: err}, 0)
		return
	}
	d.hub.Publish(code, model.RoomEvent{Room: room}, version)
}

func (d *Directory) failSubscribers(err error) {
	for _, code := range d.hub.Codes() {
		d.hub.Publish(code, model.RoomEvent{Err: err}, 0)
	}
}

func (d *Directory) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		err = d.listener.Close()
		d.wg.Wait()
		d.failSubscribers(ErrClosed)
	})
	return err
}

func (d *Directory) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *Directory) read(ctx context.Context, q sqlx.QueryerContext, code string) (*model.Room, int64, error) {
	const (
		query = `SELECT version, deleted, doc FROM rooms WHERE code = $1`
	)
	var r row
	err := sqlx.GetContext(ctx, q, &r, query, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	if r.Deleted || r.Doc == nil {
		return nil, r.Version, nil
	}

	var room model.Room
	if err := json.Unmarshal(r.Doc, &room); err != nil {
		return nil, 0, fmt.Errorf("decode room %s: %w", code, err)
	}
	room.Version = r.Version
	return &room, r.Version, nil
}

// write stores the next version of code (room == nil marks it deleted) if
// the row still holds version. It reports false when another writer won.
func (d *Directory) write(ctx context.Context, code string, version int64, exists bool, room *model.Room) (*model.Room, bool, error) {
	const (
		insertQ = `
		INSERT INTO rooms (code, version, deleted, doc)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO NOTHING`
		updateQ = `
		UPDATE rooms
		SET version = $2, deleted = $3, doc = $4, updated_at = now()
		WHERE code = $1 AND version = $5`
		notifyQ = `SELECT pg_notify($1, $2)`
	)

	next := version + 1
	var (
		stored *model.Room
		// lib/pq sends []byte as bytea, so the document goes over as text.
		doc any
	)
	if room != nil {
		stored = room.Clone()
		stored.Code = code
		stored.Version = next
		raw, err := json.Marshal(stored)
		if err != nil {
			return nil, false, err
		}
		doc = string(raw)
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var res sql.Result
	if exists {
		res, err = tx.ExecContext(ctx, updateQ, code, next, room == nil, doc, version)
	} else {
		res, err = tx.ExecContext(ctx, insertQ, code, next, room == nil, doc)
	}
	if err != nil {
		return nil, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, false, nil
	}

	if _, err := tx.ExecContext(ctx, notifyQ, FeedChannel, notifyPayload(code, next)); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

func (d *Directory) Get(ctx context.Context, code string) (*model.Room, error) {
	room, _, err := d.read(ctx, d.db, code)
	return room, err
}

func (d *Directory) Create(ctx context.Context, room *model.Room) (*model.Room, error) {
	return d.Transact(ctx, room.Code, func(current *model.Room) (model.TxResult, error) {
		if current != nil {
			return model.Keep(), usecase_room.ErrCodeConflict
		}
		return model.Put(room), nil
	})
}

func (d *Directory) Transact(ctx context.Context, code string, fn model.TxFunc) (*model.Room, error) {
	for attempt := 1; attempt <= d.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current, version, err := d.read(ctx, d.db, code)
		if err != nil {
			return nil, err
		}
		exists := version > 0
		res, err := fn(current.Clone())
		if err != nil {
			return nil, err
		}

		var (
			out *model.Room
			ok  bool
		)
		switch {
		case res.Op == model.TxPut:
			out, ok, err = d.write(ctx, code, version, exists, res.Room)
		case res.Op == model.TxDelete && current != nil:
			_, ok, err = d.write(ctx, code, version, exists, nil)
		default:
			return current, nil
		}
		if err != nil {
			return nil, err
		}
		if ok {
			return out, nil
		}
		d.logger.Debug("room write conflict, retrying", "code", code, "attempt", attempt)
	}
	return nil, usecase_room.ErrTxConflict
}

func (d *Directory) Subscribe(ctx context.Context, code string) (model.Subscription, error) {
	select {
	case <-d.done:
		return nil, ErrClosed
	default:
	}

	q := d.hub.Add(code)
	current, version, err := d.read(ctx, d.db, code)
	if err != nil {
		q.Close()
		return nil, err
	}
	q.Push(model.RoomEvent{Room: current}, version)
	return q, nil
}
