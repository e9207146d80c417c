package infra_redis_directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis"
	"github.com/humanbelnik/judgement/internal/infra/feed"
	"github.com/humanbelnik/judgement/internal/model"
	usecase_room "github.com/humanbelnik/judgement/internal/usecase/room"
)

const (
	DefaultTxRetries = 16

	keyPrefix  = "room:"
	feedPrefix = "room-feed:"

	// Deleted rooms leave a tombstone so a recreated code keeps counting
	// versions upward while old subscribers may still be listening.
	tombstoneTTL = time.Hour

	// The feed connection is pinged after this long without traffic.
	receiveTimeout = 30 * time.Second
	maxBackoff     = 2 * time.Second
)

var ErrClosed = errors.New("redis directory closed")

// envelope is the value stored at room:<CODE> and published on
// room-feed:<CODE> for every committed write.
type envelope struct {
	Version int64       `json:"version"`
	Deleted bool        `json:"deleted,omitempty"`
	Room    *model.Room `json:"room,omitempty"`
}

func (e envelope) room() *model.Room {
	if e.Deleted || e.Room == nil {
		return nil
	}
	r := e.Room.Clone()
	r.Version = e.Version
	return r
}

type getter interface {
	Get(key string) *redis.StringCmd
}

type Directory struct {
	client  *redis.Client
	hub     *feed.Hub
	retries int
	logger  *slog.Logger

	pubsub    *redis.PubSub
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

// New subscribes to the change feed of every room before returning, so
// Subscribe never misses a write that commits after its initial read.
func New(client *redis.Client, opts ...Option) (*Directory, error) {
	d := &Directory{
		client:  client,
		hub:     feed.NewHub(),
		retries: DefaultTxRetries,
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	pubsub := client.PSubscribe(feedPrefix + "*")
	if _, err := pubsub.Receive(); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to room feed: %w", err)
	}
	d.pubsub = pubsub

	d.wg.Add(1)
	go d.listen()
	return d, nil
}

func roomKey(code string) string {
	return keyPrefix + code
}

func feedChannel(code string) string {
	return feedPrefix + code
}

// listen reads the feed until Close. go-redis reconnects the pattern
// subscription on its own; every subscribe confirmation after the first one
// means messages may have been lost, so all watched rooms are re-read.
func (d *Directory) listen() {
	defer d.wg.Done()
	failures := 0
	for {
		msg, err := d.pubsub.ReceiveTimeout(receiveTimeout)
		if d.closing() {
			return
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				// Idle: a failed ping makes the next receive reconnect.
				_ = d.pubsub.Ping()
				continue
			}
			failures++
			if failures == 1 {
				d.logger.Warn("room feed connection lost", "error", err)
			}
			if !d.sleep(backoff(failures)) {
				return
			}
			continue
		}

		switch msg := msg.(type) {
		case *redis.Subscription:
			d.logger.Info("room feed resubscribed", "after_failures", failures)
			failures = 0
			d.refreshAll()
		case *redis.Message:
			failures = 0
			code := strings.TrimPrefix(msg.Channel, feedPrefix)
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				d.logger.Warn("bad room feed message", "channel", msg.Channel, "error", err)
				continue
			}
			d.hub.Publish(code, model.RoomEvent{Room: env.room()}, env.Version)
		}
	}
}

func backoff(failures int) time.Duration {
	b := time.Duration(failures) * 100 * time.Millisecond
	if b > maxBackoff {
		return maxBackoff
	}
	return b
}

func (d *Directory) closing() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

func (d *Directory) sleep(dur time.Duration) bool {
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-d.done:
		return false
	case <-timer.C:
		return true
	}
}

// refreshAll publishes the stored record of every watched room. Versions
// already delivered are dropped by the queues.
func (d *Directory) refreshAll() {
	for _, code := range d.hub.Codes() {
		room, version, err := d.read(d.client, code)
		if err != nil {
			d.logger.Warn("failed to refresh room", "code", code, "error", err)
			d.hub.Publish(code, model.RoomEvent{Err: err}, 0)
			continue
		}
		d.hub.Publish(code, model.RoomEvent{Room: room}, version)
	}
}

func (d *Directory) failSubscribers(err error) {
	for _, code := range d.hub.Codes() {
		d.hub.Publish(code, model.RoomEvent{Err: err}, 0)
	}
}

// Close stops the shared feed. Open subscriptions receive ErrClosed.
func (d *Directory) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		err = d.pubsub.Close()
		d.wg.Wait()
		d.failSubscribers(ErrClosed)
	})
	return err
}

func (d *Directory) Ping(ctx context.Context) error {
	return d.client.WithContext(ctx).Ping().Err()
}

func (d *Directory) read(c getter, code string) (*model.Room, int64, error) {
	raw, err := c.Get(roomKey(code)).Bytes()
	if err == redis.Nil {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, 0, fmt.Errorf("decode room %s: %w", code, err)
	}
	return env.room(), env.Version, nil
}

// write queues the next version of code (room == nil deletes it) together
// with its feed message inside the MULTI block of tx.
func (d *Directory) write(tx *redis.Tx, code string, version int64, room *model.Room) (*model.Room, error) {
	env := envelope{Version: version + 1}
	ttl := time.Duration(0)
	if room == nil {
		env.Deleted = true
		ttl = tombstoneTTL
	} else {
		env.Room = room.Clone()
		env.Room.Code = code
		env.Room.Version = env.Version
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	_, err = tx.Pipelined(func(pipe redis.Pipeliner) error {
		pipe.Set(roomKey(code), data, ttl)
		pipe.Publish(feedChannel(code), string(data))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return env.room(), nil
}

func (d *Directory) Get(ctx context.Context, code string) (*model.Room, error) {
	room, _, err := d.read(d.client.WithContext(ctx), code)
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
	client := d.client.WithContext(ctx)

	for attempt := 1; attempt <= d.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var (
			out   *model.Room
			fnErr error
		)
		err := client.Watch(func(tx *redis.Tx) error {
			current, version, err := d.read(tx, code)
			if err != nil {
				return err
			}
			res, err := fn(current.Clone())
			if err != nil {
				fnErr = err
				return err
			}

			switch {
			case res.Op == model.TxPut:
				out, err = d.write(tx, code, version, res.Room)
				return err
			case res.Op == model.TxDelete && current != nil:
				_, err = d.write(tx, code, version, nil)
				return err
			default:
				out = current
				return nil
			}
		}, roomKey(code))

		switch {
		case fnErr != nil:
			return nil, fnErr
		case err == redis.TxFailedErr:
			d.logger.Debug("room write conflict, retrying", "code", code, "attempt", attempt)
			continue
		case err != nil:
			return nil, err
		}
		return out, nil
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
	current, version, err := d.read(d.client.WithContext(ctx), code)
	if err != nil {
		q.Close()
		return nil, err
	}
	q.Push(model.RoomEvent{Room: current}, version)
	return q, nil
}
