package ws_room

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	http_common "github.com/humanbelnik/judgement/internal/delivery/http/common"
	usecase_room "github.com/humanbelnik/judgement/internal/usecase/room"
)

const (
	sendBuffer     = 64
	commandTimeout = 10 * time.Second
	writeWait      = 10 * time.Second
	pongWait       = 120 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 16 << 10
)

var errUnknownCommand = errors.Join(usecase_room.ErrInvalidInput, errors.New("unknown command"))

// Client is one websocket connection and the session it drives.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session *usecase_room.Session
	send    chan Event
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  slog.Default(),
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Attach registers a connection and starts its pumps.
func (h *Hub) Attach(conn *websocket.Conn, session *usecase_room.Session) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:     h,
		conn:    conn,
		session: session,
		send:    make(chan Event, sendBuffer),
		logger:  h.logger.With("player", session.Player().ID),
		ctx:     ctx,
		cancel:  cancel,
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	client.logger.Info("client registered")

	client.enqueue(Event{Type: EventSession, Payload: SessionPayload{
		State:  usecase_room.StateNoSession,
		Player: session.Player(),
	}})

	go client.writePump()
	go client.sessionPump()
	go client.readPump()
	return client
}

// Shutdown drops every connection. Sessions are closed without leaving
// their rooms.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.logger.Info("client unregistered")
}

// close tears the connection down once. A dropped connection does not
// leave the room, so a reconnecting player can join again.
func (c *Client) close() {
	c.once.Do(func() {
		c.cancel()
		_ = c.conn.Close()
		c.session.Close()
		c.hub.remove(c)
	})
}

func (c *Client) enqueue(ev Event) {
	select {
	case c.send <- ev:
	case <-c.ctx.Done():
	default:
		c.logger.Warn("send buffer full, dropping connection")
		go c.close()
	}
}

func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.fail(cmd, errors.Join(usecase_room.ErrInvalidInput, errors.New("malformed command")))
			continue
		}
		if err := c.dispatch(cmd); err != nil {
			c.fail(cmd, err)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sessionPump turns confirmed session transitions into outbound events.
func (c *Client) sessionPump() {
	var (
		state = usecase_room.StateNoSession
		code  string
	)
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.session.Events():
			if ev.State == usecase_room.StateNoSession && ev.Reason != nil {
				c.enqueue(Event{Type: EventRoomClosed, Payload: RoomClosedPayload{
					Code:   ev.Code,
					Reason: ev.Reason.Error(),
				}})
			}
			if ev.State != state || ev.Code != code {
				state, code = ev.State, ev.Code
				payload := SessionPayload{State: state, Player: c.session.Player()}
				if state != usecase_room.StateNoSession {
					payload.Code = code
				}
				c.enqueue(Event{Type: EventSession, Payload: payload})
			}
			if ev.Room != nil {
				c.enqueue(Event{Type: EventRoomUpdate, Payload: RoomUpdatePayload{State: ev.State, Room: ev.Room}})
			}
		}
	}
}

func (c *Client) dispatch(cmd Command) error {
	ctx, cancel := context.WithTimeout(c.ctx, commandTimeout)
	defer cancel()

	switch cmd.Type {
	case CommandCreate:
		_, err := c.session.Create(ctx)
		return err
	case CommandJoin:
		var p JoinPayload
		if err := decode(cmd.Payload, &p); err != nil {
			return err
		}
		_, err := c.session.Join(ctx, p.Code)
		return err
	case CommandLeave:
		return c.session.Leave(ctx)
	case CommandStart:
		_, err := c.session.Start(ctx)
		return err
	case CommandBid:
		var p BidPayload
		if err := decode(cmd.Payload, &p); err != nil {
			return err
		}
		if p.Bid == nil {
			return errors.Join(usecase_room.ErrInvalidInput, errors.New("bid required"))
		}
		_, err := c.session.Bid(ctx, *p.Bid)
		return err
	case CommandCompleteRound:
		var p CompleteRoundPayload
		if err := decode(cmd.Payload, &p); err != nil {
			return err
		}
		_, err := c.session.CompleteRound(ctx, p.Tricks)
		return err
	}
	return errUnknownCommand
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.Join(usecase_room.ErrInvalidInput, errors.New("payload required"))
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Join(usecase_room.ErrInvalidInput, errors.New("malformed payload"))
	}
	return nil
}

func (c *Client) fail(cmd Command, err error) {
	status := http_common.StatusFor(err)
	if status >= 500 {
		c.logger.Error("command failed", "command", cmd.Type, "error", err)
	} else {
		c.logger.Debug("command rejected", "command", cmd.Type, "error", err)
	}
	c.enqueue(Event{Type: EventError, Payload: ErrorPayload{
		Command: cmd.Type,
		ID:      cmd.ID,
		Status:  status,
		Message: http_common.Message(err),
	}})
}
