package usecase_room

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/humanbelnik/judgement/internal/model"
)

var (
	ErrRoomClosed        = errors.New("room closed")
	ErrRemovedFromRoom   = errors.New("removed from room")
	ErrAlreadyInRoom     = errors.New("already in another room")
	ErrNoSession         = errors.New("not in a room")
	ErrSessionSuperseded = errors.New("session moved on before the result arrived")
	ErrSessionClosed     = errors.New("session closed")
)

type SessionState int

const (
	StateNoSession SessionState = iota
	// Joining: the directory accepted the write but no snapshot has
	// confirmed it yet.
	StateJoining
	StateInLobby
	StateInGame
)

func (s SessionState) String() string {
	switch s {
	case StateNoSession:
		return "NO_SESSION"
	case StateJoining:
		return "JOINING"
	case StateInLobby:
		return "IN_LOBBY"
	case StateInGame:
		return "IN_GAME"
	}
	return "UNKNOWN"
}

func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type SessionEvent struct {
	State SessionState
	Code  string
	Room  *model.Room
	// Reason is set when the session dropped back to StateNoSession on its own.
	Reason error
}

const sessionEventBuffer = 64

// Session is one client's view of the room it is in. Local state is only
// advanced by snapshots confirmed through the change feed.
type Session struct {
	uc     *Usecase
	player model.Player
	logger *slog.Logger

	mu     sync.Mutex
	state  SessionState
	code   string
	room   *model.Room
	gen    uint64
	watch  *RoomWatch
	closed bool

	// pendingLeave is a room that may still list the player after a
	// failed leave or a failed watch. The next Leave retries it.
	pendingLeave string

	events chan SessionEvent
	done   chan struct{}
	wg     sync.WaitGroup
}

func (u *Usecase) NewSession(player model.Player) (*Session, error) {
	player, err := validatePlayer(player)
	if err != nil {
		return nil, err
	}
	return &Session{
		uc:     u,
		player: player,
		logger: u.logger.With("player", player.ID),
		events: make(chan SessionEvent, sessionEventBuffer),
		done:   make(chan struct{}),
	}, nil
}

func (s *Session) Player() model.Player {
	return s.player
}

// Events carries confirmed state transitions. It is never closed; stop
// reading once Close has returned.
func (s *Session) Events() <-chan SessionEvent {
	return s.events
}

func (s *Session) State() SessionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionEvent{State: s.state, Code: s.code, Room: s.room.Clone()}
}

func (s *Session) Create(ctx context.Context) (*model.Room, error) {
	gen, err := s.begin("")
	if err != nil {
		return nil, err
	}
	room, err := s.uc.CreateRoom(ctx, s.player)
	if err != nil {
		return nil, err
	}
	return room, s.settle(ctx, gen, room)
}

func (s *Session) Join(ctx context.Context, code string) (*model.Room, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	gen, err := s.begin(code)
	if err != nil {
		return nil, err
	}
	room, err := s.uc.JoinRoom(ctx, code, s.player)
	if err != nil {
		return nil, err
	}
	return room, s.settle(ctx, gen, room)
}

// Leave stops watching and leaves the current room. Leaving as host
// closes the room for everyone. A failed leave is retried by the next call.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	code := s.code
	if code == "" {
		code = s.pendingLeave
	}
	s.gen++
	w := s.detachLocked()
	s.pendingLeave = code
	s.mu.Unlock()

	if w != nil {
		w.Stop()
	}
	if code == "" {
		return nil
	}
	err := s.uc.LeaveRoom(ctx, code, s.player.ID)
	if err == nil {
		s.mu.Lock()
		if s.pendingLeave == code {
			s.pendingLeave = ""
		}
		s.mu.Unlock()
	} else {
		s.logger.Warn("leave failed, will retry on next leave", "code", code, "error", err)
	}
	s.emit(SessionEvent{State: StateNoSession, Code: code})
	return err
}

func (s *Session) Start(ctx context.Context) (*model.Room, error) {
	code, err := s.currentCode()
	if err != nil {
		return nil, err
	}
	return s.uc.StartGame(ctx, code, s.player.ID)
}

func (s *Session) Bid(ctx context.Context, bid int) (*model.Room, error) {
	code, err := s.currentCode()
	if err != nil {
		return nil, err
	}
	return s.uc.PlaceBid(ctx, code, s.player.ID, bid)
}

func (s *Session) CompleteRound(ctx context.Context, tricks map[string]int) (*model.Room, error) {
	code, err := s.currentCode()
	if err != nil {
		return nil, err
	}
	return s.uc.CompleteRound(ctx, code, s.player.ID, tricks)
}

// Close stops the watch and event delivery. It does not leave the room.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	w := s.detachLocked()
	s.mu.Unlock()

	if w != nil {
		w.Stop()
	}
	close(s.done)
	s.wg.Wait()
}

func (s *Session) currentCode() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.code == "" {
		return "", ErrNoSession
	}
	return s.code, nil
}

// begin opens a new generation for a create (code == "") or join.
func (s *Session) begin(code string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSessionClosed
	}
	if s.code != "" && s.code != code {
		return 0, ErrAlreadyInRoom
	}
	if s.pendingLeave != "" {
		if s.pendingLeave != code {
			return 0, ErrAlreadyInRoom
		}
		// Rejoining the room we failed to leave.
		s.pendingLeave = ""
	}
	s.gen++
	return s.gen, nil
}

// settle applies the outcome of a create or join unless the session moved
// on while it was in flight.
func (s *Session) settle(ctx context.Context, gen uint64, room *model.Room) error {
	s.mu.Lock()
	if s.gen != gen {
		current := s.code
		s.mu.Unlock()
		if current != room.Code {
			s.logger.Info("undoing superseded join", "code", room.Code)
			if err := s.uc.LeaveRoom(ctx, room.Code, s.player.ID); err != nil {
				s.logger.Warn("failed to undo superseded join", "code", room.Code, "error", err)
			}
		}
		return ErrSessionSuperseded
	}
	if s.watch != nil && s.code == room.Code {
		// Rejoin of the room we already watch.
		s.mu.Unlock()
		return nil
	}
	prev := s.watch
	s.watch = nil
	s.code = room.Code
	s.state = StateJoining
	s.room = nil
	s.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	w, err := s.uc.WatchRoom(ctx, room.Code)
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.resetLocked()
			s.pendingLeave = room.Code
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.gen != gen || s.closed {
		s.mu.Unlock()
		w.Stop()
		return ErrSessionSuperseded
	}
	s.watch = w
	s.wg.Add(1)
	s.mu.Unlock()

	go s.forward(w)
	return nil
}

func (s *Session) forward(w *RoomWatch) {
	defer s.wg.Done()
	for ev := range w.Updates() {
		out, ok := s.apply(w, ev)
		if !ok {
			continue
		}
		if out.State == StateNoSession {
			w.Stop()
			s.emit(out)
			return
		}
		s.emit(out)
	}
}

func (s *Session) apply(w *RoomWatch, ev WatchEvent) (SessionEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watch != w {
		return SessionEvent{}, false
	}
	code := s.code

	switch ev.Kind {
	case WatchClosed:
		s.logger.Info("room closed", "code", code)
		s.detachLocked()
		return SessionEvent{State: StateNoSession, Code: code, Reason: ErrRoomClosed}, true
	case WatchFailed:
		s.logger.Warn("room watch failed", "code", code, "error", ev.Err)
		s.detachLocked()
		s.pendingLeave = code
		return SessionEvent{State: StateNoSession, Code: code, Reason: ev.Err}, true
	}

	room := ev.Room
	if !room.HasPlayer(s.player.ID) {
		s.logger.Info("no longer listed in room", "code", code)
		s.detachLocked()
		return SessionEvent{State: StateNoSession, Code: code, Reason: ErrRemovedFromRoom}, true
	}
	s.room = room
	if room.GameStarted {
		s.state = StateInGame
	} else {
		s.state = StateInLobby
	}
	return SessionEvent{State: s.state, Code: code, Room: room.Clone()}, true
}

func (s *Session) emit(ev SessionEvent) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) detachLocked() *RoomWatch {
	w := s.watch
	s.watch = nil
	s.resetLocked()
	return w
}

func (s *Session) resetLocked() {
	s.state = StateNoSession
	s.code = ""
	s.room = nil
}
