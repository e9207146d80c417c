package usecase_room

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"slices"
	"strings"
	"time"

	"github.com/humanbelnik/judgement/internal/model"
	"github.com/humanbelnik/judgement/internal/service/round_engine"
)

const (
	CodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ123456789"
	CodeLength   = 4

	DefaultCodeAttempts = 10
	MinPlayersToStart   = 2

	// Creating can still lose the code between the free check and the write.
	createRetries = 3
)

var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrRoomNotFound            = errors.New("room not found")
	ErrGameAlreadyStarted      = errors.New("game already started")
	ErrNotHost                 = errors.New("only the host may do this")
	ErrInsufficientPlayers     = errors.New("not enough players")
	ErrCodeAllocationExhausted = errors.New("no free room code")
	ErrCodeConflict            = errors.New("code conflict")
	ErrDirectoryUnavailable    = errors.New("room directory unavailable")
	ErrNotInRoom               = errors.New("player is not in the room")
	ErrTxConflict              = errors.New("too many conflicting writes")
)

//go:generate mockery --name=RoomDirectory --output=./mocks/directory --filename=directory.go
type RoomDirectory interface {
	// Get returns nil when the room does not exist.
	Get(ctx context.Context, code string) (*model.Room, error)
	// Create stores room unless its code is taken (ErrCodeConflict).
	Create(ctx context.Context, room *model.Room) (*model.Room, error)
	// Transact runs fn against the latest record and commits its result
	// atomically, retrying fn on conflicting writes.
	Transact(ctx context.Context, code string, fn model.TxFunc) (*model.Room, error)
	// Subscribe delivers the current record, then every committed change.
	Subscribe(ctx context.Context, code string) (model.Subscription, error)
}

type Usecase struct {
	directory RoomDirectory
	dealer    *round_engine.Dealer
	logger    *slog.Logger
	now       func() time.Time

	codeAttempts int
	buildCode    func() string
}

type Option func(*Usecase)

func WithLogger(logger *slog.Logger) Option {
	return func(u *Usecase) {
		u.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(u *Usecase) {
		u.now = now
	}
}

func WithDealer(d *round_engine.Dealer) Option {
	return func(u *Usecase) {
		u.dealer = d
	}
}

func WithCodeAttempts(n int) Option {
	return func(u *Usecase) {
		if n > 0 {
			u.codeAttempts = n
		}
	}
}

func WithCodeGenerator(gen func() string) Option {
	return func(u *Usecase) {
		u.buildCode = gen
	}
}

func New(directory RoomDirectory, opts ...Option) *Usecase {
	u := &Usecase{
		directory:    directory,
		dealer:       round_engine.NewDealer(nil),
		logger:       slog.Default(),
		now:          time.Now,
		codeAttempts: DefaultCodeAttempts,
		buildCode:    buildRoomCode,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Every attempt draws a fresh code, so free codes are not predictable.
func buildRoomCode() string {
	var builder strings.Builder
	builder.Grow(CodeLength)

	for range CodeLength {
		builder.WriteByte(CodeAlphabet[rand.Intn(len(CodeAlphabet))])
	}

	return builder.String()
}

// NormalizeCode uppercases a user typed code and checks its alphabet.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != CodeLength {
		return "", errors.Join(ErrInvalidInput, errors.New("room code must be 4 characters"))
	}
	for i := range len(code) {
		if strings.IndexByte(CodeAlphabet, code[i]) < 0 {
			return "", errors.Join(ErrInvalidInput, errors.New("room code has invalid characters"))
		}
	}
	return code, nil
}

func validatePlayer(p model.Player) (model.Player, error) {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	if p.ID == "" {
		return p, errors.Join(ErrInvalidInput, errors.New("empty player id"))
	}
	if p.Name == "" {
		return p, errors.Join(ErrInvalidInput, errors.New("empty player name"))
	}
	return p, nil
}

func unavailable(err error) error {
	if errors.Is(err, ErrDirectoryUnavailable) {
		return err
	}
	return errors.Join(ErrDirectoryUnavailable, err)
}

// transact returns errors produced by fn untouched and reports anything
// else as a directory failure.
func (u *Usecase) transact(ctx context.Context, code string, fn model.TxFunc) (*model.Room, error) {
	var aborted error
	room, err := u.directory.Transact(ctx, code, func(current *model.Room) (model.TxResult, error) {
		res, err := fn(current)
		aborted = err
		return res, err
	})
	if aborted != nil {
		return nil, aborted
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return room, nil
}

func (u *Usecase) AllocateRoomCode(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= u.codeAttempts; attempt++ {
		code := u.buildCode()
		room, err := u.directory.Get(ctx, code)
		if err != nil {
			return model.EmptyRoomCode, unavailable(err)
		}
		if room == nil {
			return code, nil
		}
		u.logger.Debug("room code taken", "code", code, "attempt", attempt)
	}
	return model.EmptyRoomCode, ErrCodeAllocationExhausted
}

func (u *Usecase) CreateRoom(ctx context.Context, player model.Player) (*model.Room, error) {
	player, err := validatePlayer(player)
	if err != nil {
		return nil, err
	}

	for retries := createRetries; retries > 0; retries-- {
		code, err := u.AllocateRoomCode(ctx)
		if err != nil {
			return nil, err
		}

		room, err := u.directory.Create(ctx, &model.Room{
			Code:      code,
			HostID:    player.ID,
			HostName:  player.Name,
			Players:   []model.Player{player},
			CreatedAt: u.now().UTC(),
		})
		if err == nil {
			u.logger.Info("room created", "code", code, "host", player.ID)
			return room, nil
		}
		if !errors.Is(err, ErrCodeConflict) {
			return nil, unavailable(err)
		}
		u.logger.Warn("room code claimed concurrently", "code", code)
	}
	return nil, ErrCodeAllocationExhausted
}

func (u *Usecase) GetRoom(ctx context.Context, code string) (*model.Room, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	room, err := u.directory.Get(ctx, code)
	if err != nil {
		return nil, unavailable(err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// JoinRoom is idempotent: a player already in the room is left as is.
func (u *Usecase) JoinRoom(ctx context.Context, code string, player model.Player) (*model.Room, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	player, err = validatePlayer(player)
	if err != nil {
		return nil, err
	}

	room, err := u.transact(ctx, code, func(current *model.Room) (model.TxResult, error) {
		if current == nil {
			return model.Keep(), ErrRoomNotFound
		}
		if current.GameStarted {
			return model.Keep(), ErrGameAlreadyStarted
		}
		if current.HasPlayer(player.ID) {
			return model.Keep(), nil
		}
		next := current.Clone()
		next.Players = append(next.Players, player)
		return model.Put(next), nil
	})
	if err != nil {
		return nil, err
	}
	u.logger.Info("player joined", "code", code, "player", player.ID, "players", len(room.Players))
	return room, nil
}

// LeaveRoom removes playerID from the room. The host leaving deletes the
// room for everyone; this is the only way a player action deletes a room.
func (u *Usecase) LeaveRoom(ctx context.Context, code string, playerID string) error {
	code, err := NormalizeCode(code)
	if err != nil {
		return err
	}
	if strings.TrimSpace(playerID) == "" {
		return errors.Join(ErrInvalidInput, errors.New("empty player id"))
	}

	closed := false
	_, err = u.transact(ctx, code, func(current *model.Room) (model.TxResult, error) {
		closed = false
		if current == nil {
			return model.Keep(), nil
		}
		if current.IsHost(playerID) {
			closed = true
			return model.Delete(), nil
		}
		idx := current.PlayerIndex(playerID)
		if idx < 0 {
			return model.Keep(), nil
		}
		next := current.Clone()
		next.Players = slices.Delete(next.Players, idx, idx+1)
		dropFromRound(next.Round, playerID)
		return model.Put(next), nil
	})
	if err != nil {
		return err
	}
	if closed {
		u.logger.Info("host left, room closed", "code", code, "host", playerID)
	} else {
		u.logger.Info("player left", "code", code, "player", playerID)
	}
	return nil
}

func dropFromRound(st *model.RoundState, playerID string) {
	if st == nil {
		return
	}
	st.BidOrder = slices.DeleteFunc(st.BidOrder, func(id string) bool { return id == playerID })
	delete(st.Hands, playerID)
	delete(st.Bids, playerID)
	delete(st.Tricks, playerID)
}

// StartGame flips the room into play and deals the first round.
func (u *Usecase) StartGame(ctx context.Context, code string, requesterID string) (*model.Room, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}

	room, err := u.transact(ctx, code, func(current *model.Room) (model.TxResult, error) {
		if current == nil {
			return model.Keep(), ErrRoomNotFound
		}
		if !current.IsHost(requesterID) {
			return model.Keep(), ErrNotHost
		}
		if current.GameStarted {
			return model.Keep(), ErrGameAlreadyStarted
		}
		if len(current.Players) < MinPlayersToStart {
			return model.Keep(), ErrInsufficientPlayers
		}

		round, err := u.dealer.FirstRound(current.PlayerIDs())
		if err != nil {
			return model.Keep(), err
		}
		next := current.Clone()
		next.GameStarted = true
		next.CurrentRound = 1
		next.Round = round
		return model.Put(next), nil
	})
	if err != nil {
		return nil, err
	}

	if n := len(room.Players); !round_engine.SupportedPlayerCount(n) {
		u.logger.Warn("game started with unsupported player count", "code", code, "players", n)
	}
	u.logger.Info("game started", "code", code, "players", len(room.Players), "cards_per_player", room.Round.CardsPerPlayer)
	return room, nil
}
