package usecase_room

import (
	"context"
	"errors"
	"fmt"

	"github.com/humanbelnik/judgement/internal/model"
	"github.com/humanbelnik/judgement/internal/service/round_engine"
)

var (
	ErrGameNotStarted = errors.New("game not started")
	ErrGameFinished   = errors.New("game finished")
	ErrNotYourTurn    = errors.New("not your turn to bid")
	ErrBidOutOfRange  = errors.New("bid out of range")
	ErrForbiddenBid   = errors.New("last bidder may not make bids equal the cards in hand")
	ErrBiddingOpen    = errors.New("bidding is not complete")
	ErrTricksMismatch = errors.New("tricks do not add up to the hand size")
)

func activeRound(room *model.Room) (*model.RoundState, error) {
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if !room.GameStarted || room.Round == nil {
		return nil, ErrGameNotStarted
	}
	if room.Round.Finished {
		return nil, ErrGameFinished
	}
	return room.Round, nil
}

// PlaceBid records playerID's bid. Bids go in round order and the last
// bidder is held to the last player rule.
func (u *Usecase) PlaceBid(ctx context.Context, code string, playerID string, bid int) (*model.Room, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}

	room, err := u.transact(ctx, code, func(current *model.Room) (model.TxResult, error) {
		round, err := activeRound(current)
		if err != nil {
			return model.Keep(), err
		}
		if !current.HasPlayer(playerID) {
			return model.Keep(), ErrNotInRoom
		}
		if next, open := round.NextBidder(); !open || next != playerID {
			return model.Keep(), ErrNotYourTurn
		}
		if bid < 0 || bid > round.CardsPerPlayer {
			return model.Keep(), fmt.Errorf("%w: must be between 0 and %d", ErrBidOutOfRange, round.CardsPerPlayer)
		}
		if round.IsLastBidder(playerID) &&
			!round_engine.IsValidLastPlayerBid(bid, round.BidTotal(), round.CardsPerPlayer, round.CardsPerPlayer) {
			return model.Keep(), ErrForbiddenBid
		}

		next := current.Clone()
		next.Round.Bids[playerID] = bid
		return model.Put(next), nil
	})
	if err != nil {
		return nil, err
	}
	u.logger.Info("bid placed", "code", code, "player", playerID, "bid", bid)
	return room, nil
}

// CompleteRound scores the current round from the tricks each player won
// and deals the next one. Only the host reports tricks.
func (u *Usecase) CompleteRound(ctx context.Context, code string, requesterID string, tricks map[string]int) (*model.Room, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}

	room, err := u.transact(ctx, code, func(current *model.Room) (model.TxResult, error) {
		round, err := activeRound(current)
		if err != nil {
			return model.Keep(), err
		}
		if !current.IsHost(requesterID) {
			return model.Keep(), ErrNotHost
		}
		if !round.BiddingComplete() {
			return model.Keep(), ErrBiddingOpen
		}
		if err := checkTricks(round, tricks); err != nil {
			return model.Keep(), err
		}

		nextRound, err := u.dealer.NextRound(round, current.PlayerIDs(), tricks)
		if err != nil {
			return model.Keep(), err
		}
		next := current.Clone()
		next.Round = nextRound
		if !nextRound.Finished {
			next.CurrentRound = nextRound.Number
		}
		return model.Put(next), nil
	})
	if err != nil {
		return nil, err
	}

	if room.Round.Finished {
		u.logger.Info("game finished", "code", code, "rounds", room.CurrentRound)
	} else {
		u.logger.Info("round completed", "code", code, "round", room.CurrentRound, "trump_changed", room.Round.TrumpChanged)
	}
	return room, nil
}

func checkTricks(round *model.RoundState, tricks map[string]int) error {
	sum := 0
	for id, n := range tricks {
		if _, ok := round.Bids[id]; !ok {
			return fmt.Errorf("%w: %s did not bid this round", ErrTricksMismatch, id)
		}
		if n < 0 {
			return fmt.Errorf("%w: negative tricks for %s", ErrTricksMismatch, id)
		}
		sum += n
	}
	if sum != round.CardsPerPlayer {
		return fmt.Errorf("%w: got %d, want %d", ErrTricksMismatch, sum, round.CardsPerPlayer)
	}
	return nil
}
