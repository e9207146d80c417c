package usecase_room

import (
	"math/rand"

	"github.com/humanbelnik/judgement/internal/model"
	"github.com/humanbelnik/judgement/internal/service/round_engine"
	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// inGame is a three player room in round one: 17 cards each, host bids first.
func inGame(t provider.T, bids map[string]int) *model.Room {
	room := lobby(player("a"), player("b"))
	round, err := round_engine.NewDealer(rand.New(rand.NewSource(7))).FirstRound(room.PlayerIDs())
	require.NoError(t, err)
	for id, bid := range bids {
		round.Bids[id] = bid
	}
	room.GameStarted = true
	room.CurrentRound = 1
	room.Round = round
	return room
}

func (suite *UsecaseRoomUnitSuite) TestPlaceBid(t provider.T) {
	t.Parallel()

	finished := inGame(t, nil)
	finished.Round.Finished = true

	testCases := []struct {
		name          string
		current       *model.Room
		playerID      string
		bid           int
		expectError   bool
		expectedError error
	}{
		{
			name:     "Should accept the first bidder",
			current:  inGame(t, nil),
			playerID: "host",
			bid:      5,
		},
		{
			name:          "Should refuse a bid out of turn",
			current:       inGame(t, nil),
			playerID:      "a",
			bid:           5,
			expectError:   true,
			expectedError: ErrNotYourTurn,
		},
		{
			name:          "Should refuse a bid above the hand size",
			current:       inGame(t, nil),
			playerID:      "host",
			bid:           18,
			expectError:   true,
			expectedError: ErrBidOutOfRange,
		},
		{
			name:          "Should refuse a negative bid",
			current:       inGame(t, nil),
			playerID:      "host",
			bid:           -1,
			expectError:   true,
			expectedError: ErrBidOutOfRange,
		},
		{
			name:          "Should hold the last bidder to the rule",
			current:       inGame(t, map[string]int{"host": 5, "a": 6}),
			playerID:      "b",
			bid:           6,
			expectError:   true,
			expectedError: ErrForbiddenBid,
		},
		{
			name:     "Should let the last bidder miss the total",
			current:  inGame(t, map[string]int{"host": 5, "a": 6}),
			playerID: "b",
			bid:      7,
		},
		{
			name:          "Should refuse a stranger",
			current:       inGame(t, nil),
			playerID:      "z",
			bid:           1,
			expectError:   true,
			expectedError: ErrNotInRoom,
		},
		{
			name:          "Should refuse bids before the game starts",
			current:       lobby(player("a")),
			playerID:      "host",
			bid:           1,
			expectError:   true,
			expectedError: ErrGameNotStarted,
		},
		{
			name:          "Should refuse bids after the game ends",
			current:       finished,
			playerID:      "host",
			bid:           1,
			expectError:   true,
			expectedError: ErrGameFinished,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t provider.T) {
			t.Parallel()
			r := initResources(t)
			r.directory.On("Transact", r.ctx, validRoomCode(), mock.Anything).Return(transactOn(tc.current)).Once()

			room, err := r.usecase.PlaceBid(r.ctx, validRoomCode(), tc.playerID, tc.bid)

			if tc.expectError {
				assert.ErrorIs(t, err, tc.expectedError)
				assert.Nil(t, room)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.bid, room.Round.Bids[tc.playerID])
			_, stored := tc.current.Round.Bids[tc.playerID]
			assert.False(t, stored, "transaction mutated the record it was given")
		})
	}
}

func (suite *UsecaseRoomUnitSuite) TestCompleteRound(t provider.T) {
	t.Parallel()

	allBids := map[string]int{"host": 5, "a": 6, "b": 7}

	testCases := []struct {
		name          string
		current       *model.Room
		requester     string
		tricks        map[string]int
		expectError   bool
		expectedError error
	}{
		{
			name:          "Should refuse a non-host",
			current:       inGame(t, allBids),
			requester:     "a",
			tricks:        map[string]int{"host": 5, "a": 6, "b": 6},
			expectError:   true,
			expectedError: ErrNotHost,
		},
		{
			name:          "Should wait for every bid",
			current:       inGame(t, map[string]int{"host": 5}),
			requester:     "host",
			tricks:        map[string]int{"host": 5, "a": 6, "b": 6},
			expectError:   true,
			expectedError: ErrBiddingOpen,
		},
		{
			name:          "Should check the trick total",
			current:       inGame(t, allBids),
			requester:     "host",
			tricks:        map[string]int{"host": 5, "a": 6, "b": 5},
			expectError:   true,
			expectedError: ErrTricksMismatch,
		},
		{
			name:          "Should refuse tricks for a stranger",
			current:       inGame(t, allBids),
			requester:     "host",
			tricks:        map[string]int{"host": 5, "a": 6, "z": 6},
			expectError:   true,
			expectedError: ErrTricksMismatch,
		},
		{
			name:          "Should refuse negative tricks",
			current:       inGame(t, allBids),
			requester:     "host",
			tricks:        map[string]int{"host": 12, "a": 6, "b": -1},
			expectError:   true,
			expectedError: ErrTricksMismatch,
		},
		{
			name:          "Should need a started game",
			current:       lobby(player("a")),
			requester:     "host",
			tricks:        map[string]int{},
			expectError:   true,
			expectedError: ErrGameNotStarted,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t provider.T) {
			t.Parallel()
			r := initResources(t)
			r.directory.On("Transact", r.ctx, validRoomCode(), mock.Anything).Return(transactOn(tc.current)).Once()

			room, err := r.usecase.CompleteRound(r.ctx, validRoomCode(), tc.requester, tc.tricks)

			assert.ErrorIs(t, err, tc.expectedError)
			assert.Nil(t, room)
		})
	}

	t.Run("Should score and deal the next round", func(t provider.T) {
		t.Parallel()
		r := initResources(t, WithDealer(round_engine.NewDealer(rand.New(rand.NewSource(3)))))
		current := inGame(t, allBids)
		r.directory.On("Transact", r.ctx, validRoomCode(), mock.Anything).Return(transactOn(current)).Once()

		room, err := r.usecase.CompleteRound(r.ctx, validRoomCode(), "host", map[string]int{"host": 5, "a": 6, "b": 6})
		require.NoError(t, err)

		assert.Equal(t, 2, room.CurrentRound)
		assert.Equal(t, 2, room.Round.Number)
		assert.Equal(t, 16, room.Round.CardsPerPlayer)
		assert.Len(t, room.Round.Deck, 48)
		assert.Equal(t, []string{"a", "b", "host"}, room.Round.BidOrder)
		assert.Empty(t, room.Round.Bids)
		assert.Equal(t, map[string]int{"host": 15, "a": 16, "b": 0}, room.Round.Scores)
		assert.Equal(t, map[string]int{"host": 15, "a": 16, "b": 0}, room.Round.LastScores)
		assert.False(t, room.Round.Finished)
	})
}
