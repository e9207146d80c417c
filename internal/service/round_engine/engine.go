package round_engine

import (
	"math/rand"
	"slices"

	"github.com/humanbelnik/judgement/internal/model"
	"github.com/humanbelnik/judgement/internal/service/cards"
)

const (
	MinPlayers = 3
	MaxPlayers = 6

	// Above this hand size the last bidder may not make the bids add up.
	LastBidderThreshold = 5

	ExactBidBonus = 10

	TrumpSuit = model.Spades
)

var ErrInvalidPlayerCount = cards.ErrInvalidPlayerCount

type Adjustment struct {
	Deck         model.Deck
	TrumpChanged bool
}

func SupportedPlayerCount(n int) bool {
	return n >= MinPlayers && n <= MaxPlayers
}

// AdjustDeckForInitialDeal drops the lowest cards so that deck splits evenly
// between numPlayers. Counts outside [MinPlayers, MaxPlayers] are tolerated.
func AdjustDeckForInitialDeal(deck model.Deck, numPlayers int) (model.Deck, error) {
	if numPlayers <= 0 {
		return nil, ErrInvalidPlayerCount
	}
	sorted := cards.SortDeck(deck)
	return dropLowest(sorted, len(sorted)%numPlayers), nil
}

func dropLowest(sorted model.Deck, n int) model.Deck {
	if n >= len(sorted) {
		return model.Deck{}
	}
	return slices.Clone(sorted[n:])
}

// RemoveCardsBetweenRounds removes numPlayers random cards and reports
// whether the trump suit vanished from the deck.
func RemoveCardsBetweenRounds(deck model.Deck, numPlayers int) (Adjustment, error) {
	return removeRandom(rand.Perm, deck, numPlayers)
}

func RemoveCardsBetweenRoundsWith(rng *rand.Rand, deck model.Deck, numPlayers int) (Adjustment, error) {
	return removeRandom(rng.Perm, deck, numPlayers)
}

func removeRandom(perm func(int) []int, deck model.Deck, numPlayers int) (Adjustment, error) {
	if !SupportedPlayerCount(numPlayers) {
		return Adjustment{}, ErrInvalidPlayerCount
	}
	if numPlayers >= len(deck) {
		return Adjustment{Deck: model.Deck{}, TrumpChanged: true}, nil
	}

	drop := make(map[int]struct{}, numPlayers)
	for _, idx := range perm(len(deck))[:numPlayers] {
		drop[idx] = struct{}{}
	}
	out := make(model.Deck, 0, len(deck)-numPlayers)
	for i, c := range deck {
		if _, ok := drop[i]; !ok {
			out = append(out, c)
		}
	}
	return Adjustment{
		Deck:         out,
		TrumpChanged: cards.CountSuit(out, TrumpSuit) == 0,
	}, nil
}

// IsValidLastPlayerBid reports whether the final bidder may bid bid.
// Hand bounds are checked by the caller.
func IsValidLastPlayerBid(bid, currentTotalBids, totalCards, cardsPerPlayer int) bool {
	if cardsPerPlayer <= LastBidderThreshold {
		return true
	}
	return currentTotalBids+bid != totalCards
}

func CalculateScore(bid, tricksWon int) int {
	if bid != tricksWon {
		return 0
	}
	return ExactBidBonus + tricksWon
}

func SortDeck(deck model.Deck) model.Deck {
	return cards.SortDeck(deck)
}

// TrumpFor returns the trump suit for deck, false when no trump card is left.
func TrumpFor(deck model.Deck) (model.Suit, bool) {
	if cards.CountSuit(deck, TrumpSuit) == 0 {
		return 0, false
	}
	return TrumpSuit, true
}

func CardsPerPlayer(deckLen, numPlayers int) int {
	if numPlayers <= 0 {
		return 0
	}
	return deckLen / numPlayers
}
