package cards

import (
	"errors"
	"math/rand"
	"slices"

	"github.com/humanbelnik/judgement/internal/model"
)

const StandardDeckSize = 52

var ErrInvalidPlayerCount = errors.New("invalid player count")

// BuildStandardDeck returns the 52 card deck in canonical order, which is
// the Compare order: index 0 is the two of clubs, index 51 the ace of spades.
func BuildStandardDeck() model.Deck {
	deck := make(model.Deck, 0, StandardDeckSize)
	for r := model.Two; r <= model.Ace; r++ {
		for _, s := range model.Suits {
			deck = append(deck, model.Card{Suit: s, Rank: r})
		}
	}
	return deck
}

// Compare orders cards by rank, then by suit.
func Compare(a, b model.Card) int {
	switch {
	case a.Rank < b.Rank:
		return -1
	case a.Rank > b.Rank:
		return 1
	case a.Suit < b.Suit:
		return -1
	case a.Suit > b.Suit:
		return 1
	}
	return 0
}

func SortDeck(deck model.Deck) model.Deck {
	out := slices.Clone(deck)
	slices.SortStableFunc(out, Compare)
	return out
}

// Shuffle returns a shuffled copy of deck.
func Shuffle(deck model.Deck) model.Deck {
	out := slices.Clone(deck)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// ShuffleWith is Shuffle with an explicit random source.
func ShuffleWith(rng *rand.Rand, deck model.Deck) model.Deck {
	out := slices.Clone(deck)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Deal splits deck round-robin into numPlayers equal hands. Cards that do
// not fill a whole round stay undealt.
func Deal(deck model.Deck, numPlayers int) ([]model.Deck, error) {
	if numPlayers <= 0 {
		return nil, ErrInvalidPlayerCount
	}
	perPlayer := len(deck) / numPlayers
	hands := make([]model.Deck, numPlayers)
	for i := range hands {
		hands[i] = make(model.Deck, 0, perPlayer)
	}
	for i := range perPlayer * numPlayers {
		hands[i%numPlayers] = append(hands[i%numPlayers], deck[i])
	}
	return hands, nil
}

func CountSuit(deck model.Deck, suit model.Suit) int {
	n := 0
	for _, c := range deck {
		if c.Suit == suit {
			n++
		}
	}
	return n
}
