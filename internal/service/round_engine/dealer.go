package round_engine

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/humanbelnik/judgement/internal/model"
	"github.com/humanbelnik/judgement/internal/service/cards"
)

var ErrNoPlayers = errors.New("no players to deal to")

// Dealer builds round payloads. A nil random source means the process
// default one.
type Dealer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewDealer(rng *rand.Rand) *Dealer {
	return &Dealer{rng: rng}
}

func (d *Dealer) shuffle(deck model.Deck) model.Deck {
	if d.rng == nil {
		return cards.Shuffle(deck)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return cards.ShuffleWith(d.rng, deck)
}

func (d *Dealer) removeBetweenRounds(deck model.Deck, numPlayers int) (Adjustment, error) {
	if d.rng == nil {
		return RemoveCardsBetweenRounds(deck, numPlayers)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return RemoveCardsBetweenRoundsWith(d.rng, deck, numPlayers)
}

// FirstRound trims a standard deck for len(playerIDs) players and deals it.
func (d *Dealer) FirstRound(playerIDs []string) (*model.RoundState, error) {
	if len(playerIDs) == 0 {
		return nil, ErrNoPlayers
	}
	deck, err := AdjustDeckForInitialDeal(cards.BuildStandardDeck(), len(playerIDs))
	if err != nil {
		return nil, err
	}
	return d.deal(1, deck, playerIDs, make(map[string]int, len(playerIDs))), nil
}

// NextRound scores prev with tricks, shrinks its deck and deals the next
// round to playerIDs. When no full hand is left, or the table has fallen
// outside the supported player counts, the returned state is marked
// finished and carries the final scores.
func (d *Dealer) NextRound(prev *model.RoundState, playerIDs []string, tricks map[string]int) (*model.RoundState, error) {
	if len(playerIDs) == 0 {
		return nil, ErrNoPlayers
	}
	last := ScoreRound(prev.Bids, tricks)
	total := make(map[string]int, len(prev.Scores)+len(last))
	for id, s := range prev.Scores {
		total[id] = s
	}
	for id, s := range last {
		total[id] += s
	}

	adj := Adjustment{Deck: prev.Deck}
	if SupportedPlayerCount(len(playerIDs)) {
		var err error
		adj, err = d.removeBetweenRounds(prev.Deck, len(playerIDs))
		if err != nil {
			return nil, err
		}
	}

	var next *model.RoundState
	if !SupportedPlayerCount(len(playerIDs)) || CardsPerPlayer(len(adj.Deck), len(playerIDs)) == 0 {
		next = &model.RoundState{
			Number:   prev.Number,
			Deck:     adj.Deck,
			BidOrder: prev.BidOrder,
			Bids:     prev.Bids,
			Tricks:   tricks,
			Scores:   total,
			Finished: true,
		}
	} else {
		next = d.deal(prev.Number+1, adj.Deck, playerIDs, total)
	}
	next.TrumpChanged = adj.TrumpChanged
	next.LastScores = last
	return next, nil
}

// ScoreRound applies CalculateScore to every player that placed a bid.
func ScoreRound(bids, tricks map[string]int) map[string]int {
	scores := make(map[string]int, len(bids))
	for id, bid := range bids {
		scores[id] = CalculateScore(bid, tricks[id])
	}
	return scores
}

func (d *Dealer) deal(number int, deck model.Deck, playerIDs []string, scores map[string]int) *model.RoundState {
	n := len(playerIDs)
	// Deal only fails for n <= 0, which callers rule out.
	hands, _ := cards.Deal(d.shuffle(deck), n)

	st := &model.RoundState{
		Number:         number,
		CardsPerPlayer: CardsPerPlayer(len(deck), n),
		Deck:           cards.SortDeck(deck),
		Hands:          make(map[string]model.Deck, n),
		BidOrder:       rotate(playerIDs, (number-1)%n),
		Bids:           make(map[string]int, n),
		Tricks:         make(map[string]int, n),
		Scores:         scores,
	}
	for i, id := range playerIDs {
		st.Hands[id] = cards.SortDeck(hands[i])
		if _, ok := st.Scores[id]; !ok {
			st.Scores[id] = 0
		}
	}
	if trump, ok := TrumpFor(deck); ok {
		st.Trump = &trump
	}
	return st
}

func rotate(ids []string, by int) []string {
	out := make([]string, 0, len(ids))
	out = append(out, ids[by:]...)
	return append(out, ids[:by]...)
}
