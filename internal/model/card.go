package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Suit order matters: Clubs < Hearts < Diamonds < Spades.
type Suit int

const (
	Clubs Suit = iota
	Hearts
	Diamonds
	Spades
)

var Suits = [...]Suit{Clubs, Hearts, Diamonds, Spades}

var suitNames = [...]string{"CLUBS", "HEARTS", "DIAMONDS", "SPADES"}

func (s Suit) Valid() bool {
	return s >= Clubs && s <= Spades
}

func (s Suit) String() string {
	if !s.Valid() {
		return "Suit(" + strconv.Itoa(int(s)) + ")"
	}
	return suitNames[s]
}

func (s Suit) letter() byte {
	return suitNames[s][0]
}

func (s Suit) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid suit %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Suit) UnmarshalText(b []byte) error {
	v, err := ParseSuit(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseSuit(raw string) (Suit, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	for i, name := range suitNames {
		if raw == name || (len(raw) == 1 && raw[0] == name[0]) {
			return Suit(i), nil
		}
	}
	return 0, fmt.Errorf("unknown suit %q", raw)
}

// Rank values are the face values: Two=2 ... Ace=14.
type Rank int

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

func (r Rank) Valid() bool {
	return r >= Two && r <= Ace
}

func (r Rank) String() string {
	switch r {
	case Jack:
		return "J"
	case Queen:
		return "Q"
	case King:
		return "K"
	case Ace:
		return "A"
	}
	if r.Valid() {
		return strconv.Itoa(int(r))
	}
	return "Rank(" + strconv.Itoa(int(r)) + ")"
}

func (r Rank) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid rank %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Rank) UnmarshalText(b []byte) error {
	v, err := ParseRank(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

func ParseRank(raw string) (Rank, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "J", "JACK":
		return Jack, nil
	case "Q", "QUEEN":
		return Queen, nil
	case "K", "KING":
		return King, nil
	case "A", "ACE":
		return Ace, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || !Rank(n).Valid() {
		return 0, fmt.Errorf("unknown rank %q", raw)
	}
	return Rank(n), nil
}

// Card is a plain value; two cards are the same card iff suit and rank match.
type Card struct {
	Suit Suit
	Rank Rank
}

// ID is the wire-level identifier clients use to reconcile card lists.
func (c Card) ID() string {
	return string(c.Suit.letter()) + "-" + c.Rank.String()
}

func (c Card) String() string {
	return c.Rank.String() + " of " + c.Suit.String()
}

type cardDTO struct {
	Suit Suit   `json:"suit"`
	Rank Rank   `json:"rank"`
	ID   string `json:"id,omitempty"`
}

func (c Card) MarshalJSON() ([]byte, error) {
	if !c.Suit.Valid() || !c.Rank.Valid() {
		return nil, fmt.Errorf("invalid card %d/%d", int(c.Suit), int(c.Rank))
	}
	return json.Marshal(cardDTO{Suit: c.Suit, Rank: c.Rank, ID: c.ID()})
}

func (c *Card) UnmarshalJSON(b []byte) error {
	var dto cardDTO
	if err := json.Unmarshal(b, &dto); err != nil {
		return err
	}
	c.Suit = dto.Suit
	c.Rank = dto.Rank
	return nil
}

type Deck []Card
