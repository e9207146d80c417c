package model

import (
	"slices"
	"time"
)

const EmptyRoomCode = ""

type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Room is the shared record stored in the room directory under its code.
// Absence of the record means the room is closed.
type Room struct {
	Code         string      `json:"code"`
	HostID       string      `json:"hostId"`
	HostName     string      `json:"hostName"`
	Players      []Player    `json:"players"`
	CreatedAt    time.Time   `json:"createdAt"`
	GameStarted  bool        `json:"gameStarted"`
	CurrentRound int         `json:"currentRound,omitempty"`
	Round        *RoundState `json:"round,omitempty"`

	// Version is owned by the directory and bumped on every committed write.
	Version int64 `json:"version"`
}

func (r *Room) PlayerIndex(id string) int {
	return slices.IndexFunc(r.Players, func(p Player) bool { return p.ID == id })
}

func (r *Room) HasPlayer(id string) bool {
	return r.PlayerIndex(id) >= 0
}

func (r *Room) IsHost(id string) bool {
	return r.HostID == id
}

func (r *Room) PlayerIDs() []string {
	ids := make([]string, len(r.Players))
	for i, p := range r.Players {
		ids[i] = p.ID
	}
	return ids
}

func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Players = slices.Clone(r.Players)
	c.Round = r.Round.Clone()
	return &c
}

// RoundState is the round engine payload stored inside the room once the
// game has started.
type RoundState struct {
	Number         int             `json:"number"`
	CardsPerPlayer int             `json:"cardsPerPlayer"`
	Deck           Deck            `json:"deck"`
	Hands          map[string]Deck `json:"hands"`
	Trump          *Suit           `json:"trump,omitempty"`
	TrumpChanged   bool            `json:"trumpChanged"`
	BidOrder       []string        `json:"bidOrder"`
	Bids           map[string]int  `json:"bids"`
	Tricks         map[string]int  `json:"tricks"`
	Scores         map[string]int  `json:"scores"`
	LastScores     map[string]int  `json:"lastScores,omitempty"`
	Finished       bool            `json:"finished"`
}

// NextBidder returns the player expected to bid next, false once everyone has bid.
func (s *RoundState) NextBidder() (string, bool) {
	for _, id := range s.BidOrder {
		if _, ok := s.Bids[id]; !ok {
			return id, true
		}
	}
	return "", false
}

func (s *RoundState) IsLastBidder(id string) bool {
	return len(s.BidOrder) > 0 && len(s.Bids) == len(s.BidOrder)-1 && !s.hasBid(id)
}

func (s *RoundState) hasBid(id string) bool {
	_, ok := s.Bids[id]
	return ok
}

func (s *RoundState) BidTotal() int {
	total := 0
	for _, b := range s.Bids {
		total += b
	}
	return total
}

func (s *RoundState) BiddingComplete() bool {
	_, open := s.NextBidder()
	return !open
}

func (s *RoundState) Clone() *RoundState {
	if s == nil {
		return nil
	}
	c := *s
	c.Deck = slices.Clone(s.Deck)
	if s.Hands != nil {
		c.Hands = make(map[string]Deck, len(s.Hands))
		for id, h := range s.Hands {
			c.Hands[id] = slices.Clone(h)
		}
	}
	if s.Trump != nil {
		t := *s.Trump
		c.Trump = &t
	}
	c.BidOrder = slices.Clone(s.BidOrder)
	c.Bids = cloneCounts(s.Bids)
	c.Tricks = cloneCounts(s.Tricks)
	c.Scores = cloneCounts(s.Scores)
	c.LastScores = cloneCounts(s.LastScores)
	return &c
}

func cloneCounts(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	c := make(map[string]int, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
