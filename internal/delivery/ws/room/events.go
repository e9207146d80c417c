package ws_room

import (
	"encoding/json"

	"github.com/humanbelnik/judgement/internal/model"
	usecase_room "github.com/humanbelnik/judgement/internal/usecase/room"
)

const (
	CommandCreate        = "CREATE"
	CommandJoin          = "JOIN"
	CommandLeave         = "LEAVE"
	CommandStart         = "START"
	CommandBid           = "BID"
	CommandCompleteRound = "COMPLETE_ROUND"
)

const (
	EventSession    = "SESSION"
	EventRoomUpdate = "ROOM_UPDATE"
	EventRoomClosed = "ROOM_CLOSED"
	EventError      = "ERROR"
)

type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Command is one inbound message. ID is echoed back on errors so clients
// can match them to what they sent.
type Command struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinPayload struct {
	Code string `json:"code"`
}

type BidPayload struct {
	Bid *int `json:"bid"`
}

type CompleteRoundPayload struct {
	Tricks map[string]int `json:"tricks"`
}

type SessionPayload struct {
	State  usecase_room.SessionState `json:"state"`
	Code   string                    `json:"code,omitempty"`
	Player model.Player              `json:"player"`
}

type RoomUpdatePayload struct {
	State usecase_room.SessionState `json:"state"`
	Room  *model.Room               `json:"room"`
}

type RoomClosedPayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Command string `json:"command,omitempty"`
	ID      string `json:"id,omitempty"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}
