// lobbywatch joins (or creates) a room over the websocket API and prints
// every session event. Lines typed on stdin are sent as commands:
//
//	start | leave | bid <n> | tricks <id>=<n>,... | quit
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	ws_room "github.com/humanbelnik/judgement/internal/delivery/ws/room"
)

var errQuit = errors.New("quit")

type wireEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server host:port")
	code := flag.String("code", "", "room to join, empty creates one")
	id := flag.String("id", "", "player id, empty lets the server pick")
	name := flag.String("name", "watcher", "display name")
	flag.Parse()

	u := url.URL{
		Scheme:   "ws",
		Host:     *addr,
		Path:     "/api/v1/ws",
		RawQuery: url.Values{"player_id": {*id}, "name": {*name}}.Encode(),
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("websocket connection failed: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var ev wireEvent
			if err := conn.ReadJSON(&ev); err != nil {
				fmt.Printf("connection closed: %v\n", err)
				return
			}
			fmt.Println(describe(ev))
		}
	}()

	first := ws_room.Command{Type: ws_room.CommandCreate}
	if *code != "" {
		first, _ = parseLine("join " + *code)
	}
	if err := conn.WriteJSON(first); err != nil {
		log.Fatalf("failed to send %s: %v", first.Type, err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, err := parseLine(line)
		if errors.Is(err, errQuit) {
			break
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		if err := conn.WriteJSON(cmd); err != nil {
			fmt.Printf("send failed: %v\n", err)
			break
		}
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	<-done
}

func parseLine(line string) (ws_room.Command, error) {
	verb, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(verb) {
	case "quit", "exit":
		return ws_room.Command{}, errQuit
	case "create":
		return ws_room.Command{Type: ws_room.CommandCreate}, nil
	case "join":
		if arg == "" {
			return ws_room.Command{}, errors.New("usage: join <code>")
		}
		return withPayload(ws_room.CommandJoin, ws_room.JoinPayload{Code: arg})
	case "leave":
		return ws_room.Command{Type: ws_room.CommandLeave}, nil
	case "start":
		return ws_room.Command{Type: ws_room.CommandStart}, nil
	case "bid":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return ws_room.Command{}, errors.New("usage: bid <n>")
		}
		return withPayload(ws_room.CommandBid, ws_room.BidPayload{Bid: &n})
	case "tricks":
		tricks, err := parseTricks(arg)
		if err != nil {
			return ws_room.Command{}, err
		}
		return withPayload(ws_room.CommandCompleteRound, ws_room.CompleteRoundPayload{Tricks: tricks})
	}
	return ws_room.Command{}, fmt.Errorf("unknown command %q", verb)
}

func parseTricks(arg string) (map[string]int, error) {
	tricks := make(map[string]int)
	for _, pair := range strings.Split(arg, ",") {
		id, raw, ok := strings.Cut(strings.TrimSpace(pair), "=")
		n, err := strconv.Atoi(raw)
		if !ok || id == "" || err != nil {
			return nil, errors.New("usage: tricks <id>=<n>,...")
		}
		tricks[id] = n
	}
	return tricks, nil
}

func withPayload(kind string, payload any) (ws_room.Command, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ws_room.Command{}, err
	}
	return ws_room.Command{Type: kind, Payload: raw}, nil
}

func describe(ev wireEvent) string {
	switch ev.Type {
	case ws_room.EventSession:
		var p struct {
			State  string `json:"state"`
			Code   string `json:"code"`
			Player struct {
				ID string `json:"id"`
			} `json:"player"`
		}
		if json.Unmarshal(ev.Payload, &p) == nil {
			if p.Code == "" {
				return fmt.Sprintf("[session] %s as %s", p.State, p.Player.ID)
			}
			return fmt.Sprintf("[session] %s in %s as %s", p.State, p.Code, p.Player.ID)
		}
	case ws_room.EventRoomUpdate:
		var p struct {
			Room struct {
				Code         string `json:"code"`
				HostID       string `json:"hostId"`
				GameStarted  bool   `json:"gameStarted"`
				CurrentRound int    `json:"currentRound"`
				Players      []struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"players"`
			} `json:"room"`
		}
		if json.Unmarshal(ev.Payload, &p) == nil {
			names := make([]string, 0, len(p.Room.Players))
			for _, pl := range p.Room.Players {
				names = append(names, pl.Name)
			}
			status := "lobby"
			if p.Room.GameStarted {
				status = "round " + strconv.Itoa(p.Room.CurrentRound)
			}
			return fmt.Sprintf("[room %s] %s, host %s, players: %s", p.Room.Code, status, p.Room.HostID, strings.Join(names, ", "))
		}
	case ws_room.EventRoomClosed:
		var p ws_room.RoomClosedPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			return fmt.Sprintf("[room %s] closed: %s", p.Code, p.Reason)
		}
	case ws_room.EventError:
		var p ws_room.ErrorPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			return fmt.Sprintf("[error] %s: %s (%d)", p.Command, p.Message, p.Status)
		}
	}
	return fmt.Sprintf("[%s] %s", ev.Type, ev.Payload)
}
