package integrationtest

import (
	"fmt"
	"time"

	"github.com/humanbelnik/judgement/internal/model"
	usecase_room "github.com/humanbelnik/judgement/internal/usecase/room"
	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/stretchr/testify/require"
)

const eventTimeout = 2 * time.Second

type backend struct {
	name      string
	directory func(t provider.T) usecase_room.RoomDirectory
}

func player(id string) model.Player {
	return model.Player{ID: id, Name: fmt.Sprintf("Player %s", id)}
}

func newSession(t provider.T, uc *usecase_room.Usecase, id string) *usecase_room.Session {
	s, err := uc.NewSession(player(id))
	require.NoError(t, err)
	return s
}

// waitFor reads session events until match accepts one.
func waitFor(t provider.T, s *usecase_room.Session, match func(usecase_room.SessionEvent) bool) usecase_room.SessionEvent {
	deadline := time.After(eventTimeout)
	for {
		select {
		case ev := <-s.Events():
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("session %s: expected event did not arrive, state %s", s.Player().ID, s.State().State)
			return usecase_room.SessionEvent{}
		}
	}
}

func inState(state usecase_room.SessionState, players int) func(usecase_room.SessionEvent) bool {
	return func(ev usecase_room.SessionEvent) bool {
		return ev.State == state && (players == 0 || (ev.Room != nil && len(ev.Room.Players) == players))
	}
}

func left(ev usecase_room.SessionEvent) bool {
	return ev.State == usecase_room.StateNoSession
}

func waitClosed(t provider.T, w *usecase_room.RoomWatch) {
	deadline := time.After(eventTimeout)
	for {
		select {
		case ev, ok := <-w.Updates():
			if !ok {
				t.Fatalf("watch ended without a close event")
				return
			}
			if ev.Kind == usecase_room.WatchClosed {
				return
			}
		case <-deadline:
			t.Fatalf("watch of %s never closed", w.Code())
			return
		}
	}
}
