package app

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/humanbelnik/judgement/internal/config"
	http_common "github.com/humanbelnik/judgement/internal/delivery/http/common"
	ws_room "github.com/humanbelnik/judgement/internal/delivery/ws/room"
	"github.com/humanbelnik/judgement/internal/model"
	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
	"github.com/stretchr/testify/require"
)

type AppE2ESuite struct {
	suite.Suite

	mr  *miniredis.Miniredis
	dir directory
}

func (s *AppE2ESuite) BeforeAll(t provider.T) {
	gin.SetMode(gin.TestMode)
	mr, err := miniredis.Run()
	require.NoError(t, err)
	s.mr = mr
	s.dir = mustBuildDirectory(s.config(false))
}

func (s *AppE2ESuite) AfterAll(t provider.T) {
	if closer, ok := s.dir.RoomDirectory.(io.Closer); ok {
		closer.Close()
	}
	s.mr.Close()
}

func (s *AppE2ESuite) config(readOnly bool) *config.Config {
	cfg := config.FromEnv()
	cfg.Directory.Backend = config.BackendRedis
	cfg.Redis.Host = s.mr.Host()
	cfg.Redis.Port = s.mr.Port()
	cfg.HTTP.ReadOnly = readOnly
	return cfg
}

func (s *AppE2ESuite) serve(readOnly bool) (*httptest.Server, func()) {
	pool, hub := buildServer(s.config(readOnly), s.dir)
	ts := httptest.NewServer(pool.Handler())
	return ts, func() {
		hub.Shutdown()
		ts.Close()
	}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func call(t provider.T, ts *httptest.Server, method, path, playerID string, body any) response {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+"/api/v1"+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if playerID != "" {
		req.Header.Set(http_common.PlayerHeader, playerID)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, header: resp.Header, body: raw}
}

// nextRoom reads websocket events until a room update satisfies ok.
func nextRoom(t provider.T, conn *websocket.Conn, ok func(*model.Room) bool) *model.Room {
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var ev struct {
			Type    string `json:"type"`
			Payload struct {
				Room *model.Room `json:"room"`
			} `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == ws_room.EventRoomUpdate && ok(ev.Payload.Room) {
			return ev.Payload.Room
		}
	}
}

func (s *AppE2ESuite) TestLobbyAcrossTransports(t provider.T) {
	ts, stop := s.serve(false)
	defer stop()

	resp := call(t, ts, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.status)

	resp = call(t, ts, http.MethodPost, "/rooms", "", map[string]any{"player": map[string]string{"name": "Host"}})
	require.Equal(t, http.StatusCreated, resp.status)
	hostID := resp.header.Get(http_common.PlayerHeader)
	require.NotEmpty(t, hostID)
	var room model.Room
	require.NoError(t, json.Unmarshal(resp.body, &room))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?player_id=guest&name=Guest"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	payload, err := json.Marshal(ws_room.JoinPayload{Code: room.Code})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(ws_room.Command{Type: ws_room.CommandJoin, Payload: payload}))
	joined := nextRoom(t, conn, func(r *model.Room) bool { return len(r.Players) == 2 })
	require.Equal(t, hostID, joined.HostID)

	resp = call(t, ts, http.MethodPost, "/rooms/"+room.Code+"/start", hostID, nil)
	require.Equal(t, http.StatusOK, resp.status)
	started := nextRoom(t, conn, func(r *model.Room) bool { return r.GameStarted })
	require.Equal(t, 1, started.CurrentRound)

	resp = call(t, ts, http.MethodDelete, "/rooms/"+room.Code+"/players/"+hostID, "", nil)
	require.Equal(t, http.StatusNoContent, resp.status)
	resp = call(t, ts, http.MethodGet, "/rooms/"+room.Code, "", nil)
	require.Equal(t, http.StatusNotFound, resp.status)
}

func (s *AppE2ESuite) TestReadOnly(t provider.T) {
	ts, stop := s.serve(true)
	defer stop()

	resp := call(t, ts, http.MethodPost, "/rooms", "", map[string]any{"player": map[string]string{"name": "Host"}})
	require.Equal(t, http.StatusServiceUnavailable, resp.status)

	resp = call(t, ts, http.MethodGet, "/rules/score?bid=1&tricks=1", "", nil)
	require.Equal(t, http.StatusOK, resp.status)
	var score struct {
		Score int `json:"score"`
	}
	require.NoError(t, json.Unmarshal(resp.body, &score))
	require.Equal(t, 11, score.Score)
}

func TestAppE2ESuite(t *testing.T) {
	suite.RunSuite(t, new(AppE2ESuite))
}
