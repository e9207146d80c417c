package ws_room

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	http_common "github.com/humanbelnik/judgement/internal/delivery/http/common"
	"github.com/humanbelnik/judgement/internal/model"
	usecase_room "github.com/humanbelnik/judgement/internal/usecase/room"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Controller struct {
	uc  *usecase_room.Usecase
	hub *Hub

	logger *slog.Logger
}

func New(uc *usecase_room.Usecase, hub *Hub) *Controller {
	return &Controller{
		uc:     uc,
		hub:    hub,
		logger: slog.Default(),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ws", c.serve)
}

// serve opens a session for ?player_id=&name=. A missing id is replaced by
// a fresh one, reported in the first SESSION event.
func (c *Controller) serve(ctx *gin.Context) {
	player := model.Player{
		ID:   strings.TrimSpace(ctx.Query("player_id")),
		Name: ctx.Query("name"),
	}
	if player.ID == "" {
		player.ID = uuid.NewString()
	}

	session, err := c.uc.NewSession(player)
	if err != nil {
		http_common.Abort(ctx, c.logger, "ws", err)
		return
	}

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.logger.Error("failed to upgrade to websocket",
			slog.String("error", err.Error()),
		)
		session.Close()
		return
	}

	c.hub.Attach(conn, session)
}
