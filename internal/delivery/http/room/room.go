package http_room

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	http_common "github.com/humanbelnik/judgement/internal/delivery/http/common"
	"github.com/humanbelnik/judgement/internal/model"
	usecase_room "github.com/humanbelnik/judgement/internal/usecase/room"
)

type Controller struct {
	usecase *usecase_room.Usecase
	logger  *slog.Logger
}

func New(usecase *usecase_room.Usecase) *Controller {
	return &Controller{
		usecase: usecase,
		logger:  slog.Default(),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	rooms := router.Group("/rooms")
	{
		rooms.POST("", c.create)
		rooms.GET("/:code", c.get)
		rooms.POST("/:code/players", c.join)
		rooms.DELETE("/:code/players/:player_id", c.leave)
		rooms.POST("/:code/start", c.start)
		rooms.POST("/:code/bids", c.bid)
		rooms.POST("/:code/rounds/complete", c.completeRound)
	}
}

type PlayerDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type PlayerRequestDTO struct {
	Player PlayerDTO `json:"player"`
}

type BidRequestDTO struct {
	Bid *int `json:"bid" binding:"required"`
}

type CompleteRoundRequestDTO struct {
	Tricks map[string]int `json:"tricks" binding:"required"`
}

// player reads the joining player from the body. Clients that do not bring
// an id get a fresh one, echoed back in the X-player-id header.
func (c *Controller) player(ctx *gin.Context) (model.Player, bool) {
	var req PlayerRequestDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		http_common.BadRequest(ctx, "invalid request format")
		return model.Player{}, false
	}
	p := model.Player{ID: strings.TrimSpace(req.Player.ID), Name: req.Player.Name}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	ctx.Header(http_common.PlayerHeader, p.ID)
	return p, true
}

func requester(ctx *gin.Context) (string, bool) {
	id := strings.TrimSpace(ctx.GetHeader(http_common.PlayerHeader))
	if id == "" {
		http_common.BadRequest(ctx, http_common.PlayerHeader+" header required")
		return "", false
	}
	return id, true
}

// @Summary Create a room
// @Description Opens a lobby with the caller as host
// @Tags Rooms
// @Accept json
// @Produce json
// @Param request body PlayerRequestDTO true "Host"
// @Success 201 {object} model.Room
// @Header 201 {string} X-player-id "Host player id"
// @Failure 400 {object} http_common.ErrorResponse
// @Failure 503 {object} http_common.ErrorResponse
// @Router /rooms [post]
func (c *Controller) create(ctx *gin.Context) {
	p, ok := c.player(ctx)
	if !ok {
		return
	}

	room, err := c.usecase.CreateRoom(ctx.Request.Context(), p)
	if err != nil {
		http_common.Abort(ctx, c.logger, "create room", err)
		return
	}
	ctx.JSON(http.StatusCreated, room)
}

// @Summary Get a room
// @Tags Rooms
// @Produce json
// @Param code path string true "Room code"
// @Success 200 {object} model.Room
// @Failure 400 {object} http_common.ErrorResponse
// @Failure 404 {object} http_common.ErrorResponse
// @Router /rooms/{code} [get]
func (c *Controller) get(ctx *gin.Context) {
	room, err := c.usecase.GetRoom(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		http_common.Abort(ctx, c.logger, "get room", err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}

// @Summary Join a room
// @Tags Rooms
// @Accept json
// @Produce json
// @Param code path string true "Room code"
// @Param request body PlayerRequestDTO true "Joining player"
// @Success 200 {object} model.Room
// @Header 200 {string} X-player-id "Player id"
// @Failure 404 {object} http_common.ErrorResponse
// @Failure 409 {object} http_common.ErrorResponse
// @Router /rooms/{code}/players [post]
func (c *Controller) join(ctx *gin.Context) {
	p, ok := c.player(ctx)
	if !ok {
		return
	}

	room, err := c.usecase.JoinRoom(ctx.Request.Context(), ctx.Param("code"), p)
	if err != nil {
		http_common.Abort(ctx, c.logger, "join room", err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}

// @Summary Leave a room
// @Description The host leaving closes the room. Leaving a missing room is a no-op.
// @Tags Rooms
// @Param code path string true "Room code"
// @Param player_id path string true "Leaving player id"
// @Success 204
// @Failure 400 {object} http_common.ErrorResponse
// @Failure 503 {object} http_common.ErrorResponse
// @Router /rooms/{code}/players/{player_id} [delete]
func (c *Controller) leave(ctx *gin.Context) {
	err := c.usecase.LeaveRoom(ctx.Request.Context(), ctx.Param("code"), ctx.Param("player_id"))
	if err != nil {
		http_common.Abort(ctx, c.logger, "leave room", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// @Summary Start the game
// @Description Host only. Deals the first round.
// @Tags Rooms
// @Produce json
// @Param code path string true "Room code"
// @Param X-player-id header string true "Host id"
// @Success 200 {object} model.Room
// @Failure 403 {object} http_common.ErrorResponse
// @Failure 409 {object} http_common.ErrorResponse
// @Router /rooms/{code}/start [post]
func (c *Controller) start(ctx *gin.Context) {
	id, ok := requester(ctx)
	if !ok {
		return
	}

	room, err := c.usecase.StartGame(ctx.Request.Context(), ctx.Param("code"), id)
	if err != nil {
		http_common.Abort(ctx, c.logger, "start game", err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}

// @Summary Place a bid
// @Tags Rounds
// @Accept json
// @Produce json
// @Param code path string true "Room code"
// @Param X-player-id header string true "Bidder id"
// @Param request body BidRequestDTO true "Bid"
// @Success 200 {object} model.Room
// @Failure 400 {object} http_common.ErrorResponse
// @Failure 403 {object} http_common.ErrorResponse
// @Failure 409 {object} http_common.ErrorResponse
// @Router /rooms/{code}/bids [post]
func (c *Controller) bid(ctx *gin.Context) {
	id, ok := requester(ctx)
	if !ok {
		return
	}
	var req BidRequestDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		http_common.BadRequest(ctx, "invalid request format")
		return
	}

	room, err := c.usecase.PlaceBid(ctx.Request.Context(), ctx.Param("code"), id, *req.Bid)
	if err != nil {
		http_common.Abort(ctx, c.logger, "place bid", err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}

// @Summary Complete the round
// @Description Host only. Scores the tricks and deals the next round.
// @Tags Rounds
// @Accept json
// @Produce json
// @Param code path string true "Room code"
// @Param X-player-id header string true "Host id"
// @Param request body CompleteRoundRequestDTO true "Tricks won per player"
// @Success 200 {object} model.Room
// @Failure 403 {object} http_common.ErrorResponse
// @Failure 409 {object} http_common.ErrorResponse
// @Router /rooms/{code}/rounds/complete [post]
func (c *Controller) completeRound(ctx *gin.Context) {
	id, ok := requester(ctx)
	if !ok {
		return
	}
	var req CompleteRoundRequestDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		http_common.BadRequest(ctx, "invalid request format")
		return
	}

	room, err := c.usecase.CompleteRound(ctx.Request.Context(), ctx.Param("code"), id, req.Tricks)
	if err != nil {
		http_common.Abort(ctx, c.logger, "complete round", err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}
