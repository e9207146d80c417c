package http_rules

import (
	"net/http"

	"github.com/gin-gonic/gin"
	http_common "github.com/humanbelnik/judgement/internal/delivery/http/common"
	"github.com/humanbelnik/judgement/internal/model"
	"github.com/humanbelnik/judgement/internal/service/cards"
	"github.com/humanbelnik/judgement/internal/service/round_engine"
)

// Controller exposes the pure round rules so clients can validate input
// before they submit it.
type Controller struct{}

func New() *Controller {
	return &Controller{}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	rules := router.Group("/rules")
	{
		rules.GET("/bid-check", c.bidCheck)
		rules.GET("/score", c.score)
		rules.GET("/initial-deck", c.initialDeck)
	}
}

type BidCheckRequestDTO struct {
	Bid              *int `form:"bid" binding:"required,min=0"`
	CurrentTotalBids *int `form:"current_total_bids" binding:"required,min=0"`
	TotalCards       *int `form:"total_cards" binding:"required,min=0"`
	CardsPerPlayer   *int `form:"cards_per_player" binding:"required,min=0"`
}

type BidCheckResponseDTO struct {
	Valid bool `json:"valid"`
}

func (c *Controller) bidCheck(ctx *gin.Context) {
	var req BidCheckRequestDTO
	if err := ctx.ShouldBindQuery(&req); err != nil {
		http_common.BadRequest(ctx, "bid, current_total_bids, total_cards and cards_per_player are required")
		return
	}
	ctx.JSON(http.StatusOK, BidCheckResponseDTO{
		Valid: round_engine.IsValidLastPlayerBid(*req.Bid, *req.CurrentTotalBids, *req.TotalCards, *req.CardsPerPlayer),
	})
}

type ScoreRequestDTO struct {
	Bid    *int `form:"bid" binding:"required,min=0"`
	Tricks *int `form:"tricks" binding:"required,min=0"`
}

type ScoreResponseDTO struct {
	Score int `json:"score"`
}

func (c *Controller) score(ctx *gin.Context) {
	var req ScoreRequestDTO
	if err := ctx.ShouldBindQuery(&req); err != nil {
		http_common.BadRequest(ctx, "bid and tricks are required")
		return
	}
	ctx.JSON(http.StatusOK, ScoreResponseDTO{
		Score: round_engine.CalculateScore(*req.Bid, *req.Tricks),
	})
}

type InitialDeckRequestDTO struct {
	Players int `form:"players" binding:"required"`
}

type InitialDeckResponseDTO struct {
	Players        int        `json:"players"`
	Supported      bool       `json:"supported"`
	CardsPerPlayer int        `json:"cardsPerPlayer"`
	Removed        model.Deck `json:"removed"`
}

func (c *Controller) initialDeck(ctx *gin.Context) {
	var req InitialDeckRequestDTO
	if err := ctx.ShouldBindQuery(&req); err != nil {
		http_common.BadRequest(ctx, "players is required")
		return
	}

	full := cards.BuildStandardDeck()
	deck, err := round_engine.AdjustDeckForInitialDeal(full, req.Players)
	if err != nil {
		http_common.BadRequest(ctx, err.Error())
		return
	}
	ctx.JSON(http.StatusOK, InitialDeckResponseDTO{
		Players:        req.Players,
		Supported:      round_engine.SupportedPlayerCount(req.Players),
		CardsPerPlayer: round_engine.CardsPerPlayer(len(deck), req.Players),
		Removed:        full[:len(full)-len(deck)],
	})
}
