package http_common

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/humanbelnik/judgement/internal/service/round_engine"
	usecase_room "github.com/humanbelnik/judgement/internal/usecase/room"
)

const PlayerHeader = "X-player-id"

type ErrorResponse struct {
	Message string `json:"message"`
}

// StatusFor maps usecase errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, usecase_room.ErrInvalidInput),
		errors.Is(err, round_engine.ErrInvalidPlayerCount),
		errors.Is(err, usecase_room.ErrBidOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, usecase_room.ErrNotHost),
		errors.Is(err, usecase_room.ErrNotYourTurn),
		errors.Is(err, usecase_room.ErrNotInRoom):
		return http.StatusForbidden
	case errors.Is(err, usecase_room.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase_room.ErrGameAlreadyStarted),
		errors.Is(err, usecase_room.ErrInsufficientPlayers),
		errors.Is(err, usecase_room.ErrForbiddenBid),
		errors.Is(err, usecase_room.ErrBiddingOpen),
		errors.Is(err, usecase_room.ErrTricksMismatch),
		errors.Is(err, usecase_room.ErrGameNotStarted),
		errors.Is(err, usecase_room.ErrGameFinished),
		errors.Is(err, usecase_room.ErrNoSession),
		errors.Is(err, usecase_room.ErrAlreadyInRoom),
		errors.Is(err, usecase_room.ErrSessionSuperseded),
		errors.Is(err, usecase_room.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, usecase_room.ErrCodeAllocationExhausted),
		errors.Is(err, usecase_room.ErrDirectoryUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Message renders err for clients. Server side failures are not spelled out.
func Message(err error) string {
	switch StatusFor(err) {
	case http.StatusInternalServerError:
		return "internal error"
	case http.StatusServiceUnavailable:
		if errors.Is(err, usecase_room.ErrCodeAllocationExhausted) {
			return usecase_room.ErrCodeAllocationExhausted.Error()
		}
		return "unavailable"
	}
	return strings.ReplaceAll(err.Error(), "\n", ": ")
}

// Abort writes the error response for err and logs server side failures.
func Abort(ctx *gin.Context, logger *slog.Logger, op string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "op", op, "error", err)
	} else {
		logger.Debug("request rejected", "op", op, "status", status, "error", err)
	}
	ctx.AbortWithStatusJSON(status, ErrorResponse{Message: Message(err)})
}

func BadRequest(ctx *gin.Context, message string) {
	ctx.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Message: message})
}
