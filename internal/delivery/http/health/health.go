package http_health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const pingTimeout = 2 * time.Second

// Pinger is implemented by directories backed by a remote store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Controller struct {
	pinger Pinger
	logger *slog.Logger
}

// New accepts a nil pinger for backends with nothing to check.
func New(pinger Pinger) *Controller {
	return &Controller{
		pinger: pinger,
		logger: slog.Default(),
	}
}

type StatusDTO struct {
	Status string `json:"status"`
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/healthz", c.healthz)
}

func (c *Controller) healthz(ctx *gin.Context) {
	if c.pinger != nil {
		pctx, cancel := context.WithTimeout(ctx.Request.Context(), pingTimeout)
		defer cancel()
		if err := c.pinger.Ping(pctx); err != nil {
			c.logger.Warn("directory ping failed", "error", err)
			ctx.JSON(http.StatusServiceUnavailable, StatusDTO{Status: "unavailable"})
			return
		}
	}
	ctx.JSON(http.StatusOK, StatusDTO{Status: "ok"})
}
