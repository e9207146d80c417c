package http_swagger

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

//go:embed openapi.json
var document []byte

type Controller struct{}

func New() *Controller {
	return &Controller{}
}

// RegisterRoutes serves the API document and the UI that renders it.
func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/openapi.json", func(ctx *gin.Context) {
		ctx.Data(http.StatusOK, "application/json", document)
	})
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.URL(router.BasePath()+"/openapi.json"),
	))
}
