package router

import (
	"journaling-go/internal/config"
	"journaling-go/internal/handlers"

	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

// Setup builds the read-only results server.
func Setup(conf *config.Config, log *zap.Logger, results *handlers.ResultsHandler, runs *handlers.RunsHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'self'; script-src 'self' https://go-echarts.github.io 'unsafe-inline'",
	})
	router.Use(func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		c.Next()
	})

	router.Static("/figures", conf.FiguresPath(""))

	router.GET("/healthz", results.Health)
	api := router.Group("/api")
	{
		api.GET("/participants", results.Participants)
		api.GET("/report", results.Report)
		api.GET("/statistics", results.Statistics)
		api.GET("/runs", runs.List)
	}
	return router
}
