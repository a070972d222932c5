package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	AllowedOrigins []string
	Metrics        http.Handler
}

func SetupRouter(cfg RouterConfig, mw *Middleware, signalController *SignalController, authController *AuthController) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), mw.RequestID(), mw.Logger())

	config := cors.DefaultConfig()
	config.AllowOrigins = cfg.AllowedOrigins
	if len(config.AllowOrigins) == 1 && config.AllowOrigins[0] == "*" {
		config.AllowOrigins = nil
		config.AllowAllOrigins = true
	} else {
		config.AllowCredentials = true
	}
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
		requestIDHeader,
	}
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.ExposeHeaders = []string{requestIDHeader}
	router.Use(cors.New(config))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	api := router.Group("/api")

	if authController != nil {
		authGroup := api.Group("/auth")
		authGroup.POST("/guest", mw.MaxBody(), authController.CreateGuest)
		authGroup.GET("/me", mw.Authenticate(), authController.Me)
	}

	if signalController != nil {
		api.GET("/signal/ice-servers", signalController.ICEServers)

		signals := api.Group("/signal", mw.Authenticate(), mw.RateLimit())
		signals.POST("", mw.MaxBody(), signalController.Handle)
		signals.GET("/ws", signalController.Socket)
	}

	return router
}
