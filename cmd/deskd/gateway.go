package main

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deskd/deskd/internal/common/config"
	"github.com/deskd/deskd/internal/common/logger"
	gateway "github.com/deskd/deskd/internal/gateway/websocket"
)

// buildServer creates the HTTP server exposing the WebSocket gateway.
func buildServer(cfg *config.Config, svcs *services, log *logger.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	wsHandler := gateway.NewHandler(svcs.hub, svcs.bridge, svcs.apps, log)
	router.GET("/ws", wsHandler.HandleConnection)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"clients": svcs.hub.ClientCount(),
		})
	})

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}
}
