package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yigit/classsetup/internal/app/controllers"
	"github.com/yigit/classsetup/internal/app/models/dto"
	"github.com/yigit/classsetup/internal/middleware"
	"github.com/yigit/classsetup/internal/pkg/websocket"
)

// HealthCheck describes the store behind /health. Ping is nil for the in-memory store.
type HealthCheck struct {
	Storage string
	Ping    func(context.Context) error
}

func (h HealthCheck) handle(c *gin.Context) {
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, dto.HealthResponse{Status: "unavailable", Storage: h.Storage})
			return
		}
	}
	c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok", Storage: h.Storage})
}

// SetupRouter configures all application routes
func SetupRouter(
	router *gin.Engine,
	classSetupController *controllers.ClassSetupController,
	changeFeedHandler *websocket.Handler,
	authMiddleware *middleware.AuthMiddleware,
	health HealthCheck,
) {
	router.GET("/health", health.handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version group
	v1 := router.Group("/api/v1")

	// --- Authenticated Routes Group ---
	authenticated := v1.Group("")
	authenticated.Use(authMiddleware.JWTAuth())

	configurations := authenticated.Group("/configurations/:id")
	{
		configurations.GET("/class-setup", classSetupController.GetClassSetup)
		configurations.PUT("/class-setup", classSetupController.UpdateClassSetup)
		configurations.GET("/change-log", classSetupController.GetChangeLog)
		configurations.GET("/changes/ws", changeFeedHandler.HandleConnection)
	}
}
