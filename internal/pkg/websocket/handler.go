package websocket

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/yigit/classsetup/internal/app/models"
	"github.com/yigit/classsetup/internal/app/models/dto"
	"github.com/yigit/classsetup/internal/middleware"
	"github.com/yigit/classsetup/internal/pkg/logger"
)

// FeedAuthorizer decides whether an actor may watch a configuration and
// returns the offering whose changes the subscriber will receive.
type FeedAuthorizer interface {
	AuthorizeChangeFeed(ctx context.Context, actor models.ActorContext, configID int64) (int64, error)
}

// Handler upgrades authorized change feed requests to websockets.
type Handler struct {
	hub      *Hub
	authz    FeedAuthorizer
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithAllowedOrigins restricts browser connections to the given origin hosts.
func WithAllowedOrigins(origins []string) HandlerOption {
	return func(h *Handler) {
		h.upgrader = newUpgrader(origins)
	}
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, authz FeedAuthorizer, logger zerolog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		hub:      hub,
		authz:    authz,
		upgrader: newUpgrader(nil),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleConnection godoc
// @Summary Subscribe to class setup changes
// @Description Upgrades to a WebSocket that receives an event after every committed class setup change of the configuration's offering
// @Tags class-setup, websocket
// @Security BearerAuth
// @Param id path int true "Configuration ID"
// @Success 101 {string} string "Switching Protocols to WebSocket"
// @Failure 400 {object} dto.ErrorResponse "Invalid configuration ID"
// @Failure 401 {object} dto.ErrorResponse "Unauthorized"
// @Failure 403 {object} dto.ErrorResponse "Forbidden"
// @Router /configurations/{id}/changes/ws [get]
func (h *Handler) HandleConnection(c *gin.Context) {
	configID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid configuration ID")
		middleware.RespondError(c, http.StatusBadRequest, errorDetail)
		return
	}

	actor, ok := middleware.GetActor(c)
	if !ok {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeUnauthorized, "Authentication required")
		middleware.RespondError(c, http.StatusUnauthorized, errorDetail)
		return
	}

	offeringID, err := h.authz.AuthorizeChangeFeed(c.Request.Context(), actor, configID)
	if err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().
			Err(err).
			Int64("configID", configID).
			Int64("managerID", actor.ManagerID).
			Msg("Failed to upgrade connection to WebSocket")
		return
	}

	sub := newSubscriber(h.hub, conn, actor.ManagerID, offeringID, logger.Scoped(c.Request.Context(), h.logger))
	select {
	case h.hub.register <- sub:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go sub.writeLoop()
	go sub.readLoop()
}
