package handler

import (
	"accord/backend/internal/chathub"
	"accord/backend/internal/localization"
	"accord/backend/internal/storage"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Handler holds everything the HTTP routes need.
type Handler struct {
	Hub       *chathub.ManagerService
	Store     storage.Storage
	Localizer *localization.Localizer

	jwtSecret  []byte
	sendBuffer int
	log        zerolog.Logger
}

func NewHandler(hub *chathub.ManagerService, store storage.Storage, loc *localization.Localizer, jwtSecret string, sendBuffer int, log zerolog.Logger) *Handler {
	return &Handler{
		Hub:        hub,
		Store:      store,
		Localizer:  loc,
		jwtSecret:  []byte(jwtSecret),
		sendBuffer: sendBuffer,
		log:        log,
	}
}

// RegisterRoutes mounts every route on r.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	authed := r.Group("/", h.AuthMiddleware())
	authed.GET("/ws", h.ServeWebSocket)

	api := authed.Group("/api/chats/:chatId")
	api.GET("/messages", h.GetHistory)
	api.GET("/analysis", h.GetAnalysis)
}

// Health reports liveness and the number of live connections.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": h.Hub.ClientCount()})
}
