package handler

import (
	"accord/backend/internal/chathub"
	"accord/backend/internal/localization"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are not restricted; the token is the access control.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades an authenticated request and registers the
// connection with the hub.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	identity := identityFrom(c)

	lang := localization.DefaultLanguage
	if h.Localizer != nil {
		lang = h.Localizer.MatchLanguage(c.GetHeader("Accept-Language"))
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, conn, uuid.NewString(), identity, lang, h.sendBuffer, h.log)
	if !h.Hub.Register(client) {
		conn.Close()
		return
	}
	client.Run()
}
