package chathub

import (
	"accord/backend/internal/models"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize bounds one inbound frame.
	maxMessageSize = 64 * 1024
)

// WebSocketClient implements Client over a gorilla websocket.
type WebSocketClient struct {
	ID       string
	Identity models.Identity
	Language string
	Conn     *websocket.Conn
	Hub      *ManagerService

	log    zerolog.Logger
	send   chan models.OutboundEvent
	mu     sync.Mutex
	closed bool
}

// NewWebSocketClient wraps conn. bufferSize bounds the events queued for a
// slow reader before it is evicted.
func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn, id string, identity models.Identity, lang string, bufferSize int, log zerolog.Logger) *WebSocketClient {
	return &WebSocketClient{
		ID:       id,
		Identity: identity,
		Language: lang,
		Conn:     conn,
		Hub:      hub,
		log:      log.With().Str("conn_id", id).Logger(),
		send:     make(chan models.OutboundEvent, bufferSize),
	}
}

func (c *WebSocketClient) GetID() string                { return c.ID }
func (c *WebSocketClient) GetIdentity() models.Identity { return c.Identity }
func (c *WebSocketClient) GetLanguage() string          { return c.Language }

// Send queues evt for the write pump without blocking.
func (c *WebSocketClient) Send(evt models.OutboundEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- evt:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close stops the write pump, which closes the socket.
func (c *WebSocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ctx := context.Background()
	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("unexpected close")
			}
			return
		}

		var evt models.InboundEvent
		if err := json.Unmarshal(frame, &evt); err != nil {
			c.Hub.Pipeline.RejectFrame(c, err)
			continue
		}
		c.Hub.Pipeline.HandleEvent(ctx, c, evt)
	}
}

// writePump writes one frame per queued event and keeps the connection
// alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(evt)
			if err != nil {
				c.log.Error().Err(err).Str("event", evt.Event).Msg("encode event")
				continue
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
