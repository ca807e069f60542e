package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"friendline/models"
	"friendline/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

// SendChecker decides whether one user may signal another.
type SendChecker interface {
	CanSend(ctx context.Context, sender, receiver string) error
}

type Client struct {
	ID     string
	UserID string
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	guard  SendChecker
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string, guard SendChecker) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		guard:  guard,
	}
}

func (c *Client) ReadPump() {
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

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithFields(logrus.Fields{
					"function": "ReadPump",
					"user_id":  c.UserID,
					"error":    err,
				}).Warn("websocket read error")
			}
			break
		}

		c.handleMessage(message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
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

func (c *Client) handleMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	switch msg.Action {
	case "ping":
		c.Hub.Notify(c.UserID, models.Event{Event: models.EventPong})
	case models.EventTyping, models.EventStopTyping:
		c.relayTyping(msg.Action, msg.To)
	}
}

// relayTyping forwards a typing signal to a peer the user may message.
func (c *Client) relayTyping(event, to string) {
	if to == "" || to == c.UserID {
		return
	}
	if c.guard != nil {
		if err := c.guard.CanSend(context.Background(), c.UserID, to); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "relayTyping",
				"user_id":  c.UserID,
				"to":       to,
				"reason":   err,
			}).Debug("typing signal suppressed")
			return
		}
	}
	c.Hub.Notify(to, models.NewFromEvent(event, c.UserID))
}

// Handler upgrades authenticated requests to websocket channels.
type Handler struct {
	hub      *Hub
	tokens   *utils.TokenManager
	guard    SendChecker
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, tokens *utils.TokenManager, guard SendChecker, allowOrigin func(origin string) bool) *Handler {
	return &Handler{
		hub:    hub,
		tokens: tokens,
		guard:  guard,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowOrigin == nil || allowOrigin(origin)
			},
		},
	}
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token, _ = c.Cookie("jwt")
	}
	if token == "" {
		utils.Unauthorized(c, "missing token")
		return
	}

	claims, err := h.tokens.ParseToken(token)
	if err != nil {
		utils.Unauthorized(c, "invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithField("error", err).Warn("websocket upgrade error")
		return
	}

	client := NewClient(h.hub, conn, claims.UserID, h.guard)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
