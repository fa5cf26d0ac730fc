// Package ws pushes order events to signed-in dashboards over WebSocket,
// replacing fixed-interval polling.
package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/safar/go-food-delivery/internal/auth"
	"github.com/safar/go-food-delivery/internal/events"
	"github.com/safar/go-food-delivery/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the token is the gate
	},
}

// Visible decides which events a role is pushed. Couriers also receive
// accept events for orders taken by someone else, so the shared pool can drop
// them.
func Visible(role auth.Role, e events.OrderEvent) bool {
	if auth.CanView(role, e.CustomerID, e.RestaurantID, e.DeliveryPersonID, e.ToStatus) {
		return true
	}
	switch role.(type) {
	case auth.Delivery:
		return e.Action == models.ActionAcceptDelivery
	}
	return false
}

type Client struct {
	conn *websocket.Conn
	sub  *events.Subscription
	log  *logrus.Entry
}

// ReadPump only watches for the peer going away; dashboards never send.
func (c *Client) ReadPump() {
	defer func() {
		c.sub.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("websocket read")
			}
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.sub.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Broker dropped us; the dashboard reconnects and refetches.
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "fell behind"))
				return
			}

			message, err := json.Marshal(event)
			if err != nil {
				c.log.WithError(err).Error("encode event")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func tokenFrom(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

// ServeWS upgrades an authenticated request and streams the events the
// caller's role may see. Browsers cannot set headers on WebSocket requests,
// so the token may come in the query string.
func ServeWS(broker *events.Broker, jwtSecret string, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := tokenFrom(r)
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		role, err := auth.ParseRole(jwtSecret, tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("websocket upgrade")
			return
		}

		client := &Client{
			conn: conn,
			sub:  broker.Subscribe(func(e events.OrderEvent) bool { return Visible(role, e) }),
			log:  log.WithField("actor", auth.Actor(role)),
		}

		go client.WritePump()
		go client.ReadPump()
	}
}
