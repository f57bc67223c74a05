package tracking

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Inbound message types sent by websocket clients.
const (
	MsgJoinShipment   = "join-shipment"
	MsgLeaveShipment  = "leave-shipment"
	MsgDriverLocation = "driver-location"
	MsgError          = "error"
)

// InboundMessage is one frame read from a client.
type InboundMessage struct {
	Type       string          `json:"type"`
	ShipmentID string          `json:"shipment_id"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// InboundHandler decides what a client frame does. It owns authorization.
type InboundHandler interface {
	HandleInbound(ctx context.Context, c *Client, msg InboundMessage) error
}

// Client is a websocket subscriber. Frames are queued on a bounded buffer
// and written by a single writer goroutine.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	caller  models.Caller
	handler InboundHandler
	log     *logrus.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, caller models.Caller, handler InboundHandler, buffer int, log *logrus.Logger) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		caller:  caller,
		handler: handler,
		log:     log,
		send:    make(chan []byte, buffer),
		done:    make(chan struct{}),
	}
}

func (c *Client) Caller() models.Caller { return c.caller }

// Send queues a frame without blocking.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// SendError tells the client a frame was rejected.
func (c *Client) SendError(message string) {
	frame, err := json.Marshal(map[string]string{"type": MsgError, "error": message})
	if err != nil {
		return
	}
	c.Send(frame)
}

// Run connects the client to the hub and blocks until the connection ends.
// The subscription is released on return.
func (c *Client) Run(ctx context.Context) {
	c.hub.Connect(c)
	defer c.close()

	go c.writePump()
	c.readPump(ctx)
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.hub.Disconnect(c)
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).WithField("user_id", c.caller.UserID).Warn("Websocket closed unexpectedly")
			}
			return
		}

		var msg InboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.SendError("malformed message")
			continue
		}
		if err := c.handler.HandleInbound(ctx, c, msg); err != nil {
			c.log.WithError(err).WithFields(logrus.Fields{
				"user_id": c.caller.UserID,
				"type":    msg.Type,
			}).Debug("Rejected inbound websocket message")
			c.SendError(err.Error())
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
