package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/apperrors"
	"fleet_tracker/internal/fleet"
	"fleet_tracker/internal/middleware"
	"fleet_tracker/internal/tracking"
)

const msgLocationAck = "location-ack"

// TrackingController upgrades authenticated clients to websockets and
// routes their frames into the tracking hub.
type TrackingController struct {
	hub      *tracking.Hub
	fleet    *fleet.Manager
	auth     *middleware.Auth
	upgrader websocket.Upgrader
	buffer   int
	log      *logrus.Logger
}

func NewTrackingController(hub *tracking.Hub, m *fleet.Manager, auth *middleware.Auth, allowedOrigins []string, buffer int, log *logrus.Logger) *TrackingController {
	return &TrackingController{
		hub:   hub,
		fleet: m,
		auth:  auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return middleware.OriginAllowed(allowedOrigins, r.Header.Get("Origin"))
			},
		},
		buffer: buffer,
		log:    log,
	}
}

// tokenFrom prefers the token query parameter since browsers cannot set
// headers on a websocket handshake.
func tokenFrom(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	return strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
}

// HandleTracking is the /ws/tracking endpoint.
func (t *TrackingController) HandleTracking(c *gin.Context) {
	raw := tokenFrom(c)
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authentication token"})
		return
	}
	claims, err := t.auth.ValidateToken(raw)
	if err != nil {
		t.log.WithError(err).Warn("WebSocket connection attempt with invalid token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	conn, err := t.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		t.log.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := tracking.NewClient(t.hub, conn, claims.Caller(), t, t.buffer, t.log)
	client.Run(c.Request.Context())
}

// HandleInbound implements tracking.InboundHandler.
func (t *TrackingController) HandleInbound(ctx context.Context, c *tracking.Client, msg tracking.InboundMessage) error {
	switch msg.Type {
	case tracking.MsgJoinShipment:
		ref := strings.TrimSpace(msg.ShipmentID)
		if _, err := t.fleet.AuthorizeSubscribe(ctx, c.Caller(), ref); err != nil {
			return err
		}
		return t.hub.Join(ref, c)

	case tracking.MsgLeaveShipment:
		t.hub.Leave(msg.ShipmentID, c)
		return nil

	case tracking.MsgDriverLocation:
		return t.publishLocation(ctx, c, msg)

	default:
		return fmt.Errorf("%w: unknown message type %q", apperrors.ErrInvalidInput, msg.Type)
	}
}

func (t *TrackingController) publishLocation(ctx context.Context, c *tracking.Client, msg tracking.InboundMessage) error {
	var sample tracking.Sample
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &sample); err != nil {
			return fmt.Errorf("%w: invalid location data: %v", apperrors.ErrInvalidInput, err)
		}
	}
	if strings.TrimSpace(sample.ShipmentID) == "" {
		sample.ShipmentID = msg.ShipmentID
	}
	sample.ShipmentID = strings.TrimSpace(sample.ShipmentID)
	if sample.ShipmentID == "" {
		return fmt.Errorf("%w: shipment id is required", apperrors.ErrInvalidInput)
	}

	_, vehicle, err := t.fleet.AuthorizePublish(ctx, c.Caller(), sample.ShipmentID)
	if err != nil {
		return err
	}
	sample.VehicleNumber = vehicle.VehicleNumber
	sample.DriverName = vehicle.DriverName

	delivered, err := t.hub.Publish(ctx, sample)
	if err != nil {
		return err
	}

	ack, err := json.Marshal(gin.H{
		"type":        msgLocationAck,
		"shipment_id": sample.ShipmentID,
		"delivered":   delivered,
	})
	if err == nil {
		c.Send(ack)
	}
	return nil
}
