// Package tracking fans live vehicle positions out to per-shipment subscribers.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/apperrors"
	"fleet_tracker/internal/events"
	"fleet_tracker/internal/models"
)

// Subscriber receives frames from the hub. Send must not block; it
// returns false when the frame was dropped.
type Subscriber interface {
	Caller() models.Caller
	Send(frame []byte) bool
}

// PositionCache remembers the last sample of each shipment.
type PositionCache interface {
	Put(ctx context.Context, s Sample) error
}

const cacheWriteTimeout = 2 * time.Second

// Hub keeps one channel per shipment reference. A channel exists only while
// it has members. Every connected subscriber also receives process-wide events.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[Subscriber]struct{}
	clients  map[Subscriber]map[string]struct{}

	positions PositionCache
	log       *logrus.Logger
	now       func() time.Time
}

// NewHub returns an empty hub. positions may be nil.
func NewHub(log *logrus.Logger, positions PositionCache) *Hub {
	return &Hub{
		channels:  make(map[string]map[Subscriber]struct{}),
		clients:   make(map[Subscriber]map[string]struct{}),
		positions: positions,
		log:       log,
		now:       time.Now,
	}
}

// Connect registers sub for process-wide events.
func (h *Hub) Connect(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connectLocked(sub)
}

func (h *Hub) connectLocked(sub Subscriber) {
	if _, ok := h.clients[sub]; !ok {
		h.clients[sub] = make(map[string]struct{})
		caller := sub.Caller()
		h.log.WithFields(logrus.Fields{
			"user_id": caller.UserID,
			"role":    caller.Role,
		}).Info("Client connected to tracking hub")
	}
}

// Disconnect removes sub from every channel and from the hub.
func (h *Hub) Disconnect(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.clients[sub]
	if !ok {
		return
	}
	for ref := range joined {
		h.leaveLocked(ref, sub)
	}
	delete(h.clients, sub)

	caller := sub.Caller()
	h.log.WithFields(logrus.Fields{
		"user_id": caller.UserID,
		"role":    caller.Role,
	}).Info("Client disconnected from tracking hub")
}

// Join adds sub to the channel of a shipment, creating the channel if needed.
func (h *Hub) Join(shipmentRef string, sub Subscriber) error {
	ref := strings.TrimSpace(shipmentRef)
	if ref == "" {
		return fmt.Errorf("%w: shipment id is required", apperrors.ErrInvalidInput)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.connectLocked(sub)
	members, ok := h.channels[ref]
	if !ok {
		members = make(map[Subscriber]struct{})
		h.channels[ref] = members
	}
	members[sub] = struct{}{}
	h.clients[sub][ref] = struct{}{}

	h.log.WithFields(logrus.Fields{
		"shipment_id": ref,
		"user_id":     sub.Caller().UserID,
		"members":     len(members),
	}).Debug("Subscriber joined shipment channel")
	return nil
}

// Leave removes sub from a channel. The channel is dropped once empty.
func (h *Hub) Leave(shipmentRef string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(strings.TrimSpace(shipmentRef), sub)
}

func (h *Hub) leaveLocked(ref string, sub Subscriber) {
	if members, ok := h.channels[ref]; ok {
		delete(members, sub)
		if len(members) == 0 {
			delete(h.channels, ref)
			h.log.WithField("shipment_id", ref).Debug("Removed shipment channel as no subscribers are left")
		}
	}
	if joined, ok := h.clients[sub]; ok {
		delete(joined, ref)
	}
}

// Publish fans a sample out to the members of its shipment channel and
// returns how many received it. A channel without members drops the sample.
func (h *Hub) Publish(ctx context.Context, s Sample) (int, error) {
	s.ShipmentID = strings.TrimSpace(s.ShipmentID)
	if err := s.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = h.now().UTC()
	}

	ev := events.NewAt(events.TypeLocationUpdate, s.ShipmentID, LocationUpdate{Sample: s, ReferenceID: s.ShipmentID}, s.Timestamp)
	frame, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal location update: %w", err)
	}

	h.mu.RLock()
	targets := keys(h.channels[s.ShipmentID])
	h.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, sub := range targets {
		if sub.Send(frame) {
			delivered++
		} else {
			dropped++
		}
	}

	if dropped > 0 {
		h.log.WithFields(logrus.Fields{
			"shipment_id": s.ShipmentID,
			"dropped":     dropped,
		}).Warn("Subscriber buffer full, dropping location update")
	}

	if h.positions != nil {
		go h.remember(s)
	}
	return delivered, nil
}

func (h *Hub) remember(s Sample) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()
	if err := h.positions.Put(ctx, s); err != nil {
		h.log.WithError(err).WithField("shipment_id", s.ShipmentID).Warn("Failed to cache last known position")
	}
}

// PublishEvent sends ev to every connected subscriber in its audience.
func (h *Hub) PublishEvent(ctx context.Context, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.clients))
	for sub := range h.clients {
		caller := sub.Caller()
		if ev.Audience.Includes(caller.Role, caller.UserID) {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	dropped := 0
	for _, sub := range targets {
		if !sub.Send(frame) {
			dropped++
		}
	}
	if dropped > 0 {
		h.log.WithFields(logrus.Fields{
			"event_type": ev.Type,
			"dropped":    dropped,
		}).Warn("Subscriber buffer full, dropping event")
	}
	return nil
}

// Publisher adapts the hub to events.Publisher for process-wide events.
func (h *Hub) Publisher() events.Publisher {
	return hubPublisher{h}
}

type hubPublisher struct{ h *Hub }

func (p hubPublisher) Publish(ctx context.Context, ev events.Event) error {
	return p.h.PublishEvent(ctx, ev)
}

// ChannelCount returns the number of live shipment channels.
func (h *Hub) ChannelCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// SubscriberCount returns the members of one shipment channel.
func (h *Hub) SubscriberCount(shipmentRef string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[shipmentRef])
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func keys(m map[Subscriber]struct{}) []Subscriber {
	out := make([]Subscriber, 0, len(m))
	for sub := range m {
		out = append(out, sub)
	}
	return out
}
