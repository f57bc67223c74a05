// Package events carries outbound notifications to websocket clients and Kafka.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type EventType string

const (
	TypeLocationUpdate        EventType = "location-update"
	TypeShipmentStatusUpdated EventType = "shipment-status-updated"
	TypeRequestCreated        EventType = "delivery-request-created"
	TypeRequestUpdated        EventType = "delivery-request-updated"
)

// Audience limits who receives a process-wide event. The zero value means everyone.
type Audience struct {
	Roles   []string
	UserIDs []uint
}

// Everyone reports whether the audience is unrestricted.
func (a Audience) Everyone() bool {
	return len(a.Roles) == 0 && len(a.UserIDs) == 0
}

// Includes reports whether a client with the given role and user id may receive the event.
func (a Audience) Includes(role string, userID uint) bool {
	if a.Everyone() {
		return true
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	for _, id := range a.UserIDs {
		if id != 0 && id == userID {
			return true
		}
	}
	return false
}

// Event is the envelope for every outbound notification.
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"type"`
	Key       string      `json:"key"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	Audience  Audience    `json:"-"`
}

// New builds an event with a fresh id. key is the shipment or request reference.
func New(t EventType, key string, data interface{}) Event {
	return NewAt(t, key, data, time.Now())
}

// NewAt is New stamped with at instead of the wall clock.
func NewAt(t EventType, key string, data interface{}, at time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Type:      t,
		Key:       key,
		Timestamp: at.UTC(),
		Data:      data,
	}
}

// StatusChanged is the payload of shipment-status-updated.
type StatusChanged struct {
	ShipmentID     uint   `json:"shipment_id"`
	ReferenceID    string `json:"reference_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status"`
}

// RequestChanged is the payload of delivery request events.
type RequestChanged struct {
	RequestID     uint   `json:"request_id"`
	RequestNumber string `json:"request_number"`
	CustomerID    uint   `json:"customer_id"`
	CustomerName  string `json:"customer_name"`
	Status        string `json:"status"`
	ShipmentID    *uint  `json:"shipment_id,omitempty"`
}

// Publisher delivers an event to one sink.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Fanout delivers each event to every sink. A failing sink does not stop the others.
type Fanout struct {
	sinks []Publisher
	log   *logrus.Logger
}

func NewFanout(log *logrus.Logger, sinks ...Publisher) *Fanout {
	return &Fanout{sinks: sinks, log: log}
}

func (f *Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, ev); err != nil {
			f.log.WithError(err).WithFields(logrus.Fields{
				"event_id":   ev.ID,
				"event_type": ev.Type,
				"key":        ev.Key,
			}).Warn("Failed to publish event to sink")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
