// Package fleet binds vehicles to shipments and drives the shipment lifecycle.
package fleet

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/events"
	"fleet_tracker/internal/geo"
	"fleet_tracker/internal/models"
	"fleet_tracker/internal/store"
	"fleet_tracker/internal/tracking"
)

// PositionLookup returns the last live sample cached for a shipment.
type PositionLookup interface {
	Get(ctx context.Context, shipmentRef string) (tracking.Sample, bool, error)
}

// InvoiceCleaner removes invoices that belong to a deleted shipment.
type InvoiceCleaner interface {
	DeleteInvoicesByShipment(ctx context.Context, shipmentID uint) (int64, error)
}

// Manager owns every write that touches the vehicle/shipment binding.
type Manager struct {
	store     store.Store
	routes    *geo.Synthesizer
	events    events.Publisher
	positions PositionLookup
	invoices  InvoiceCleaner
	log       *logrus.Logger
	now       func() time.Time
}

type Option func(*Manager)

// WithPositions overlays cached live samples on the active-fleet view.
func WithPositions(p PositionLookup) Option {
	return func(m *Manager) { m.positions = p }
}

// WithInvoiceCleaner replaces the store as the invoice cleanup collaborator.
func WithInvoiceCleaner(c InvoiceCleaner) Option {
	return func(m *Manager) { m.invoices = c }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(st store.Store, routes *geo.Synthesizer, pub events.Publisher, log *logrus.Logger, opts ...Option) *Manager {
	if pub == nil {
		pub = events.Nop{}
	}
	m := &Manager{
		store:    st,
		routes:   routes,
		events:   pub,
		invoices: st,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// publish delivers ev after the write that produced it has committed.
// Delivery failures never undo the write.
func (m *Manager) publish(ctx context.Context, ev events.Event) {
	if err := m.events.Publish(ctx, ev); err != nil {
		m.log.WithFields(logrus.Fields{
			"event": ev.Type,
			"key":   ev.Key,
		}).WithError(err).Warn("event delivery failed")
	}
}

func (m *Manager) statusChanged(ctx context.Context, sh *models.Shipment, prev models.ShipmentStatus) {
	m.publish(ctx, events.NewAt(events.TypeShipmentStatusUpdated, sh.ReferenceID, events.StatusChanged{
		ShipmentID:     sh.ID,
		ReferenceID:    sh.ReferenceID,
		Status:         string(sh.Status),
		PreviousStatus: string(prev),
	}, m.now()))
}

func uintPtr(v uint) *uint { return &v }

func boolPtr(v bool) *bool { return &v }
