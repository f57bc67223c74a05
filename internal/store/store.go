// Package store persists shipments, vehicles, invoices, delivery requests and users.
package store

import (
	"context"

	"fleet_tracker/internal/models"
)

// ShipmentFilter narrows ListShipments. Zero fields match everything.
type ShipmentFilter struct {
	IDs       []uint
	Statuses  []models.ShipmentStatus
	VehicleID *uint

	// CustomerID matches the recorded customer id. CustomerName matches
	// only shipments that have no customer id recorded. When both are set
	// either match is enough.
	CustomerID   *uint
	CustomerName string
}

// VehicleFilter narrows ListVehicles. Zero fields match everything.
type VehicleFilter struct {
	Statuses    []models.VehicleStatus
	MinCapacity float64
	Bound       *bool
	DriverID    *uint
	ShipmentID  *uint
}

// RequestFilter narrows ListRequests. Zero fields match everything.
type RequestFilter struct {
	CustomerID *uint
	Statuses   []models.RequestStatus
}

type ShipmentStore interface {
	CreateShipment(ctx context.Context, s *models.Shipment) error
	GetShipment(ctx context.Context, id uint) (*models.Shipment, error)
	GetShipmentByReference(ctx context.Context, ref string) (*models.Shipment, error)
	ListShipments(ctx context.Context, f ShipmentFilter) ([]models.Shipment, error)
	SaveShipment(ctx context.Context, s *models.Shipment) error
	DeleteShipment(ctx context.Context, id uint) error
}

type VehicleStore interface {
	CreateVehicle(ctx context.Context, v *models.Vehicle) error
	GetVehicle(ctx context.Context, id uint) (*models.Vehicle, error)
	GetVehicleByNumber(ctx context.Context, number string) (*models.Vehicle, error)
	ListVehicles(ctx context.Context, f VehicleFilter) ([]models.Vehicle, error)
	SaveVehicle(ctx context.Context, v *models.Vehicle) error
	DeleteVehicle(ctx context.Context, id uint) error
}

type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	ListInvoicesByShipment(ctx context.Context, shipmentID uint) ([]models.Invoice, error)
	DeleteInvoicesByShipment(ctx context.Context, shipmentID uint) (int64, error)
}

type RequestStore interface {
	CreateRequest(ctx context.Context, r *models.DeliveryRequest) error
	GetRequest(ctx context.Context, id uint) (*models.DeliveryRequest, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]models.DeliveryRequest, error)
	SaveRequest(ctx context.Context, r *models.DeliveryRequest) error
}

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Store is the full record store.
//
// Atomically runs fn against a transactional view. Reads inside fn lock the
// rows they return until fn finishes, and every write is undone if fn
// returns an error. Nested calls reuse the outer transaction.
type Store interface {
	ShipmentStore
	VehicleStore
	InvoiceStore
	RequestStore
	UserStore

	Atomically(ctx context.Context, fn func(tx Store) error) error
}
