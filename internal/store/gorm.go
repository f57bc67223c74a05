package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fleet_tracker/internal/apperrors"
	"fleet_tracker/internal/models"
)

const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// GormStore is the Postgres-backed Store.
type GormStore struct {
	db   *gorm.DB
	inTx bool
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Atomically(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, inTx: true})
	})
	return translate(err, "transaction")
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// reader locks selected rows when running inside a transaction.
func (s *GormStore) reader(ctx context.Context) *gorm.DB {
	q := s.conn(ctx)
	if s.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

// translate maps driver and gorm errors onto the apperrors taxonomy.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrConflict) ||
		errors.Is(err, apperrors.ErrInvalidInput) || errors.Is(err, apperrors.ErrUpstreamUnavailable) ||
		errors.Is(err, apperrors.ErrForbidden) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, what)
	}

	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s already exists (%s)", apperrors.ErrConflict, what, pgErr.Constraint)
		case pqDeadlockDetected, pqSerializationFailure:
			// lock-order cycle or serialization failure; the caller may retry
			return fmt.Errorf("%w: concurrent update of %s, retry", apperrors.ErrConflict, what)
		}
		// class 08 is connection exception
		if pgErr.Code.Class() == "08" {
			return fmt.Errorf("%w: %s: %v", apperrors.ErrUpstreamUnavailable, what, err)
		}
		return fmt.Errorf("%s: %w", what, err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %s: %v", apperrors.ErrUpstreamUnavailable, what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// Shipments

func (s *GormStore) CreateShipment(ctx context.Context, sh *models.Shipment) error {
	return s.Atomically(ctx, func(tx Store) error {
		g := tx.(*GormStore)
		// placeholder keeps the unique index happy until the row id is known
		sh.ReferenceID = "pending-" + uuid.NewString()
		if err := g.conn(ctx).Create(sh).Error; err != nil {
			return translate(err, "shipment")
		}
		sh.ReferenceID = models.ShipmentReference(sh.ID)
		err := g.conn(ctx).Model(sh).Update("reference_id", sh.ReferenceID).Error
		return translate(err, "shipment "+sh.ReferenceID)
	})
}

func (s *GormStore) GetShipment(ctx context.Context, id uint) (*models.Shipment, error) {
	var sh models.Shipment
	if err := s.reader(ctx).First(&sh, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("shipment %d", id))
	}
	return &sh, nil
}

func (s *GormStore) GetShipmentByReference(ctx context.Context, ref string) (*models.Shipment, error) {
	var sh models.Shipment
	if err := s.reader(ctx).Where("reference_id = ?", ref).First(&sh).Error; err != nil {
		return nil, translate(err, "shipment "+ref)
	}
	return &sh, nil
}

func (s *GormStore) ListShipments(ctx context.Context, f ShipmentFilter) ([]models.Shipment, error) {
	q := s.conn(ctx).Model(&models.Shipment{})
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.VehicleID != nil {
		q = q.Where("assigned_vehicle_id = ?", *f.VehicleID)
	}
	switch {
	case f.CustomerID != nil && f.CustomerName != "":
		q = q.Where("customer_id = ? OR (customer_id IS NULL AND customer_name = ?)", *f.CustomerID, f.CustomerName)
	case f.CustomerID != nil:
		q = q.Where("customer_id = ?", *f.CustomerID)
	case f.CustomerName != "":
		q = q.Where("customer_id IS NULL AND customer_name = ?", f.CustomerName)
	}

	var out []models.Shipment
	if err := q.Order("id desc").Find(&out).Error; err != nil {
		return nil, translate(err, "shipments")
	}
	return out, nil
}

func (s *GormStore) SaveShipment(ctx context.Context, sh *models.Shipment) error {
	return translate(s.conn(ctx).Save(sh).Error, "shipment "+sh.ReferenceID)
}

func (s *GormStore) DeleteShipment(ctx context.Context, id uint) error {
	res := s.conn(ctx).Unscoped().Delete(&models.Shipment{}, id)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("shipment %d", id))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: shipment %d", apperrors.ErrNotFound, id)
	}
	return nil
}

// Vehicles

func (s *GormStore) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	return translate(s.conn(ctx).Create(v).Error, "vehicle "+v.VehicleNumber)
}

func (s *GormStore) GetVehicle(ctx context.Context, id uint) (*models.Vehicle, error) {
	var v models.Vehicle
	if err := s.reader(ctx).First(&v, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("vehicle %d", id))
	}
	return &v, nil
}

func (s *GormStore) GetVehicleByNumber(ctx context.Context, number string) (*models.Vehicle, error) {
	var v models.Vehicle
	if err := s.reader(ctx).Where("vehicle_number = ?", number).First(&v).Error; err != nil {
		return nil, translate(err, "vehicle "+number)
	}
	return &v, nil
}

func (s *GormStore) ListVehicles(ctx context.Context, f VehicleFilter) ([]models.Vehicle, error) {
	q := s.conn(ctx).Model(&models.Vehicle{})
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.MinCapacity > 0 {
		q = q.Where("capacity >= ?", f.MinCapacity)
	}
	if f.Bound != nil {
		if *f.Bound {
			q = q.Where("current_shipment_id IS NOT NULL")
		} else {
			q = q.Where("current_shipment_id IS NULL")
		}
	}
	if f.DriverID != nil {
		q = q.Where("driver_id = ?", *f.DriverID)
	}
	if f.ShipmentID != nil {
		q = q.Where("current_shipment_id = ?", *f.ShipmentID)
	}

	var out []models.Vehicle
	if err := q.Order("id desc").Find(&out).Error; err != nil {
		return nil, translate(err, "vehicles")
	}
	return out, nil
}

func (s *GormStore) SaveVehicle(ctx context.Context, v *models.Vehicle) error {
	return translate(s.conn(ctx).Save(v).Error, "vehicle "+v.VehicleNumber)
}

func (s *GormStore) DeleteVehicle(ctx context.Context, id uint) error {
	res := s.conn(ctx).Unscoped().Delete(&models.Vehicle{}, id)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("vehicle %d", id))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: vehicle %d", apperrors.ErrNotFound, id)
	}
	return nil
}

// Invoices

func (s *GormStore) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	return s.Atomically(ctx, func(tx Store) error {
		g := tx.(*GormStore)
		inv.InvoiceNumber = "pending-" + uuid.NewString()
		if err := g.conn(ctx).Create(inv).Error; err != nil {
			return translate(err, "invoice")
		}
		inv.InvoiceNumber = models.InvoiceReference(inv.ID)
		return translate(g.conn(ctx).Model(inv).Update("invoice_number", inv.InvoiceNumber).Error, "invoice")
	})
}

func (s *GormStore) ListInvoicesByShipment(ctx context.Context, shipmentID uint) ([]models.Invoice, error) {
	var out []models.Invoice
	if err := s.conn(ctx).Where("shipment_id = ?", shipmentID).Order("id asc").Find(&out).Error; err != nil {
		return nil, translate(err, "invoices")
	}
	return out, nil
}

func (s *GormStore) DeleteInvoicesByShipment(ctx context.Context, shipmentID uint) (int64, error) {
	res := s.conn(ctx).Unscoped().Where("shipment_id = ?", shipmentID).Delete(&models.Invoice{})
	if res.Error != nil {
		return 0, translate(res.Error, fmt.Sprintf("invoices of shipment %d", shipmentID))
	}
	return res.RowsAffected, nil
}

// Delivery requests

func (s *GormStore) CreateRequest(ctx context.Context, r *models.DeliveryRequest) error {
	return s.Atomically(ctx, func(tx Store) error {
		g := tx.(*GormStore)
		r.RequestNumber = "pending-" + uuid.NewString()
		if err := g.conn(ctx).Create(r).Error; err != nil {
			return translate(err, "delivery request")
		}
		r.RequestNumber = models.RequestReference(r.ID)
		return translate(g.conn(ctx).Model(r).Update("request_number", r.RequestNumber).Error, "delivery request")
	})
}

func (s *GormStore) GetRequest(ctx context.Context, id uint) (*models.DeliveryRequest, error) {
	var r models.DeliveryRequest
	if err := s.reader(ctx).First(&r, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("delivery request %d", id))
	}
	return &r, nil
}

func (s *GormStore) ListRequests(ctx context.Context, f RequestFilter) ([]models.DeliveryRequest, error) {
	q := s.conn(ctx).Model(&models.DeliveryRequest{})
	if f.CustomerID != nil {
		q = q.Where("customer_id = ?", *f.CustomerID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	var out []models.DeliveryRequest
	if err := q.Order("id desc").Find(&out).Error; err != nil {
		return nil, translate(err, "delivery requests")
	}
	return out, nil
}

func (s *GormStore) SaveRequest(ctx context.Context, r *models.DeliveryRequest) error {
	return translate(s.conn(ctx).Save(r).Error, "delivery request "+r.RequestNumber)
}

// Users

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	return translate(s.conn(ctx).Create(u).Error, "user "+u.Email)
}

func (s *GormStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).First(&u, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("user %d", id))
	}
	return &u, nil
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, translate(err, "user "+email)
	}
	return &u, nil
}
