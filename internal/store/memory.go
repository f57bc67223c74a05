package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fleet_tracker/internal/apperrors"
	"fleet_tracker/internal/models"
)

type memData struct {
	shipments map[uint]models.Shipment
	vehicles  map[uint]models.Vehicle
	invoices  map[uint]models.Invoice
	requests  map[uint]models.DeliveryRequest
	users     map[uint]models.User

	nextShipment uint
	nextVehicle  uint
	nextInvoice  uint
	nextRequest  uint
	nextUser     uint
}

func newMemData() *memData {
	return &memData{
		shipments: make(map[uint]models.Shipment),
		vehicles:  make(map[uint]models.Vehicle),
		invoices:  make(map[uint]models.Invoice),
		requests:  make(map[uint]models.DeliveryRequest),
		users:     make(map[uint]models.User),
	}
}

func (d *memData) clone() memData {
	out := *d
	out.shipments = make(map[uint]models.Shipment, len(d.shipments))
	for k, v := range d.shipments {
		out.shipments[k] = v.Clone()
	}
	out.vehicles = make(map[uint]models.Vehicle, len(d.vehicles))
	for k, v := range d.vehicles {
		out.vehicles[k] = v.Clone()
	}
	out.invoices = make(map[uint]models.Invoice, len(d.invoices))
	for k, v := range d.invoices {
		out.invoices[k] = v
	}
	out.requests = make(map[uint]models.DeliveryRequest, len(d.requests))
	for k, v := range d.requests {
		out.requests[k] = cloneRequest(v)
	}
	out.users = make(map[uint]models.User, len(d.users))
	for k, v := range d.users {
		out.users[k] = v
	}
	return out
}

// MemoryStore is an in-process Store. A single mutex serializes every
// operation, and Atomically restores a snapshot when its callback fails.
type MemoryStore struct {
	mu   *sync.Mutex
	data *memData
	inTx bool
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu:   &sync.Mutex{},
		data: newMemData(),
		now:  time.Now,
	}
}

func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) Atomically(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	tx := &MemoryStore{mu: s.mu, data: s.data, inTx: true, now: s.now}
	if err := fn(tx); err != nil {
		*s.data = snapshot
		return err
	}
	return nil
}

// Shipments

func (s *MemoryStore) CreateShipment(ctx context.Context, sh *models.Shipment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock()()

	if sh.AssignedVehicleID != nil && s.shipmentBoundTo(*sh.AssignedVehicleID, 0) {
		return fmt.Errorf("%w: vehicle %d already serves a shipment", apperrors.ErrConflict, *sh.AssignedVehicleID)
	}
	s.data.nextShipment++
	now := s.now()
	sh.ID = s.data.nextShipment
	sh.CreatedAt, sh.UpdatedAt = now, now
	sh.ReferenceID = models.ShipmentReference(sh.ID)
	s.data.shipments[sh.ID] = sh.Clone()
	return nil
}

func (s *MemoryStore) GetShipment(ctx context.Context, id uint) (*models.Shipment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock()()

	sh, ok := s.data.shipments[id]
	if !ok {
		return nil, fmt.Errorf("%w: shipment %d", apperrors.ErrNotFound, id)
	}
	out := sh.Clone()
	return &out, nil
}

func (s *MemoryStore) GetShipmentByReference(ctx context.Context, ref string) (*models.Shipment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock()()

	for _, sh := range s.data.shipments {
		if sh.ReferenceID == ref {
			out := sh.Clone()
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: shipment %s", apperrors.ErrNotFound, ref)
}

func (s *MemoryStore) ListShipments(ctx context.Context, f ShipmentFilter) ([]models.Shipment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock()()

	var out []models.Shipment
	for _, sh := range s.data.shipments {
		if matchShipment(sh, f) {
			out = append(out, sh.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func matchShipment(sh models.Shipment, f ShipmentFilter) bool {
	if len(f.IDs) > 0 && !containsUint(f.IDs, sh.ID) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if sh.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.VehicleID != nil && (sh.AssignedVehicleID == nil || *sh.AssignedVehicleID != *f.VehicleID) {
		return false
	}
	if f.CustomerID != nil || f.CustomerName != "" {
		byID := f.CustomerID != nil && sh.CustomerID != nil && *sh.CustomerID == *f.CustomerID
		byName := f.CustomerName != "" && sh.CustomerID == nil && sh.CustomerName == f.CustomerName
		if !byID && !byName {
			return false
		}
	}
	return true
}

func (s *MemoryStore) SaveShipment(ctx context.Context, sh *models.Shipment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock()()

	prev, ok := s.data.shipments[sh.ID]
	if !ok {
		return fmt.Errorf("%w: shipment %d", apperrors.ErrNotFound, sh.ID)
	}
	if sh.AssignedVehicleID != nil && s.shipmentBoundTo(*sh.AssignedVehicleID, sh.ID) {
		return fmt.Errorf("%w: vehicle %d already serves a shipment", apperrors.ErrConflict, *sh.AssignedVehicleID)
	}
	sh.CreatedAt = prev.CreatedAt
	sh.UpdatedAt = s.now()
	s.data.shipments[sh.ID] = sh.Clone()
	return nil
}

func (s *MemoryStore) shipmentBoundTo(vehicleID, except uint) bool {
	for id, other := range s.data.shipments {
		if id != except && other.AssignedVehicleID != nil && *other.AssignedVehicleID == vehicleID {
			return true
		}
	}
	return false
}

func (s *MemoryStore) DeleteShipment(ctx context.Context, id uint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock()()

	if _, ok := s.data.shipments[id]; !ok {
		return fmt.Errorf("%w: shipment %d", apperrors.ErrNotFound, id)
	}
	delete(s.data.shipments, id)
	return nil
}

// Vehicles

func (s *MemoryStore) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock()()

	if err := s.checkVehicleUnique(v); err != nil {
		return err
	}
	s.data.nextVehicle++
	now := s.now()
	v.ID = s.data.nextVehicle
	v.CreatedAt, v.UpdatedAt = now, now
	s.data.vehicles[v.ID] = v.Clone()
	return nil
}

func (s *MemoryStore) checkVehicleUnique(v *models.Vehicle) error {
	for id, other := range s.data.vehicles {
		if id == v.ID {
			continue
		}
		if other.VehicleNumber == v.VehicleNumber {
			return fmt.Errorf("%w: vehicle %s already exists", apperrors.ErrConflict, v.VehicleNumber)
		}
		if v.CurrentShipmentID != nil && other.CurrentShipmentID != nil && *other.CurrentShipmentID == *v.CurrentShipmentID {
			return fmt.Errorf("%w: shipment %d already has vehicle %s", apperrors.ErrConflict, *v.CurrentShipmentID, other.VehicleNumber)
		}
	}
	return nil
}

func (s *MemoryStore) GetVehicle(ctx context.Context, id uint) (*models.Vehicle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock()()

	v, ok := s.data.vehicles[id]
	if !ok {
		return nil, fmt.Errorf("%w: vehicle %d", apperrors.ErrNotFound, id)
	}
	out := v.Clone()
	return &out, nil
}

func (s *MemoryStore) GetVehicleByNumber(ctx context.Context, number string) (*models.Vehicle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock()()

	for _, v := range s.data.vehicles {
		if v.VehicleNumber == number {
			out := v.Clone()
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: vehicle %s", apperrors.ErrNotFound, number)
}

func (s *MemoryStore) ListVehicles(ctx context.Context, f VehicleFilter) ([]models.Vehicle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock()()

	var out []models.Vehicle
	for _, v := range s.data.vehicles {
		if matchVehicle(v, f) {
			out = append(out, v.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func matchVehicle(v models.Vehicle, f VehicleFilter) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if v.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.MinCapacity > 0 && v.Capacity < f.MinCapacity {
		return false
	}
	if f.Bound != nil && v.Bound() != *f.Bound {
		return false
	}
	if f.DriverID != nil && (v.DriverID == nil || *v.DriverID != *f.DriverID) {
		return false
	}
	if f.ShipmentID != nil && (v.CurrentShipmentID == nil || *v.CurrentShipmentID != *f.ShipmentID) {
		return false
	}
	return true
}

func (s *MemoryStore) SaveVehicle(ctx context.Context, v *models.Vehicle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock()()

	prev, ok := s.data.vehicles[v.ID]
	if !ok {
		return fmt.Errorf("%w: vehicle %d", apperrors.ErrNotFound, v.ID)
	}
	if err := s.checkVehicleUnique(v); err != nil {
		return err
	}
	v.CreatedAt = prev.CreatedAt
	v.UpdatedAt = s.now()
	s.data.vehicles[v.ID] = v.Clone()
	return nil
}

func (s *MemoryStore) DeleteVehicle(ctx context.Context, id uint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock()()

	if _, ok := s.data.vehicles[id]; !ok {
		return fmt.Errorf("%w: vehicle %d", apperrors.ErrNotFound, id)
	}
	delete(s.data.vehicles, id)
	return nil
}

// Invoices

func (s *MemoryStore) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock()()

	s.data.nextInvoice++
	now := s.now()
	inv.ID = s.data.nextInvoice
	inv.CreatedAt, inv.UpdatedAt = now, now
	inv.InvoiceNumber = models.InvoiceReference(inv.ID)
	s.data.invoices[inv.ID] = *inv
	return nil
}

func (s *MemoryStore) ListInvoicesByShipment(ctx context.Context, shipmentID uint) ([]models.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock()()

	var out []models.Invoice
	for _, inv := range s.data.invoices {
		if inv.ShipmentID == shipmentID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) DeleteInvoicesByShipment(ctx context.Context, shipmentID uint) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	defer s.lock()()

	var n int64
	for id, inv := range s.data.invoices {
		if inv.ShipmentID == shipmentID {
			delete(s.data.invoices, id)
			n++
		}
	}
	return n, nil
}

// Delivery requests

func (s *MemoryStore) CreateRequest(ctx context.Context, r *models.DeliveryRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock()()

	s.data.nextRequest++
	now := s.now()
	r.ID = s.data.nextRequest
	r.CreatedAt, r.UpdatedAt = now, now
	r.RequestNumber = models.RequestReference(r.ID)
	s.data.requests[r.ID] = cloneRequest(*r)
	return nil
}

func (s *MemoryStore) GetRequest(ctx context.Context, id uint) (*models.DeliveryRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock()()

	r, ok := s.data.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: delivery request %d", apperrors.ErrNotFound, id)
	}
	out := cloneRequest(r)
	return &out, nil
}

func (s *MemoryStore) ListRequests(ctx context.Context, f RequestFilter) ([]models.DeliveryRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock()()

	var out []models.DeliveryRequest
	for _, r := range s.data.requests {
		if f.CustomerID != nil && r.CustomerID != *f.CustomerID {
			continue
		}
		if len(f.Statuses) > 0 {
			found := false
			for _, st := range f.Statuses {
				if r.Status == st {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, cloneRequest(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemoryStore) SaveRequest(ctx context.Context, r *models.DeliveryRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock()()

	prev, ok := s.data.requests[r.ID]
	if !ok {
		return fmt.Errorf("%w: delivery request %d", apperrors.ErrNotFound, r.ID)
	}
	r.CreatedAt = prev.CreatedAt
	r.UpdatedAt = s.now()
	s.data.requests[r.ID] = cloneRequest(*r)
	return nil
}

func cloneRequest(r models.DeliveryRequest) models.DeliveryRequest {
	out := r
	if r.ReviewedBy != nil {
		v := *r.ReviewedBy
		out.ReviewedBy = &v
	}
	if r.ShipmentID != nil {
		v := *r.ShipmentID
		out.ShipmentID = &v
	}
	if r.ReviewedAt != nil {
		v := *r.ReviewedAt
		out.ReviewedAt = &v
	}
	if r.PickupDate != nil {
		v := *r.PickupDate
		out.PickupDate = &v
	}
	return out
}

// Users

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock()()

	for _, other := range s.data.users {
		if other.Email == u.Email {
			return fmt.Errorf("%w: user %s already exists", apperrors.ErrConflict, u.Email)
		}
	}
	s.data.nextUser++
	now := s.now()
	u.ID = s.data.nextUser
	u.CreatedAt, u.UpdatedAt = now, now
	s.data.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock()()

	u, ok := s.data.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", apperrors.ErrNotFound, id)
	}
	return &u, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock()()

	for _, u := range s.data.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", apperrors.ErrNotFound, email)
}

func containsUint(list []uint, v uint) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
