package fleet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/apperrors"
	"fleet_tracker/internal/geo"
	"fleet_tracker/internal/models"
	"fleet_tracker/internal/store"
)

// ShipmentInput is the payload for CreateShipment.
type ShipmentInput struct {
	CustomerName  string           `json:"customer_name"`
	CustomerID    *uint            `json:"customer_id"`
	Source        string           `json:"source"`
	Destination   string           `json:"destination"`
	Priority      models.Priority  `json:"priority"`
	Weight        float64          `json:"approximate_weight"`
	Price         float64          `json:"price"`
	DelayRisk     models.DelayRisk `json:"delay_risk"`
	PickupDate    *time.Time       `json:"pickup_date"`
	ETA           *time.Time       `json:"eta"`
	VehicleNumber string           `json:"vehicle_number"`
	AutoAssign    bool             `json:"auto_assign"`
	RequestID     *uint            `json:"request_id"`
}

// ShipmentPatch carries the fields UpdateShipment may change. Nil means keep.
type ShipmentPatch struct {
	CustomerName *string           `json:"customer_name"`
	Source       *string           `json:"source"`
	Destination  *string           `json:"destination"`
	Priority     *models.Priority  `json:"priority"`
	Weight       *float64          `json:"approximate_weight"`
	Price        *float64          `json:"price"`
	DelayRisk    *models.DelayRisk `json:"delay_risk"`
	PickupDate   *time.Time        `json:"pickup_date"`
	ETA          *time.Time        `json:"eta"`
	Status       *string           `json:"status"`
	Force        bool              `json:"force"`
}

// DeleteResult reports a shipment deletion. The deletion itself either
// happened or an error was returned; CleanupErrors lists follow-up work
// that failed afterwards.
type DeleteResult struct {
	ShipmentID        uint    `json:"shipment_id"`
	ReferenceID       string  `json:"reference_id"`
	ReleasedVehicleID *uint   `json:"released_vehicle_id,omitempty"`
	InvoicesDeleted   int64   `json:"invoices_deleted"`
	CleanupErrors     []error `json:"-"`
}

// Partial reports whether any cleanup step failed.
func (r DeleteResult) Partial() bool {
	return len(r.CleanupErrors) > 0
}

// ShipmentStats summarises shipments by status.
type ShipmentStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	InTransit int `json:"in_transit"`
	Delivered int `json:"delivered"`
	HighRisk  int `json:"high_risk"`
}

func (in *ShipmentInput) normalize() error {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.Source = strings.TrimSpace(in.Source)
	in.Destination = strings.TrimSpace(in.Destination)
	in.VehicleNumber = strings.ToUpper(strings.TrimSpace(in.VehicleNumber))

	switch {
	case in.CustomerName == "":
		return fmt.Errorf("%w: customer name is required", apperrors.ErrInvalidInput)
	case in.Source == "" || in.Destination == "":
		return fmt.Errorf("%w: source and destination are required", apperrors.ErrInvalidInput)
	case in.Weight < 0:
		return fmt.Errorf("%w: weight must not be negative", apperrors.ErrInvalidInput)
	case in.Price < 0:
		return fmt.Errorf("%w: price must not be negative", apperrors.ErrInvalidInput)
	}

	in.Priority = models.Priority(strings.ToUpper(string(in.Priority)))
	if in.Priority == "" {
		in.Priority = models.PriorityNormal
	}
	if !in.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", apperrors.ErrInvalidInput, in.Priority)
	}
	in.DelayRisk = models.DelayRisk(strings.ToUpper(string(in.DelayRisk)))
	if in.DelayRisk == "" {
		in.DelayRisk = models.DelayRiskLow
	}
	if !in.DelayRisk.Valid() {
		return fmt.Errorf("%w: unknown delay risk %q", apperrors.ErrInvalidInput, in.DelayRisk)
	}
	return nil
}

// applyRoute synthesizes a fresh mock route between the shipment's places.
func (m *Manager) applyRoute(sh *models.Shipment) error {
	route := m.routes.Synthesize(sh.Source, sh.Destination)
	raw, err := geo.EncodeWKB(route.Waypoints)
	if err != nil {
		return fmt.Errorf("encode route geometry: %w", err)
	}
	sh.Route = route.Waypoints
	sh.RouteMetadata = route.Metadata
	sh.RouteGeometry = raw
	return nil
}

// CreateShipment stores a new shipment with its mock route. It binds a
// vehicle when the input names one, or picks one when AutoAssign is set.
// A linked delivery request must be approved and not yet fulfilled.
func (m *Manager) CreateShipment(ctx context.Context, caller models.Caller, in ShipmentInput) (*models.Shipment, error) {
	if in.RequestID != nil {
		req, err := m.store.GetRequest(ctx, *in.RequestID)
		if err != nil {
			return nil, err
		}
		if in.CustomerName == "" {
			in.CustomerName = req.CustomerName
		}
		if in.CustomerID == nil && req.CustomerID != 0 {
			in.CustomerID = uintPtr(req.CustomerID)
		}
		if in.Source == "" {
			in.Source = req.Source
		}
		if in.Destination == "" {
			in.Destination = req.Destination
		}
		if in.Weight == 0 {
			in.Weight = req.Weight
		}
		if in.Priority == "" {
			in.Priority = req.Priority
		}
		if in.PickupDate == nil {
			in.PickupDate = req.PickupDate
		}
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	now := m.now()
	sh := &models.Shipment{
		CustomerName: in.CustomerName,
		CustomerID:   in.CustomerID,
		Source:       in.Source,
		Destination:  in.Destination,
		Status:       models.ShipmentPending,
		Priority:     in.Priority,
		Weight:       in.Weight,
		Price:        in.Price,
		DelayRisk:    in.DelayRisk,
		PickupDate:   in.PickupDate,
		ETA:          in.ETA,
		Timeline:     models.NewTimeline(now),
		RequestID:    in.RequestID,
		CreatedBy:    caller.UserID,
	}
	if err := m.applyRoute(sh); err != nil {
		return nil, err
	}

	err := m.store.Atomically(ctx, func(tx store.Store) error {
		if in.RequestID != nil {
			req, err := tx.GetRequest(ctx, *in.RequestID)
			if err != nil {
				return err
			}
			if req.Status != models.RequestApproved {
				return fmt.Errorf("%w: request %s is %s", apperrors.ErrConflict, req.RequestNumber, req.Status)
			}
			if req.ShipmentID != nil {
				return fmt.Errorf("%w: request %s already has a shipment", apperrors.ErrConflict, req.RequestNumber)
			}
			if err := tx.CreateShipment(ctx, sh); err != nil {
				return err
			}
			req.ShipmentID = uintPtr(sh.ID)
			if err := tx.SaveRequest(ctx, req); err != nil {
				return err
			}
		} else if err := tx.CreateShipment(ctx, sh); err != nil {
			return err
		}

		if in.VehicleNumber == "" {
			return nil
		}
		v, err := tx.GetVehicleByNumber(ctx, in.VehicleNumber)
		if err != nil {
			return err
		}
		res, err := m.assignTx(ctx, tx, v.ID, sh.ID)
		if err != nil {
			return err
		}
		*sh = res.Shipment
		return nil
	})
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"source":      in.Source,
			"destination": in.Destination,
			"kind":        apperrors.Kind(err),
		}).WithError(err).Warn("shipment creation failed")
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"shipment":    sh.ReferenceID,
		"source":      sh.Source,
		"destination": sh.Destination,
		"distance":    sh.RouteMetadata.Distance,
		"vehicle":     sh.AssignedVehicleNumber,
	}).Info("shipment created")

	if in.VehicleNumber == "" && in.AutoAssign {
		assigned, err := m.autoAssignShipment(ctx, sh)
		if err != nil {
			m.log.WithField("shipment", sh.ReferenceID).WithError(err).Warn("auto-assignment failed")
		}
		sh = assigned
	}
	return sh, nil
}

// UpdateShipment applies patch. A new source or destination regenerates the
// route, and a status change follows the same rules as UpdateStatus.
func (m *Manager) UpdateShipment(ctx context.Context, caller models.Caller, id uint, patch ShipmentPatch) (*models.Shipment, error) {
	if patch.Force && !caller.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins may force a status", apperrors.ErrForbidden)
	}
	var status *models.ShipmentStatus
	if patch.Status != nil {
		st, err := ParseStatus(*patch.Status)
		if err != nil {
			return nil, err
		}
		status = &st
	}

	var (
		out          models.Shipment
		prev         models.ShipmentStatus
		routeChanged bool
	)
	err := m.store.Atomically(ctx, func(tx store.Store) error {
		sh, err := tx.GetShipment(ctx, id)
		if err != nil {
			return err
		}
		prev = sh.Status

		if patch.CustomerName != nil {
			name := strings.TrimSpace(*patch.CustomerName)
			if name == "" {
				return fmt.Errorf("%w: customer name is required", apperrors.ErrInvalidInput)
			}
			sh.CustomerName = name
		}
		if patch.Source != nil || patch.Destination != nil {
			source, dest := sh.Source, sh.Destination
			if patch.Source != nil {
				source = strings.TrimSpace(*patch.Source)
			}
			if patch.Destination != nil {
				dest = strings.TrimSpace(*patch.Destination)
			}
			if source == "" || dest == "" {
				return fmt.Errorf("%w: source and destination are required", apperrors.ErrInvalidInput)
			}
			if source != sh.Source || dest != sh.Destination {
				sh.Source, sh.Destination = source, dest
				if err := m.applyRoute(sh); err != nil {
					return err
				}
				routeChanged = true
			}
		}
		if patch.Priority != nil {
			p := models.Priority(strings.ToUpper(string(*patch.Priority)))
			if !p.Valid() {
				return fmt.Errorf("%w: unknown priority %q", apperrors.ErrInvalidInput, *patch.Priority)
			}
			sh.Priority = p
		}
		if patch.DelayRisk != nil {
			d := models.DelayRisk(strings.ToUpper(string(*patch.DelayRisk)))
			if !d.Valid() {
				return fmt.Errorf("%w: unknown delay risk %q", apperrors.ErrInvalidInput, *patch.DelayRisk)
			}
			sh.DelayRisk = d
		}
		if patch.Weight != nil {
			if *patch.Weight < 0 {
				return fmt.Errorf("%w: weight must not be negative", apperrors.ErrInvalidInput)
			}
			sh.Weight = *patch.Weight
		}
		if patch.Price != nil {
			if *patch.Price < 0 {
				return fmt.Errorf("%w: price must not be negative", apperrors.ErrInvalidInput)
			}
			sh.Price = *patch.Price
		}
		if patch.PickupDate != nil {
			sh.PickupDate = patch.PickupDate
		}
		if patch.ETA != nil {
			sh.ETA = patch.ETA
		}
		if status != nil {
			if err := m.applyStatus(sh, *status, patch.Force); err != nil {
				return err
			}
		}

		if err := tx.SaveShipment(ctx, sh); err != nil {
			return err
		}
		out = *sh
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"shipment":      out.ReferenceID,
		"route_changed": routeChanged,
	}).Info("shipment updated")
	if status != nil {
		m.statusChanged(ctx, &out, prev)
	}
	return &out, nil
}

// GetShipment returns a shipment the caller is allowed to see.
func (m *Manager) GetShipment(ctx context.Context, caller models.Caller, id uint) (*models.Shipment, error) {
	sh, err := m.store.GetShipment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.canView(ctx, caller, sh); err != nil {
		return nil, err
	}
	return sh, nil
}

func (m *Manager) GetShipmentByReference(ctx context.Context, caller models.Caller, ref string) (*models.Shipment, error) {
	sh, err := m.store.GetShipmentByReference(ctx, strings.ToUpper(strings.TrimSpace(ref)))
	if err != nil {
		return nil, err
	}
	if err := m.canView(ctx, caller, sh); err != nil {
		return nil, err
	}
	return sh, nil
}

// ListShipments returns the shipments visible to caller, newest first.
func (m *Manager) ListShipments(ctx context.Context, caller models.Caller, statuses ...models.ShipmentStatus) ([]models.Shipment, error) {
	switch {
	case caller.IsAdmin():
		return m.store.ListShipments(ctx, store.ShipmentFilter{Statuses: statuses})
	case caller.IsCustomer():
		f := customerFilter(caller)
		f.Statuses = statuses
		return m.store.ListShipments(ctx, f)
	case caller.IsDriver():
		vehicles, err := m.driverVehicles(ctx, caller)
		if err != nil || len(vehicles) == 0 {
			return nil, err
		}
		var out []models.Shipment
		for _, v := range vehicles {
			f := store.ShipmentFilter{VehicleID: uintPtr(v.ID), Statuses: statuses}
			list, err := m.store.ListShipments(ctx, f)
			if err != nil {
				return nil, err
			}
			out = append(out, list...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unknown role %q", apperrors.ErrForbidden, caller.Role)
}

func (m *Manager) driverVehicles(ctx context.Context, caller models.Caller) ([]models.Vehicle, error) {
	vehicles, err := m.store.ListVehicles(ctx, store.VehicleFilter{DriverID: uintPtr(caller.UserID)})
	if err != nil || len(vehicles) > 0 {
		return vehicles, err
	}
	// vehicles registered before drivers had accounts carry only a name
	all, err := m.store.ListVehicles(ctx, store.VehicleFilter{})
	if err != nil {
		return nil, err
	}
	var out []models.Vehicle
	for i := range all {
		if drives(&all[i], caller) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// DeleteShipment removes a shipment and frees its vehicle in one
// transaction, then deletes its invoices. Invoice cleanup failures are
// logged and reported in the result but never returned.
func (m *Manager) DeleteShipment(ctx context.Context, id uint) (DeleteResult, error) {
	res := DeleteResult{ShipmentID: id}
	err := m.store.Atomically(ctx, func(tx store.Store) error {
		sh, err := tx.GetShipment(ctx, id)
		if err != nil {
			return err
		}
		res.ReferenceID = sh.ReferenceID

		if sh.AssignedVehicleID != nil {
			v, err := m.releaseVehicle(ctx, tx, *sh.AssignedVehicleID, sh.ID)
			if err != nil {
				return err
			}
			if v != nil {
				res.ReleasedVehicleID = uintPtr(v.ID)
			}
		}
		// any vehicle still pointing here would dangle after the delete
		stray, err := tx.ListVehicles(ctx, store.VehicleFilter{ShipmentID: uintPtr(sh.ID)})
		if err != nil {
			return err
		}
		for _, v := range stray {
			if _, err := m.releaseVehicle(ctx, tx, v.ID, sh.ID); err != nil {
				return err
			}
			if res.ReleasedVehicleID == nil {
				res.ReleasedVehicleID = uintPtr(v.ID)
			}
		}
		return tx.DeleteShipment(ctx, sh.ID)
	})
	if err != nil {
		return DeleteResult{}, err
	}

	n, err := m.invoices.DeleteInvoicesByShipment(ctx, id)
	if err != nil {
		res.CleanupErrors = append(res.CleanupErrors, fmt.Errorf("delete invoices of %s: %w", res.ReferenceID, err))
		m.log.WithField("shipment", res.ReferenceID).WithError(err).Error("invoice cleanup failed")
	}
	res.InvoicesDeleted = n

	m.log.WithFields(logrus.Fields{
		"shipment": res.ReferenceID,
		"invoices": n,
		"partial":  res.Partial(),
	}).Info("shipment deleted")
	return res, nil
}

// ShipmentStats counts the shipments visible to caller.
func (m *Manager) ShipmentStats(ctx context.Context, caller models.Caller) (ShipmentStats, error) {
	list, err := m.ListShipments(ctx, caller)
	if err != nil {
		return ShipmentStats{}, err
	}
	var s ShipmentStats
	s.Total = len(list)
	for _, sh := range list {
		switch sh.Status {
		case models.ShipmentPending:
			s.Pending++
		case models.ShipmentInTransit:
			s.InTransit++
		case models.ShipmentDelivered:
			s.Delivered++
		}
		if sh.DelayRisk == models.DelayRiskHigh {
			s.HighRisk++
		}
	}
	return s, nil
}

// RouteGeoJSON renders the shipment route as a GeoJSON Feature.
func (m *Manager) RouteGeoJSON(ctx context.Context, caller models.Caller, id uint) ([]byte, error) {
	sh, err := m.GetShipment(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	points := sh.Route
	if len(sh.RouteGeometry) > 0 {
		decoded, err := geo.DecodeWKB(sh.RouteGeometry)
		if err != nil {
			m.log.WithField("shipment", sh.ReferenceID).WithError(err).Warn("stored route geometry unreadable, using waypoints")
		} else {
			points = decoded
		}
	}
	return geo.GeoJSONFeature(points, map[string]interface{}{
		"reference_id": sh.ReferenceID,
		"source":       sh.Source,
		"destination":  sh.Destination,
		"distance_km":  sh.RouteMetadata.DistanceKm,
		"status":       sh.Status,
	})
}
