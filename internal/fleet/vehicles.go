package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/apperrors"
	"fleet_tracker/internal/models"
	"fleet_tracker/internal/store"
)

// VehicleInput is the payload for CreateVehicle.
type VehicleInput struct {
	VehicleNumber string             `json:"vehicle_number"`
	DriverName    string             `json:"driver_name"`
	DriverContact string             `json:"driver_contact"`
	DriverID      *uint              `json:"driver_id"`
	VehicleType   models.VehicleType `json:"vehicle_type"`
	Capacity      float64            `json:"capacity"`
	FuelType      string             `json:"fuel_type"`
	LastLocation  string             `json:"last_location"`
}

// VehiclePatch carries the fields UpdateVehicle may change. Nil means keep.
type VehiclePatch struct {
	VehicleNumber       *string               `json:"vehicle_number"`
	DriverName          *string               `json:"driver_name"`
	DriverContact       *string               `json:"driver_contact"`
	DriverID            *uint                 `json:"driver_id"`
	VehicleType         *models.VehicleType   `json:"vehicle_type"`
	Capacity            *float64              `json:"capacity"`
	FuelType            *string               `json:"fuel_type"`
	Status              *models.VehicleStatus `json:"status"`
	LastLocation        *string               `json:"last_location"`
	MaintenanceRequired *bool                 `json:"maintenance_required"`
	MaintenanceNotes    *string               `json:"maintenance_notes"`
}

type VehicleStats struct {
	Total       int `json:"total"`
	Active      int `json:"active"`
	Idle        int `json:"idle"`
	Maintenance int `json:"maintenance"`
}

func normalizeNumber(n string) string {
	return strings.ToUpper(strings.TrimSpace(n))
}

func (m *Manager) CreateVehicle(ctx context.Context, in VehicleInput) (*models.Vehicle, error) {
	v := &models.Vehicle{
		VehicleNumber: normalizeNumber(in.VehicleNumber),
		DriverName:    strings.TrimSpace(in.DriverName),
		DriverContact: strings.TrimSpace(in.DriverContact),
		DriverID:      in.DriverID,
		VehicleType:   models.VehicleType(strings.ToUpper(string(in.VehicleType))),
		Capacity:      in.Capacity,
		FuelType:      in.FuelType,
		Status:        models.VehicleIdle,
		LastLocation:  in.LastLocation,
	}
	switch {
	case v.VehicleNumber == "":
		return nil, fmt.Errorf("%w: vehicle number is required", apperrors.ErrInvalidInput)
	case v.DriverName == "":
		return nil, fmt.Errorf("%w: driver name is required", apperrors.ErrInvalidInput)
	case v.Capacity < 0:
		return nil, fmt.Errorf("%w: capacity must not be negative", apperrors.ErrInvalidInput)
	}
	if v.Capacity == 0 {
		v.Capacity = models.DefaultCapacity
	}
	if v.VehicleType == "" {
		v.VehicleType = models.VehicleTruck
	}
	if !v.VehicleType.Valid() {
		return nil, fmt.Errorf("%w: unknown vehicle type %q", apperrors.ErrInvalidInput, in.VehicleType)
	}

	if _, err := m.store.GetVehicleByNumber(ctx, v.VehicleNumber); err == nil {
		return nil, fmt.Errorf("%w: vehicle %s already exists", apperrors.ErrConflict, v.VehicleNumber)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	if err := m.store.CreateVehicle(ctx, v); err != nil {
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"vehicle":  v.VehicleNumber,
		"driver":   v.DriverName,
		"capacity": v.Capacity,
	}).Info("vehicle registered")
	return v, nil
}

func (m *Manager) GetVehicle(ctx context.Context, id uint) (*models.Vehicle, error) {
	return m.store.GetVehicle(ctx, id)
}

func (m *Manager) ListVehicles(ctx context.Context, statuses ...models.VehicleStatus) ([]models.Vehicle, error) {
	return m.store.ListVehicles(ctx, store.VehicleFilter{Statuses: statuses})
}

// UpdateVehicle applies patch. ACTIVE is reserved for vehicles serving a
// shipment, so status edits can neither set it on a free vehicle nor clear
// it on a bound one. Number and driver changes are copied to the bound
// shipment.
func (m *Manager) UpdateVehicle(ctx context.Context, id uint, patch VehiclePatch) (*models.Vehicle, error) {
	var out models.Vehicle
	err := m.store.Atomically(ctx, func(tx store.Store) error {
		v, err := tx.GetVehicle(ctx, id)
		if err != nil {
			return err
		}

		if patch.VehicleNumber != nil {
			n := normalizeNumber(*patch.VehicleNumber)
			if n == "" {
				return fmt.Errorf("%w: vehicle number is required", apperrors.ErrInvalidInput)
			}
			if n != v.VehicleNumber {
				other, err := tx.GetVehicleByNumber(ctx, n)
				if err == nil && other.ID != v.ID {
					return fmt.Errorf("%w: vehicle %s already exists", apperrors.ErrConflict, n)
				}
				if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
					return err
				}
				v.VehicleNumber = n
			}
		}
		if patch.DriverName != nil {
			name := strings.TrimSpace(*patch.DriverName)
			if name == "" {
				return fmt.Errorf("%w: driver name is required", apperrors.ErrInvalidInput)
			}
			v.DriverName = name
		}
		if patch.DriverContact != nil {
			v.DriverContact = strings.TrimSpace(*patch.DriverContact)
		}
		if patch.DriverID != nil {
			v.DriverID = patch.DriverID
		}
		if patch.VehicleType != nil {
			t := models.VehicleType(strings.ToUpper(string(*patch.VehicleType)))
			if !t.Valid() {
				return fmt.Errorf("%w: unknown vehicle type %q", apperrors.ErrInvalidInput, *patch.VehicleType)
			}
			v.VehicleType = t
		}
		if patch.Capacity != nil {
			if *patch.Capacity <= 0 {
				return fmt.Errorf("%w: capacity must be positive", apperrors.ErrInvalidInput)
			}
			v.Capacity = *patch.Capacity
		}
		if patch.FuelType != nil {
			v.FuelType = *patch.FuelType
		}
		if patch.LastLocation != nil {
			v.LastLocation = *patch.LastLocation
		}
		if patch.MaintenanceRequired != nil {
			v.MaintenanceRequired = *patch.MaintenanceRequired
		}
		if patch.MaintenanceNotes != nil {
			v.MaintenanceNotes = *patch.MaintenanceNotes
		}
		if patch.Status != nil {
			st := models.VehicleStatus(strings.ToUpper(string(*patch.Status)))
			switch {
			case !st.Valid():
				return fmt.Errorf("%w: unknown vehicle status %q", apperrors.ErrInvalidInput, *patch.Status)
			case st == models.VehicleActive && !v.Bound():
				return fmt.Errorf("%w: vehicle %s has no shipment to be active on", apperrors.ErrConflict, v.VehicleNumber)
			case st != models.VehicleActive && v.Bound():
				return fmt.Errorf("%w: vehicle %s is assigned to %s, unassign it first",
					apperrors.ErrConflict, v.VehicleNumber, v.CurrentShipmentRef)
			}
			v.Status = st
		}

		if err := tx.SaveVehicle(ctx, v); err != nil {
			return err
		}
		if v.Bound() {
			if err := syncAssignedShipment(ctx, tx, v); err != nil {
				return err
			}
		}
		out = *v
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.WithField("vehicle", out.VehicleNumber).Info("vehicle updated")
	return &out, nil
}

func syncAssignedShipment(ctx context.Context, tx store.Store, v *models.Vehicle) error {
	sh, err := tx.GetShipment(ctx, *v.CurrentShipmentID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if sh.AssignedVehicleNumber == v.VehicleNumber && sh.AssignedDriverName == v.DriverName {
		return nil
	}
	sh.AssignedVehicleNumber = v.VehicleNumber
	sh.AssignedDriverName = v.DriverName
	return tx.SaveShipment(ctx, sh)
}

// DeleteVehicle removes a vehicle that serves no shipment.
func (m *Manager) DeleteVehicle(ctx context.Context, id uint) error {
	err := m.store.Atomically(ctx, func(tx store.Store) error {
		v, err := tx.GetVehicle(ctx, id)
		if err != nil {
			return err
		}
		if v.Bound() {
			return fmt.Errorf("%w: vehicle %s is assigned to %s", apperrors.ErrConflict, v.VehicleNumber, v.CurrentShipmentRef)
		}
		return tx.DeleteVehicle(ctx, id)
	})
	if err != nil {
		return err
	}
	m.log.WithField("vehicle_id", id).Info("vehicle deleted")
	return nil
}

// UpdateVehicleLocation stores a position report for the vehicle. Drivers
// may only report for their own vehicle.
func (m *Manager) UpdateVehicleLocation(ctx context.Context, caller models.Caller, id uint, lat, lng *float64, label string) (*models.Vehicle, error) {
	if lat == nil || lng == nil {
		return nil, fmt.Errorf("%w: lat and lng are required", apperrors.ErrInvalidInput)
	}
	if *lat < -90 || *lat > 90 || *lng < -180 || *lng > 180 {
		return nil, fmt.Errorf("%w: coordinates out of range", apperrors.ErrInvalidInput)
	}

	var out models.Vehicle
	err := m.store.Atomically(ctx, func(tx store.Store) error {
		v, err := tx.GetVehicle(ctx, id)
		if err != nil {
			return err
		}
		if !caller.IsAdmin() && !(caller.IsDriver() && drives(v, caller)) {
			return fmt.Errorf("%w: vehicle %s is not yours", apperrors.ErrForbidden, v.VehicleNumber)
		}
		now := m.now()
		v.CurrentLocation = models.Location{Lat: *lat, Lng: *lng, UpdatedAt: &now}
		if label = strings.TrimSpace(label); label != "" {
			v.LastLocation = label
		}
		if err := tx.SaveVehicle(ctx, v); err != nil {
			return err
		}
		out = *v
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.WithFields(logrus.Fields{
		"vehicle": out.VehicleNumber,
		"lat":     *lat,
		"lng":     *lng,
	}).Debug("vehicle location updated")
	return &out, nil
}

func (m *Manager) VehicleStats(ctx context.Context) (VehicleStats, error) {
	list, err := m.store.ListVehicles(ctx, store.VehicleFilter{})
	if err != nil {
		return VehicleStats{}, err
	}
	s := VehicleStats{Total: len(list)}
	for _, v := range list {
		switch v.Status {
		case models.VehicleActive:
			s.Active++
		case models.VehicleIdle:
			s.Idle++
		case models.VehicleMaintenance:
			s.Maintenance++
		}
	}
	return s, nil
}
