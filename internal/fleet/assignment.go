package fleet

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/apperrors"
	"fleet_tracker/internal/models"
	"fleet_tracker/internal/store"
)

// autoAssignAttempts bounds how often CreateShipment retries auto-assignment
// after losing a race for the chosen vehicle.
const autoAssignAttempts = 3

// Assignment is the outcome of binding a vehicle to a shipment.
type Assignment struct {
	Vehicle  models.Vehicle  `json:"vehicle"`
	Shipment models.Shipment `json:"shipment"`
	// Released is the vehicle that served the shipment before, if any.
	Released *models.Vehicle `json:"released_vehicle,omitempty"`
}

// Assign binds vehicleID to shipmentID. A vehicle that served the shipment
// before is released to IDLE in the same transaction.
func (m *Manager) Assign(ctx context.Context, vehicleID, shipmentID uint) (*Assignment, error) {
	var out Assignment
	err := m.store.Atomically(ctx, func(tx store.Store) error {
		var err error
		out, err = m.assignTx(ctx, tx, vehicleID, shipmentID)
		return err
	})
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"vehicle_id":  vehicleID,
			"shipment_id": shipmentID,
			"kind":        apperrors.Kind(err),
		}).WithError(err).Warn("assignment rejected")
		return nil, err
	}

	fields := logrus.Fields{
		"vehicle":  out.Vehicle.VehicleNumber,
		"shipment": out.Shipment.ReferenceID,
	}
	if out.Released != nil {
		fields["released"] = out.Released.VehicleNumber
	}
	m.log.WithFields(fields).Info("vehicle assigned")
	return &out, nil
}

func (m *Manager) assignTx(ctx context.Context, tx store.Store, vehicleID, shipmentID uint) (Assignment, error) {
	v, err := tx.GetVehicle(ctx, vehicleID)
	if err != nil {
		return Assignment{}, err
	}
	sh, err := tx.GetShipment(ctx, shipmentID)
	if err != nil {
		return Assignment{}, err
	}

	switch {
	case v.Bound():
		return Assignment{}, fmt.Errorf("%w: vehicle %s is already assigned to %s",
			apperrors.ErrConflict, v.VehicleNumber, v.CurrentShipmentRef)
	case v.Status == models.VehicleMaintenance || v.Status == models.VehicleOutOfService:
		return Assignment{}, fmt.Errorf("%w: vehicle %s is %s", apperrors.ErrConflict, v.VehicleNumber, v.Status)
	case sh.Status.Terminal():
		return Assignment{}, fmt.Errorf("%w: shipment %s is %s", apperrors.ErrConflict, sh.ReferenceID, sh.Status)
	}

	var released *models.Vehicle
	if sh.AssignedVehicleID != nil && *sh.AssignedVehicleID != v.ID {
		prev, err := m.releaseVehicle(ctx, tx, *sh.AssignedVehicleID, sh.ID)
		if err != nil {
			return Assignment{}, err
		}
		released = prev
	}

	v.CurrentShipmentID = uintPtr(sh.ID)
	v.CurrentShipmentRef = sh.ReferenceID
	v.Status = models.VehicleActive
	if err := tx.SaveVehicle(ctx, v); err != nil {
		return Assignment{}, err
	}

	sh.AssignedVehicleID = uintPtr(v.ID)
	sh.AssignedVehicleNumber = v.VehicleNumber
	sh.AssignedDriverName = v.DriverName
	sh.Timeline = sh.Timeline.Mark(models.CheckpointVehicleAssigned, m.now())
	if err := tx.SaveShipment(ctx, sh); err != nil {
		return Assignment{}, err
	}

	return Assignment{Vehicle: *v, Shipment: *sh, Released: released}, nil
}

// releaseVehicle frees vehicleID if it still points at shipmentID.
// A vehicle that no longer exists is not an error.
func (m *Manager) releaseVehicle(ctx context.Context, tx store.Store, vehicleID, shipmentID uint) (*models.Vehicle, error) {
	v, err := tx.GetVehicle(ctx, vehicleID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if v.CurrentShipmentID == nil || *v.CurrentShipmentID != shipmentID {
		return nil, nil
	}
	v.CurrentShipmentID = nil
	v.CurrentShipmentRef = ""
	v.Status = models.VehicleIdle
	if err := tx.SaveVehicle(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Unassign clears the vehicle's binding on both sides and sets it IDLE.
// Calling it on a vehicle without a shipment changes nothing, except that a
// stray ACTIVE status is reset.
func (m *Manager) Unassign(ctx context.Context, vehicleID uint) (*models.Vehicle, error) {
	var out models.Vehicle
	err := m.store.Atomically(ctx, func(tx store.Store) error {
		v, err := tx.GetVehicle(ctx, vehicleID)
		if err != nil {
			return err
		}
		if !v.Bound() && v.Status != models.VehicleActive {
			out = *v
			return nil
		}

		if v.Bound() {
			sh, err := tx.GetShipment(ctx, *v.CurrentShipmentID)
			switch {
			case errors.Is(err, apperrors.ErrNotFound):
			case err != nil:
				return err
			case sh.AssignedVehicleID != nil && *sh.AssignedVehicleID == v.ID:
				sh.AssignedVehicleID = nil
				sh.AssignedVehicleNumber = ""
				sh.AssignedDriverName = ""
				if err := tx.SaveShipment(ctx, sh); err != nil {
					return err
				}
			}
		}

		v.CurrentShipmentID = nil
		v.CurrentShipmentRef = ""
		v.Status = models.VehicleIdle
		if err := tx.SaveVehicle(ctx, v); err != nil {
			return err
		}
		out = *v
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.WithField("vehicle", out.VehicleNumber).Info("vehicle unassigned")
	return &out, nil
}

// AutoAssign picks the smallest IDLE vehicle able to carry weightKg, ties
// broken by lowest id. It returns nil without error when none qualifies.
// The vehicle is not bound; see CreateShipment.
func (m *Manager) AutoAssign(ctx context.Context, weightKg float64) (*models.Vehicle, error) {
	candidates, err := m.autoCandidates(ctx, weightKg)
	if err != nil || len(candidates) == 0 {
		return nil, err
	}
	return &candidates[0], nil
}

func (m *Manager) autoCandidates(ctx context.Context, weightKg float64) ([]models.Vehicle, error) {
	if weightKg < 0 {
		return nil, fmt.Errorf("%w: weight must not be negative", apperrors.ErrInvalidInput)
	}
	vehicles, err := m.store.ListVehicles(ctx, store.VehicleFilter{
		Statuses:    []models.VehicleStatus{models.VehicleIdle},
		MinCapacity: weightKg,
		Bound:       boolPtr(false),
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(vehicles, func(i, j int) bool {
		if vehicles[i].Capacity != vehicles[j].Capacity {
			return vehicles[i].Capacity < vehicles[j].Capacity
		}
		return vehicles[i].ID < vehicles[j].ID
	})
	return vehicles, nil
}

// autoAssignShipment binds the best candidate to sh, retrying when another
// writer takes the vehicle first. A miss leaves sh unassigned.
func (m *Manager) autoAssignShipment(ctx context.Context, sh *models.Shipment) (*models.Shipment, error) {
	for attempt := 1; attempt <= autoAssignAttempts; attempt++ {
		v, err := m.AutoAssign(ctx, sh.Weight)
		if err != nil {
			return sh, err
		}
		if v == nil {
			m.log.WithFields(logrus.Fields{
				"shipment": sh.ReferenceID,
				"weight":   sh.Weight,
			}).Info("no vehicle available for auto-assignment")
			return sh, nil
		}

		res, err := m.Assign(ctx, v.ID, sh.ID)
		if errors.Is(err, apperrors.ErrConflict) {
			m.log.WithFields(logrus.Fields{
				"shipment": sh.ReferenceID,
				"vehicle":  v.VehicleNumber,
				"attempt":  attempt,
			}).Debug("auto-assign lost the vehicle, retrying")
			continue
		}
		if err != nil {
			return sh, err
		}
		return &res.Shipment, nil
	}
	return sh, nil
}
