package fleet

import (
	"context"
	"errors"
	"fmt"

	"fleet_tracker/internal/apperrors"
	"fleet_tracker/internal/models"
	"fleet_tracker/internal/store"
)

// customerOwns matches on customer id, or on the exact name for shipments
// created without one.
func customerOwns(sh *models.Shipment, caller models.Caller) bool {
	if sh.CustomerID != nil {
		return *sh.CustomerID == caller.UserID
	}
	return caller.Name != "" && sh.CustomerName == caller.Name
}

// drives matches on driver id, or on the exact name for vehicles
// registered without one.
func drives(v *models.Vehicle, caller models.Caller) bool {
	if v.DriverID != nil {
		return *v.DriverID == caller.UserID
	}
	return caller.Name != "" && v.DriverName == caller.Name
}

func customerFilter(caller models.Caller) store.ShipmentFilter {
	return store.ShipmentFilter{
		CustomerID:   uintPtr(caller.UserID),
		CustomerName: caller.Name,
	}
}

func (m *Manager) requireDriverOf(ctx context.Context, caller models.Caller, sh *models.Shipment) error {
	return m.requireDriverOfTx(ctx, m.store, caller, sh)
}

// requireDriverOfTx lets admins through and otherwise demands that caller
// drives the vehicle bound to sh.
func (m *Manager) requireDriverOfTx(ctx context.Context, st store.VehicleStore, caller models.Caller, sh *models.Shipment) error {
	if caller.IsAdmin() {
		return nil
	}
	if !caller.IsDriver() {
		return fmt.Errorf("%w: only drivers may update shipment %s", apperrors.ErrForbidden, sh.ReferenceID)
	}
	if sh.AssignedVehicleID == nil {
		return fmt.Errorf("%w: shipment %s has no vehicle", apperrors.ErrConflict, sh.ReferenceID)
	}
	v, err := st.GetVehicle(ctx, *sh.AssignedVehicleID)
	if err != nil {
		return err
	}
	if !drives(v, caller) {
		return fmt.Errorf("%w: shipment %s is not on your vehicle", apperrors.ErrForbidden, sh.ReferenceID)
	}
	return nil
}

// canView applies the per-role visibility rule to a single shipment.
func (m *Manager) canView(ctx context.Context, caller models.Caller, sh *models.Shipment) error {
	switch {
	case caller.IsAdmin():
		return nil
	case caller.IsCustomer():
		if customerOwns(sh, caller) {
			return nil
		}
	case caller.IsDriver():
		err := m.requireDriverOf(ctx, caller, sh)
		if err == nil || !errors.Is(err, apperrors.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("%w: shipment %s", apperrors.ErrForbidden, sh.ReferenceID)
}

// AuthorizeSubscribe checks that caller may follow the live position of
// shipmentRef.
func (m *Manager) AuthorizeSubscribe(ctx context.Context, caller models.Caller, shipmentRef string) (*models.Shipment, error) {
	sh, err := m.store.GetShipmentByReference(ctx, shipmentRef)
	if err != nil {
		return nil, err
	}
	if err := m.canView(ctx, caller, sh); err != nil {
		return nil, err
	}
	return sh, nil
}

// AuthorizePublish checks that caller drives the vehicle bound to
// shipmentRef and that the shipment is still moving.
func (m *Manager) AuthorizePublish(ctx context.Context, caller models.Caller, shipmentRef string) (*models.Shipment, *models.Vehicle, error) {
	if !caller.IsAdmin() && !caller.IsDriver() {
		return nil, nil, fmt.Errorf("%w: only drivers publish locations", apperrors.ErrForbidden)
	}
	sh, err := m.store.GetShipmentByReference(ctx, shipmentRef)
	if err != nil {
		return nil, nil, err
	}
	if sh.Status.Terminal() {
		return nil, nil, fmt.Errorf("%w: shipment %s is %s", apperrors.ErrConflict, sh.ReferenceID, sh.Status)
	}
	if sh.AssignedVehicleID == nil {
		return nil, nil, fmt.Errorf("%w: shipment %s has no vehicle", apperrors.ErrConflict, sh.ReferenceID)
	}
	v, err := m.store.GetVehicle(ctx, *sh.AssignedVehicleID)
	if err != nil {
		return nil, nil, err
	}
	if !caller.IsAdmin() && !drives(v, caller) {
		return nil, nil, fmt.Errorf("%w: shipment %s is not on your vehicle", apperrors.ErrForbidden, sh.ReferenceID)
	}
	return sh, v, nil
}
