package fleet

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/apperrors"
	"fleet_tracker/internal/models"
	"fleet_tracker/internal/store"
)

var transitions = map[models.ShipmentStatus][]models.ShipmentStatus{
	models.ShipmentPending: {
		models.ShipmentActive, models.ShipmentInTransit, models.ShipmentCancelled,
	},
	models.ShipmentActive: {
		models.ShipmentInTransit, models.ShipmentCancelled,
	},
	models.ShipmentInTransit: {
		models.ShipmentAwaitingCustomerSignature, models.ShipmentDelivered, models.ShipmentCancelled,
	},
	models.ShipmentAwaitingCustomerSignature: {
		models.ShipmentDelivered, models.ShipmentCancelled,
	},
}

// CanTransition reports whether a shipment may move from one status to
// another without an override. Rewriting the current status is allowed.
func CanTransition(from, to models.ShipmentStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseStatus accepts a status name in any case.
func ParseStatus(raw string) (models.ShipmentStatus, error) {
	st := models.ShipmentStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown shipment status %q", apperrors.ErrInvalidInput, raw)
	}
	return st, nil
}

// UpdateStatus moves a shipment to status. force skips the transition table
// and is meant for admins correcting records.
func (m *Manager) UpdateStatus(ctx context.Context, shipmentID uint, status models.ShipmentStatus, force bool) (*models.Shipment, error) {
	var (
		out  models.Shipment
		prev models.ShipmentStatus
	)
	err := m.store.Atomically(ctx, func(tx store.Store) error {
		sh, err := tx.GetShipment(ctx, shipmentID)
		if err != nil {
			return err
		}
		prev = sh.Status
		if err := m.applyStatus(sh, status, force); err != nil {
			return err
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
		"shipment": out.ReferenceID,
		"from":     prev,
		"to":       out.Status,
		"forced":   force,
	}).Info("shipment status updated")
	m.statusChanged(ctx, &out, prev)
	return &out, nil
}

// applyStatus changes sh in memory. The vehicle binding is left alone; only
// Unassign and DeleteShipment release it. The caller saves sh.
func (m *Manager) applyStatus(sh *models.Shipment, status models.ShipmentStatus, force bool) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown shipment status %q", apperrors.ErrInvalidInput, status)
	}
	if !force && !CanTransition(sh.Status, status) {
		return fmt.Errorf("%w: shipment %s cannot move from %s to %s",
			apperrors.ErrConflict, sh.ReferenceID, sh.Status, status)
	}

	now := m.now()
	sh.Status = status
	switch status {
	case models.ShipmentInTransit:
		sh.Timeline = sh.Timeline.Mark(models.CheckpointInTransit, now)
	case models.ShipmentDelivered:
		sh.Timeline = sh.Timeline.Mark(models.CheckpointDelivered, now)
		if sh.ActualDeliveryDate == nil {
			sh.ActualDeliveryDate = &now
		}
	}

	return nil
}

// StartTrip moves the caller's shipment to IN_TRANSIT.
func (m *Manager) StartTrip(ctx context.Context, caller models.Caller, shipmentID uint) (*models.Shipment, error) {
	sh, err := m.store.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if err := m.requireDriverOf(ctx, caller, sh); err != nil {
		return nil, err
	}
	return m.UpdateStatus(ctx, shipmentID, models.ShipmentInTransit, false)
}

// SubmitPOD records the driver's proof of delivery and waits for the
// customer's signature.
func (m *Manager) SubmitPOD(ctx context.Context, caller models.Caller, shipmentID uint, receiverName, image string) (*models.Shipment, error) {
	receiverName = strings.TrimSpace(receiverName)
	if receiverName == "" {
		return nil, fmt.Errorf("%w: receiver name is required", apperrors.ErrInvalidInput)
	}

	var (
		out  models.Shipment
		prev models.ShipmentStatus
	)
	err := m.store.Atomically(ctx, func(tx store.Store) error {
		sh, err := tx.GetShipment(ctx, shipmentID)
		if err != nil {
			return err
		}
		if err := m.requireDriverOfTx(ctx, tx, caller, sh); err != nil {
			return err
		}
		prev = sh.Status
		if err := m.applyStatus(sh, models.ShipmentAwaitingCustomerSignature, false); err != nil {
			return err
		}
		now := m.now()
		sh.POD = models.ProofOfDelivery{
			UploadedBy:   uintPtr(caller.UserID),
			ReceiverName: receiverName,
			Image:        image,
			UploadedAt:   &now,
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
		"shipment": out.ReferenceID,
		"receiver": receiverName,
	}).Info("proof of delivery uploaded")
	m.statusChanged(ctx, &out, prev)
	return &out, nil
}

// SubmitEPOD records the customer's signature and closes the delivery.
func (m *Manager) SubmitEPOD(ctx context.Context, caller models.Caller, shipmentID uint, signedBy, signature, ip string) (*models.Shipment, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, fmt.Errorf("%w: signature is required", apperrors.ErrInvalidInput)
	}
	if strings.TrimSpace(signedBy) == "" {
		signedBy = caller.Name
	}

	var (
		out  models.Shipment
		prev models.ShipmentStatus
	)
	err := m.store.Atomically(ctx, func(tx store.Store) error {
		sh, err := tx.GetShipment(ctx, shipmentID)
		if err != nil {
			return err
		}
		if !caller.IsAdmin() && !customerOwns(sh, caller) {
			return fmt.Errorf("%w: shipment %s belongs to another customer", apperrors.ErrForbidden, sh.ReferenceID)
		}
		if sh.EPOD.SignedAt != nil {
			return fmt.Errorf("%w: shipment %s is already signed", apperrors.ErrConflict, sh.ReferenceID)
		}
		prev = sh.Status
		if err := m.applyStatus(sh, models.ShipmentDelivered, false); err != nil {
			return err
		}
		now := m.now()
		sh.EPOD = models.ElectronicPOD{
			SignedBy:       signedBy,
			SignatureImage: signature,
			SignedAt:       &now,
			IPAddress:      ip,
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
		"shipment":  out.ReferenceID,
		"signed_by": signedBy,
	}).Info("delivery signed")
	m.statusChanged(ctx, &out, prev)
	return &out, nil
}
