package models

import (
	"time"

	"gorm.io/gorm"
)

type VehicleStatus string

const (
	VehicleIdle         VehicleStatus = "IDLE"
	VehicleActive       VehicleStatus = "ACTIVE"
	VehicleMaintenance  VehicleStatus = "MAINTENANCE"
	VehicleOutOfService VehicleStatus = "OUT_OF_SERVICE"
)

func (s VehicleStatus) Valid() bool {
	switch s {
	case VehicleIdle, VehicleActive, VehicleMaintenance, VehicleOutOfService:
		return true
	}
	return false
}

type VehicleType string

const (
	VehicleTruck VehicleType = "TRUCK"
	VehicleVan   VehicleType = "VAN"
	VehicleBike  VehicleType = "BIKE"
	VehicleOther VehicleType = "OTHER"
)

func (t VehicleType) Valid() bool {
	switch t {
	case VehicleTruck, VehicleVan, VehicleBike, VehicleOther:
		return true
	}
	return false
}

// DefaultCapacity is used when a vehicle is registered without one.
const DefaultCapacity = 1000

// Location is the last position reported for a vehicle.
type Location struct {
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	UpdatedAt *time.Time `json:"last_updated"`
}

type Vehicle struct {
	gorm.Model
	VehicleNumber string        `json:"vehicle_number" gorm:"uniqueIndex;size:32;not null"`
	DriverName    string        `json:"driver_name" gorm:"not null"`
	DriverContact string        `json:"driver_contact"`
	DriverID      *uint         `json:"driver_id" gorm:"index"` // link to the driver user
	VehicleType   VehicleType   `json:"vehicle_type" gorm:"size:16;default:TRUCK"`
	Capacity      float64       `json:"capacity" gorm:"default:1000"`
	FuelType      string        `json:"fuel_type"`
	Status        VehicleStatus `json:"status" gorm:"size:32;index;default:IDLE"`

	CurrentShipmentID  *uint  `json:"current_shipment_id" gorm:"uniqueIndex"`
	CurrentShipmentRef string `json:"current_shipment_ref"`

	LastLocation    string   `json:"last_location"`
	CurrentLocation Location `json:"current_location" gorm:"embedded;embeddedPrefix:current_"`

	MaintenanceRequired bool   `json:"maintenance_required"`
	MaintenanceNotes    string `json:"maintenance_notes"`
}

// Bound reports whether the vehicle currently serves a shipment.
func (v Vehicle) Bound() bool {
	return v.CurrentShipmentID != nil
}

// Clone returns a deep copy of the vehicle.
func (v Vehicle) Clone() Vehicle {
	out := v
	out.DriverID = cloneUint(v.DriverID)
	out.CurrentShipmentID = cloneUint(v.CurrentShipmentID)
	if v.CurrentLocation.UpdatedAt != nil {
		ts := *v.CurrentLocation.UpdatedAt
		out.CurrentLocation.UpdatedAt = &ts
	}
	return out
}
