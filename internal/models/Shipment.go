package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"fleet_tracker/internal/geo"
)

type ShipmentStatus string

const (
	ShipmentPending                   ShipmentStatus = "PENDING"
	ShipmentActive                    ShipmentStatus = "ACTIVE"
	ShipmentInTransit                 ShipmentStatus = "IN_TRANSIT"
	ShipmentAwaitingCustomerSignature ShipmentStatus = "AWAITING_CUSTOMER_SIGNATURE"
	ShipmentDelivered                 ShipmentStatus = "DELIVERED"
	ShipmentCancelled                 ShipmentStatus = "CANCELLED"
)

// Valid reports whether s is a known shipment status.
func (s ShipmentStatus) Valid() bool {
	switch s {
	case ShipmentPending, ShipmentActive, ShipmentInTransit,
		ShipmentAwaitingCustomerSignature, ShipmentDelivered, ShipmentCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s ShipmentStatus) Terminal() bool {
	return s == ShipmentDelivered || s == ShipmentCancelled
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityNormal || p == PriorityHigh
}

type DelayRisk string

const (
	DelayRiskLow    DelayRisk = "LOW"
	DelayRiskMedium DelayRisk = "MEDIUM"
	DelayRiskHigh   DelayRisk = "HIGH"
)

func (d DelayRisk) Valid() bool {
	return d == DelayRiskLow || d == DelayRiskMedium || d == DelayRiskHigh
}

// Timeline checkpoint indexes.
const (
	CheckpointCreated = iota
	CheckpointVehicleAssigned
	CheckpointInTransit
	CheckpointDelivered
)

var checkpointLabels = [...]string{
	"Shipment Created",
	"Vehicle Assigned",
	"In Transit",
	"Delivered",
}

type TimelineEntry struct {
	Label     string     `json:"label"`
	Timestamp *time.Time `json:"timestamp"`
	Done      bool       `json:"done"`
}

// Timeline is the fixed four-checkpoint progress record of a shipment.
type Timeline []TimelineEntry

// NewTimeline returns a timeline with only the creation checkpoint done.
func NewTimeline(createdAt time.Time) Timeline {
	tl := make(Timeline, len(checkpointLabels))
	for i, label := range checkpointLabels {
		tl[i] = TimelineEntry{Label: label}
	}
	return tl.Mark(CheckpointCreated, createdAt)
}

// Mark sets checkpoint idx done at the given time. Earlier checkpoints that
// are still open are closed with the same timestamp so progress never skips
// an index. Checkpoints already done keep their original timestamp.
func (t Timeline) Mark(idx int, at time.Time) Timeline {
	out := t.normalized()
	if idx < 0 || idx >= len(out) {
		return out
	}
	for i := 0; i <= idx; i++ {
		if out[i].Done {
			continue
		}
		ts := at
		out[i].Done = true
		out[i].Timestamp = &ts
	}
	return out
}

// Done reports whether checkpoint idx is complete.
func (t Timeline) Done(idx int) bool {
	return idx >= 0 && idx < len(t) && t[idx].Done
}

func (t Timeline) normalized() Timeline {
	out := make(Timeline, len(checkpointLabels))
	for i, label := range checkpointLabels {
		if i < len(t) {
			out[i] = t[i]
			if t[i].Timestamp != nil {
				ts := *t[i].Timestamp
				out[i].Timestamp = &ts
			}
		}
		out[i].Label = label
	}
	return out
}

// ProofOfDelivery is uploaded by the driver at the drop-off point.
type ProofOfDelivery struct {
	UploadedBy   *uint      `json:"uploaded_by,omitempty"`
	ReceiverName string     `json:"receiver_name,omitempty"`
	Image        string     `json:"image,omitempty"`
	UploadedAt   *time.Time `json:"uploaded_at,omitempty"`
}

// ElectronicPOD is the customer's signature closing the delivery.
type ElectronicPOD struct {
	SignedBy       string     `json:"signed_by,omitempty"`
	SignatureImage string     `json:"signature_image,omitempty"`
	SignedAt       *time.Time `json:"signed_at,omitempty"`
	IPAddress      string     `json:"ip_address,omitempty"`
}

type Shipment struct {
	gorm.Model
	ReferenceID  string         `json:"reference_id" gorm:"uniqueIndex;size:64;not null"`
	CustomerName string         `json:"customer_name" gorm:"not null"`
	CustomerID   *uint          `json:"customer_id" gorm:"index"`
	Source       string         `json:"source" gorm:"not null"`
	Destination  string         `json:"destination" gorm:"not null"`
	Status       ShipmentStatus `json:"status" gorm:"size:32;index;default:PENDING"`
	Priority     Priority       `json:"priority" gorm:"size:16;default:NORMAL"`
	Weight       float64        `json:"approximate_weight"`
	Price        float64        `json:"price"`
	DelayRisk    DelayRisk      `json:"delay_risk" gorm:"size:16;default:LOW"`

	PickupDate         *time.Time `json:"pickup_date"`
	ETA                *time.Time `json:"eta"`
	ActualDeliveryDate *time.Time `json:"actual_delivery_date"`

	AssignedVehicleID     *uint  `json:"assigned_vehicle_id" gorm:"uniqueIndex"`
	AssignedVehicleNumber string `json:"assigned_vehicle_number"`
	AssignedDriverName    string `json:"assigned_driver_name"`

	Timeline      Timeline          `json:"timeline" gorm:"serializer:json"`
	Route         []geo.Coordinates `json:"mock_route" gorm:"serializer:json"`
	RouteMetadata geo.RouteMetadata `json:"route_metadata" gorm:"serializer:json"`
	RouteGeometry []byte            `json:"-"`

	POD  ProofOfDelivery `json:"pod" gorm:"embedded;embeddedPrefix:pod_"`
	EPOD ElectronicPOD   `json:"epod" gorm:"embedded;embeddedPrefix:epod_"`

	RequestID *uint `json:"request_id,omitempty" gorm:"index"`
	CreatedBy uint  `json:"created_by"`
}

// ShipmentReference formats the human-readable id for a shipment row id.
func ShipmentReference(id uint) string {
	return fmt.Sprintf("SHP%03d", id)
}

// Clone returns a deep copy of the shipment.
func (s Shipment) Clone() Shipment {
	out := s
	out.Timeline = s.Timeline.normalized()
	if s.Timeline == nil {
		out.Timeline = nil
	}
	out.Route = append([]geo.Coordinates(nil), s.Route...)
	out.RouteGeometry = append([]byte(nil), s.RouteGeometry...)
	out.AssignedVehicleID = cloneUint(s.AssignedVehicleID)
	out.CustomerID = cloneUint(s.CustomerID)
	out.RequestID = cloneUint(s.RequestID)
	out.POD.UploadedBy = cloneUint(s.POD.UploadedBy)
	return out
}

func cloneUint(p *uint) *uint {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
