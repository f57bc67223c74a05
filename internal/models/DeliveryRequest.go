package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
)

// DeliveryRequest is a customer's ask for a pickup, reviewed by an admin.
type DeliveryRequest struct {
	gorm.Model
	RequestNumber   string        `json:"request_number" gorm:"uniqueIndex;size:64;not null"`
	CustomerID      uint          `json:"customer_id" gorm:"index"`
	CustomerName    string        `json:"customer_name"`
	ShipmentDetails string        `json:"shipment_details"`
	Source          string        `json:"source" gorm:"not null"`
	Destination     string        `json:"destination" gorm:"not null"`
	PickupDate      *time.Time    `json:"pickup_date"`
	Weight          float64       `json:"approximate_weight"`
	Priority        Priority      `json:"priority" gorm:"size:16;default:NORMAL"`
	Notes           string        `json:"notes"`
	Status          RequestStatus `json:"status" gorm:"size:16;index;default:PENDING"`
	ReviewedBy      *uint         `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time    `json:"reviewed_at,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	ShipmentID      *uint         `json:"shipment_id,omitempty"`
}

func RequestReference(id uint) string {
	return fmt.Sprintf("REQ%04d", id)
}
