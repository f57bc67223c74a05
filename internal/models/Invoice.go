package models

import (
	"fmt"

	"gorm.io/gorm"
)

type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "PENDING"
	InvoicePaid    InvoiceStatus = "PAID"
)

type Invoice struct {
	gorm.Model
	InvoiceNumber string        `json:"invoice_number" gorm:"uniqueIndex;size:64;not null"`
	ShipmentID    uint          `json:"shipment_id" gorm:"index;not null"`
	CustomerName  string        `json:"customer_name"`
	Amount        float64       `json:"amount"`
	Status        InvoiceStatus `json:"status" gorm:"size:16;default:PENDING"`
}

func InvoiceReference(id uint) string {
	return fmt.Sprintf("INV-%04d", id)
}
