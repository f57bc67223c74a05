package fleet

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fleet_tracker/internal/geo"
	"fleet_tracker/internal/models"
	"fleet_tracker/internal/store"
)

// DefaultPosition is shown for vehicles that never reported a location.
var DefaultPosition = geo.Coordinates{Lat: 20.5937, Lng: 78.9629}

type TrackedDriver struct {
	ID   *uint  `json:"id,omitempty"`
	Name string `json:"name"`
}

type TrackedLocation struct {
	Lat         float64    `json:"lat"`
	Lng         float64    `json:"lng"`
	City        string     `json:"city"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	LastUpdated string     `json:"last_updated"`
	Live        bool       `json:"live"`
}

type TrackedETA struct {
	ExpectedAt   *time.Time `json:"expected_at"`
	DelayMinutes int        `json:"delay_minutes"`
}

type TrackedAlerts struct {
	Delay bool `json:"delay"`
}

type TrackedShipment struct {
	Source       string                `json:"source"`
	Destination  string                `json:"destination"`
	CustomerName string                `json:"customer_name"`
	Status       models.ShipmentStatus `json:"status"`
}

// ActiveVehicle is one row of the live-tracking map.
type ActiveVehicle struct {
	VehicleID       uint                  `json:"vehicle_id"`
	VehicleNumber   string                `json:"vehicle_number"`
	ShipmentID      string                `json:"shipment_id"`
	ShipmentRoute   []geo.Coordinates     `json:"shipment_route"`
	Driver          TrackedDriver         `json:"driver"`
	Location        TrackedLocation       `json:"location"`
	ETA             TrackedETA            `json:"eta"`
	Status          models.ShipmentStatus `json:"status"`
	Alerts          TrackedAlerts         `json:"alerts"`
	ShipmentDetails TrackedShipment       `json:"shipment_details"`
}

// ActiveFleet lists vehicles whose shipment is PENDING or IN_TRANSIT,
// most recently reporting first. Customers only see their own shipments.
func (m *Manager) ActiveFleet(ctx context.Context, caller models.Caller) ([]ActiveVehicle, error) {
	vehicles, err := m.store.ListVehicles(ctx, store.VehicleFilter{Bound: boolPtr(true)})
	if err != nil || len(vehicles) == 0 {
		return nil, err
	}

	ids := make([]uint, 0, len(vehicles))
	for _, v := range vehicles {
		ids = append(ids, *v.CurrentShipmentID)
	}
	f := store.ShipmentFilter{
		IDs:      ids,
		Statuses: []models.ShipmentStatus{models.ShipmentPending, models.ShipmentInTransit},
	}
	if caller.IsCustomer() {
		cf := customerFilter(caller)
		f.CustomerID, f.CustomerName = cf.CustomerID, cf.CustomerName
	}
	shipments, err := m.store.ListShipments(ctx, f)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Shipment, len(shipments))
	for _, sh := range shipments {
		byID[sh.ID] = sh
	}

	now := m.now()
	out := make([]ActiveVehicle, 0, len(shipments))
	for i := range vehicles {
		v := &vehicles[i]
		sh, ok := byID[*v.CurrentShipmentID]
		if !ok {
			continue
		}
		if caller.IsDriver() && !drives(v, caller) {
			continue
		}
		out = append(out, m.activeVehicle(ctx, v, &sh, now))
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Location.UpdatedAt, out[j].Location.UpdatedAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].VehicleID < out[j].VehicleID
	})
	return out, nil
}

func (m *Manager) activeVehicle(ctx context.Context, v *models.Vehicle, sh *models.Shipment, now time.Time) ActiveVehicle {
	loc := TrackedLocation{
		Lat:         DefaultPosition.Lat,
		Lng:         DefaultPosition.Lng,
		City:        v.LastLocation,
		LastUpdated: "Never",
	}
	if loc.City == "" {
		loc.City = "Unknown"
	}
	if v.CurrentLocation.UpdatedAt != nil {
		loc.Lat, loc.Lng = v.CurrentLocation.Lat, v.CurrentLocation.Lng
		loc.UpdatedAt = v.CurrentLocation.UpdatedAt
	}

	if m.positions != nil {
		sample, ok, err := m.positions.Get(ctx, sh.ReferenceID)
		switch {
		case err != nil:
			m.log.WithField("shipment", sh.ReferenceID).WithError(err).Debug("position cache unavailable")
		case ok && (loc.UpdatedAt == nil || sample.Timestamp.After(*loc.UpdatedAt)):
			ts := sample.Timestamp
			loc.Lat, loc.Lng = sample.Lat, sample.Lng
			loc.UpdatedAt = &ts
			loc.Live = true
		}
	}
	if loc.UpdatedAt != nil {
		loc.LastUpdated = timeAgo(now, *loc.UpdatedAt)
	}

	driver := TrackedDriver{ID: v.DriverID, Name: sh.AssignedDriverName}
	if driver.Name == "" {
		driver.Name = v.DriverName
	}

	return ActiveVehicle{
		VehicleID:     v.ID,
		VehicleNumber: v.VehicleNumber,
		ShipmentID:    sh.ReferenceID,
		ShipmentRoute: sh.Route,
		Driver:        driver,
		Location:      loc,
		ETA:           TrackedETA{ExpectedAt: sh.ETA},
		Status:        sh.Status,
		Alerts:        TrackedAlerts{Delay: sh.DelayRisk == models.DelayRiskHigh},
		ShipmentDetails: TrackedShipment{
			Source:       sh.Source,
			Destination:  sh.Destination,
			CustomerName: sh.CustomerName,
			Status:       sh.Status,
		},
	}
}

func timeAgo(now, t time.Time) string {
	secs := int(now.Sub(t).Seconds())
	if secs < 0 {
		secs = 0
	}
	if secs < 60 {
		return fmt.Sprintf("%d secs ago", secs)
	}
	if mins := secs / 60; mins < 60 {
		return plural(mins, "min")
	}
	if hours := secs / 3600; hours < 24 {
		return plural(hours, "hour")
	}
	return plural(secs/86400, "day")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
