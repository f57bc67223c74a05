package tracking

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Sample is one position report from a driver. It is never persisted.
type Sample struct {
	ShipmentID    string    `json:"shipment_id"`
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	Timestamp     time.Time `json:"timestamp"`
	VehicleNumber string    `json:"vehicle_number"`
	DriverName    string    `json:"driver_name"`
}

// UnmarshalJSON accepts RFC3339 timestamps with or without a zone suffix.
// A missing zone is read as UTC. An empty timestamp is left zero.
func (s *Sample) UnmarshalJSON(data []byte) error {
	type alias Sample
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*alias
	}{alias: (*alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	ts := strings.TrimSpace(aux.Timestamp)
	if ts == "" {
		s.Timestamp = time.Time{}
		return nil
	}
	if !hasZone(ts) {
		ts += "Z"
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", aux.Timestamp, err)
	}
	s.Timestamp = t
	return nil
}

func hasZone(ts string) bool {
	if strings.HasSuffix(ts, "Z") {
		return true
	}
	// only look past the date part, whose dashes are not offsets
	if i := strings.IndexByte(ts, 'T'); i >= 0 {
		return strings.ContainsAny(ts[i:], "+-")
	}
	return false
}

// Validate checks the fields a broadcast needs.
func (s Sample) Validate() error {
	if strings.TrimSpace(s.ShipmentID) == "" {
		return fmt.Errorf("shipment id is required")
	}
	if s.Lat < -90 || s.Lat > 90 || s.Lng < -180 || s.Lng > 180 {
		return fmt.Errorf("coordinates out of range: %f,%f", s.Lat, s.Lng)
	}
	return nil
}

// LocationUpdate is what subscribers receive. ReferenceID repeats the
// shipment id for clients that key on it.
type LocationUpdate struct {
	Sample
	ReferenceID string `json:"reference_id"`
}
