package geo

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	curveIntensity = 0.15 // peak sideways deviation as a share of the delta
	jitterRatio    = 0.02

	shortRouteKm = 100
	longRouteKm  = 500
)

// RouteMetadata describes how a route was produced.
type RouteMetadata struct {
	Distance           string      `json:"distance"`
	DistanceKm         int         `json:"distance_km"`
	EstimatedWaypoints int         `json:"estimated_waypoints"`
	SourceCoords       Coordinates `json:"source_coords"`
	DestCoords         Coordinates `json:"dest_coords"`
	GeneratedAt        time.Time   `json:"generated_at"`
}

// Route is a synthesized mock path for map display. It is not a real road route.
type Route struct {
	Waypoints  []Coordinates `json:"waypoints"`
	DistanceKm int           `json:"distance_km"`
	Metadata   RouteMetadata `json:"metadata"`
}

// Synthesizer builds curved mock routes between named places.
//
// Interior waypoints carry random jitter, so two routes between the same
// places differ in shape. Endpoints, distance and waypoint count do not.
type Synthesizer struct {
	geocoder *Geocoder
	now      func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSynthesizer returns a synthesizer drawing jitter from src.
// A nil src is seeded from the clock.
func NewSynthesizer(g *Geocoder, src rand.Source) *Synthesizer {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Synthesizer{
		geocoder: g,
		now:      time.Now,
		rnd:      rand.New(src),
	}
}

// Synthesize resolves both place names and builds a route between them.
// It never fails; unknown places fall back to the geocoder default.
func (s *Synthesizer) Synthesize(source, destination string) Route {
	from := s.geocoder.CoordinatesOf(source)
	to := s.geocoder.CoordinatesOf(destination)
	return s.Between(from, to)
}

// Between builds a route between two resolved coordinates.
func (s *Synthesizer) Between(from, to Coordinates) Route {
	distance := RoundedDistanceKm(from, to)
	waypoints := s.waypoints(from, to, WaypointCount(distance))

	return Route{
		Waypoints:  waypoints,
		DistanceKm: distance,
		Metadata: RouteMetadata{
			Distance:           fmt.Sprintf("%d km", distance),
			DistanceKm:         distance,
			EstimatedWaypoints: len(waypoints),
			SourceCoords:       from,
			DestCoords:         to,
			GeneratedAt:        s.now().UTC(),
		},
	}
}

// WaypointCount picks the polyline resolution for a distance tier.
func WaypointCount(distanceKm int) int {
	switch {
	case distanceKm < shortRouteKm:
		return 8
	case distanceKm > longRouteKm:
		return 15
	default:
		return 12
	}
}

func (s *Synthesizer) waypoints(start, end Coordinates, n int) []Coordinates {
	latDiff := end.Lat - start.Lat
	lngDiff := end.Lng - start.Lng

	// perpendicular to the straight line, bends the path sideways
	perpLat := -lngDiff
	perpLng := latDiff
	perpMagnitude := math.Sqrt(perpLat*perpLat + perpLng*perpLng)

	s.mu.Lock()
	defer s.mu.Unlock()

	points := make([]Coordinates, 0, n)
	points = append(points, start)
	for i := 1; i < n-1; i++ {
		t := float64(i) / float64(n-1)

		lat := start.Lat + latDiff*t
		lng := start.Lng + lngDiff*t

		curve := 4 * t * (1 - t) * curveIntensity
		if perpMagnitude > 0 {
			lat += (perpLat / perpMagnitude) * latDiff * curve
			lng += (perpLng / perpMagnitude) * lngDiff * curve
		}

		lat += (s.rnd.Float64() - 0.5) * math.Abs(latDiff) * jitterRatio
		lng += (s.rnd.Float64() - 0.5) * math.Abs(lngDiff) * jitterRatio

		points = append(points, Coordinates{Lat: round4(lat), Lng: round4(lng)})
	}
	points = append(points, end)
	return points
}
