package geo

import (
	"encoding/binary"
	"fmt"

	"github.com/twpayne/go-geom"
	gjson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// LineString converts waypoints to a go-geom line in lng/lat axis order.
func LineString(points []Coordinates) (*geom.LineString, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("line string needs at least 2 points, got %d", len(points))
	}
	coords := make([]geom.Coord, len(points))
	for i, p := range points {
		coords[i] = geom.Coord{p.Lng, p.Lat}
	}
	return geom.NewLineString(geom.XY).SetCoords(coords)
}

// EncodeWKB serializes waypoints for storage.
func EncodeWKB(points []Coordinates) ([]byte, error) {
	ls, err := LineString(points)
	if err != nil {
		return nil, err
	}
	return wkb.Marshal(ls, binary.LittleEndian)
}

// DecodeWKB restores waypoints from stored WKB bytes.
func DecodeWKB(raw []byte) ([]Coordinates, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	g, err := wkb.Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	ls, ok := g.(*geom.LineString)
	if !ok {
		return nil, fmt.Errorf("expected LineString, got %T", g)
	}
	out := make([]Coordinates, ls.NumCoords())
	for i := range out {
		c := ls.Coord(i)
		out[i] = Coordinates{Lat: c.Y(), Lng: c.X()}
	}
	return out, nil
}

// GeoJSONFeature renders waypoints as a GeoJSON Feature with the given properties.
func GeoJSONFeature(points []Coordinates, props map[string]interface{}) ([]byte, error) {
	ls, err := LineString(points)
	if err != nil {
		return nil, err
	}
	feature := &gjson.Feature{
		Geometry:   ls,
		Properties: props,
	}
	return feature.MarshalJSON()
}
