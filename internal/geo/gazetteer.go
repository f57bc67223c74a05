package geo

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultLocation is returned when a place name matches nothing.
var DefaultLocation = Coordinates{Lat: 19.0760, Lng: 72.8777} // Mumbai

var cities = map[string]Coordinates{
	// Metro cities
	"mumbai":    {19.0760, 72.8777},
	"delhi":     {28.7041, 77.1025},
	"bangalore": {12.9716, 77.5946},
	"bengaluru": {12.9716, 77.5946},
	"hyderabad": {17.3850, 78.4867},
	"chennai":   {13.0827, 80.2707},
	"kolkata":   {22.5726, 88.3639},
	"pune":      {18.5204, 73.8567},
	"ahmedabad": {23.0225, 72.5714},
	"jaipur":    {26.9124, 75.7873},

	// Tier 2 cities
	"surat":            {21.1702, 72.8311},
	"lucknow":          {26.8467, 80.9462},
	"kanpur":           {26.4499, 80.3319},
	"nagpur":           {21.1458, 79.0882},
	"indore":           {22.7196, 75.8577},
	"thane":            {19.2183, 72.9781},
	"bhopal":           {23.2599, 77.4126},
	"visakhapatnam":    {17.6868, 83.2185},
	"pimpri-chinchwad": {18.6298, 73.7997},
	"patna":            {25.5941, 85.1376},
	"vadodara":         {22.3072, 73.1812},
	"ghaziabad":        {28.6692, 77.4538},
	"ludhiana":         {30.9010, 75.8573},
	"agra":             {27.1767, 78.0081},
	"nashik":           {19.9975, 73.7898},
	"faridabad":        {28.4089, 77.3178},
	"meerut":           {28.9845, 77.7064},
	"rajkot":           {22.3039, 70.8022},
	"varanasi":         {25.3176, 82.9739},
	"srinagar":         {34.0837, 74.7973},
	"amritsar":         {31.6340, 74.8723},
	"allahabad":        {25.4358, 81.8463},
	"prayagraj":        {25.4358, 81.8463},
	"ranchi":           {23.3441, 85.3096},
	"howrah":           {22.5958, 88.2636},
	"coimbatore":       {11.0168, 76.9558},
	"jabalpur":         {23.1815, 79.9864},
	"gwalior":          {26.2183, 78.1828},
	"vijayawada":       {16.5062, 80.6480},
	"jodhpur":          {26.2389, 73.0243},
	"madurai":          {9.9252, 78.1198},
	"raipur":           {21.2514, 81.6296},
	"kota":             {25.2138, 75.8648},
}

// Geocoder resolves free-text place names against a fixed gazetteer.
// Lookups are read-only and safe for concurrent use.
type Geocoder struct {
	entries  map[string]Coordinates
	keys     []string
	fallback Coordinates
	log      *logrus.Logger
}

// NewGeocoder builds a geocoder over the built-in city table.
func NewGeocoder(log *logrus.Logger) *Geocoder {
	return NewGeocoderWith(cities, DefaultLocation, log)
}

// NewGeocoderWith builds a geocoder over a custom table.
func NewGeocoderWith(table map[string]Coordinates, fallback Coordinates, log *logrus.Logger) *Geocoder {
	g := &Geocoder{
		entries:  make(map[string]Coordinates, len(table)),
		fallback: fallback,
		log:      log,
	}
	for name, c := range table {
		key := Normalize(name)
		if key == "" {
			continue
		}
		g.entries[key] = c
	}
	g.keys = make([]string, 0, len(g.entries))
	for key := range g.entries {
		g.keys = append(g.keys, key)
	}
	// partial matches walk keys in this order, so the first hit is stable
	sort.Strings(g.keys)
	return g
}

// Normalize lowercases name and keeps only the letters a-z.
func Normalize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Resolve looks up name and reports whether it matched a gazetteer entry.
func (g *Geocoder) Resolve(name string) (Coordinates, bool) {
	key := Normalize(name)
	if key == "" {
		return g.fallback, false
	}
	if c, ok := g.entries[key]; ok {
		return c, true
	}
	for _, city := range g.keys {
		if strings.Contains(city, key) || strings.Contains(key, city) {
			return g.entries[city], true
		}
	}
	return g.fallback, false
}

// CoordinatesOf never fails. Unknown names resolve to the fallback location.
func (g *Geocoder) CoordinatesOf(name string) Coordinates {
	c, ok := g.Resolve(name)
	if !ok && g.log != nil {
		g.log.WithField("place", name).Warn("Place not found in gazetteer, using default location")
	}
	return c
}
