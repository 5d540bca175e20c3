package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Geocoder resolves place names and coordinates for location datasets.
type Geocoder interface {
	// ForwardGeocode converts a place name, optionally qualified by a region, to coordinates.
	ForwardGeocode(ctx context.Context, place, region string) (GeocodingResult, error)

	// ReverseGeocode converts coordinates to place details.
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}

// GeoFields names the record attributes read and written by location enrichment.
type GeoFields struct {
	Place  string
	Region string // optional
	Lat    string
	Lon    string
}

// DefaultGeoFields matches the locations.csv columns. Region holds an ISO
// 3166 alpha-2 country code.
func DefaultGeoFields() GeoFields {
	return GeoFields{Place: "location_name", Region: "country", Lat: "lat", Lon: "lon"}
}

// Attributes written by EnrichWithGeocoding.
const (
	AttrFormattedAddress = "formatted_address"
	AttrPlaceName        = "place_name"
	AttrGeoConfidence    = "geo_confidence"
	AttrGeoSource        = "geo_source" // "forward", "reverse", "original", "failed"
)
