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

// Geocoder is the optional last-resort coordinate source for national feed
// rows that no reference table knows.
type Geocoder interface {
	// ForwardGeocode converts an area name and its state to coordinates.
	ForwardGeocode(ctx context.Context, name, state string) (GeocodingResult, error)
}

// GeoReference answers coordinate lookups against the static reference tables.
type GeoReference interface {
	// County looks up a normalized five character location code.
	County(code string) (Place, bool)
	// State looks up a state or territory by its full name.
	State(name string) (Place, bool)
	// StateAbbr looks up a state or territory by its postal abbreviation.
	StateAbbr(abbr string) (Place, bool)
}
