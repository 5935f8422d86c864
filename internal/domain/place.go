package domain

import "math"

// NotApplicable is the default value of every administrative code until
// ingestion assigns one.
const NotApplicable = "N/A"

// Place is a WGS-84 latitude/longitude pair rounded to 6 decimals.
type Place struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewPlace rounds lat and lon to 6 decimal places.
func NewPlace(lat, lon float64) Place {
	return Place{Lat: round6(lat), Lon: round6(lon)}
}

// IsZero reports whether both coordinates are zero.
func (p Place) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Codes holds the administrative codes of an area. ADM1 is the country,
// ADM2 the province or state, ADM3 the county, FIPS the normalized location code.
type Codes struct {
	ADM1 string `json:"adm1"`
	ADM2 string `json:"adm2"`
	ADM3 string `json:"adm3"`
	FIPS string `json:"fips"`
}

// DefaultCodes returns codes with every field set to NotApplicable.
func DefaultCodes() Codes {
	return Codes{ADM1: NotApplicable, ADM2: NotApplicable, ADM3: NotApplicable, FIPS: NotApplicable}
}
