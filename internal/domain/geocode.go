package domain

import (
	"context"
	"strings"
)

// Sources a resolved place can come from.
const (
	SourceUnknown    = "unknown"
	SourceCounty     = "county"
	SourceState      = "state"
	SourceGeocoder   = "geocoder"
	SourceUnresolved = "unresolved"
)

// Resolution is the outcome of ResolvePlace.
type Resolution struct {
	Place  Place
	Source string
	// Adjusted is set when the resolved place replaced the row's own
	// coordinates with reference data.
	Adjusted bool
}

// ResolvePlace picks coordinates for a national feed node from its normalized
// location code and display key, trying in order: the unknown code, the
// county table, the state named inside a placeholder key (or abbreviated in
// an "Out of XX" name), the first and then
// the second key token as a state name, and finally the geocoder when one is
// configured. When everything fails the place is zero and Source is
// SourceUnresolved. A geocoder failure is returned alongside that result.
// own is the row's reported place; a county hit counts as adjusted when it
// differs.
func ResolvePlace(ctx context.Context, code, key string, own Place, ref GeoReference, geocoder Geocoder) (Resolution, error) {
	if code == UnknownCode {
		return Resolution{Source: SourceUnknown}, nil
	}
	if p, ok := ref.County(code); ok {
		return Resolution{Place: p, Source: SourceCounty, Adjusted: p != own}, nil
	}

	tokens := keyTokens(key)
	if strings.HasPrefix(key, "Unassigned, ") || strings.HasPrefix(key, "Out of ") {
		if len(tokens) > 1 {
			if p, ok := ref.State(tokens[1]); ok {
				return Resolution{Place: p, Source: SourceState, Adjusted: true}, nil
			}
		}
		if abbr, ok := strings.CutPrefix(tokens[0], "Out of "); ok {
			if p, ok := ref.StateAbbr(abbr); ok {
				return Resolution{Place: p, Source: SourceState, Adjusted: true}, nil
			}
		}
		return Resolution{Source: SourceUnresolved}, nil
	}

	for _, t := range tokens[:min(2, len(tokens))] {
		if p, ok := ref.State(t); ok {
			return Resolution{Place: p, Source: SourceState, Adjusted: true}, nil
		}
	}

	if geocoder != nil && len(tokens) > 1 {
		res, err := geocoder.ForwardGeocode(ctx, tokens[0], tokens[1])
		if err != nil {
			return Resolution{Source: SourceUnresolved}, err
		}
		if res.Lat != 0 || res.Lon != 0 {
			return Resolution{Place: NewPlace(res.Lat, res.Lon), Source: SourceGeocoder, Adjusted: true}, nil
		}
	}
	return Resolution{Source: SourceUnresolved}, nil
}

func keyTokens(key string) []string {
	parts := strings.Split(key, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
