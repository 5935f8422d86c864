package domain

import (
	"fmt"
	"strings"
)

const (
	// UnknownCode marks a row whose location code is blank or unusable.
	UnknownCode = "99999"

	// anomalyCode was used for a cruise ship in one feed release.
	anomalyCode = "88888"
)

// Territories report under several historical county codes; each collapses
// to one synthetic code.
var territoryCodes = map[string]string{
	"60": "60000", // American Samoa
	"66": "66010", // Guam
	"69": "69000", // Northern Mariana Islands
	"72": "72000", // Puerto Rico
	"78": "78000", // U.S. Virgin Islands
}

// NormalizeLocationCode maps a raw feed location code to a five character
// code. Territory codes collapse to their synthetic code, four character
// codes gain a leading zero, and a blank code becomes UnknownCode. Anything
// else that is not five characters long fails with ErrUsage.
func NormalizeLocationCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	code = strings.TrimSuffix(code, ".0")

	if len(code) == 2 || len(code) == 5 {
		if synthetic, ok := territoryCodes[code[:2]]; ok {
			return synthetic, nil
		}
	}
	switch len(code) {
	case 0:
		return UnknownCode, nil
	case 4:
		code = "0" + code
	}
	if len(code) != 5 {
		return "", fmt.Errorf("%w: location code %q is not 5 characters", ErrUsage, code)
	}
	if code == anomalyCode {
		return UnknownCode, nil
	}
	return code, nil
}
