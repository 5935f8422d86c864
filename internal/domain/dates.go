package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseFeedDate parses a feed header date in M/D/YY form. Two-digit years
// are placed in the current century of the package clock; four-digit years
// are taken as is.
func ParseFeedDate(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("%w: date header %q", ErrFormat, s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: date header %q: %v", ErrFormat, s, err)
		}
		nums[i] = n
	}
	month, day, year := nums[0], nums[1], nums[2]
	if len(parts[2]) <= 2 {
		year += Now().Year() / 100 * 100
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("%w: date header %q out of range", ErrFormat, s)
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("%w: date header %q out of range", ErrFormat, s)
	}
	return t, nil
}
