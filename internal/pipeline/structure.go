package pipeline

import (
	"fmt"

	"github.com/couchcryptid/episeries-etl/internal/domain"
)

// ExpectedGlobalRows counts the rows the global feed must have contained to
// produce the countries under w. A country with provinces and its own
// CONFIRMED data counts once for itself. Every country other than US counts
// once per province, or once when it has none. US counts once; its provinces
// arrive later from the national feed.
func ExpectedGlobalRows(w *domain.World) int {
	n := 0
	for _, c := range w.Children() {
		hasChildren := c.HasChildren()
		if hasChildren && c.HasData(domain.Confirmed) {
			n++
		}
		if c.Name() != "US" && hasChildren {
			n += c.NumChildren()
		} else {
			n++
		}
	}
	return n
}

// CheckStructure compares the hierarchy built from the global feed with the
// number of rows read.
func CheckStructure(w *domain.World, rows int) error {
	if expected := ExpectedGlobalRows(w); expected != rows {
		return fmt.Errorf("%w: hierarchy implies %d rows, feed had %d", domain.ErrStructure, expected, rows)
	}
	return nil
}
