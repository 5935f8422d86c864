// Package domain models cumulative epidemiological counts over an
// administrative hierarchy.
//
// # Hierarchy
//
// A [World] is the root [Area] at level 0. Countries sit at level 1,
// provinces and US states at level 2, US counties at level 3. Children are
// unique by name under their parent and are created on first use with
// [Area.GetOrCreate]. The display key of a level 1 area is its name; deeper
// areas append the parent's key:
//
//	"Autauga, Alabama, US"
//
// Every data array in the tree has the length of the world's date axis, one
// value per day starting at [World.Start].
//
// # Own Data and Aggregates
//
// An area stores its own series per measure label (CONFIRMED, DEATHS,
// RECOVERED) and caches the aggregate of its subtree:
//
//	aggregate(A, L) = own(A, L) + Σ aggregate(child, L)
//
// Any data or structural change bumps the world's generation and stale
// caches are rebuilt on the next read. Children whose name starts with
// "Unassigned" or "Out of" are placeholders; callers may leave them out of
// the sums.
//
// # Feed Conventions
//
// Header dates are M/D/YY. Location codes are five character county codes;
// territories report under several historical codes and collapse to one
// synthetic code each (see [NormalizeLocationCode]). Code 99999 means the
// location is unknown and is given zero coordinates.
//
// Reported cumulative counts contain holes, late starts and downward
// corrections. [Smooth] repairs them in place before storage.
package domain
