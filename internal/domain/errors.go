package domain

import "errors"

var (
	// ErrFormat marks feed files whose shape cannot be ingested: disagreeing
	// date ranges or missing mandatory fields.
	ErrFormat = errors.New("format error")

	// ErrStructure marks a failed post-merge row-count check. The feed's shape
	// diverged from the hierarchy-building rules.
	ErrStructure = errors.New("structure check failed")

	// ErrUsage marks a violated precondition: attaching to an area whose level
	// is unset, data of the wrong length, or a malformed location code.
	ErrUsage = errors.New("usage error")
)
