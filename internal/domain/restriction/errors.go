package restriction

import "errors"

var (
	// ErrLaneClosed is returned when submitting to a lane that stopped
	ErrLaneClosed = errors.New("restriction: lane closed")

	// ErrUnknownBucket is returned by the evaluator for buckets it cannot map
	ErrUnknownBucket = errors.New("restriction: unknown standby bucket")

	// ErrPackageNotFound is returned by identity resolvers for unknown packages
	ErrPackageNotFound = errors.New("restriction: package not found")
)
