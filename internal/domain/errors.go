package domain

import "errors"

var (
	// ErrSpecFormat is returned when a size string has no R-delimited diameter
	ErrSpecFormat = errors.New("malformed tire spec")

	// ErrIncompleteSpec is returned when a size string carries only a width
	ErrIncompleteSpec = errors.New("incomplete tire spec")

	// ErrPriceFormat is returned when a price string has no digits
	ErrPriceFormat = errors.New("malformed price")

	// ErrUnparsableFragment is returned when a fragment has no product name
	ErrUnparsableFragment = errors.New("unparsable fragment")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCatalogFailure is returned when the reference catalog cannot be loaded
	ErrCatalogFailure = errors.New("reference catalog request failed")

	// ErrSnapshotNotFound is returned when no snapshot matches the requested id
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// DropMissingName is the BatchSummary drop reason for fragments without a name
const DropMissingName = "missing_name"
