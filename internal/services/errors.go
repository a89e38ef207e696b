// Package services contains the application-facing query engines: the
// geographic showtime search and the typeahead suggestion engine. Services
// validate inputs, orchestrate repository calls, and shape responses;
// transport concerns stay in the http package.
package services

import "errors"

var (
	// ErrInvalidCoordinates marks a center or radius that is present but
	// unusable (NaN, infinite, or outside valid ranges).
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrCenterUnresolved marks a request that provided no usable way to
	// establish a search center.
	ErrCenterUnresolved = errors.New("search center could not be resolved")

	// ErrNotFound marks a missing record at the service level.
	ErrNotFound = errors.New("record not found")
)
