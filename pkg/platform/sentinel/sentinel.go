package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and directory backends
// wrap these so callers can match on them without knowing the backend.
//
// - ErrNotFound: a cache file or export does not exist
// - ErrUnavailable: a directory backend could not be reached
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
)
