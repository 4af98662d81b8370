package models

import "errors"

// ErrNotFound marks a missing record (object, file, or document) so callers
// can distinguish absence from a transient failure without depending on the
// backing client's error types.
var ErrNotFound = errors.New("not found")
