package models

import "errors"

// Error taxonomy shared across services and handlers. Local failures
// (per-document, per-question) are recorded on the entity; these
// sentinels cover the synchronous paths.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflicting state transition")
)
