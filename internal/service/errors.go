package service

import "errors"

// Error taxonomy for the matching engine. Handlers map these to distinct HTTP
// statuses; they are never collapsed, so a caller can always tell "you lost
// the race" (ErrConflict) apart from "this does not exist" (ErrNotFound).
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrDependency = errors.New("dependency unavailable")
)
