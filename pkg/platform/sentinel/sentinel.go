package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Repository adapters return these
// (optionally wrapped) and the ledger service translates them into domain errors.
//
//   - ErrNotFound: aggregate does not exist in the repository
//   - ErrConflict: optimistic version check failed, another writer committed first
//   - ErrAlreadyExists: create of an aggregate whose identifier is taken
//   - ErrInvalidState: aggregate in wrong state for requested operation
//   - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidState  = errors.New("invalid state")
	ErrUnavailable   = errors.New("unavailable")
)
