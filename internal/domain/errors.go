package domain

import "github.com/m-mizutani/goerr/v2"

// Error categories. Callers match them with errors.Is; concrete errors are
// produced with goerr.Wrap(ErrX, "...", goerr.V(...)).
var (
	// ErrValidation means the caller supplied input that must be corrected.
	ErrValidation = goerr.New("validation failed")
	// ErrNotFound means the referenced auditable area does not exist.
	ErrNotFound = goerr.New("not found")
	// ErrPersistence means the store failed and nothing was committed.
	ErrPersistence = goerr.New("persistence failed")
	// ErrConflict means the per-area lock could not be obtained.
	ErrConflict = goerr.New("conflict")
)
