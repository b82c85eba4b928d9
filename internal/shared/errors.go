package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness conflict.
	ErrDuplicate = errors.New("duplicate entry")
)
