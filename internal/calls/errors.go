package calls

import "errors"

var (
	// ErrCallNotFound is returned when no call record matches the lookup.
	ErrCallNotFound = errors.New("call record not found")

	// ErrMissingCallSID is returned when a record lacks its external id.
	ErrMissingCallSID = errors.New("call_sid is required")
)
