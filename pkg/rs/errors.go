package rs

import "errors"

// Client-visible errors from ApplyLocal (spec.md §4.1). LogFsyncFailed is
// deliberately not a sentinel here: it is fatal and handled by pkg/node
// shutting down ingress, not by a typed error the caller retries on.
var (
	ErrInvalidSignature  = errors.New("rs: invalid signature")
	ErrNotAuthorized     = errors.New("rs: actor not authorized for this key")
	ErrMalformedPayload  = errors.New("rs: malformed payload")
	ErrUnknownEntityKind = errors.New("rs: unknown entity kind")
)
