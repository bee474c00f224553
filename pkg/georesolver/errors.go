package georesolver

import "errors"

// ErrNXDomain is returned when fqdn is within a configured zone but has
// no DNS Record in the Replicated Store (spec.md §4.3 step 1).
var ErrNXDomain = errors.New("georesolver: no such domain")

// ErrNotAuthoritative is returned when fqdn falls outside every
// configured zone, signaling the caller to forward the query upstream.
var ErrNotAuthoritative = errors.New("georesolver: not an authoritative zone")

// ErrUnavailable is returned when the Replicated Store cannot be read
// and no usable last-known-good cache entry exists either (spec.md
// §4.3's "RS unavailable" failure mode, cache-expired branch).
var ErrUnavailable = errors.New("georesolver: replicated store unavailable and no cached answer")
