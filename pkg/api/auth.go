package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/formthefog/formation-sub001/pkg/identity"
	"github.com/formthefog/formation-sub001/pkg/types"
)

// timestampSkew is the ±300s window spec.md §6 allows between a signed
// request's X-Timestamp and the time it is received.
const timestampSkew = 300 * time.Second

var errMissingAuthHeaders = errors.New("missing X-Signature/X-Recovery-ID/X-Timestamp headers")

// authenticate verifies the X-Signature/X-Recovery-ID/X-Timestamp headers
// spec.md §6 defines against keccak256(method || path || body || timestamp)
// and returns the recovered signer address. body is the exact bytes the
// client signed; callers must read it before any other use so re-reading
// it for the handler's own JSON decode sees the identical bytes.
func authenticate(r *http.Request, body []byte, now func() time.Time) (types.Address, error) {
	sigHex := r.Header.Get("X-Signature")
	recoveryHex := r.Header.Get("X-Recovery-ID")
	tsHex := r.Header.Get("X-Timestamp")
	if sigHex == "" || recoveryHex == "" || tsHex == "" {
		return types.Address{}, errMissingAuthHeaders
	}

	ts, err := strconv.ParseInt(tsHex, 10, 64)
	if err != nil {
		return types.Address{}, fmt.Errorf("malformed X-Timestamp: %w", err)
	}
	skew := now().Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > timestampSkew {
		return types.Address{}, fmt.Errorf("timestamp outside ±%s window", timestampSkew)
	}

	recoveryID, err := strconv.ParseUint(recoveryHex, 10, 8)
	if err != nil || recoveryID > 1 {
		return types.Address{}, fmt.Errorf("malformed X-Recovery-ID: must be 0 or 1")
	}
	rid := byte(recoveryID)
	sig, err := types.ParseSignature(sigHex, &rid)
	if err != nil {
		return types.Address{}, fmt.Errorf("malformed X-Signature: %w", err)
	}

	hash := identity.CanonicalRequestHash(r.Method, r.URL.Path, body, ts)
	actor, err := identity.RecoverAddress(hash, sig)
	if err != nil {
		return types.Address{}, fmt.Errorf("signature does not recover to a valid address: %w", err)
	}
	return actor, nil
}

// readBody drains and closes the request body, enforcing maxBodyBytes so
// a malformed or hostile client can't exhaust memory before signature
// verification ever runs.
func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

// maxBodyBytes bounds a single request body; entity registers are small
// control-plane records, not blob storage.
const maxBodyBytes = 1 << 20
