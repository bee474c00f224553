package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the size in bytes of a Keccak256-derived actor address.
const AddressLength = 20

// SignatureLength is the size in bytes of a recoverable secp256k1 signature
// in R(32) || S(32) || V(1) form.
const SignatureLength = 65

// Address identifies a node or client actor. It is the low 20 bytes of the
// Keccak256 hash of an uncompressed secp256k1 public key, matching the
// Ethereum-style address scheme spec.md §3.1 pins the system to.
type Address [AddressLength]byte

// ZeroAddress is the unset address value.
var ZeroAddress Address

// IsZero reports whether a is the unset address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// String renders the address as a 0x-prefixed lowercase hex string.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Less implements the deterministic address tie-break used to order
// equal-clock registers (spec.md §3.3, §4.1).
func (a Address) Less(b Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// MarshalJSON renders the address as a hex string.
func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON parses an address from a hex string.
func (a *Address) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a 0x-prefixed or bare hex address string.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("malformed address %q: %w", s, err)
	}
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressLength, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// Signature is a 65-byte recoverable secp256k1 signature: R(32) || S(32) || V(1).
type Signature [SignatureLength]byte

// String renders the signature as a 0x-prefixed hex string.
func (s Signature) String() string {
	return "0x" + hex.EncodeToString(s[:])
}

// RecoveryID returns the recovery byte (0 or 1) carried in the signature.
func (s Signature) RecoveryID() byte {
	return s[SignatureLength-1]
}

// IsZero reports whether s has never been set.
func (s Signature) IsZero() bool {
	var zero Signature
	return s == zero
}

// ParseSignature parses a hex-encoded signature, accepting either a bare
// R||S (64 byte) payload plus a separate recovery id, or the full 65-byte
// R||S||V form.
func ParseSignature(hexSig string, recoveryID *byte) (Signature, error) {
	hexSig = strings.TrimPrefix(hexSig, "0x")
	hexSig = strings.TrimPrefix(hexSig, "0X")
	b, err := hex.DecodeString(hexSig)
	if err != nil {
		return Signature{}, fmt.Errorf("malformed signature: %w", err)
	}
	var sig Signature
	switch len(b) {
	case SignatureLength:
		copy(sig[:], b)
	case SignatureLength - 1:
		if recoveryID == nil {
			return Signature{}, fmt.Errorf("64-byte signature requires a separate recovery id")
		}
		copy(sig[:], b)
		sig[SignatureLength-1] = *recoveryID
	default:
		return Signature{}, fmt.Errorf("signature must be %d or %d bytes, got %d", SignatureLength-1, SignatureLength, len(b))
	}
	return sig, nil
}
