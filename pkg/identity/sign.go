package identity

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"

	"github.com/formthefog/formation-sub001/pkg/types"
)

// Keccak256 hashes data with the Keccak-256 function (not NIST SHA3), the
// hash spec.md §3.1 pins address derivation and canonical op hashing to.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// KeyPair holds a secp256k1 private key and the Address derived from it.
type KeyPair struct {
	priv    *btcec.PrivateKey
	Address types.Address
}

// GenerateKeyPair creates a new random secp256k1 keypair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	return newKeyPair(priv), nil
}

// KeyPairFromBytes reconstructs a KeyPair from a raw 32-byte private key.
func KeyPairFromBytes(raw []byte) (*KeyPair, error) {
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	if priv == nil {
		return nil, fmt.Errorf("failed to parse private key")
	}
	return newKeyPair(priv), nil
}

func newKeyPair(priv *btcec.PrivateKey) *KeyPair {
	addr := addressFromPubKey(priv.PubKey())
	return &KeyPair{priv: priv, Address: addr}
}

// Bytes returns the raw 32-byte private key, for sealing into the keystore.
func (k *KeyPair) Bytes() []byte {
	return k.priv.Serialize()
}

// Sign produces a 65-byte recoverable signature (R||S||V) over hash, which
// must already be the 32-byte Keccak256 digest of the signed payload
// (spec.md §3.1).
func (k *KeyPair) Sign(hash []byte) (types.Signature, error) {
	if len(hash) != 32 {
		return types.Signature{}, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	compact, err := signRecoverable(k.priv, hash)
	if err != nil {
		return types.Signature{}, err
	}
	var sig types.Signature
	copy(sig[:], compact)
	return sig, nil
}

// signRecoverable signs hash and returns R||S||V (65 bytes), trying both
// recovery candidates since btcec's ecdsa.Sign does not report one.
func signRecoverable(priv *btcec.PrivateKey, hash []byte) ([]byte, error) {
	sig := ecdsa.Sign(priv, hash)
	der := sig.Serialize()
	r, s := extractRS(der)

	if s.IsOverHalfOrder() {
		s.Negate()
	}

	var rBytes, sBytes [32]byte
	r.PutBytesUnchecked(rBytes[:])
	s.PutBytesUnchecked(sBytes[:])

	out := make([]byte, types.SignatureLength)
	copy(out[0:32], rBytes[:])
	copy(out[32:64], sBytes[:])

	pub := priv.PubKey()
	for recID := byte(0); recID < 2; recID++ {
		out[64] = recID
		if recovered, err := RecoverPublicKey(hash, out); err == nil && recovered.IsEqual(pub) {
			return out, nil
		}
	}
	return nil, fmt.Errorf("failed to determine recovery id")
}

// extractRS pulls the R and S scalars out of a DER-encoded ECDSA signature.
func extractRS(der []byte) (*btcec.ModNScalar, *btcec.ModNScalar) {
	offset := 2
	offset++
	rLen := int(der[offset])
	offset++
	rBytes := der[offset : offset+rLen]
	offset += rLen
	offset++
	sLen := int(der[offset])
	offset++
	sBytes := der[offset : offset+sLen]

	if len(rBytes) == 33 && rBytes[0] == 0 {
		rBytes = rBytes[1:]
	}
	if len(sBytes) == 33 && sBytes[0] == 0 {
		sBytes = sBytes[1:]
	}

	var rPadded, sPadded [32]byte
	copy(rPadded[32-len(rBytes):], rBytes)
	copy(sPadded[32-len(sBytes):], sBytes)

	r, s := new(btcec.ModNScalar), new(btcec.ModNScalar)
	r.SetByteSlice(rPadded[:])
	s.SetByteSlice(sPadded[:])
	return r, s
}

// RecoverPublicKey recovers the signer's public key from a 65-byte
// recoverable signature and the hash it signed.
func RecoverPublicKey(hash []byte, sig types.Signature) (*btcec.PublicKey, error) {
	return recoverPublicKey(hash, sig[:])
}

func recoverPublicKey(hash, sig []byte) (*btcec.PublicKey, error) {
	if len(sig) != types.SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", types.SignatureLength, len(sig))
	}
	compact := make([]byte, 65)
	compact[0] = 27 + sig[64]
	copy(compact[1:33], sig[0:32])
	copy(compact[33:65], sig[32:64])

	pub, _, err := ecdsa.RecoverCompact(compact, hash)
	if err != nil {
		return nil, fmt.Errorf("recover public key: %w", err)
	}
	return pub, nil
}

// RecoverAddress recovers the Address that produced sig over hash. This is
// the primitive the RS write path and the HTTP ingress auth check both use
// to authenticate a request without a separate public-key field (spec.md
// §3.1, §6).
func RecoverAddress(hash []byte, sig types.Signature) (types.Address, error) {
	pub, err := recoverPublicKey(hash, sig[:])
	if err != nil {
		return types.Address{}, err
	}
	return addressFromPubKey(pub), nil
}

// Verify reports whether sig is a valid signature over hash from addr.
func Verify(hash []byte, sig types.Signature, addr types.Address) bool {
	recovered, err := RecoverAddress(hash, sig)
	if err != nil {
		return false
	}
	return recovered == addr
}

func addressFromPubKey(pub *btcec.PublicKey) types.Address {
	uncompressed := pub.SerializeUncompressed()
	hash := Keccak256(uncompressed[1:])
	var addr types.Address
	copy(addr[:], hash[12:])
	return addr
}

// CanonicalOpHash hashes an Operation Log frame's signed fields in the exact
// field order spec.md §6 fixes, so every producer and consumer derives the
// same digest regardless of JSON field ordering.
func CanonicalOpHash(topic, subTopic string, payload []byte, clock types.HybridClock, actor types.Address) []byte {
	buf := make([]byte, 0, len(topic)+len(subTopic)+len(payload)+32)
	buf = append(buf, topic...)
	buf = append(buf, 0)
	buf = append(buf, subTopic...)
	buf = append(buf, 0)
	buf = append(buf, payload...)
	buf = append(buf, []byte(clock.String())...)
	buf = append(buf, actor[:]...)
	return Keccak256(buf)
}

// CanonicalRegisterHash hashes the fields of a Replicated Store register
// that the writing actor signs: entity kind, key, value, and actor address.
// The clock is deliberately excluded, since the HLC is assigned by the
// receiving Replicated Store after the client has already signed its
// intent (spec.md §4.1's "authenticated writes" invariant covers key,
// value, clock, and actor; RS checks a register's clock against neither
// the signature nor any monotonicity rule, and only orders it with
// Register.Dominates).
func CanonicalRegisterHash(kind, key string, value []byte, actor types.Address) []byte {
	buf := make([]byte, 0, len(kind)+len(key)+len(value)+types.AddressLength+2)
	buf = append(buf, kind...)
	buf = append(buf, 0)
	buf = append(buf, key...)
	buf = append(buf, 0)
	buf = append(buf, value...)
	buf = append(buf, actor[:]...)
	return Keccak256(buf)
}

// CanonicalRequestHash hashes an HTTP ingress request's authenticated
// fields (method, path, body, timestamp) per spec.md §6's signing scheme.
func CanonicalRequestHash(method, path string, body []byte, timestampUnix int64) []byte {
	buf := make([]byte, 0, len(method)+len(path)+len(body)+8)
	buf = append(buf, method...)
	buf = append(buf, 0)
	buf = append(buf, path...)
	buf = append(buf, 0)
	buf = append(buf, body...)
	ts := make([]byte, 8)
	for i := 0; i < 8; i++ {
		ts[i] = byte(timestampUnix >> (56 - 8*i))
	}
	buf = append(buf, ts...)
	return Keccak256(buf)
}
