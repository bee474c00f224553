package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formthefog/formation-sub001/pkg/types"
)

func TestGenerateKeyPairAddress(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.False(t, kp.Address.IsZero())
}

func TestKeyPairFromBytesRoundtrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	restored, err := KeyPairFromBytes(kp.Bytes())
	require.NoError(t, err)
	assert.Equal(t, kp.Address, restored.Address)
}

func TestSignAndRecoverAddress(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	hash := Keccak256([]byte("hello formation"))
	sig, err := kp.Sign(hash)
	require.NoError(t, err)

	recovered, err := RecoverAddress(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, kp.Address, recovered)
	assert.True(t, Verify(hash, sig, kp.Address))
}

func TestVerifyRejectsWrongAddress(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	other, err := GenerateKeyPair()
	require.NoError(t, err)

	hash := Keccak256([]byte("payload"))
	sig, err := kp.Sign(hash)
	require.NoError(t, err)

	assert.False(t, Verify(hash, sig, other.Address))
}

func TestVerifyRejectsTamperedHash(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	hash := Keccak256([]byte("original"))
	sig, err := kp.Sign(hash)
	require.NoError(t, err)

	tampered := Keccak256([]byte("tampered"))
	assert.False(t, Verify(tampered, sig, kp.Address))
}

func TestCanonicalOpHashDeterministic(t *testing.T) {
	clock := types.HybridClock{WallMS: 1000, Counter: 2}
	var actor types.Address
	copy(actor[:], []byte("01234567890123456789"))

	h1 := CanonicalOpHash("instances", "acct-1", []byte(`{"a":1}`), clock, actor)
	h2 := CanonicalOpHash("instances", "acct-1", []byte(`{"a":1}`), clock, actor)
	assert.Equal(t, h1, h2)

	h3 := CanonicalOpHash("instances", "acct-2", []byte(`{"a":1}`), clock, actor)
	assert.NotEqual(t, h1, h3)
}

func TestCanonicalRequestHashDeterministic(t *testing.T) {
	h1 := CanonicalRequestHash("POST", "/instance/create", []byte(`{}`), 1700000000)
	h2 := CanonicalRequestHash("POST", "/instance/create", []byte(`{}`), 1700000000)
	assert.Equal(t, h1, h2)

	h3 := CanonicalRequestHash("POST", "/instance/create", []byte(`{}`), 1700000001)
	assert.NotEqual(t, h1, h3)
}
