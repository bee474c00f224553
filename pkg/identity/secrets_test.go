package identity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeystoreSealOpenRoundtrip(t *testing.T) {
	ks, err := NewKeystoreFromPassphrase("correct horse battery staple")
	require.NoError(t, err)

	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "operator.key")
	require.NoError(t, ks.Seal(kp, path))

	opened, err := ks.Open(path)
	require.NoError(t, err)
	assert.Equal(t, kp.Address, opened.Address)
	assert.Equal(t, kp.Bytes(), opened.Bytes())
}

func TestKeystoreOpenWrongPassphraseFails(t *testing.T) {
	ks, err := NewKeystoreFromPassphrase("right-pass")
	require.NoError(t, err)
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "operator.key")
	require.NoError(t, ks.Seal(kp, path))

	other, err := NewKeystoreFromPassphrase("wrong-pass")
	require.NoError(t, err)
	_, err = other.Open(path)
	assert.Error(t, err)
}

func TestKeystoreOpenOrGenerateCreatesOnFirstBoot(t *testing.T) {
	ks, err := NewKeystoreFromPassphrase("boot-pass")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "operator.key")
	first, err := ks.OpenOrGenerate(path)
	require.NoError(t, err)

	second, err := ks.OpenOrGenerate(path)
	require.NoError(t, err)
	assert.Equal(t, first.Address, second.Address)
}

func TestNewKeystoreRejectsBadKeyLength(t *testing.T) {
	_, err := NewKeystore([]byte("too-short"))
	assert.Error(t, err)
}
