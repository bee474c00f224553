package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Keystore seals a node's operator private key on disk under a
// passphrase-derived AES-256-GCM key (spec.md §6's operator_key_path).
type Keystore struct {
	encryptionKey []byte
}

// NewKeystore builds a Keystore from a raw 32-byte AES-256 key.
func NewKeystore(key []byte) (*Keystore, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes for AES-256, got %d", len(key))
	}
	return &Keystore{encryptionKey: key}, nil
}

// NewKeystoreFromPassphrase derives the AES key from an operator-supplied
// passphrase via SHA-256, the same derivation the teacher used for its
// cluster encryption key.
func NewKeystoreFromPassphrase(passphrase string) (*Keystore, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	hash := sha256.Sum256([]byte(passphrase))
	return NewKeystore(hash[:])
}

// sealedKey is the on-disk envelope written to operator_key_path.
type sealedKey struct {
	Address    string `json:"address"`
	Ciphertext []byte `json:"ciphertext"`
}

// Seal encrypts kp's private key and writes it to path (0600).
func (ks *Keystore) Seal(kp *KeyPair, path string) error {
	ciphertext, err := ks.encrypt(kp.Bytes())
	if err != nil {
		return fmt.Errorf("seal key pair: %w", err)
	}
	envelope := sealedKey{Address: kp.Address.String(), Ciphertext: ciphertext}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal sealed key: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Open reads and decrypts the key pair at path.
func (ks *Keystore) Open(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore %s: %w", path, err)
	}
	var envelope sealedKey
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal sealed key: %w", err)
	}
	raw, err := ks.decrypt(envelope.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("open keystore %s: %w", path, err)
	}
	kp, err := KeyPairFromBytes(raw)
	if err != nil {
		return nil, err
	}
	if kp.Address.String() != envelope.Address {
		return nil, fmt.Errorf("keystore address mismatch: envelope says %s, key derives %s", envelope.Address, kp.Address)
	}
	return kp, nil
}

// OpenOrGenerate opens the keystore at path, generating and sealing a fresh
// key pair if the file does not yet exist — the path a node's first boot
// takes when operator_key_path hasn't been provisioned.
func (ks *Keystore) OpenOrGenerate(path string) (*KeyPair, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		kp, err := GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		if err := ks.Seal(kp, path); err != nil {
			return nil, err
		}
		return kp, nil
	}
	return ks.Open(path)
}

func (ks *Keystore) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(ks.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (ks *Keystore) decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(ks.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
