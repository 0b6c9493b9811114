package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfName       = "pbkdf2-hmac-sha256"
	kdfIterations = 100_000
	keyLen        = 32
	saltLen       = 32
	nonceLen      = 12
)

// passwordEnv supplies optional extra key material beyond the machine
// identifier. Without it, the store is bound to the machine only.
const passwordEnv = "NINJA_CREDENTIAL_PASSWORD"

// machineSecret derives a stable per-machine identifier: SHA-256 over the
// host's MAC-address-derived UUID node. Moving the database to another
// machine makes existing ciphertexts undecryptable, which is intended.
func machineSecret() string {
	node := uuid.NodeID()
	sum := sha256.Sum256(node)
	return hex.EncodeToString(sum[:])
}

// deriveKey produces the 32-byte master key from the machine secret, the
// optional user passphrase, and the persisted salt.
func deriveKey(salt []byte) []byte {
	material := machineSecret() + os.Getenv(passwordEnv)
	return pbkdf2.Key([]byte(material), salt, kdfIterations, keyLen, sha256.New)
}

func newSalt() ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// seal encrypts plaintext with AES-256-GCM. The stored blob is
// nonce || ciphertext-with-tag; the GCM tag is the sole integrity check.
func seal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts a blob produced by seal. A GCM tag mismatch is treated as
// tampering and surfaced as ErrDecrypt.
func open(key, blob []byte) ([]byte, error) {
	if len(blob) < nonceLen {
		return nil, ErrDecrypt
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, blob[:nonceLen], blob[nonceLen:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
