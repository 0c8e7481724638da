package state

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"os"

	"golang.org/x/crypto/nacl/secretbox"
)

var errUnsealFailed = errors.New("failed to unseal stored token")

// loadOrCreateKey reads the 32-byte sealing key, generating one on first run.
// The key file sits next to the state database with owner-only permissions.
func loadOrCreateKey(path string) (*[32]byte, error) {
	var key [32]byte

	raw, err := os.ReadFile(path)
	if err == nil && len(raw) == len(key) {
		copy(key[:], raw)
		return &key, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if _, err := rand.Read(key[:]); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key[:], 0600); err != nil {
		return nil, err
	}
	return &key, nil
}

// seal encrypts the token for storage at rest
func seal(key *[32]byte, plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
	return base64.StdEncoding.EncodeToString(box), nil
}

// open decrypts a sealed token
func open(key *[32]byte, sealed string) (string, error) {
	box, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", errUnsealFailed
	}
	if len(box) < 24 {
		return "", errUnsealFailed
	}

	var nonce [24]byte
	copy(nonce[:], box[:24])
	plaintext, ok := secretbox.Open(nil, box[24:], &nonce, key)
	if !ok {
		return "", errUnsealFailed
	}
	return string(plaintext), nil
}
