// Package encryption provides the AES-256-CBC sealing primitives used to
// keep bookmark passwords out of plaintext on disk (spec §4.4).
//
// Grounded on the teacher's internal/crypto/encryption.go: same cipher
// (AES-256-CBC), same PKCS7 padding, same base64 framing. Adapted from
// file-to-file streaming to single-shot in-memory seal/unseal, since
// bookmark secrets are short strings rather than multi-gigabyte files,
// and keyed from the embedded machine-local blob (internal/cryptoassets)
// instead of a randomly generated per-file key.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/rescale-labs/termscp/internal/cryptoassets"
	"github.com/rescale-labs/termscp/internal/ferrors"
)

const (
	KeySize = 32 // 256-bit key for AES-256
	IVSize  = 16 // 128-bit IV for AES
)

// GenerateKey generates a random 256-bit key. Exposed for tests and for
// any future per-session key material; bookmark sealing itself uses the
// fixed machine-local key from cryptoassets, not a generated one.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// pkcs7Pad applies PKCS7 padding to data for the given block size.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

// pkcs7Unpad removes PKCS7 padding, verifying every padding byte has the
// expected value for defense-in-depth.
func pkcs7Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("invalid padding: empty data")
	}
	padding := int(data[n-1])
	if padding == 0 || padding > n || padding > aes.BlockSize {
		return nil, fmt.Errorf("invalid padding size: %d", padding)
	}
	for i := 0; i < padding; i++ {
		if data[n-1-i] != byte(padding) {
			return nil, fmt.Errorf("invalid padding byte at position %d: expected %d, got %d", i, padding, data[n-1-i])
		}
	}
	return data[:n-padding], nil
}

// Seal encrypts cleartext under AES-256-CBC with PKCS7 padding using the
// embedded machine-local key blob, returning base64 ciphertext suitable
// for TOML storage. Sealing is deterministic for a fixed build-time
// key: the same cleartext always produces the same ciphertext (spec §8
// property 5).
func Seal(cleartext string) (string, error) {
	key, iv := cryptoassets.SealingKeyIV()
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", ferrors.New(ferrors.SealFailure, fmt.Errorf("create cipher: %w", err))
	}
	padded := pkcs7Pad([]byte(cleartext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Unseal decrypts a base64 ciphertext produced by Seal back to cleartext.
// Any failure (bad base64, misaligned ciphertext, bad padding) is
// reported as ferrors.SealFailure so the bookmark store can degrade
// gracefully (spec §7: "password could not be decrypted").
func Unseal(sealed string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ferrors.New(ferrors.SealFailure, fmt.Errorf("decode base64: %w", err))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ferrors.New(ferrors.SealFailure, fmt.Errorf("ciphertext is not block-aligned"))
	}
	key, iv := cryptoassets.SealingKeyIV()
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", ferrors.New(ferrors.SealFailure, fmt.Errorf("create cipher: %w", err))
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	unpadded, err := pkcs7Unpad(plain)
	if err != nil {
		return "", ferrors.New(ferrors.SealFailure, fmt.Errorf("unpad: %w", err))
	}
	return string(unpadded), nil
}
