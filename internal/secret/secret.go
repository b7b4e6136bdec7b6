// Package secret hashes OAuth client secrets with argon2id.
package secret

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	timeCost   uint32 = 3
	memoryCost uint32 = 64 * 1024
	threads    uint8  = 2
	keyLen     uint32 = 32
	saltLen           = 16
)

var errInvalidHash = errors.New("invalid secret hash")

// Hash returns an encoded argon2id hash including parameters and salt.
func Hash(plaintext string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	sum := argon2.IDKey([]byte(plaintext), salt, timeCost, memoryCost, threads, keyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		memoryCost,
		timeCost,
		threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// Verify checks a plaintext secret against an encoded argon2id hash in
// constant time.
func Verify(plaintext, encoded string) (bool, error) {
	var (
		version          int
		mem, t           uint32
		par              uint8
		saltB64, hashB64 string
	)
	n, err := fmt.Sscanf(encoded, "$argon2id$v=%d$m=%d,t=%d,p=%d$%s", &version, &mem, &t, &par, &saltB64)
	if err != nil || n != 5 {
		return false, errInvalidHash
	}
	if version != argon2.Version {
		return false, errInvalidHash
	}

	// Sscanf's %s is greedy; split the trailing salt$hash pair ourselves.
	sep := -1
	for i, r := range saltB64 {
		if r == '$' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return false, errInvalidHash
	}
	hashB64 = saltB64[sep+1:]
	saltB64 = saltB64[:sep]

	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return false, errInvalidHash
	}
	expected, err := base64.RawStdEncoding.DecodeString(hashB64)
	if err != nil {
		return false, errInvalidHash
	}

	actual := argon2.IDKey([]byte(plaintext), salt, t, mem, par, uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1, nil
}
