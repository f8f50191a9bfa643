package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"dm-relay/errors"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// PasswordParams are the argon2id cost parameters written into every stored hash.
type PasswordParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultPasswordParams follow the OWASP argon2id baseline.
var DefaultPasswordParams = PasswordParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Stored hashes above these costs are refused rather than computed.
const (
	maxMemory     = 1024 * 1024
	maxIterations = 16
)

// HashPassword encodes password as $argon2id$v=..$m=..,t=..,p=..$salt$key.
func HashPassword(password string) (string, error) {
	return DefaultPasswordParams.Hash(password)
}

func (p PasswordParams) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: empty", errors.ErrInvalidPassword)
	}
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("reading salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// ComparePassword reports whether password matches encodedHash.
// A hash that cannot be decoded is an ErrInvalidCredentials error.
func ComparePassword(password, encodedHash string) (bool, error) {
	p, salt, key, err := decodeHash(encodedHash)
	if err != nil {
		return false, fmt.Errorf("%w: stored hash: %v", errors.ErrInvalidCredentials, err)
	}
	candidate := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

// VerifyPassword is ComparePassword for callers that only branch on success.
func VerifyPassword(password, encodedHash string) error {
	match, err := ComparePassword(password, encodedHash)
	if err != nil {
		return err
	}
	if !match {
		return errors.ErrInvalidCredentials
	}
	return nil
}

func decodeHash(encoded string) (PasswordParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return PasswordParams{}, nil, nil, fmt.Errorf("not an argon2id hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return PasswordParams{}, nil, nil, fmt.Errorf("version: %v", err)
	}
	if version != argon2.Version {
		return PasswordParams{}, nil, nil, fmt.Errorf("unsupported version %d", version)
	}

	var p PasswordParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return PasswordParams{}, nil, nil, fmt.Errorf("parameters: %v", err)
	}
	if p.Memory == 0 || p.Memory > maxMemory || p.Iterations == 0 || p.Iterations > maxIterations || p.Parallelism == 0 {
		return PasswordParams{}, nil, nil, fmt.Errorf("parameters out of range: %s", parts[3])
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return PasswordParams{}, nil, nil, fmt.Errorf("salt: %v", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return PasswordParams{}, nil, nil, fmt.Errorf("key: %v", err)
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}
