package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Permission tiers for API tokens. Each tier includes the ones before it.
const (
	PermMonitor   = "monitor"
	PermControl   = "control"
	PermConfigure = "configure"
)

var permissionLevels = map[string]int{
	PermMonitor:   1,
	PermControl:   2,
	PermConfigure: 3,
}

// APIToken is a named bearer token stored as a bcrypt hash.
type APIToken struct {
	Name       string `json:"name" yaml:"name"`
	Hash       string `json:"hash" yaml:"hash"`
	Permission string `json:"permission" yaml:"permission"`
}

// Grants reports whether the token's tier covers required.
func (t APIToken) Grants(required string) bool {
	have, ok := permissionLevels[t.Permission]
	return ok && have >= permissionLevels[required]
}

// Matches reports whether secret hashes to the stored value.
func (t APIToken) Matches(secret string) bool {
	if t.Hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(t.Hash), []byte(secret)) == nil
}

// ValidPermission reports whether p is a known tier.
func ValidPermission(p string) bool {
	_, ok := permissionLevels[p]
	return ok
}

// HashToken returns the bcrypt hash of secret.
func HashToken(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("token must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}
	return string(hash), nil
}

// GenerateToken returns a random 32-byte secret in hex and its hashed entry.
func GenerateToken(name, permission string) (string, APIToken, error) {
	if !ValidPermission(permission) {
		return "", APIToken{}, fmt.Errorf("unknown permission %q", permission)
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", APIToken{}, fmt.Errorf("failed to generate token: %w", err)
	}
	secret := hex.EncodeToString(buf)
	hash, err := HashToken(secret)
	if err != nil {
		return "", APIToken{}, err
	}
	return secret, APIToken{Name: name, Hash: hash, Permission: permission}, nil
}
