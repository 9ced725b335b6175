package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const resetSecretBytes = 32

// DefaultResetTokenTTL bounds how long a recovery secret stays usable.
const DefaultResetTokenTTL = 10 * time.Minute

// ResetTokenService mints single-use password-recovery secrets. The
// plaintext goes to the account's email; only its digest is persisted.
type ResetTokenService struct {
	ttl time.Duration
}

// NewResetTokenService creates a reset token service with the given TTL.
func NewResetTokenService(ttl time.Duration) *ResetTokenService {
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	return &ResetTokenService{ttl: ttl}
}

// Generate draws a fresh recovery secret and returns the plaintext, the
// digest to store, and the expiry instant.
func (s *ResetTokenService) Generate() (plaintext, digest string, expiresAt time.Time, err error) {
	buf := make([]byte, resetSecretBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", time.Time{}, fmt.Errorf("generate reset secret: %w", err)
	}
	plaintext = hex.EncodeToString(buf)
	return plaintext, s.Resolve(plaintext), time.Now().Add(s.ttl), nil
}

// Resolve maps a presented secret back to its stored digest. The secret is
// high entropy already, so a fast collision-resistant hash is enough; the
// slow password hash stays reserved for passwords.
func (s *ResetTokenService) Resolve(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
