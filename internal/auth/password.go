package auth

import "golang.org/x/crypto/bcrypt"

const defaultBcryptCost = 10

// PasswordHasher hashes and verifies user passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}

// BcryptHasher is the bcrypt-backed PasswordHasher used in production.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher at the default cost.
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{Cost: defaultBcryptCost}
}

// Hash computes a salted digest of the password. The salt is random per
// call, so hashing the same password twice yields different digests.
func (b *BcryptHasher) Hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), b.Cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether the password matches the digest. A malformed or
// empty digest verifies as false rather than erroring.
func (b *BcryptHasher) Verify(password, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
