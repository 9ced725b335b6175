package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetTokenService_Generate(t *testing.T) {
	svc := NewResetTokenService(10 * time.Minute)

	plaintext, digest, expiresAt, err := svc.Generate()
	require.NoError(t, err)

	// 32 random bytes, hex encoded.
	assert.Len(t, plaintext, 64)
	assert.NotEqual(t, plaintext, digest)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), expiresAt, 5*time.Second)

	// Presenting the plaintext again reproduces the stored digest.
	assert.Equal(t, digest, svc.Resolve(plaintext))
}

func TestResetTokenService_SecretsAreUnique(t *testing.T) {
	svc := NewResetTokenService(10 * time.Minute)

	first, _, _, err := svc.Generate()
	require.NoError(t, err)
	second, _, _, err := svc.Generate()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestResetTokenService_ResolveIsDeterministic(t *testing.T) {
	svc := NewResetTokenService(0)

	assert.Equal(t, svc.Resolve("secret"), svc.Resolve("secret"))
	assert.NotEqual(t, svc.Resolve("secret"), svc.Resolve("Secret"))
}
