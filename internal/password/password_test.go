package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashIsSalted(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	first, err := hasher.Hash("secret")
	require.NoError(t, err)
	second, err := hasher.Hash("secret")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "two hashes of the same plaintext must differ")
	assert.True(t, hasher.Verify("secret", first))
	assert.True(t, hasher.Verify("secret", second))
}

func TestVerifyMismatch(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	hashed, err := hasher.Hash("secret")
	require.NoError(t, err)

	assert.False(t, hasher.Verify("wrong", hashed))
	assert.False(t, hasher.Verify("", hashed))
}

func TestVerifyAbsorbsMalformedHash(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	assert.False(t, hasher.Verify("secret", ""))
	assert.False(t, hasher.Verify("secret", "not-a-bcrypt-hash"))
	assert.False(t, hasher.Verify("secret", "$2a$garbage"))
}

func TestNewBcryptHasherClampsCost(t *testing.T) {
	hasher := NewBcryptHasher(-1)

	hashed, err := hasher.Hash("secret")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hashed))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}

func TestGenerateTemp(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 16; i++ {
		temp, err := GenerateTemp()
		require.NoError(t, err)
		require.Len(t, temp, TempPasswordLength)
		for _, c := range temp {
			assert.True(t, c >= 'a' && c <= 'z', "temp password must be lowercase alphabetic, got %q", temp)
		}
		seen[temp] = struct{}{}
	}
	assert.Greater(t, len(seen), 1, "temp passwords should not repeat across calls")
}
