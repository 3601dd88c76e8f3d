package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pawhub/pawhub/internal/auth"
	"github.com/pawhub/pawhub/internal/platform/httpx"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("Secr3t!")
	require.NoError(t, err)
	assert.NotEqual(t, "Secr3t!", hash)

	again, err := hasher.Hash("Secr3t!")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "hashes are salted")

	ok, err := hasher.Verify("Secr3t!", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("secr3t!", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBcryptHasherRejectsLongPasswords(t *testing.T) {
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	_, err := hasher.Hash(strings.Repeat("a", 73))
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestBcryptHasherMalformedHash(t *testing.T) {
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	ok, err := hasher.Verify("Secr3t!", "not-a-bcrypt-hash")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestNewBcryptHasherClampsCost(t *testing.T) {
	hash, err := auth.NewBcryptHasher(1).Hash("Secr3t!")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}
