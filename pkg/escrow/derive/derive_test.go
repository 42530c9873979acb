package derive

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscrowStateAddress_Deterministic(t *testing.T) {
	buyer := newKey(t)
	seller := newKey(t)

	address1, bump1, err := EscrowStateAddress(buyer, seller)
	require.NoError(t, err)
	require.Len(t, []byte(address1), ed25519.PublicKeySize)

	address2, bump2, err := EscrowStateAddress(buyer, seller)
	require.NoError(t, err)

	assert.Equal(t, address1, address2)
	assert.Equal(t, bump1, bump2)
}

func TestEscrowStateAddress_UniquePerPair(t *testing.T) {
	buyer := newKey(t)
	seller := newKey(t)
	other := newKey(t)

	address1, _, err := EscrowStateAddress(buyer, seller)
	require.NoError(t, err)

	address2, _, err := EscrowStateAddress(buyer, other)
	require.NoError(t, err)

	// Swapping the parties must also produce a different address
	address3, _, err := EscrowStateAddress(seller, buyer)
	require.NoError(t, err)

	assert.NotEqual(t, address1, address2)
	assert.NotEqual(t, address1, address3)
}

func TestEscrowVaultAddress(t *testing.T) {
	buyer := newKey(t)
	seller := newKey(t)

	state, _, err := EscrowStateAddress(buyer, seller)
	require.NoError(t, err)

	vault1, bump1, err := EscrowVaultAddress(state)
	require.NoError(t, err)

	vault2, bump2, err := EscrowVaultAddress(state)
	require.NoError(t, err)

	assert.Equal(t, vault1, vault2)
	assert.Equal(t, bump1, bump2)
	assert.NotEqual(t, state, vault1)
}

func TestVerifyBump(t *testing.T) {
	buyer := newKey(t)
	seller := newKey(t)

	address, bump, err := EscrowStateAddress(buyer, seller)
	require.NoError(t, err)

	assert.True(t, VerifyBump(address, bump, []byte(escrowSeedPrefix), buyer, seller))

	// A freely chosen bump doesn't prove the derivation
	assert.False(t, VerifyBump(address, bump-1, []byte(escrowSeedPrefix), buyer, seller))
	assert.False(t, VerifyBump(address, bump, []byte(vaultSeedPrefix), buyer, seller))
}

func TestDeriveAddress_SeedValidation(t *testing.T) {
	exceededSeed := make([]byte, maxSeedLength+1)

	_, err := deriveAddress(exceededSeed)
	assert.Equal(t, ErrMaxSeedLengthExceeded, err)

	tooManySeeds := make([][]byte, maxSeeds+1)
	for i := range tooManySeeds {
		tooManySeeds[i] = []byte{byte(i)}
	}
	_, err = deriveAddress(tooManySeeds...)
	assert.Equal(t, ErrTooManySeeds, err)
}

func newKey(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub
}
