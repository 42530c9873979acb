package common

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_RoundTrip(t *testing.T) {
	key, err := NewRandomKey()
	require.NoError(t, err)
	assert.False(t, key.IsPublic())

	decoded, err := NewKeyFromString(key.ToBase58())
	require.NoError(t, err)
	assert.Equal(t, key.ToBytes(), decoded.ToBytes())

	_, err = NewKeyFromBytes([]byte("too short"))
	assert.Error(t, err)

	_, err = NewKeyFromString("not base58 0OIl")
	assert.Error(t, err)
}

func TestAccount_FromPrivateKey(t *testing.T) {
	account, err := NewRandomAccount()
	require.NoError(t, err)

	assert.True(t, account.PublicKey().IsPublic())
	assert.False(t, account.PrivateKey().IsPublic())
	assert.Len(t, account.PublicKey().ToBytes(), ed25519.PublicKeySize)

	// Public-key-only view of the same account
	readOnly, err := NewAccountFromPublicKeyString(account.PublicKey().ToBase58())
	require.NoError(t, err)
	assert.Nil(t, readOnly.PrivateKey())
	assert.Equal(t, account.String(), readOnly.String())
}

func TestAccount_SignAndVerify(t *testing.T) {
	account, err := NewRandomAccount()
	require.NoError(t, err)

	message := []byte("two party escrow")

	signature, err := account.Sign(message)
	require.NoError(t, err)
	assert.True(t, account.Verify(message, signature))
	assert.False(t, account.Verify([]byte("tampered"), signature))
	assert.False(t, account.Verify(message, signature[:32]))

	other, err := NewRandomAccount()
	require.NoError(t, err)
	assert.False(t, other.Verify(message, signature))

	readOnly, err := NewAccountFromPublicKeyBytes(account.PublicKey().ToBytes())
	require.NoError(t, err)
	_, err = readOnly.Sign(message)
	assert.Error(t, err)
}

func TestGetEscrowAccounts(t *testing.T) {
	buyer, err := NewRandomAccount()
	require.NoError(t, err)
	seller, err := NewRandomAccount()
	require.NoError(t, err)

	accounts, err := GetEscrowAccounts(buyer, seller)
	require.NoError(t, err)

	// Derivation is stable
	again, err := GetEscrowAccounts(buyer, seller)
	require.NoError(t, err)
	assert.Equal(t, accounts.State.String(), again.State.String())
	assert.Equal(t, accounts.StateBump, again.StateBump)
	assert.Equal(t, accounts.Vault.String(), again.Vault.String())
	assert.Equal(t, accounts.VaultBump, again.VaultBump)

	// Derived accounts have no signing authority
	assert.Nil(t, accounts.State.PrivateKey())
	assert.Nil(t, accounts.Vault.PrivateKey())

	// Distinct pairs get distinct vaults
	otherSeller, err := NewRandomAccount()
	require.NoError(t, err)
	other, err := GetEscrowAccounts(buyer, otherSeller)
	require.NoError(t, err)
	assert.NotEqual(t, accounts.State.String(), other.State.String())
	assert.NotEqual(t, accounts.Vault.String(), other.Vault.String())
}
