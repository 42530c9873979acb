package derive

import (
	"crypto/ed25519"
	"crypto/sha256"
	"math"

	"github.com/jdgcs/ed25519/edwards25519"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// ProgramID is the address of the escrow program whose derivation scheme this
// package mirrors. All escrow state and vault addresses are derived off of it.
const ProgramID = "9JTUfhRAejqktmCAfdyEToCkHBTyRn2PHWCaBjMWwe3z"

const (
	maxSeeds      = 16
	maxSeedLength = 32

	escrowSeedPrefix = "escrow"
	vaultSeedPrefix  = "vault"
)

var (
	ErrTooManySeeds          = errors.New("too many seeds")
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")

	// ErrInvalidDerivedAddress indicates the candidate address lies on the
	// ed25519 curve and would have an associated private key.
	ErrInvalidDerivedAddress = errors.New("derived address is on the curve")

	// ErrDerivationCollision indicates the bump space was exhausted without
	// producing a valid off-curve address. Callers are expected to retry with
	// different inputs; the deriver itself never retries.
	ErrDerivationCollision = errors.New("no valid bump seed found")
)

var programID ed25519.PublicKey

func init() {
	decoded, err := base58.Decode(ProgramID)
	if err != nil {
		panic(err)
	}
	programID = decoded
}

// EscrowStateAddress derives the address of the escrow record for a
// (buyer, seller) pair, along with the bump proving the derivation.
//
// The derivation is pure: the same pair always maps to the same address,
// so at most one escrow record can exist per pair.
func EscrowStateAddress(buyer, seller ed25519.PublicKey) (ed25519.PublicKey, uint8, error) {
	return findAddressAndBump(
		[]byte(escrowSeedPrefix),
		buyer,
		seller,
	)
}

// EscrowVaultAddress derives the address of the custodial vault owned by an
// escrow record.
func EscrowVaultAddress(state ed25519.PublicKey) (ed25519.PublicKey, uint8, error) {
	return findAddressAndBump(
		[]byte(vaultSeedPrefix),
		state,
	)
}

// VerifyBump recomputes the candidate address for the provided seeds and bump
// and reports whether it matches the expected address. This is the equality
// check backing the record's derivation proof.
func VerifyBump(expected ed25519.PublicKey, bump uint8, seeds ...[]byte) bool {
	candidate, err := deriveAddress(append(seeds, []byte{bump})...)
	if err != nil {
		return false
	}

	if len(candidate) != len(expected) {
		return false
	}
	for i := range candidate {
		if candidate[i] != expected[i] {
			return false
		}
	}
	return true
}

// deriveAddress computes a candidate derived address from the seeds and the
// program id. Candidates that form a valid compressed Edwards point are
// rejected with ErrInvalidDerivedAddress to guarantee no private key exists
// for the address.
//
// The scheme follows the Solana SDK's CreateProgramAddress.
func deriveAddress(seeds ...[]byte) (ed25519.PublicKey, error) {
	if len(seeds) > maxSeeds {
		return nil, ErrTooManySeeds
	}

	h := sha256.New()
	for _, s := range seeds {
		if len(s) > maxSeedLength {
			return nil, ErrMaxSeedLengthExceeded
		}

		if _, err := h.Write(s); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}

	for _, v := range [][]byte{programID, []byte("ProgramDerivedAddress")} {
		if _, err := h.Write(v); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}

	hash := h.Sum(nil)
	var pub [32]byte
	copy(pub[:], hash)

	var a edwards25519.ExtendedGroupElement
	if a.FromBytes(&pub) {
		return nil, ErrInvalidDerivedAddress
	}

	return pub[:], nil
}

// findAddressAndBump searches bump values downward from 255 until an off-curve
// address is produced. The expected number of iterations is ~2.
func findAddressAndBump(seeds ...[]byte) (ed25519.PublicKey, uint8, error) {
	bumpSeed := []byte{math.MaxUint8}
	for i := 0; i < math.MaxUint8; i++ {
		pub, err := deriveAddress(append(seeds, bumpSeed)...)
		if err == nil {
			return pub, bumpSeed[0], nil
		}
		if err != ErrInvalidDerivedAddress {
			return nil, 0, err
		}

		bumpSeed[0]--
	}

	return nil, 0, ErrDerivationCollision
}
