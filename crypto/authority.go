package crypto

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// authoritySeed domain-separates pool custody authorities from every other
// keccak-derived identifier in the system.
const authoritySeed = "idopool/pool-authority/v1"

// DeriveAuthority computes the custody authority for a sale pool from the sale
// asset identifier and a caller-supplied bump. The result is the trailing 20
// bytes of a keccak256 hash, so no external party holds a signing key for it:
// only the settlement engine, after re-deriving and comparing the stored bump,
// may authorize debits from accounts owned by this address.
func DeriveAuthority(saleMint [32]byte, bump uint8) [20]byte {
	digest := crypto.Keccak256([]byte(authoritySeed), saleMint[:], []byte{bump})
	var authority [20]byte
	copy(authority[:], digest[12:])
	return authority
}

// VerifyAuthority recomputes the derivation and reports whether it matches the
// expected authority. Callers treat a mismatch as an invalid bump.
func VerifyAuthority(saleMint [32]byte, bump uint8, expected [20]byte) error {
	if DeriveAuthority(saleMint, bump) != expected {
		return fmt.Errorf("crypto: derived authority does not match expected address")
	}
	return nil
}
