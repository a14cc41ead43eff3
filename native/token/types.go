package token

import (
	"fmt"
	"math/big"
)

// Mint describes a fungible asset: who may issue it, its display precision
// and the outstanding supply.
type Mint struct {
	ID        [32]byte
	Authority [20]byte
	Decimals  uint8
	Supply    *big.Int
}

// Clone returns a deep copy so callers can mutate the result without touching
// the stored instance.
func (m *Mint) Clone() *Mint {
	if m == nil {
		return nil
	}
	clone := *m
	if m.Supply != nil {
		clone.Supply = new(big.Int).Set(m.Supply)
	} else {
		clone.Supply = big.NewInt(0)
	}
	return &clone
}

// SanitizeMint validates the mint definition and returns a cloned instance
// with a non-nil, non-negative supply.
func SanitizeMint(m *Mint) (*Mint, error) {
	if m == nil {
		return nil, fmt.Errorf("token: nil mint")
	}
	clone := m.Clone()
	if clone.Supply.Sign() < 0 {
		return nil, fmt.Errorf("token: mint supply must be non-negative")
	}
	return clone, nil
}

// Account is a balance of a single mint held on behalf of an owner. Debits
// require the owner (or, for pool custody accounts, the derived authority
// recorded as owner) to be presented as the authorizing identity.
type Account struct {
	ID      [32]byte
	Mint    [32]byte
	Owner   [20]byte
	Balance *big.Int
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	} else {
		clone.Balance = big.NewInt(0)
	}
	return &clone
}

// SanitizeAccount validates the account definition and returns a cloned
// instance with a non-nil, non-negative balance.
func SanitizeAccount(a *Account) (*Account, error) {
	if a == nil {
		return nil, fmt.Errorf("token: nil account")
	}
	clone := a.Clone()
	if clone.Balance.Sign() < 0 {
		return nil, fmt.Errorf("token: account balance must be non-negative")
	}
	return clone, nil
}
