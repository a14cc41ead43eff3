package ido

import (
	"fmt"
	"math/big"
)

// Pool is the persistent record of a single token sale: the three asset
// mints, the two custody accounts owned by the derived pool authority, the
// sale configuration and the running payment total. It is created once,
// mutated through the settlement operations and never deleted — after the
// proceeds are withdrawn it simply becomes inert.
type Pool struct {
	ID                    [32]byte
	RedeemableMint        [32]byte
	SaleMint              [32]byte
	PaymentMint           [32]byte
	PoolSaleAccount       [32]byte
	PoolPaymentAccount    [32]byte
	DistributionAuthority [20]byte
	PoolAuthority         [20]byte
	AuthorityBump         uint8
	NumSaleTokens         *big.Int
	MaxPaymentTokens      *big.Int
	NumPaymentCollected   *big.Int
	StartTs               int64
	EndTs                 int64
	WithdrawTs            int64
}

// Clone returns a deep copy of the pool so callers can safely mutate the copy
// without affecting the stored instance.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.NumSaleTokens = cloneBigInt(p.NumSaleTokens)
	clone.MaxPaymentTokens = cloneBigInt(p.MaxPaymentTokens)
	clone.NumPaymentCollected = cloneBigInt(p.NumPaymentCollected)
	return &clone
}

// SanitizePool validates the pool record against its standing invariants and
// returns a cloned instance with non-nil amounts. Every mutation of a pool
// passes through here before persisting.
func SanitizePool(p *Pool) (*Pool, error) {
	if p == nil {
		return nil, fmt.Errorf("ido: nil pool")
	}
	clone := p.Clone()
	if !(clone.StartTs < clone.EndTs && clone.EndTs < clone.WithdrawTs) {
		return nil, ErrSeqTimes
	}
	if clone.NumSaleTokens.Sign() <= 0 {
		return nil, fmt.Errorf("%w: sale token amount must be positive", ErrInvalidParam)
	}
	if clone.MaxPaymentTokens.Sign() <= 0 {
		return nil, fmt.Errorf("%w: payment cap must be positive", ErrInvalidParam)
	}
	if clone.NumPaymentCollected.Sign() < 0 {
		return nil, fmt.Errorf("%w: collected total is negative", ErrInvariant)
	}
	if clone.NumPaymentCollected.Cmp(clone.MaxPaymentTokens) > 0 {
		return nil, fmt.Errorf("%w: collected total exceeds payment cap", ErrInvariant)
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
