package ido

import (
	"fmt"
	"math/big"
)

// Storage abstracts the subset of state manager functionality required by the
// pool store.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out *[][]byte) error
}

var (
	poolRecordPrefix = []byte("ido/pool/")
	poolIndexKey     = []byte("ido/pool-index")
)

type storedPool struct {
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
	StartTs               uint64
	EndTs                 uint64
	WithdrawTs            uint64
}

// Store persists pool records in the underlying key-value store and keeps an
// index of created pool identifiers for listing.
type Store struct {
	store Storage
}

// NewStore constructs a pool store bound to the provided storage backend.
func NewStore(store Storage) *Store {
	return &Store{store: store}
}

// PoolPut sanitizes and persists the pool record, registering the identifier
// in the index the first time it is seen.
func (s *Store) PoolPut(p *Pool) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("ido: pool store not initialised")
	}
	sanitized, err := SanitizePool(p)
	if err != nil {
		return err
	}
	key := poolKey(sanitized.ID)
	var existing storedPool
	known, err := s.store.KVGet(key, &existing)
	if err != nil {
		return err
	}
	stored, err := toStoredPool(sanitized)
	if err != nil {
		return err
	}
	if err := s.store.KVPut(key, stored); err != nil {
		return err
	}
	if !known {
		return s.store.KVAppend(poolIndexKey, sanitized.ID[:])
	}
	return nil
}

// PoolGet retrieves a pool record by identifier.
func (s *Store) PoolGet(id [32]byte) (*Pool, bool, error) {
	if s == nil || s.store == nil {
		return nil, false, fmt.Errorf("ido: pool store not initialised")
	}
	var stored storedPool
	ok, err := s.store.KVGet(poolKey(id), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	pool, err := fromStoredPool(&stored)
	if err != nil {
		return nil, false, err
	}
	return pool, true, nil
}

// PoolIDs returns the identifiers of every pool ever created, in creation
// order.
func (s *Store) PoolIDs() ([][32]byte, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("ido: pool store not initialised")
	}
	var raw [][]byte
	if err := s.store.KVGetList(poolIndexKey, &raw); err != nil {
		return nil, err
	}
	ids := make([][32]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 32 {
			continue
		}
		var id [32]byte
		copy(id[:], entry)
		ids = append(ids, id)
	}
	return ids, nil
}

func toStoredPool(p *Pool) (*storedPool, error) {
	startTs, err := tsToUint64(p.StartTs)
	if err != nil {
		return nil, err
	}
	endTs, err := tsToUint64(p.EndTs)
	if err != nil {
		return nil, err
	}
	withdrawTs, err := tsToUint64(p.WithdrawTs)
	if err != nil {
		return nil, err
	}
	return &storedPool{
		ID:                    p.ID,
		RedeemableMint:        p.RedeemableMint,
		SaleMint:              p.SaleMint,
		PaymentMint:           p.PaymentMint,
		PoolSaleAccount:       p.PoolSaleAccount,
		PoolPaymentAccount:    p.PoolPaymentAccount,
		DistributionAuthority: p.DistributionAuthority,
		PoolAuthority:         p.PoolAuthority,
		AuthorityBump:         p.AuthorityBump,
		NumSaleTokens:         p.NumSaleTokens,
		MaxPaymentTokens:      p.MaxPaymentTokens,
		NumPaymentCollected:   p.NumPaymentCollected,
		StartTs:               startTs,
		EndTs:                 endTs,
		WithdrawTs:            withdrawTs,
	}, nil
}

func fromStoredPool(stored *storedPool) (*Pool, error) {
	if stored == nil {
		return nil, fmt.Errorf("ido: nil stored pool")
	}
	pool := &Pool{
		ID:                    stored.ID,
		RedeemableMint:        stored.RedeemableMint,
		SaleMint:              stored.SaleMint,
		PaymentMint:           stored.PaymentMint,
		PoolSaleAccount:       stored.PoolSaleAccount,
		PoolPaymentAccount:    stored.PoolPaymentAccount,
		DistributionAuthority: stored.DistributionAuthority,
		PoolAuthority:         stored.PoolAuthority,
		AuthorityBump:         stored.AuthorityBump,
		NumSaleTokens:         cloneBigInt(stored.NumSaleTokens),
		MaxPaymentTokens:      cloneBigInt(stored.MaxPaymentTokens),
		NumPaymentCollected:   cloneBigInt(stored.NumPaymentCollected),
		StartTs:               int64(stored.StartTs),
		EndTs:                 int64(stored.EndTs),
		WithdrawTs:            int64(stored.WithdrawTs),
	}
	return pool, nil
}

func tsToUint64(ts int64) (uint64, error) {
	if ts < 0 {
		return 0, fmt.Errorf("ido: negative timestamp %d", ts)
	}
	return uint64(ts), nil
}

func poolKey(id [32]byte) []byte {
	buf := make([]byte, len(poolRecordPrefix)+len(id))
	copy(buf, poolRecordPrefix)
	copy(buf[len(poolRecordPrefix):], id[:])
	return buf
}
