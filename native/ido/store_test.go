package ido

import (
	"errors"
	"math/big"
	"testing"

	"idopool/core/state"
	"idopool/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(state.NewManager(storage.NewMemDB()))
}

func storablePool(fill byte) *Pool {
	pool := testPool(100, 500_000)
	pool.ID = newTestID(fill)
	return pool
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	pool := storablePool(0x11)
	pool.AuthorityBump = 9
	pool.DistributionAuthority = newTestAddress(0x05)

	if err := store.PoolPut(pool); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, ok, err := store.PoolGet(pool.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("pool not found after put")
	}
	if loaded.ID != pool.ID || loaded.AuthorityBump != 9 || loaded.DistributionAuthority != pool.DistributionAuthority {
		t.Fatalf("round trip mangled pool record")
	}
	if loaded.NumPaymentCollected.String() != "100" {
		t.Fatalf("unexpected collected: %s", loaded.NumPaymentCollected)
	}
	if loaded.StartTs != pool.StartTs || loaded.EndTs != pool.EndTs || loaded.WithdrawTs != pool.WithdrawTs {
		t.Fatalf("timestamps mangled")
	}

	// The loaded record is a copy: mutating it must not affect storage.
	loaded.NumPaymentCollected.SetInt64(999)
	again, _, err := store.PoolGet(pool.ID)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if again.NumPaymentCollected.String() != "100" {
		t.Fatalf("stored record aliased by loaded copy")
	}
}

func TestStoreMissingPool(t *testing.T) {
	store := newTestStore(t)
	_, ok, err := store.PoolGet(newTestID(0x33))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected missing pool")
	}
}

func TestStoreRejectsInvalidPool(t *testing.T) {
	store := newTestStore(t)
	pool := storablePool(0x22)
	pool.EndTs = pool.StartTs
	if err := store.PoolPut(pool); !errors.Is(err, ErrSeqTimes) {
		t.Fatalf("expected seq times rejection, got %v", err)
	}

	pool = storablePool(0x23)
	pool.NumPaymentCollected = new(big.Int).Add(pool.MaxPaymentTokens, big.NewInt(1))
	if err := store.PoolPut(pool); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected invariant rejection, got %v", err)
	}
}

func TestStoreIndexKeepsCreationOrder(t *testing.T) {
	store := newTestStore(t)
	first := storablePool(0x41)
	second := storablePool(0x42)
	if err := store.PoolPut(first); err != nil {
		t.Fatalf("put first: %v", err)
	}
	if err := store.PoolPut(second); err != nil {
		t.Fatalf("put second: %v", err)
	}
	// Re-storing an existing pool must not duplicate the index entry.
	if err := store.PoolPut(first); err != nil {
		t.Fatalf("re-put first: %v", err)
	}
	ids, err := store.PoolIDs()
	if err != nil {
		t.Fatalf("pool ids: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
	if ids[0] != first.ID || ids[1] != second.ID {
		t.Fatalf("index out of order")
	}
}
