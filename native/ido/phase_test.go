package ido

import (
	"errors"
	"math/big"
	"testing"
)

func testPool(collected, cap int64) *Pool {
	return &Pool{
		ID:                  newTestID(0x01),
		NumSaleTokens:       big.NewInt(1_000_000),
		MaxPaymentTokens:    big.NewInt(cap),
		NumPaymentCollected: big.NewInt(collected),
		StartTs:             testStartTs,
		EndTs:               testEndTs,
		WithdrawTs:          testWithdrawTs,
	}
}

func TestPhaseAt(t *testing.T) {
	cases := []struct {
		name      string
		collected int64
		now       int64
		want      Phase
	}{
		{"before start", 0, testStartTs - 1, PhasePending},
		{"at start", 0, testStartTs, PhaseOpen},
		{"mid window", 100, testEndTs - 1, PhaseOpen},
		{"at end", 100, testEndTs, PhaseCooldown},
		{"before withdraw", 100, testWithdrawTs - 1, PhaseCooldown},
		{"at withdraw", 100, testWithdrawTs, PhaseEnded},
		{"cap reached mid window", 500_000, testEndTs - 1, PhaseCapReached},
		{"cap reached before start", 500_000, testStartTs - 1, PhaseCapReached},
		{"cap reached after withdraw", 500_000, testWithdrawTs + 1, PhaseCapReached},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pool := testPool(tc.collected, 500_000)
			if got := pool.PhaseAt(tc.now); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestGateOpenCheckOrder(t *testing.T) {
	// A saturated pool queried before the window still reports the window
	// error first: the check order is start, end, cap.
	pool := testPool(500_000, 500_000)
	if err := gateOpen(pool, testStartTs-1); !errors.Is(err, ErrSaleNotStarted) {
		t.Fatalf("expected sale not started, got %v", err)
	}
	if err := gateOpen(pool, testEndTs); !errors.Is(err, ErrDepositsEnded) {
		t.Fatalf("expected deposits ended, got %v", err)
	}
	if err := gateOpen(pool, testStartTs); !errors.Is(err, ErrCapReached) {
		t.Fatalf("expected cap reached, got %v", err)
	}
	if err := gateOpen(testPool(0, 500_000), testStartTs); err != nil {
		t.Fatalf("expected open gate, got %v", err)
	}
}

func TestGateOver(t *testing.T) {
	pool := testPool(100, 500_000)
	if err := gateOver(pool, testWithdrawTs-1); !errors.Is(err, ErrSaleNotOver) {
		t.Fatalf("expected sale not over, got %v", err)
	}
	if err := gateOver(pool, testWithdrawTs); err != nil {
		t.Fatalf("expected over gate at withdraw ts, got %v", err)
	}
	if err := gateOver(testPool(500_000, 500_000), testStartTs); err != nil {
		t.Fatalf("expected cap override, got %v", err)
	}
}
