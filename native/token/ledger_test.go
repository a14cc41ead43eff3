package token

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"idopool/core/state"
	"idopool/storage"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(state.NewManager(storage.NewMemDB()))
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func testID(fill byte) [32]byte {
	var id [32]byte
	copy(id[:], bytes.Repeat([]byte{fill}, 32))
	return id
}

func TestCreateMintAndAccount(t *testing.T) {
	ledger := newTestLedger(t)
	mint := testID(0x01)
	authority := testAddr(0x0A)

	if err := ledger.CreateMint(mint, authority, 6); err != nil {
		t.Fatalf("create mint: %v", err)
	}
	if err := ledger.CreateMint(mint, authority, 6); !errors.Is(err, ErrMintExists) {
		t.Fatalf("expected mint exists, got %v", err)
	}
	gotAuthority, err := ledger.MintAuthority(mint)
	if err != nil {
		t.Fatalf("mint authority: %v", err)
	}
	if gotAuthority != authority {
		t.Fatalf("authority mismatch")
	}
	decimals, err := ledger.MintDecimals(mint)
	if err != nil {
		t.Fatalf("mint decimals: %v", err)
	}
	if decimals != 6 {
		t.Fatalf("expected 6 decimals, got %d", decimals)
	}

	account := testID(0x02)
	owner := testAddr(0x0B)
	if err := ledger.CreateAccount(account, mint, owner); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if err := ledger.CreateAccount(account, mint, owner); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected account exists, got %v", err)
	}
	if err := ledger.CreateAccount(testID(0x03), testID(0x7F), owner); !errors.Is(err, ErrMintNotFound) {
		t.Fatalf("expected mint not found, got %v", err)
	}
	balance, err := ledger.BalanceOf(account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected zero opening balance, got %s", balance)
	}
}

func TestMintToRequiresAuthority(t *testing.T) {
	ledger := newTestLedger(t)
	mint := testID(0x01)
	authority := testAddr(0x0A)
	owner := testAddr(0x0B)
	account := testID(0x02)

	if err := ledger.CreateMint(mint, authority, 6); err != nil {
		t.Fatalf("create mint: %v", err)
	}
	if err := ledger.CreateAccount(account, mint, owner); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if err := ledger.MintTo(mint, account, owner, big.NewInt(100)); !errors.Is(err, ErrNotMintAuthority) {
		t.Fatalf("expected not mint authority, got %v", err)
	}
	if err := ledger.MintTo(mint, account, authority, big.NewInt(100)); err != nil {
		t.Fatalf("mint to: %v", err)
	}
	supply, err := ledger.SupplyOf(mint)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.String() != "100" {
		t.Fatalf("unexpected supply: %s", supply)
	}
}

func TestTransferChecksOwnerAndBalance(t *testing.T) {
	ledger := newTestLedger(t)
	mint := testID(0x01)
	otherMint := testID(0x09)
	authority := testAddr(0x0A)
	alice := testAddr(0x0B)
	bob := testAddr(0x0C)
	aliceAcc := testID(0x02)
	bobAcc := testID(0x03)
	otherAcc := testID(0x04)

	if err := ledger.CreateMint(mint, authority, 6); err != nil {
		t.Fatalf("create mint: %v", err)
	}
	if err := ledger.CreateMint(otherMint, authority, 6); err != nil {
		t.Fatalf("create other mint: %v", err)
	}
	if err := ledger.CreateAccount(aliceAcc, mint, alice); err != nil {
		t.Fatalf("create alice account: %v", err)
	}
	if err := ledger.CreateAccount(bobAcc, mint, bob); err != nil {
		t.Fatalf("create bob account: %v", err)
	}
	if err := ledger.CreateAccount(otherAcc, otherMint, bob); err != nil {
		t.Fatalf("create other account: %v", err)
	}
	if err := ledger.MintTo(mint, aliceAcc, authority, big.NewInt(100)); err != nil {
		t.Fatalf("mint to alice: %v", err)
	}

	if err := ledger.Transfer(aliceAcc, bobAcc, bob, big.NewInt(10)); !errors.Is(err, ErrNotAccountOwner) {
		t.Fatalf("expected not account owner, got %v", err)
	}
	if err := ledger.Transfer(aliceAcc, bobAcc, alice, big.NewInt(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := ledger.Transfer(aliceAcc, otherAcc, alice, big.NewInt(10)); !errors.Is(err, ErrMintMismatch) {
		t.Fatalf("expected mint mismatch, got %v", err)
	}
	if err := ledger.Transfer(aliceAcc, bobAcc, alice, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if err := ledger.Transfer(aliceAcc, bobAcc, alice, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	aliceBalance, _ := ledger.BalanceOf(aliceAcc)
	bobBalance, _ := ledger.BalanceOf(bobAcc)
	if aliceBalance.String() != "60" || bobBalance.String() != "40" {
		t.Fatalf("unexpected balances: %s / %s", aliceBalance, bobBalance)
	}
}

func TestBurnShrinksSupply(t *testing.T) {
	ledger := newTestLedger(t)
	mint := testID(0x01)
	authority := testAddr(0x0A)
	owner := testAddr(0x0B)
	account := testID(0x02)

	if err := ledger.CreateMint(mint, authority, 6); err != nil {
		t.Fatalf("create mint: %v", err)
	}
	if err := ledger.CreateAccount(account, mint, owner); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if err := ledger.MintTo(mint, account, authority, big.NewInt(100)); err != nil {
		t.Fatalf("mint to: %v", err)
	}
	if err := ledger.Burn(mint, account, authority, big.NewInt(10)); !errors.Is(err, ErrNotAccountOwner) {
		t.Fatalf("expected not account owner, got %v", err)
	}
	if err := ledger.Burn(mint, account, owner, big.NewInt(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := ledger.Burn(mint, account, owner, big.NewInt(30)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	supply, _ := ledger.SupplyOf(mint)
	balance, _ := ledger.BalanceOf(account)
	if supply.String() != "70" || balance.String() != "70" {
		t.Fatalf("unexpected supply/balance: %s / %s", supply, balance)
	}
}

func TestZeroAmountMovesAreNoOps(t *testing.T) {
	ledger := newTestLedger(t)
	mint := testID(0x01)
	authority := testAddr(0x0A)
	owner := testAddr(0x0B)
	from := testID(0x02)
	to := testID(0x03)

	if err := ledger.CreateMint(mint, authority, 6); err != nil {
		t.Fatalf("create mint: %v", err)
	}
	if err := ledger.CreateAccount(from, mint, owner); err != nil {
		t.Fatalf("create from account: %v", err)
	}
	if err := ledger.CreateAccount(to, mint, owner); err != nil {
		t.Fatalf("create to account: %v", err)
	}
	if err := ledger.Transfer(from, to, owner, big.NewInt(0)); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
	if err := ledger.Transfer(from, to, owner, nil); err != nil {
		t.Fatalf("nil transfer: %v", err)
	}
	if err := ledger.MintTo(mint, to, authority, big.NewInt(0)); err != nil {
		t.Fatalf("zero mint: %v", err)
	}
	if err := ledger.Burn(mint, from, owner, big.NewInt(0)); err != nil {
		t.Fatalf("zero burn: %v", err)
	}
	supply, _ := ledger.SupplyOf(mint)
	if supply.Sign() != 0 {
		t.Fatalf("expected zero supply, got %s", supply)
	}
}
