package token

import (
	"errors"
	"fmt"
	"math/big"
)

// Storage abstracts the subset of state manager functionality required by the
// token ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	mintRecordPrefix    = []byte("token/mint/")
	accountRecordPrefix = []byte("token/account/")
)

var (
	ErrMintNotFound        = errors.New("token: mint not found")
	ErrAccountNotFound     = errors.New("token: account not found")
	ErrMintExists          = errors.New("token: mint already exists")
	ErrAccountExists       = errors.New("token: account already exists")
	ErrNotMintAuthority    = errors.New("token: authority is not the mint authority")
	ErrNotAccountOwner     = errors.New("token: authority does not own account")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrMintMismatch        = errors.New("token: account bound to a different mint")
	ErrInvalidAmount       = errors.New("token: amount must be non-negative")
)

type storedMint struct {
	ID        [32]byte
	Authority [20]byte
	Decimals  uint8
	Supply    *big.Int
}

type storedAccount struct {
	ID      [32]byte
	Mint    [32]byte
	Owner   [20]byte
	Balance *big.Int
}

// Ledger persists mints and token accounts in the underlying key-value store
// and enforces owner/authority checks on every balance movement. It carries no
// business logic of its own: the settlement engine composes these primitives.
type Ledger struct {
	store Storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

// CreateMint registers a new mint with zero supply.
func (l *Ledger) CreateMint(id [32]byte, authority [20]byte, decimals uint8) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("token: ledger not initialised")
	}
	key := mintKey(id)
	var existing storedMint
	ok, err := l.store.KVGet(key, &existing)
	if err != nil {
		return err
	}
	if ok {
		return ErrMintExists
	}
	record := storedMint{ID: id, Authority: authority, Decimals: decimals, Supply: big.NewInt(0)}
	return l.store.KVPut(key, record)
}

// CreateAccount registers a new zero-balance account bound to a mint.
func (l *Ledger) CreateAccount(id [32]byte, mint [32]byte, owner [20]byte) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("token: ledger not initialised")
	}
	if _, err := l.loadMint(mint); err != nil {
		return err
	}
	key := accountKey(id)
	var existing storedAccount
	ok, err := l.store.KVGet(key, &existing)
	if err != nil {
		return err
	}
	if ok {
		return ErrAccountExists
	}
	record := storedAccount{ID: id, Mint: mint, Owner: owner, Balance: big.NewInt(0)}
	return l.store.KVPut(key, record)
}

// Transfer moves amount between two accounts of the same mint. The authority
// must own the debited account and its balance must cover the amount.
func (l *Ledger) Transfer(from, to [32]byte, authority [20]byte, amount *big.Int) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("token: ledger not initialised")
	}
	amt, err := checkAmount(amount)
	if err != nil {
		return err
	}
	if amt.Sign() == 0 {
		return nil
	}
	fromAcc, err := l.loadAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := l.loadAccount(to)
	if err != nil {
		return err
	}
	if fromAcc.Mint != toAcc.Mint {
		return ErrMintMismatch
	}
	if fromAcc.Owner != authority {
		return ErrNotAccountOwner
	}
	if fromAcc.Balance.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := l.storeAccount(fromAcc); err != nil {
		return err
	}
	return l.storeAccount(toAcc)
}

// MintTo issues amount of the mint into the destination account. Only the
// recorded mint authority may issue.
func (l *Ledger) MintTo(mint [32]byte, to [32]byte, authority [20]byte, amount *big.Int) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("token: ledger not initialised")
	}
	amt, err := checkAmount(amount)
	if err != nil {
		return err
	}
	if amt.Sign() == 0 {
		return nil
	}
	mintRecord, err := l.loadMint(mint)
	if err != nil {
		return err
	}
	if mintRecord.Authority != authority {
		return ErrNotMintAuthority
	}
	account, err := l.loadAccount(to)
	if err != nil {
		return err
	}
	if account.Mint != mint {
		return ErrMintMismatch
	}
	mintRecord.Supply = new(big.Int).Add(mintRecord.Supply, amt)
	account.Balance = new(big.Int).Add(account.Balance, amt)
	if err := l.storeMint(mintRecord); err != nil {
		return err
	}
	return l.storeAccount(account)
}

// Burn destroys amount of the mint held in the source account, shrinking the
// outstanding supply. The authority must own the account.
func (l *Ledger) Burn(mint [32]byte, from [32]byte, authority [20]byte, amount *big.Int) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("token: ledger not initialised")
	}
	amt, err := checkAmount(amount)
	if err != nil {
		return err
	}
	if amt.Sign() == 0 {
		return nil
	}
	mintRecord, err := l.loadMint(mint)
	if err != nil {
		return err
	}
	account, err := l.loadAccount(from)
	if err != nil {
		return err
	}
	if account.Mint != mint {
		return ErrMintMismatch
	}
	if account.Owner != authority {
		return ErrNotAccountOwner
	}
	if account.Balance.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	if mintRecord.Supply.Cmp(amt) < 0 {
		// Supply smaller than a held balance means the ledger itself is
		// corrupted, not that the caller passed a bad amount.
		return fmt.Errorf("token: supply %s below burn amount %s", mintRecord.Supply, amt)
	}
	account.Balance = new(big.Int).Sub(account.Balance, amt)
	mintRecord.Supply = new(big.Int).Sub(mintRecord.Supply, amt)
	if err := l.storeAccount(account); err != nil {
		return err
	}
	return l.storeMint(mintRecord)
}

// BalanceOf returns the balance held in the account.
func (l *Ledger) BalanceOf(account [32]byte) (*big.Int, error) {
	acc, err := l.loadAccount(account)
	if err != nil {
		return nil, err
	}
	return acc.Balance, nil
}

// SupplyOf returns the outstanding supply of the mint.
func (l *Ledger) SupplyOf(mint [32]byte) (*big.Int, error) {
	record, err := l.loadMint(mint)
	if err != nil {
		return nil, err
	}
	return record.Supply, nil
}

// MintAuthority returns the identity permitted to issue the mint.
func (l *Ledger) MintAuthority(mint [32]byte) ([20]byte, error) {
	record, err := l.loadMint(mint)
	if err != nil {
		return [20]byte{}, err
	}
	return record.Authority, nil
}

// MintDecimals returns the display precision recorded for the mint.
func (l *Ledger) MintDecimals(mint [32]byte) (uint8, error) {
	record, err := l.loadMint(mint)
	if err != nil {
		return 0, err
	}
	return record.Decimals, nil
}

// AccountOwner returns the identity that owns the account.
func (l *Ledger) AccountOwner(account [32]byte) ([20]byte, error) {
	acc, err := l.loadAccount(account)
	if err != nil {
		return [20]byte{}, err
	}
	return acc.Owner, nil
}

// AccountMint returns the mint the account is bound to.
func (l *Ledger) AccountMint(account [32]byte) ([32]byte, error) {
	acc, err := l.loadAccount(account)
	if err != nil {
		return [32]byte{}, err
	}
	return acc.Mint, nil
}

// GetMint retrieves a mint definition by identifier.
func (l *Ledger) GetMint(id [32]byte) (*Mint, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, fmt.Errorf("token: ledger not initialised")
	}
	var stored storedMint
	ok, err := l.store.KVGet(mintKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Mint{ID: stored.ID, Authority: stored.Authority, Decimals: stored.Decimals, Supply: cloneAmount(stored.Supply)}, true, nil
}

// GetAccount retrieves a token account by identifier.
func (l *Ledger) GetAccount(id [32]byte) (*Account, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, fmt.Errorf("token: ledger not initialised")
	}
	var stored storedAccount
	ok, err := l.store.KVGet(accountKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Account{ID: stored.ID, Mint: stored.Mint, Owner: stored.Owner, Balance: cloneAmount(stored.Balance)}, true, nil
}

func (l *Ledger) loadMint(id [32]byte) (*Mint, error) {
	var stored storedMint
	ok, err := l.store.KVGet(mintKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMintNotFound
	}
	return &Mint{ID: stored.ID, Authority: stored.Authority, Decimals: stored.Decimals, Supply: cloneAmount(stored.Supply)}, nil
}

func (l *Ledger) storeMint(m *Mint) error {
	sanitized, err := SanitizeMint(m)
	if err != nil {
		return err
	}
	record := storedMint{ID: sanitized.ID, Authority: sanitized.Authority, Decimals: sanitized.Decimals, Supply: sanitized.Supply}
	return l.store.KVPut(mintKey(sanitized.ID), record)
}

func (l *Ledger) loadAccount(id [32]byte) (*Account, error) {
	var stored storedAccount
	ok, err := l.store.KVGet(accountKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &Account{ID: stored.ID, Mint: stored.Mint, Owner: stored.Owner, Balance: cloneAmount(stored.Balance)}, nil
}

func (l *Ledger) storeAccount(a *Account) error {
	sanitized, err := SanitizeAccount(a)
	if err != nil {
		return err
	}
	record := storedAccount{ID: sanitized.ID, Mint: sanitized.Mint, Owner: sanitized.Owner, Balance: sanitized.Balance}
	return l.store.KVPut(accountKey(sanitized.ID), record)
}

func checkAmount(amount *big.Int) (*big.Int, error) {
	if amount == nil {
		return big.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	return new(big.Int).Set(amount), nil
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func mintKey(id [32]byte) []byte {
	buf := make([]byte, len(mintRecordPrefix)+len(id))
	copy(buf, mintRecordPrefix)
	copy(buf[len(mintRecordPrefix):], id[:])
	return buf
}

func accountKey(id [32]byte) []byte {
	buf := make([]byte, len(accountRecordPrefix)+len(id))
	copy(buf, accountRecordPrefix)
	copy(buf[len(accountRecordPrefix):], id[:])
	return buf
}
