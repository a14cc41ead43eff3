package ido

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"idopool/core/events"
	"idopool/core/types"
	"idopool/crypto"
)

var (
	errNilState  = errors.New("ido engine: state not configured")
	errNilLedger = errors.New("ido engine: asset ledger not configured")
)

type engineState interface {
	PoolPut(*Pool) error
	PoolGet(id [32]byte) (*Pool, bool, error)
}

// assetLedger is the subset of the token ledger the settlement engine relies
// on. Custody debits present the pool's derived authority; the ledger owns
// the balance and authority checks.
type assetLedger interface {
	Transfer(from, to [32]byte, authority [20]byte, amount *big.Int) error
	MintTo(mint, to [32]byte, authority [20]byte, amount *big.Int) error
	Burn(mint, from [32]byte, authority [20]byte, amount *big.Int) error
	BalanceOf(account [32]byte) (*big.Int, error)
	SupplyOf(mint [32]byte) (*big.Int, error)
	MintAuthority(mint [32]byte) ([20]byte, error)
	MintDecimals(mint [32]byte) (uint8, error)
	AccountOwner(account [32]byte) ([20]byte, error)
	AccountMint(account [32]byte) ([32]byte, error)
}

type idoEvent struct {
	evt *types.Event
}

func (e idoEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e idoEvent) Event() *types.Event { return e.evt }

// Engine wires the sale-pool settlement logic with external state, the asset
// ledger and event emitters. Each operation is a finite sequence of checks
// followed by ledger calls; every precondition is evaluated before the first
// mutation so a rejected call leaves no partial state.
type Engine struct {
	state   engineState
	ledger  assetLedger
	emitter events.Emitter
	admin   [20]byte
	nowFn   func() int64
}

// NewEngine creates a settlement engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the pool state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the asset ledger used by the engine.
func (e *Engine) SetLedger(ledger assetLedger) { e.ledger = ledger }

// SetAdmin configures the deploying identity permitted to create pools, edit
// parameters and withdraw proceeds. Injected from deployment configuration
// rather than compiled in.
func (e *Engine) SetAdmin(addr [20]byte) { e.admin = addr }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(idoEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

func (e *Engine) requireAdmin(caller [20]byte) error {
	if e.admin == ([20]byte{}) || caller != e.admin {
		return fmt.Errorf("%w: caller is not the sale administrator", ErrInvalidParam)
	}
	return nil
}

func (e *Engine) loadPool(id [32]byte) (*Pool, error) {
	pool, ok, err := e.state.PoolGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPoolNotFound
	}
	return pool, nil
}

func (e *Engine) storePool(p *Pool) error {
	sanitized, err := SanitizePool(p)
	if err != nil {
		return err
	}
	return e.state.PoolPut(sanitized)
}

// custodyAuthority re-derives the pool's custody authority from the stored
// bump and compares it against the record. Every debit from a pool-owned
// account presents this proof-of-derivation, the same check performed at
// creation.
func (e *Engine) custodyAuthority(p *Pool) ([20]byte, error) {
	derived := crypto.DeriveAuthority(p.SaleMint, p.AuthorityBump)
	if derived != p.PoolAuthority {
		return [20]byte{}, ErrInvalidBump
	}
	return derived, nil
}

// InitializePoolParams carries the full account topology and configuration
// for pool creation.
type InitializePoolParams struct {
	PoolID                [32]byte
	Caller                [20]byte
	DistributionAuthority [20]byte
	AuthorityBump         uint8
	RedeemableMint        [32]byte
	SaleMint              [32]byte
	PaymentMint           [32]byte
	PoolSaleAccount       [32]byte
	PoolPaymentAccount    [32]byte
	CreatorSaleAccount    [32]byte
	NumSaleTokens         *big.Int
	MaxPaymentTokens      *big.Int
	StartTs               int64
	EndTs                 int64
	WithdrawTs            int64
}

// InitializePool validates the sale configuration and the external ledger
// preconditions, moves the sale tokens into pool custody and persists the
// pool record. Only the configured administrator may create pools.
func (e *Engine) InitializePool(params InitializePoolParams) (*Pool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !(params.StartTs < params.EndTs && params.EndTs < params.WithdrawTs) {
		return nil, ErrSeqTimes
	}
	if params.NumSaleTokens == nil || params.NumSaleTokens.Sign() <= 0 {
		return nil, fmt.Errorf("%w: sale token amount must be positive", ErrInvalidParam)
	}
	if params.MaxPaymentTokens == nil || params.MaxPaymentTokens.Sign() <= 0 {
		return nil, fmt.Errorf("%w: payment cap must be positive", ErrInvalidParam)
	}
	if err := e.requireAdmin(params.Caller); err != nil {
		return nil, err
	}
	if e.now() >= params.StartTs {
		return nil, ErrSaleFuture
	}
	if _, ok, err := e.state.PoolGet(params.PoolID); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrPoolExists
	}

	derived := crypto.DeriveAuthority(params.SaleMint, params.AuthorityBump)

	// The redeemable mint must already be controlled by the derived custody
	// authority and carry zero supply: verified here, not established.
	redeemableAuthority, err := e.ledger.MintAuthority(params.RedeemableMint)
	if err != nil {
		return nil, err
	}
	if redeemableAuthority != derived {
		return nil, ErrInvalidBump
	}
	supply, err := e.ledger.SupplyOf(params.RedeemableMint)
	if err != nil {
		return nil, err
	}
	if supply.Sign() != 0 {
		return nil, fmt.Errorf("%w: redeemable supply must be zero at creation", ErrInvalidParam)
	}
	redeemableDecimals, err := e.ledger.MintDecimals(params.RedeemableMint)
	if err != nil {
		return nil, err
	}
	paymentDecimals, err := e.ledger.MintDecimals(params.PaymentMint)
	if err != nil {
		return nil, err
	}
	if redeemableDecimals != paymentDecimals {
		return nil, fmt.Errorf("%w: redeemable and payment mints must share decimals", ErrInvalidParam)
	}
	saleAuthority, err := e.ledger.MintAuthority(params.SaleMint)
	if err != nil {
		return nil, err
	}
	if saleAuthority != params.DistributionAuthority {
		return nil, fmt.Errorf("%w: distribution authority must control the sale mint", ErrInvalidParam)
	}
	if err := e.verifyCustodyAccount(params.PoolSaleAccount, params.SaleMint, derived); err != nil {
		return nil, err
	}
	if err := e.verifyCustodyAccount(params.PoolPaymentAccount, params.PaymentMint, derived); err != nil {
		return nil, err
	}
	creatorMint, err := e.ledger.AccountMint(params.CreatorSaleAccount)
	if err != nil {
		return nil, err
	}
	if creatorMint != params.SaleMint {
		return nil, fmt.Errorf("%w: creator account is not a sale token account", ErrInvalidParam)
	}

	// Fund the pool: sale tokens move from the creator into custody.
	if err := e.ledger.Transfer(params.CreatorSaleAccount, params.PoolSaleAccount, params.Caller, params.NumSaleTokens); err != nil {
		return nil, err
	}

	pool := &Pool{
		ID:                    params.PoolID,
		RedeemableMint:        params.RedeemableMint,
		SaleMint:              params.SaleMint,
		PaymentMint:           params.PaymentMint,
		PoolSaleAccount:       params.PoolSaleAccount,
		PoolPaymentAccount:    params.PoolPaymentAccount,
		DistributionAuthority: params.DistributionAuthority,
		PoolAuthority:         derived,
		AuthorityBump:         params.AuthorityBump,
		NumSaleTokens:         new(big.Int).Set(params.NumSaleTokens),
		MaxPaymentTokens:      new(big.Int).Set(params.MaxPaymentTokens),
		NumPaymentCollected:   big.NewInt(0),
		StartTs:               params.StartTs,
		EndTs:                 params.EndTs,
		WithdrawTs:            params.WithdrawTs,
	}
	if err := e.storePool(pool); err != nil {
		return nil, err
	}
	e.emit(NewPoolCreatedEvent(pool))
	return pool.Clone(), nil
}

func (e *Engine) verifyCustodyAccount(account [32]byte, mint [32]byte, authority [20]byte) error {
	owner, err := e.ledger.AccountOwner(account)
	if err != nil {
		return err
	}
	if owner != authority {
		return ErrInvalidBump
	}
	boundMint, err := e.ledger.AccountMint(account)
	if err != nil {
		return err
	}
	if boundMint != mint {
		return fmt.Errorf("%w: custody account bound to the wrong mint", ErrInvalidParam)
	}
	return nil
}

// SetSaleWindow replaces the three sale timestamps. Restricted to the
// administrator; the full ordering invariant is re-validated after the edit.
// Re-applying the same valid window is a no-op.
func (e *Engine) SetSaleWindow(poolID [32]byte, caller [20]byte, startTs, endTs, withdrawTs int64) (*Pool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !(startTs < endTs && endTs < withdrawTs) {
		return nil, ErrSeqTimes
	}
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	pool.StartTs = startTs
	pool.EndTs = endTs
	pool.WithdrawTs = withdrawTs
	if err := e.storePool(pool); err != nil {
		return nil, err
	}
	e.emit(NewSaleWindowUpdatedEvent(pool))
	return pool.Clone(), nil
}

// SetPaymentCap replaces the deposit cap. Restricted to the administrator.
// The cap may move in either direction but never below the amount already
// collected, which would break the standing collected ≤ cap invariant.
func (e *Engine) SetPaymentCap(poolID [32]byte, caller [20]byte, maxPaymentTokens *big.Int) (*Pool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if maxPaymentTokens == nil || maxPaymentTokens.Sign() <= 0 {
		return nil, fmt.Errorf("%w: payment cap must be positive", ErrInvalidParam)
	}
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	if maxPaymentTokens.Cmp(pool.NumPaymentCollected) < 0 {
		return nil, fmt.Errorf("%w: payment cap below collected total", ErrInvalidParam)
	}
	pool.MaxPaymentTokens = new(big.Int).Set(maxPaymentTokens)
	if err := e.storePool(pool); err != nil {
		return nil, err
	}
	e.emit(NewPaymentCapUpdatedEvent(pool))
	return pool.Clone(), nil
}

// Deposit exchanges payment tokens for redeemable claim tokens 1:1 during the
// open window. A request larger than the remaining capacity is silently
// clamped rather than rejected; the depositor simply receives fewer
// redeemable tokens than requested.
func (e *Engine) Deposit(poolID [32]byte, caller [20]byte, userPayment, userRedeemable [32]byte, amount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: deposit amount must be positive", ErrInvalidParam)
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	if err := gateOpen(pool, e.now()); err != nil {
		return nil, err
	}
	authority, err := e.custodyAuthority(pool)
	if err != nil {
		return nil, err
	}
	if err := e.verifyUserAccount(userRedeemable, pool.RedeemableMint, caller); err != nil {
		return nil, err
	}
	if err := e.verifyUserAccount(userPayment, pool.PaymentMint, caller); err != nil {
		return nil, err
	}

	// Clamp to the remaining capacity; gateOpen guarantees it is positive.
	remaining := new(big.Int).Sub(pool.MaxPaymentTokens, pool.NumPaymentCollected)
	effective := new(big.Int).Set(amount)
	if effective.Cmp(remaining) > 0 {
		effective = remaining
	}

	balance, err := e.ledger.BalanceOf(userPayment)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(effective) < 0 {
		return nil, ErrLowPayment
	}

	collected := new(big.Int).Add(pool.NumPaymentCollected, effective)
	if collected.Cmp(pool.MaxPaymentTokens) > 0 {
		return nil, fmt.Errorf("%w: deposit would push collected total past the cap", ErrInvariant)
	}

	if err := e.ledger.Transfer(userPayment, pool.PoolPaymentAccount, caller, effective); err != nil {
		return nil, err
	}
	if err := e.ledger.MintTo(pool.RedeemableMint, userRedeemable, authority, effective); err != nil {
		return nil, err
	}
	pool.NumPaymentCollected = collected
	if err := e.storePool(pool); err != nil {
		return nil, err
	}
	e.emit(NewDepositedEvent(pool, caller, amount, effective))
	return effective, nil
}

// Refund burns redeemable tokens and returns the same amount of payment
// asset during the open window. No rounding applies: the exchange is 1:1.
func (e *Engine) Refund(poolID [32]byte, caller [20]byte, userRedeemable, userPayment [32]byte, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: refund amount must be positive", ErrInvalidParam)
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if err := gateOpen(pool, e.now()); err != nil {
		return err
	}
	authority, err := e.custodyAuthority(pool)
	if err != nil {
		return err
	}
	if err := e.verifyUserAccount(userRedeemable, pool.RedeemableMint, caller); err != nil {
		return err
	}
	if err := e.verifyUserAccount(userPayment, pool.PaymentMint, caller); err != nil {
		return err
	}
	balance, err := e.ledger.BalanceOf(userRedeemable)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrLowRedeemable
	}

	// Computed before any ledger mutation: a negative result means minted
	// supply and the collected total have drifted apart.
	collected := new(big.Int).Sub(pool.NumPaymentCollected, amount)
	if collected.Sign() < 0 {
		return fmt.Errorf("%w: refund would drive collected total negative", ErrInvariant)
	}

	if err := e.ledger.Burn(pool.RedeemableMint, userRedeemable, caller, amount); err != nil {
		return err
	}
	if err := e.ledger.Transfer(pool.PoolPaymentAccount, userPayment, authority, amount); err != nil {
		return err
	}
	pool.NumPaymentCollected = collected
	if err := e.storePool(pool); err != nil {
		return err
	}
	e.emit(NewRefundedEvent(pool, caller, amount))
	return nil
}

// Claim burns redeemable tokens after the sale is over and pays out the
// holder's pro-rata share of the sale token pool. Rounding always favours the
// pool: the payout is floored, and capped at the remaining pool balance so
// accumulated dust can never overdraw custody.
func (e *Engine) Claim(poolID [32]byte, caller [20]byte, userRedeemable, userSale [32]byte, amount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: claim amount must be positive", ErrInvalidParam)
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	if err := gateOver(pool, e.now()); err != nil {
		return nil, err
	}
	authority, err := e.custodyAuthority(pool)
	if err != nil {
		return nil, err
	}
	if err := e.verifyUserAccount(userRedeemable, pool.RedeemableMint, caller); err != nil {
		return nil, err
	}
	if err := e.verifyUserAccount(userSale, pool.SaleMint, caller); err != nil {
		return nil, err
	}
	balance, err := e.ledger.BalanceOf(userRedeemable)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, ErrLowRedeemable
	}

	poolSaleBalance, err := e.ledger.BalanceOf(pool.PoolSaleAccount)
	if err != nil {
		return nil, err
	}
	supply, err := e.ledger.SupplyOf(pool.RedeemableMint)
	if err != nil {
		return nil, err
	}
	if supply.Sign() <= 0 {
		return nil, fmt.Errorf("%w: redeemable supply is zero with outstanding balances", ErrInvariant)
	}

	// payout = min(poolSaleBalance, floor(amount * poolSaleBalance / supply)).
	// Multiply before dividing to keep proportional precision; the min guards
	// the last claimant against rounding dust exceeding the remaining pool.
	payout := new(big.Int).Mul(amount, poolSaleBalance)
	payout.Div(payout, supply)
	if payout.Cmp(poolSaleBalance) > 0 {
		payout = new(big.Int).Set(poolSaleBalance)
	}

	if err := e.ledger.Burn(pool.RedeemableMint, userRedeemable, caller, amount); err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(pool.PoolSaleAccount, userSale, authority, payout); err != nil {
		return nil, err
	}
	e.emit(NewClaimedEvent(pool, caller, amount, payout))
	return payout, nil
}

// WithdrawProceeds transfers collected payment tokens from pool custody to a
// caller-designated account once the sale is over. Restricted to the
// administrator; the amount is bounded only by the custody balance, so staged
// withdrawals are possible.
func (e *Engine) WithdrawProceeds(poolID [32]byte, caller [20]byte, toAccount [32]byte, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: withdrawal amount must be positive", ErrInvalidParam)
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if err := gateOver(pool, e.now()); err != nil {
		return err
	}
	authority, err := e.custodyAuthority(pool)
	if err != nil {
		return err
	}
	if err := e.ledger.Transfer(pool.PoolPaymentAccount, toAccount, authority, amount); err != nil {
		return err
	}
	e.emit(NewProceedsWithdrawnEvent(pool, toAccount, amount))
	return nil
}

func (e *Engine) verifyUserAccount(account [32]byte, mint [32]byte, owner [20]byte) error {
	boundMint, err := e.ledger.AccountMint(account)
	if err != nil {
		return err
	}
	if boundMint != mint {
		return fmt.Errorf("%w: account bound to the wrong mint", ErrInvalidParam)
	}
	accountOwner, err := e.ledger.AccountOwner(account)
	if err != nil {
		return err
	}
	if accountOwner != owner {
		return fmt.Errorf("%w: account not owned by caller", ErrInvalidParam)
	}
	return nil
}

// GetPool returns a copy of the stored pool record.
func (e *Engine) GetPool(id [32]byte) (*Pool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadPool(id)
}

// PhaseOf reports the pool's current phase using the engine's clock.
func (e *Engine) PhaseOf(id [32]byte) (Phase, error) {
	if err := e.ready(); err != nil {
		return PhasePending, err
	}
	pool, err := e.loadPool(id)
	if err != nil {
		return PhasePending, err
	}
	return pool.PhaseAt(e.now()), nil
}
