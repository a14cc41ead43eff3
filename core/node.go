package core

import (
	"encoding/hex"
	"math/big"
	"sync"

	"idopool/core/events"
	"idopool/core/state"
	"idopool/native/ido"
	"idopool/native/token"
	"idopool/observability/metrics"
	"idopool/storage"
)

// Node wires the settlement engine, the token ledger and persistent state
// into a single service instance. There is no surrounding transaction layer
// here, so the node supplies the serialization the engine assumes: a per-pool
// mutex taken around every settlement operation, giving each pool a single
// global ordering of read-modify-write cycles.
type Node struct {
	db      storage.Database
	manager *state.Manager
	ledger  *token.Ledger
	pools   *ido.Store
	engine  *ido.Engine

	poolLocks sync.Map // [32]byte -> *sync.Mutex
}

// NewNode constructs a node over the supplied database. The admin identity
// gates pool creation, parameter edits and proceeds withdrawal.
func NewNode(db storage.Database, admin [20]byte) *Node {
	manager := state.NewManager(db)
	node := &Node{
		db:      db,
		manager: manager,
		ledger:  token.NewLedger(manager),
		pools:   ido.NewStore(manager),
	}
	engine := ido.NewEngine()
	engine.SetState(node.pools)
	engine.SetLedger(node.ledger)
	engine.SetAdmin(admin)
	node.engine = engine
	return node
}

// SetEmitter forwards an event emitter to the settlement engine.
func (n *Node) SetEmitter(emitter events.Emitter) { n.engine.SetEmitter(emitter) }

// SetNowFunc overrides the engine clock, primarily for deterministic tests.
func (n *Node) SetNowFunc(now func() int64) { n.engine.SetNowFunc(now) }

// Ledger exposes the token ledger for account and mint administration.
func (n *Node) Ledger() *token.Ledger { return n.ledger }

func (n *Node) lockPool(id [32]byte) func() {
	entry, _ := n.poolLocks.LoadOrStore(id, &sync.Mutex{})
	mu := entry.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// InitializePool creates and funds a new sale pool.
func (n *Node) InitializePool(params ido.InitializePoolParams) (*ido.Pool, error) {
	defer n.lockPool(params.PoolID)()
	return n.engine.InitializePool(params)
}

// SetSaleWindow edits the three sale timestamps of an existing pool.
func (n *Node) SetSaleWindow(poolID [32]byte, caller [20]byte, startTs, endTs, withdrawTs int64) (*ido.Pool, error) {
	defer n.lockPool(poolID)()
	return n.engine.SetSaleWindow(poolID, caller, startTs, endTs, withdrawTs)
}

// SetPaymentCap edits the deposit cap of an existing pool.
func (n *Node) SetPaymentCap(poolID [32]byte, caller [20]byte, cap *big.Int) (*ido.Pool, error) {
	defer n.lockPool(poolID)()
	return n.engine.SetPaymentCap(poolID, caller, cap)
}

// Deposit exchanges payment tokens for redeemable tokens and reports the
// effective (possibly clamped) amount.
func (n *Node) Deposit(poolID [32]byte, caller [20]byte, userPayment, userRedeemable [32]byte, amount *big.Int) (*big.Int, error) {
	defer n.lockPool(poolID)()
	effective, err := n.engine.Deposit(poolID, caller, userPayment, userRedeemable, amount)
	if err != nil {
		return nil, err
	}
	if pool, perr := n.engine.GetPool(poolID); perr == nil {
		metrics.Ido().RecordDeposit(poolLabel(poolID), pool.NumPaymentCollected)
	}
	return effective, nil
}

// Refund exchanges redeemable tokens back for payment tokens 1:1.
func (n *Node) Refund(poolID [32]byte, caller [20]byte, userRedeemable, userPayment [32]byte, amount *big.Int) error {
	defer n.lockPool(poolID)()
	if err := n.engine.Refund(poolID, caller, userRedeemable, userPayment, amount); err != nil {
		return err
	}
	if pool, perr := n.engine.GetPool(poolID); perr == nil {
		metrics.Ido().RecordRefund(poolLabel(poolID), pool.NumPaymentCollected)
	}
	return nil
}

// Claim burns redeemable tokens for a pro-rata share of the sale pool and
// reports the payout.
func (n *Node) Claim(poolID [32]byte, caller [20]byte, userRedeemable, userSale [32]byte, amount *big.Int) (*big.Int, error) {
	defer n.lockPool(poolID)()
	payout, err := n.engine.Claim(poolID, caller, userRedeemable, userSale, amount)
	if err != nil {
		return nil, err
	}
	metrics.Ido().RecordClaim(poolLabel(poolID))
	return payout, nil
}

// WithdrawProceeds moves collected payment tokens to the administrator's
// designated account.
func (n *Node) WithdrawProceeds(poolID [32]byte, caller [20]byte, toAccount [32]byte, amount *big.Int) error {
	defer n.lockPool(poolID)()
	if err := n.engine.WithdrawProceeds(poolID, caller, toAccount, amount); err != nil {
		return err
	}
	metrics.Ido().RecordWithdrawal(poolLabel(poolID))
	return nil
}

// GetPool returns a copy of the stored pool record.
func (n *Node) GetPool(poolID [32]byte) (*ido.Pool, error) {
	defer n.lockPool(poolID)()
	return n.engine.GetPool(poolID)
}

// PhaseOf reports the pool's current phase.
func (n *Node) PhaseOf(poolID [32]byte) (ido.Phase, error) {
	defer n.lockPool(poolID)()
	return n.engine.PhaseOf(poolID)
}

// PoolIDs lists every pool identifier in creation order.
func (n *Node) PoolIDs() ([][32]byte, error) {
	return n.pools.PoolIDs()
}

func poolLabel(id [32]byte) string {
	return hex.EncodeToString(id[:])
}
