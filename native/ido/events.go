package ido

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"idopool/core/types"
)

const (
	EventTypePoolCreated       = "ido.pool_created"
	EventTypeSaleWindowUpdated = "ido.sale_window_updated"
	EventTypePaymentCapUpdated = "ido.payment_cap_updated"
	EventTypeDeposited         = "ido.deposited"
	EventTypeRefunded          = "ido.refunded"
	EventTypeClaimed           = "ido.claimed"
	EventTypeProceedsWithdrawn = "ido.proceeds_withdrawn"
)

// NewPoolCreatedEvent returns the canonical event payload for a newly created
// sale pool.
func NewPoolCreatedEvent(p *Pool) *types.Event {
	attrs := poolAttributes(p)
	return &types.Event{Type: EventTypePoolCreated, Attributes: attrs}
}

// NewSaleWindowUpdatedEvent returns the payload emitted when the sale
// timestamps are edited.
func NewSaleWindowUpdatedEvent(p *Pool) *types.Event {
	attrs := poolAttributes(p)
	return &types.Event{Type: EventTypeSaleWindowUpdated, Attributes: attrs}
}

// NewPaymentCapUpdatedEvent returns the payload emitted when the deposit cap
// is edited.
func NewPaymentCapUpdatedEvent(p *Pool) *types.Event {
	attrs := poolAttributes(p)
	return &types.Event{Type: EventTypePaymentCapUpdated, Attributes: attrs}
}

// NewDepositedEvent returns the payload for a deposit, recording both the
// requested and the clamped effective amount.
func NewDepositedEvent(p *Pool, depositor [20]byte, requested, effective *big.Int) *types.Event {
	attrs := poolAttributes(p)
	attrs["depositor"] = hex.EncodeToString(depositor[:])
	attrs["requested"] = amountString(requested)
	attrs["effective"] = amountString(effective)
	return &types.Event{Type: EventTypeDeposited, Attributes: attrs}
}

// NewRefundedEvent returns the payload for an early-exit refund.
func NewRefundedEvent(p *Pool, holder [20]byte, amount *big.Int) *types.Event {
	attrs := poolAttributes(p)
	attrs["holder"] = hex.EncodeToString(holder[:])
	attrs["amount"] = amountString(amount)
	return &types.Event{Type: EventTypeRefunded, Attributes: attrs}
}

// NewClaimedEvent returns the payload for a post-sale claim.
func NewClaimedEvent(p *Pool, holder [20]byte, burned, payout *big.Int) *types.Event {
	attrs := poolAttributes(p)
	attrs["holder"] = hex.EncodeToString(holder[:])
	attrs["burned"] = amountString(burned)
	attrs["payout"] = amountString(payout)
	return &types.Event{Type: EventTypeClaimed, Attributes: attrs}
}

// NewProceedsWithdrawnEvent returns the payload for a proceeds withdrawal.
func NewProceedsWithdrawnEvent(p *Pool, toAccount [32]byte, amount *big.Int) *types.Event {
	attrs := poolAttributes(p)
	attrs["destination"] = hex.EncodeToString(toAccount[:])
	attrs["amount"] = amountString(amount)
	return &types.Event{Type: EventTypeProceedsWithdrawn, Attributes: attrs}
}

func poolAttributes(p *Pool) map[string]string {
	attrs := make(map[string]string)
	if p == nil {
		return attrs
	}
	attrs["pool"] = hex.EncodeToString(p.ID[:])
	attrs["collected"] = amountString(p.NumPaymentCollected)
	attrs["cap"] = amountString(p.MaxPaymentTokens)
	attrs["startTs"] = strconv.FormatInt(p.StartTs, 10)
	attrs["endTs"] = strconv.FormatInt(p.EndTs, 10)
	attrs["withdrawTs"] = strconv.FormatInt(p.WithdrawTs, 10)
	return attrs
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
