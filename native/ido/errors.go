package ido

import "errors"

// Business-rule rejections. Every settlement operation fails with exactly one
// of these before touching the ledger; none of them leaves partial state.
var (
	// ErrSeqTimes signals a create or window edit whose timestamps are not
	// strictly increasing (start < end < withdraw).
	ErrSeqTimes = errors.New("ido: sale timestamps are non-sequential")
	// ErrInvalidParam covers zero amounts and callers that are not the
	// authorized identity for a guarded operation.
	ErrInvalidParam = errors.New("ido: invalid parameter")
	// ErrSaleFuture rejects pool creation with a start time not strictly in
	// the future.
	ErrSaleFuture = errors.New("ido: sale must start in the future")
	// ErrSaleNotStarted rejects deposits and refunds before the sale window
	// opens.
	ErrSaleNotStarted = errors.New("ido: sale has not started")
	// ErrDepositsEnded rejects deposits and refunds at or after the end of
	// the deposit window.
	ErrDepositsEnded = errors.New("ido: deposit window has ended")
	// ErrSaleNotOver rejects claims and proceeds withdrawal while the sale is
	// still running and the cap has not been reached.
	ErrSaleNotOver = errors.New("ido: sale has not finished yet")
	// ErrLowPayment signals the depositor's payment token balance cannot
	// cover the effective deposit amount.
	ErrLowPayment = errors.New("ido: insufficient payment token balance")
	// ErrLowRedeemable signals the caller's redeemable balance cannot cover
	// the requested refund or claim.
	ErrLowRedeemable = errors.New("ido: insufficient redeemable token balance")
	// ErrCapReached excludes the open phase once the full payment cap has
	// been collected.
	ErrCapReached = errors.New("ido: payment cap already collected")
	// ErrInvalidBump signals the supplied derivation bump does not produce
	// the custody authority recorded on the ledger.
	ErrInvalidBump = errors.New("ido: derived authority bump is invalid")

	ErrPoolNotFound = errors.New("ido: pool not found")
	ErrPoolExists   = errors.New("ido: pool already exists")
)

// ErrInvariant marks a broken conservation invariant (e.g. the collected
// total underflowing on refund). It is a defect in the pool state, never a
// recoverable user error, and callers must treat it as fatal.
var ErrInvariant = errors.New("ido: conservation invariant violated")
