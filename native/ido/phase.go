package ido

// Phase is the lifecycle position of a sale pool, derived purely from the
// pool record and a timestamp. Deriving it never mutates state.
type Phase uint8

const (
	// PhasePending: the sale window has not opened yet.
	PhasePending Phase = iota
	// PhaseOpen: deposits and refunds are permitted.
	PhaseOpen
	// PhaseCapReached: the payment cap is fully collected. Claims are
	// permitted regardless of the remaining window.
	PhaseCapReached
	// PhaseCooldown: the deposit window has closed but distribution has not
	// opened; neither deposits nor claims are permitted.
	PhaseCooldown
	// PhaseEnded: claims and proceeds withdrawal are permitted.
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseOpen:
		return "open"
	case PhaseCapReached:
		return "cap_reached"
	case PhaseCooldown:
		return "cooldown"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// PhaseAt derives the pool's phase at the supplied unix timestamp. Reaching
// the payment cap overrides the time window: the sale is over for claim
// purposes even before the distribution timestamp.
func (p *Pool) PhaseAt(now int64) Phase {
	if p.capReached() {
		return PhaseCapReached
	}
	if now >= p.WithdrawTs {
		return PhaseEnded
	}
	if now < p.StartTs {
		return PhasePending
	}
	if now < p.EndTs {
		return PhaseOpen
	}
	return PhaseCooldown
}

func (p *Pool) capReached() bool {
	return p.NumPaymentCollected.Cmp(p.MaxPaymentTokens) >= 0
}

// gateOpen admits deposits and refunds. Checks run in a fixed order so the
// caller always sees the earliest failing precondition: window start, window
// end, then cap saturation.
func gateOpen(p *Pool, now int64) error {
	if now < p.StartTs {
		return ErrSaleNotStarted
	}
	if now >= p.EndTs {
		return ErrDepositsEnded
	}
	if p.capReached() {
		return ErrCapReached
	}
	return nil
}

// gateOver admits claims and proceeds withdrawal: either the distribution
// timestamp has passed or the cap has been collected early.
func gateOver(p *Pool, now int64) error {
	if p.capReached() {
		return nil
	}
	if now < p.WithdrawTs {
		return ErrSaleNotOver
	}
	return nil
}
