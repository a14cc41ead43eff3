package metrics

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// IdoMetrics aggregates the Prometheus collectors for settlement activity.
type IdoMetrics struct {
	deposits         *prometheus.CounterVec
	refunds          *prometheus.CounterVec
	claims           *prometheus.CounterVec
	withdrawals      *prometheus.CounterVec
	paymentCollected *prometheus.GaugeVec
}

var (
	idoOnce     sync.Once
	idoRegistry *IdoMetrics
)

// Ido returns the process-wide settlement metrics, registering the collectors
// on first use.
func Ido() *IdoMetrics {
	idoOnce.Do(func() {
		idoRegistry = &IdoMetrics{
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ido_deposits_total",
				Help: "Count of accepted deposits by pool.",
			}, []string{"pool"}),
			refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ido_refunds_total",
				Help: "Count of early-exit refunds by pool.",
			}, []string{"pool"}),
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ido_claims_total",
				Help: "Count of post-sale claims by pool.",
			}, []string{"pool"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ido_withdrawals_total",
				Help: "Count of proceeds withdrawals by pool.",
			}, []string{"pool"}),
			paymentCollected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "ido_payment_collected",
				Help: "Net payment tokens held per pool.",
			}, []string{"pool"}),
		}
		prometheus.MustRegister(
			idoRegistry.deposits,
			idoRegistry.refunds,
			idoRegistry.claims,
			idoRegistry.withdrawals,
			idoRegistry.paymentCollected,
		)
	})
	return idoRegistry
}

// RecordDeposit increments the deposit counter and refreshes the collected
// gauge for the pool.
func (m *IdoMetrics) RecordDeposit(pool string, collected *big.Int) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(pool).Inc()
	m.setCollected(pool, collected)
}

// RecordRefund increments the refund counter and refreshes the collected
// gauge for the pool.
func (m *IdoMetrics) RecordRefund(pool string, collected *big.Int) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(pool).Inc()
	m.setCollected(pool, collected)
}

// RecordClaim increments the claim counter for the pool.
func (m *IdoMetrics) RecordClaim(pool string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(pool).Inc()
}

// RecordWithdrawal increments the withdrawal counter for the pool.
func (m *IdoMetrics) RecordWithdrawal(pool string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(pool).Inc()
}

func (m *IdoMetrics) setCollected(pool string, collected *big.Int) {
	if collected == nil {
		return
	}
	value, err := amountToFloat(collected)
	if err != nil {
		return
	}
	m.paymentCollected.WithLabelValues(pool).Set(value)
}

func amountToFloat(v *big.Int) (float64, error) {
	f, _ := new(big.Float).SetInt(v).Float64()
	if f < 0 {
		return 0, fmt.Errorf("metrics: negative amount")
	}
	return f, nil
}
