package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OrdersCreatedTotal counts orders sent to the kitchen by service type.
	OrdersCreatedTotal *prometheus.CounterVec
	// CheckoutFinalizeTotal counts checkout finalization outcomes.
	CheckoutFinalizeTotal *prometheus.CounterVec
	// CheckoutSplitPaymentsTotal counts paid splits by kind and method.
	CheckoutSplitPaymentsTotal *prometheus.CounterVec
	// DiscountAppliedTotal counts discounts committed during checkout.
	DiscountAppliedTotal *prometheus.CounterVec
	// CheckoutLockWait records time spent acquiring the per-order checkout lock.
	CheckoutLockWait prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		OrdersCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Count of orders sent to the kitchen.",
		}, []string{"type"})
		CheckoutFinalizeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_finalize_total",
			Help:      "Count of checkout finalization outcomes.",
		}, []string{"strategy", "result"})
		CheckoutSplitPaymentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_split_payments_total",
			Help:      "Count of split payments recorded.",
		}, []string{"kind", "method"})
		DiscountAppliedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_applied_total",
			Help:      "Count of discounts committed at checkout.",
		}, []string{"source"})
		CheckoutLockWait = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_lock_wait_ms",
			Help:      "Time spent waiting for the checkout lock in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		})

		mustRegisterCollector(reg, OrdersCreatedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrdersCreatedTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutFinalizeTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutFinalizeTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutSplitPaymentsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutSplitPaymentsTotal = v
			}
		})
		mustRegisterCollector(reg, DiscountAppliedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DiscountAppliedTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutLockWait, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				CheckoutLockWait = v
			}
		})
	})
}

// ObserveOrderCreated increments the orders counter when metrics are registered.
func ObserveOrderCreated(orderType string) {
	if OrdersCreatedTotal != nil {
		OrdersCreatedTotal.WithLabelValues(orderType).Inc()
	}
}

// ObserveCheckoutFinalize records a finalization outcome.
func ObserveCheckoutFinalize(strategy, result string) {
	if CheckoutFinalizeTotal != nil {
		CheckoutFinalizeTotal.WithLabelValues(strategy, result).Inc()
	}
}

// ObserveSplitPayment records a paid split.
func ObserveSplitPayment(kind, method string) {
	if CheckoutSplitPaymentsTotal != nil {
		CheckoutSplitPaymentsTotal.WithLabelValues(kind, method).Inc()
	}
}

// ObserveDiscountApplied records a committed discount by source (preset, manual, courtesy).
func ObserveDiscountApplied(source string) {
	if DiscountAppliedTotal != nil {
		DiscountAppliedTotal.WithLabelValues(source).Inc()
	}
}

// ObserveLockWait records how long a checkout waited for its lock.
func ObserveLockWait(ms float64) {
	if CheckoutLockWait != nil {
		CheckoutLockWait.Observe(ms)
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register collector: %w", err))
	}
}
