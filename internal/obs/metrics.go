package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	// SaleOperationsTotal counts commit/edit/void/override outcomes.
	SaleOperationsTotal *prometheus.CounterVec
	// StockConflictsTotal counts authoritative oversell rejections.
	StockConflictsTotal prometheus.Counter
	// StockAlertJobsTotal counts low-stock alert jobs by outcome.
	StockAlertJobsTotal *prometheus.CounterVec
	// DLQLength reports the dead-letter list length per source queue.
	DLQLength *prometheus.GaugeVec
)

// MustRegisterMetrics initialises and registers the sale engine collectors.
// Safe to call more than once; later calls are no-ops.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SaleOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sale_operations_total",
			Help:      "Count of sale write operations by operation and result.",
		}, []string{"operation", "result"})
		StockConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_conflicts_total",
			Help:      "Commits or edits rejected by the conditional stock decrement.",
		})
		StockAlertJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_alert_jobs_total",
			Help:      "Low-stock alert jobs by outcome.",
		}, []string{"result"})
		DLQLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dlq_length",
			Help:      "Entries waiting in a dead-letter queue.",
		}, []string{"queue"})

		mustRegisterCollector(reg, SaleOperationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SaleOperationsTotal = v
			}
		})
		mustRegisterCollector(reg, StockConflictsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				StockConflictsTotal = v
			}
		})
		mustRegisterCollector(reg, StockAlertJobsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				StockAlertJobsTotal = v
			}
		})
		mustRegisterCollector(reg, DLQLength, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.GaugeVec); ok {
				DLQLength = v
			}
		})
	})
}

// IncSaleOperation is a no-op until MustRegisterMetrics has run.
func IncSaleOperation(operation, result string) {
	if SaleOperationsTotal != nil {
		SaleOperationsTotal.WithLabelValues(operation, result).Inc()
	}
}

func IncStockConflict() {
	if StockConflictsTotal != nil {
		StockConflictsTotal.Inc()
	}
}

func IncStockAlertJob(result string) {
	if StockAlertJobsTotal != nil {
		StockAlertJobsTotal.WithLabelValues(result).Inc()
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
		panic(fmt.Errorf("register metric: %w", err))
	}
}
