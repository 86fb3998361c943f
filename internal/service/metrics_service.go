package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

// MetricsSnapshot is a lightweight view of the counters for health endpoints.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	PaymentsPosted           uint64    `json:"payments_posted"`
	LedgerConflicts          uint64    `json:"ledger_conflicts"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation for HTTP, cache and ledger activity.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	paymentsPosted   *prometheus.CounterVec
	paymentAmount    *prometheus.CounterVec
	ledgerConflicts  *prometheus.CounterVec
	reservationMoves *prometheus.CounterVec
	promotions       *prometheus.CounterVec
	receiptsRendered *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	paymentCount         uint64
	conflictCount        uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	paymentsPosted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fee_payments_posted_total",
		Help: "Income records written, by purpose",
	}, []string{"purpose"})

	paymentAmount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fee_payment_amount_total",
		Help: "Sum of posted payment amounts, by purpose",
	}, []string{"purpose"})

	ledgerConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fee_ledger_conflicts_total",
		Help: "Ledger writes rejected by a concurrent update",
	}, []string{"operation"})

	reservationMoves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_transitions_total",
		Help: "Reservation status transitions",
	}, []string{"to"})

	promotions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promotions_total",
		Help: "Promotion batch outcomes",
	}, []string{"outcome"})

	receiptsRendered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "receipts_rendered_total",
		Help: "Receipt render attempts, by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		dbQueryDuration, paymentsPosted, paymentAmount, ledgerConflicts, reservationMoves, promotions, receiptsRendered, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		dbQueryDuration:  dbQueryDuration,
		paymentsPosted:   paymentsPosted,
		paymentAmount:    paymentAmount,
		ledgerConflicts:  ledgerConflicts,
		reservationMoves: reservationMoves,
		promotions:       promotions,
		receiptsRendered: receiptsRendered,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records storage operation timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordPayment counts one income record and its amount.
func (m *MetricsService) RecordPayment(purpose models.PaymentPurpose, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.paymentsPosted.WithLabelValues(string(purpose)).Inc()
	m.paymentAmount.WithLabelValues(string(purpose)).Add(amount.InexactFloat64())
	atomic.AddUint64(&m.paymentCount, 1)
}

// RecordConflict counts a write lost to a concurrent update.
func (m *MetricsService) RecordConflict(operation string) {
	if m == nil {
		return
	}
	m.ledgerConflicts.WithLabelValues(operation).Inc()
	atomic.AddUint64(&m.conflictCount, 1)
}

// RecordReservationTransition counts a reservation reaching status to.
func (m *MetricsService) RecordReservationTransition(to models.ReservationStatus) {
	if m == nil {
		return
	}
	m.reservationMoves.WithLabelValues(string(to)).Inc()
}

// RecordPromotion counts promotion outcomes ("promoted", "blocked", "failed").
func (m *MetricsService) RecordPromotion(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.promotions.WithLabelValues(outcome).Add(float64(n))
}

// RecordReceipt counts a receipt render attempt.
func (m *MetricsService) RecordReceipt(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.receiptsRendered.WithLabelValues(result).Inc()
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            cacheRatio,
		PaymentsPosted:           atomic.LoadUint64(&m.paymentCount),
		LedgerConflicts:          atomic.LoadUint64(&m.conflictCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
