package node

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	resultAccepted = "accepted"
	resultRejected = "rejected"
	resultInvalid  = "invalid"
)

// Metrics holds the processor's prometheus collectors.
type Metrics struct {
	proofChecks  *prometheus.CounterVec
	proofSeconds prometheus.Histogram
	applied      prometheus.Counter
	reverted     prometheus.Counter
	conflicts    prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered, which tests use to read values directly.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		proofChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sccert",
			Name:      "proof_checks_total",
			Help:      "Certificate proof checks by result",
		}, []string{"result"}),
		proofSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sccert",
			Name:      "proof_verify_seconds",
			Help:      "Duration of certificate proof checks in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		applied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sccert",
			Name:      "certificates_applied_total",
			Help:      "Certificates committed to the ledger",
		}),
		reverted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sccert",
			Name:      "certificates_reverted_total",
			Help:      "Certificates rolled back by block disconnection",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sccert",
			Name:      "ledger_conflicts_total",
			Help:      "Certificates refused because unspent coins already existed at their hash",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.proofChecks, m.proofSeconds, m.applied, m.reverted, m.conflicts} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeCheck(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.proofChecks.WithLabelValues(result).Inc()
	m.proofSeconds.Observe(d.Seconds())
}

func (m *Metrics) addApplied(n int) {
	if m != nil {
		m.applied.Add(float64(n))
	}
}

func (m *Metrics) addReverted(n int) {
	if m != nil {
		m.reverted.Add(float64(n))
	}
}

func (m *Metrics) incConflict() {
	if m != nil {
		m.conflicts.Inc()
	}
}

// ServeMetrics exposes g on addr at /metrics until ctx is done.
func ServeMetrics(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
