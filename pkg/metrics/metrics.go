package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const (
	LabelOperation = "operation"
	LabelResult    = "result"

	OperationEncrypt = "encrypt"
	OperationDecrypt = "decrypt"

	ResultOk       = "ok"
	ResultRejected = "rejected"
)

var (
	PrimeCandidatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rsarator_prime_candidates_total",
			Help: "Number of random candidates tested while generating primes",
		},
	)
	DuplicatePrimesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rsarator_duplicate_primes_total",
			Help: "Number of times the second prime was re-sampled because it equalled the first",
		},
	)
	ExponentFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rsarator_exponent_fallback_total",
			Help: "Number of key pairs where the preferred public exponent was unusable",
		},
	)
	KeyPairsGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rsarator_keypairs_generated_total",
			Help: "Number of key pairs generated",
		},
	)
	KeyPairsImportedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rsarator_keypairs_imported_total",
			Help: "Number of key pairs imported from external key data",
		},
	)
	KeyGenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rsarator_keypair_generation_duration_seconds",
			Help:    "Time spent generating a key pair",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsarator_operations_total",
			Help: "Number of encrypt and decrypt operations",
		},
		[]string{LabelOperation, LabelResult},
	)
	StoredKeyPairsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rsarator_stored_keypairs_total",
			Help: "Number of key pairs in the keystore",
		},
	)
	RecipientsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rsarator_recipients_total",
			Help: "Number of recipient public keys in the keystore",
		},
	)
)

var collectors = []prometheus.Collector{
	PrimeCandidatesTotal,
	DuplicatePrimesTotal,
	ExponentFallbackTotal,
	KeyPairsGeneratedTotal,
	KeyPairsImportedTotal,
	KeyGenerationDuration,
	OperationsTotal,
	StoredKeyPairsTotal,
	RecipientsTotal,
}

// Register adds all collectors to registry. Collectors that are already registered are skipped.
func Register(registry prometheus.Registerer) error {
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			var alreadyRegistered prometheus.AlreadyRegisteredError
			if errors.As(err, &alreadyRegistered) {
				continue
			}
			return err
		}
	}
	return nil
}

func ObserveOperation(operation string, err error) {
	result := ResultOk
	if err != nil {
		result = ResultRejected
	}
	OperationsTotal.WithLabelValues(operation, result).Inc()
}

type Counter interface {
	Count(ctx context.Context) (keyPairs, recipients int, err error)
}

type Metrics interface {
	Refresh(ctx context.Context)
}

type metrics struct {
	counter  Counter
	interval time.Duration
}

func New(counter Counter, interval time.Duration) Metrics {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return metrics{
		counter:  counter,
		interval: interval,
	}
}

// Refresh updates the keystore gauges every interval until ctx is done.
func (m metrics) Refresh(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()

	for {
		m.refresh(ctx)

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (m metrics) refresh(ctx context.Context) {
	log.Debug("Refreshing metrics from keystore")
	keyPairs, recipients, err := m.counter.Count(ctx)
	if err != nil {
		log.Errorf("failed to count keystore entries: %v", err)
		return
	}
	StoredKeyPairsTotal.Set(float64(keyPairs))
	RecipientsTotal.Set(float64(recipients))
}
