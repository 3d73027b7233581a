package applicator

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	records     *prometheus.CounterVec
	runDuration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdbapply_records_total",
				Help: "Number of symbol records handled, by record kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pdbapply_run_duration_seconds",
			Help:    "Duration of a dispatch run over one symbol stream.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
	}

	if reg != nil {
		m.records = registerOrGet(reg, m.records)
		m.runDuration = registerOrGet(reg, m.runDuration)
	}
	return m
}

// registerOrGet registers c, or returns the collector already registered
// under the same descriptor so several dispatchers can share a registry.
func registerOrGet[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	err := reg.Register(c)
	if err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(T)
		}
		panic(err)
	}
	return c
}
