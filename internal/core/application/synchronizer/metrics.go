package synchronizer

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "zsync"

type metrics struct {
	scannedHeight prometheus.Gauge
	chainTip      prometheus.Gauge
	blocksScanned prometheus.Counter
	notesFound    prometheus.Counter
	reorgs        prometheus.Counter
	syncErrors    prometheus.Counter
}

// newMetrics returns the collectors of the given account. Vectors are shared
// by all the synchronizers registered to the same registerer.
func newMetrics(reg prometheus.Registerer, account string) *metrics {
	scannedHeight := registerGaugeVec(reg, prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scanned_height",
		Help:      "Height of the last scanned block.",
	})
	chainTip := registerGaugeVec(reg, prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "chain_tip_height",
		Help:      "Height of the chain tip as seen by the remote endpoint.",
	})
	blocksScanned := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocks_scanned_total",
		Help:      "Number of scanned blocks.",
	})
	notesFound := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notes_found_total",
		Help:      "Number of notes received.",
	})
	reorgs := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reorgs_total",
		Help:      "Number of chain reorganizations handled.",
	})
	syncErrors := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_errors_total",
		Help:      "Number of sync cycles ended with an error.",
	})

	return &metrics{
		scannedHeight: scannedHeight.WithLabelValues(account),
		chainTip:      chainTip.WithLabelValues(account),
		blocksScanned: blocksScanned.WithLabelValues(account),
		notesFound:    notesFound.WithLabelValues(account),
		reorgs:        reorgs.WithLabelValues(account),
		syncErrors:    syncErrors.WithLabelValues(account),
	}
}

func registerGaugeVec(
	reg prometheus.Registerer, opts prometheus.GaugeOpts,
) *prometheus.GaugeVec {
	vec := prometheus.NewGaugeVec(opts, []string{"account"})
	if reg == nil {
		return vec
	}
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing
			}
		}
	}
	return vec
}

func registerCounterVec(
	reg prometheus.Registerer, opts prometheus.CounterOpts,
) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(opts, []string{"account"})
	if reg == nil {
		return vec
	}
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return vec
}
