package telemetry

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the prometheus collectors of the daemon. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	supply            prometheus.Gauge
	lockedReserve     prometheus.Gauge
	mints             *prometheus.CounterVec
	redemptions       *prometheus.CounterVec
	feedFallbacks     prometheus.Counter
	attestationTime   prometheus.Gauge
	attestationStatus prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		supply: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pegd_supply_tokens",
			Help: "Outstanding token supply",
		}),
		lockedReserve: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pegd_locked_reserve_sats",
			Help: "Locked reserve reported by the last feed reading",
		}),
		mints: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pegd_mints_total",
				Help: "Mint requests by result",
			},
			[]string{"result"},
		),
		redemptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pegd_redemptions_total",
				Help: "Redemption state transitions by target state",
			},
			[]string{"state"},
		),
		feedFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pegd_feed_fallbacks_total",
			Help: "Reserve readings served by a fallback feed",
		}),
		attestationTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pegd_attestation_produced_at_seconds",
			Help: "Unix time of the latest attestation",
		}),
		attestationStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pegd_attestation_fully_reserved",
			Help: "1 if the latest attestation reports full reserves, 0 otherwise",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.supply,
			m.lockedReserve,
			m.mints,
			m.redemptions,
			m.feedFallbacks,
			m.attestationTime,
			m.attestationStatus,
		)
	}
	return m
}

func (m *Metrics) SetSupply(supply *big.Int) {
	if m == nil {
		return
	}
	m.supply.Set(toFloat(supply))
}

func (m *Metrics) SetLockedReserve(locked *big.Int) {
	if m == nil {
		return
	}
	m.lockedReserve.Set(toFloat(locked))
}

func (m *Metrics) IncMint(result string) {
	if m == nil {
		return
	}
	m.mints.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRedemption(state string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(state).Inc()
}

func (m *Metrics) IncFeedFallback() {
	if m == nil {
		return
	}
	m.feedFallbacks.Inc()
}

func (m *Metrics) SetAttestation(producedAt int64, fullyReserved bool) {
	if m == nil {
		return
	}
	m.attestationTime.Set(float64(producedAt))
	if fullyReserved {
		m.attestationStatus.Set(1)
	} else {
		m.attestationStatus.Set(0)
	}
}

// toFloat is lossy and only meant for gauges.
func toFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
