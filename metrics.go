package riskgate

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricLoginSuccess counts directly issued credentials.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts failed password checks.
	MetricLoginFailure
	// MetricOriginBanned counts attempts rejected by an origin ban.
	MetricOriginBanned
	// MetricIdentityLocked counts attempts rejected by an identity lock.
	MetricIdentityLocked
	// MetricRuleBlocked counts attempts rejected by a BLOCK policy rule.
	MetricRuleBlocked
	// MetricCaptchaRequired counts attempts rejected pending a CAPTCHA proof.
	MetricCaptchaRequired
	// MetricCaptchaEscalated counts attempts continued under the escalate-and-continue CAPTCHA policy.
	MetricCaptchaEscalated
	// MetricImpossibleTravel counts correct-password attempts blocked for impossible travel.
	MetricImpossibleTravel
	// MetricSecondFactorRequired counts logins escalated to the second-factor path.
	MetricSecondFactorRequired
	// MetricSecondFactorSuccess counts completed second-factor verifications.
	MetricSecondFactorSuccess
	// MetricSecondFactorFailure counts failed second-factor verifications.
	MetricSecondFactorFailure
	// MetricSecondFactorReplay counts pending tokens presented after consumption.
	MetricSecondFactorReplay
	// MetricBindingCreated counts newly created session bindings.
	MetricBindingCreated
	// MetricBindingRefreshed counts re-issuances that refreshed an existing binding.
	MetricBindingRefreshed
	// MetricBindingRevoked counts administrative and sweep revocations.
	MetricBindingRevoked
	// MetricLogout counts caller-initiated binding deletions.
	MetricLogout
	// MetricRiskEventRecorded counts persisted pipeline decision records.
	MetricRiskEventRecorded
	// MetricValidateLatency is the protected-call validation latency histogram.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the engine's atomic counter set. All methods are safe for
// concurrent use and are no-ops on a nil or disabled receiver.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a metric set from the given configuration.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether the metric set records anything.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a validation latency sample.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of a counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and histogram for export.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
