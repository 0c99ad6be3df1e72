package internaldefs

import (
	riskgate "github.com/velkorin/riskgate"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   riskgate.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   riskgate.MetricID
	Name string
	Help string
}

// CounterDefs is the stable counter export table shared by all exporters.
var CounterDefs = []CounterDef{
	{ID: riskgate.MetricLoginSuccess, Name: "riskgate_login_success_total", Help: "Directly issued credentials."},
	{ID: riskgate.MetricLoginFailure, Name: "riskgate_login_failure_total", Help: "Failed credential checks."},
	{ID: riskgate.MetricOriginBanned, Name: "riskgate_origin_banned_total", Help: "Attempts rejected by an origin ban."},
	{ID: riskgate.MetricIdentityLocked, Name: "riskgate_identity_locked_total", Help: "Attempts rejected by an identity lock."},
	{ID: riskgate.MetricRuleBlocked, Name: "riskgate_rule_blocked_total", Help: "Attempts rejected by a BLOCK policy rule."},
	{ID: riskgate.MetricCaptchaRequired, Name: "riskgate_captcha_required_total", Help: "Attempts rejected pending a CAPTCHA proof."},
	{ID: riskgate.MetricCaptchaEscalated, Name: "riskgate_captcha_escalated_total", Help: "Attempts continued under the escalate CAPTCHA policy."},
	{ID: riskgate.MetricImpossibleTravel, Name: "riskgate_impossible_travel_total", Help: "Attempts blocked for impossible travel."},
	{ID: riskgate.MetricSecondFactorRequired, Name: "riskgate_second_factor_required_total", Help: "Logins escalated to second-factor verification."},
	{ID: riskgate.MetricSecondFactorSuccess, Name: "riskgate_second_factor_success_total", Help: "Completed second-factor verifications."},
	{ID: riskgate.MetricSecondFactorFailure, Name: "riskgate_second_factor_failure_total", Help: "Failed second-factor verifications."},
	{ID: riskgate.MetricSecondFactorReplay, Name: "riskgate_second_factor_replay_total", Help: "Pending tokens presented after consumption."},
	{ID: riskgate.MetricBindingCreated, Name: "riskgate_binding_created_total", Help: "Created session bindings."},
	{ID: riskgate.MetricBindingRefreshed, Name: "riskgate_binding_refreshed_total", Help: "Re-issuances that refreshed an existing binding."},
	{ID: riskgate.MetricBindingRevoked, Name: "riskgate_binding_revoked_total", Help: "Administrative and sweep binding revocations."},
	{ID: riskgate.MetricLogout, Name: "riskgate_logout_total", Help: "Caller-initiated binding revocations."},
	{ID: riskgate.MetricRiskEventRecorded, Name: "riskgate_risk_event_recorded_total", Help: "Persisted pipeline decision records."},
}

// HistogramDefs is the stable histogram export table.
var HistogramDefs = []HistogramDef{
	{ID: riskgate.MetricValidateLatency, Name: "riskgate_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds holds the upper bounds, in seconds, of the fixed
// latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix holds attribute-safe bucket labels for exporters
// that cannot use the raw bounds.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus expects.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
