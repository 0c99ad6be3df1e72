package riskgate

const (
	baselineLikelihood = 1
	baselineImpact     = 1

	badPasswordLikelihood = 3
	badPasswordImpact     = 3
)

// RiskTally accumulates (likelihood, impact) severity signals from the
// pipeline stages. Signals combine by high-watermark only; they are never
// summed or averaged.
type RiskTally struct {
	Likelihood int
	Impact     int
}

// NewRiskTally returns a tally at the fixed (1, 1) baseline.
func NewRiskTally() RiskTally {
	return RiskTally{Likelihood: baselineLikelihood, Impact: baselineImpact}
}

// Raise lifts the tally to at least the given severities.
func (t *RiskTally) Raise(likelihood, impact int) {
	if likelihood > t.Likelihood {
		t.Likelihood = likelihood
	}
	if impact > t.Impact {
		t.Impact = impact
	}
}

// Score returns likelihood x impact (1-25). The score feeds audit and
// observability only; gating decisions come from the discrete action set.
func (t RiskTally) Score() int {
	return t.Likelihood * t.Impact
}
