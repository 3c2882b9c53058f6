package engine

import (
	"time"

	"sanatrack/safety-engine/internal/domain"
)

// Thresholds are the tunables of the rule table. A non-positive duration
// disables the rule that uses it.
type Thresholds struct {
	Stale         time.Duration
	LowBattery    int
	EscalateAfter time.Duration
}

// facts are the values every rule looks at, computed once per evaluation.
type facts struct {
	sample       domain.TelemetrySample
	now          time.Time
	constrained  bool
	outside      bool
	outsideSince time.Time
}

// Rule reports the status floor it imposes and whether it fired.
type Rule struct {
	Kind  domain.AlertKind
	Check func(f facts, t Thresholds) (domain.SafetyStatus, bool)
}

// DefaultRules is evaluated in this order. All firing rules are reported;
// the final status is the most severe among them.
var DefaultRules = []Rule{
	{
		Kind: domain.AlertStale,
		Check: func(f facts, t Thresholds) (domain.SafetyStatus, bool) {
			if t.Stale <= 0 {
				return "", false
			}
			return domain.StatusWarning, f.now.Sub(f.sample.Timestamp) > t.Stale
		},
	},
	{
		Kind: domain.AlertBattery,
		Check: func(f facts, t Thresholds) (domain.SafetyStatus, bool) {
			if f.sample.BatteryPct == 0 && !f.sample.Online {
				return domain.StatusDanger, true
			}
			return domain.StatusWarning, f.sample.BatteryPct < t.LowBattery
		},
	},
	{
		Kind: domain.AlertLocation,
		Check: func(f facts, t Thresholds) (domain.SafetyStatus, bool) {
			if !f.constrained || !f.outside {
				return "", false
			}
			if t.EscalateAfter > 0 && f.sample.Timestamp.Sub(f.outsideSince) >= t.EscalateAfter {
				return domain.StatusDanger, true
			}
			return domain.StatusWarning, true
		},
	},
}
