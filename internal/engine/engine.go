// Package engine derives an entity's safety status from its latest sample.
package engine

import (
	"time"

	"sanatrack/safety-engine/internal/domain"
	"sanatrack/safety-engine/internal/store"
)

// Prior is the evaluation state carried between samples of one entity.
type Prior struct {
	Status domain.SafetyStatus
	// OutsideSince is when the current geofence violation started, zero if
	// the entity was inside (or unconstrained) at the previous evaluation.
	OutsideSince time.Time
}

type Input struct {
	Entity domain.Entity
	Sample domain.TelemetrySample
	Prior  Prior
	Zones  []domain.GeofenceZone
	Now    time.Time
}

type Trigger struct {
	Kind     domain.AlertKind
	Severity domain.SafetyStatus
}

type Result struct {
	Status       domain.SafetyStatus
	Triggers     []Trigger
	OutsideSince time.Time
}

func (r Result) Changed(prior Prior) bool {
	return r.Status != prior.Status
}

// Triggered returns the trigger for kind, if that rule fired.
func (r Result) Triggered(kind domain.AlertKind) (Trigger, bool) {
	for _, t := range r.Triggers {
		if t.Kind == kind {
			return t, true
		}
	}
	return Trigger{}, false
}

type Engine struct {
	thresholds Thresholds
	rules      []Rule
}

func New(t Thresholds) *Engine {
	return &Engine{thresholds: t, rules: DefaultRules}
}

// Evaluate has no side effects; the same input always yields the same
// result.
func (e *Engine) Evaluate(in Input) Result {
	f := facts{
		sample:      in.Sample,
		now:         in.Now,
		constrained: len(in.Zones) > 0,
	}
	if f.constrained && !store.InAnyZone(in.Zones, in.Sample.Location) {
		f.outside = true
		f.outsideSince = in.Sample.Timestamp
		if !in.Prior.OutsideSince.IsZero() && !in.Prior.OutsideSince.After(in.Sample.Timestamp) {
			f.outsideSince = in.Prior.OutsideSince
		}
	}

	res := Result{Status: domain.StatusSafe, OutsideSince: f.outsideSince}
	for _, rule := range e.rules {
		severity, fired := rule.Check(f, e.thresholds)
		if !fired {
			continue
		}
		res.Triggers = append(res.Triggers, Trigger{Kind: rule.Kind, Severity: severity})
		res.Status = domain.MaxStatus(res.Status, severity)
	}
	return res
}
