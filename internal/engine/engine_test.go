package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sanatrack/safety-engine/internal/domain"
)

var (
	t0   = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	home = domain.Coordinate{Lat: -26.2041, Lng: 28.0473}
	far  = domain.Coordinate{Lat: -25.7479, Lng: 28.2293}
)

func testEngine() *Engine {
	return New(Thresholds{Stale: 10 * time.Minute, LowBattery: 20, EscalateAfter: 5 * time.Minute})
}

func homeZone() []domain.GeofenceZone {
	return []domain.GeofenceZone{{Label: "home", Shape: domain.ZoneCircle, Center: home, Radius: 300}}
}

func input(battery int, online bool, at domain.Coordinate, zones []domain.GeofenceZone) Input {
	return Input{
		Entity: domain.Entity{ID: "e1", Name: "Lerato", Age: 9},
		Sample: domain.TelemetrySample{EntityID: "e1", Timestamp: t0, Location: at, BatteryPct: battery, Online: online},
		Prior:  Prior{Status: domain.StatusSafe},
		Zones:  zones,
		Now:    t0.Add(time.Minute),
	}
}

func kinds(r Result) []domain.AlertKind {
	var out []domain.AlertKind
	for _, t := range r.Triggers {
		out = append(out, t.Kind)
	}
	return out
}

func TestEvaluate_Safe(t *testing.T) {
	res := testEngine().Evaluate(input(80, true, home, homeZone()))
	assert.Equal(t, domain.StatusSafe, res.Status)
	assert.Empty(t, res.Triggers)
	assert.True(t, res.OutsideSince.IsZero())
}

func TestEvaluate_LowBatteryInsideZone(t *testing.T) {
	res := testEngine().Evaluate(input(15, true, home, homeZone()))
	assert.Equal(t, domain.StatusWarning, res.Status)
	assert.Equal(t, []domain.AlertKind{domain.AlertBattery}, kinds(res))
}

func TestEvaluate_DeadBatteryOffline(t *testing.T) {
	res := testEngine().Evaluate(input(0, false, home, nil))
	assert.Equal(t, domain.StatusDanger, res.Status)
	trig, ok := res.Triggered(domain.AlertBattery)
	require.True(t, ok)
	assert.Equal(t, domain.StatusDanger, trig.Severity)

	// zero battery but still online is only a warning
	res = testEngine().Evaluate(input(0, true, home, nil))
	assert.Equal(t, domain.StatusWarning, res.Status)
}

func TestEvaluate_NoZonesNeverLocation(t *testing.T) {
	res := testEngine().Evaluate(input(80, true, far, nil))
	assert.Equal(t, domain.StatusSafe, res.Status)
	assert.Empty(t, res.Triggers)
}

func TestEvaluate_OutsideZone(t *testing.T) {
	res := testEngine().Evaluate(input(80, true, far, homeZone()))
	assert.Equal(t, domain.StatusWarning, res.Status)
	assert.Equal(t, []domain.AlertKind{domain.AlertLocation}, kinds(res))
	assert.Equal(t, t0, res.OutsideSince)
}

func TestEvaluate_OutsideZoneEscalates(t *testing.T) {
	in := input(80, true, far, homeZone())
	in.Prior = Prior{Status: domain.StatusWarning, OutsideSince: t0.Add(-4 * time.Minute)}
	res := testEngine().Evaluate(in)
	assert.Equal(t, domain.StatusWarning, res.Status)
	assert.Equal(t, t0.Add(-4*time.Minute), res.OutsideSince)

	in.Prior.OutsideSince = t0.Add(-5 * time.Minute)
	res = testEngine().Evaluate(in)
	assert.Equal(t, domain.StatusDanger, res.Status)
	trig, ok := res.Triggered(domain.AlertLocation)
	require.True(t, ok)
	assert.Equal(t, domain.StatusDanger, trig.Severity)
}

func TestEvaluate_ReturnInsideClearsViolation(t *testing.T) {
	in := input(80, true, home, homeZone())
	in.Prior = Prior{Status: domain.StatusWarning, OutsideSince: t0.Add(-time.Hour)}
	res := testEngine().Evaluate(in)
	assert.Equal(t, domain.StatusSafe, res.Status)
	assert.True(t, res.OutsideSince.IsZero())
	assert.True(t, res.Changed(in.Prior))
}

func TestEvaluate_Stale(t *testing.T) {
	in := input(80, true, home, nil)
	in.Now = t0.Add(11 * time.Minute)
	res := testEngine().Evaluate(in)
	assert.Equal(t, domain.StatusWarning, res.Status)
	assert.Equal(t, []domain.AlertKind{domain.AlertStale}, kinds(res))

	in.Now = t0.Add(10 * time.Minute)
	assert.Empty(t, testEngine().Evaluate(in).Triggers)
}

func TestEvaluate_AllKindsReportedMaxSeverityWins(t *testing.T) {
	in := input(0, false, far, homeZone())
	in.Now = t0.Add(time.Hour)
	res := testEngine().Evaluate(in)

	assert.Equal(t, domain.StatusDanger, res.Status)
	assert.Equal(t, []domain.AlertKind{domain.AlertStale, domain.AlertBattery, domain.AlertLocation}, kinds(res))
}

func TestEvaluate_Deterministic(t *testing.T) {
	e := testEngine()
	in := input(12, false, far, homeZone())
	in.Prior.OutsideSince = t0.Add(-2 * time.Minute)

	first := e.Evaluate(in)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, e.Evaluate(in))
	}
}

func TestEvaluate_DisabledThresholds(t *testing.T) {
	e := New(Thresholds{LowBattery: 20})
	in := input(80, true, far, homeZone())
	in.Now = t0.Add(24 * time.Hour)
	in.Prior.OutsideSince = t0.Add(-24 * time.Hour)

	res := e.Evaluate(in)
	assert.Equal(t, domain.StatusWarning, res.Status)
	assert.Equal(t, []domain.AlertKind{domain.AlertLocation}, kinds(res))
}
