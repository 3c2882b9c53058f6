package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sanatrack/safety-engine/internal/domain"
	"sanatrack/safety-engine/internal/ledger"
	"sanatrack/safety-engine/internal/store"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type entitySet map[string]bool

func (s entitySet) Exists(id string) bool { return s[id] }

type fixture struct {
	telemetry *store.MemoryTelemetryStore
	statuses  *store.StatusLog
	alerts    *ledger.Ledger
	planner   *Planner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := t0.Add(90 * time.Second)
	f := &fixture{
		telemetry: store.NewMemoryTelemetryStore(),
		statuses:  store.NewStatusLog(),
		alerts:    ledger.New(ledger.WithClock(func() time.Time { return clock })),
	}
	f.planner = NewPlanner(f.telemetry, f.statuses, f.alerts, entitySet{"e1": true, "e2": true})

	for i := 0; i < 5; i++ {
		require.NoError(t, f.telemetry.Append(domain.TelemetrySample{
			EntityID:   "e1",
			Timestamp:  t0.Add(time.Duration(i) * time.Minute),
			Location:   domain.Coordinate{Lat: -26.2, Lng: 28.04},
			BatteryPct: 30 - i*5,
			Online:     true,
		}))
	}
	f.statuses.Record("e1", domain.StatusSafe, t0)
	f.statuses.Record("e1", domain.StatusWarning, t0.Add(2*time.Minute))
	f.alerts.Raise("e1", domain.AlertBattery, domain.StatusWarning)
	return f
}

func TestPlan_BatteryOnly(t *testing.T) {
	f := newFixture(t)

	plan, err := f.planner.Plan(domain.ExportRequest{
		EntityIDs: []string{"e1"},
		Range:     domain.TimeRange{From: t0.Add(time.Minute), To: t0.Add(4 * time.Minute)},
		Types:     []domain.DataType{domain.DataBattery},
		Format:    "csv",
	})
	require.NoError(t, err)
	assert.Equal(t, "csv", plan.Format)
	require.Len(t, plan.Records, 3)
	for i, r := range plan.Records {
		assert.Equal(t, domain.DataBattery, r.Type)
		assert.Nil(t, r.Location)
		assert.Nil(t, r.Alert)
		require.NotNil(t, r.BatteryPct)
		assert.Equal(t, t0.Add(time.Duration(i+1)*time.Minute), r.Timestamp)
	}
	assert.Equal(t, 25, *plan.Records[0].BatteryPct)
}

func TestPlan_AllTypesOrdered(t *testing.T) {
	f := newFixture(t)

	plan, err := f.planner.Plan(domain.ExportRequest{
		EntityIDs: []string{"e1"},
		Range:     domain.TimeRange{From: t0, To: t0.Add(time.Hour)},
		Types:     []domain.DataType{domain.DataAlerts, domain.DataStatus, domain.DataBattery, domain.DataLocation},
	})
	require.NoError(t, err)
	// 5 samples x 2 types + 2 status changes + 1 alert
	require.Len(t, plan.Records, 13)

	for i := 1; i < len(plan.Records); i++ {
		prev, cur := plan.Records[i-1], plan.Records[i]
		assert.False(t, cur.Timestamp.Before(prev.Timestamp), "records out of order at %d", i)
		if cur.Timestamp.Equal(prev.Timestamp) {
			assert.LessOrEqual(t, prev.Type.Order(), cur.Type.Order())
		}
	}
	assert.Equal(t, domain.DataLocation, plan.Records[0].Type)
	assert.Equal(t, domain.DataBattery, plan.Records[1].Type)
	assert.Equal(t, domain.DataStatus, plan.Records[2].Type)
}

func TestPlan_OrderedByEntityThenTime(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.telemetry.Append(domain.TelemetrySample{EntityID: "e2", Timestamp: t0.Add(-time.Minute), BatteryPct: 90}))

	plan, err := f.planner.Plan(domain.ExportRequest{
		EntityIDs: []string{"e2", "e1", "e2"},
		Range:     domain.TimeRange{From: t0.Add(-time.Hour), To: t0.Add(time.Hour)},
		Types:     []domain.DataType{domain.DataBattery},
	})
	require.NoError(t, err)
	require.Len(t, plan.Records, 6)
	assert.Equal(t, "e1", plan.Records[0].EntityID)
	assert.Equal(t, "e2", plan.Records[5].EntityID)
}

func TestPlan_NoMatchingDataIsEmpty(t *testing.T) {
	f := newFixture(t)

	plan, err := f.planner.Plan(domain.ExportRequest{
		EntityIDs: []string{"e2"},
		Range:     domain.TimeRange{From: t0, To: t0.Add(time.Hour)},
		Types:     []domain.DataType{domain.DataLocation, domain.DataAlerts},
	})
	require.NoError(t, err)
	assert.Empty(t, plan.Records)

	plan, err = f.planner.Plan(domain.ExportRequest{
		EntityIDs: []string{"e1"},
		Range:     domain.TimeRange{From: t0, To: t0},
		Types:     []domain.DataType{domain.DataLocation},
	})
	require.NoError(t, err)
	assert.Empty(t, plan.Records)
}

func TestPlan_InvalidRequests(t *testing.T) {
	f := newFixture(t)
	r := domain.TimeRange{From: t0, To: t0.Add(time.Hour)}

	_, err := f.planner.Plan(domain.ExportRequest{Range: r, Types: []domain.DataType{domain.DataBattery}})
	assert.ErrorIs(t, err, domain.ErrInvalidExport)

	_, err = f.planner.Plan(domain.ExportRequest{EntityIDs: []string{"e1"}, Range: r})
	assert.ErrorIs(t, err, domain.ErrInvalidExport)

	_, err = f.planner.Plan(domain.ExportRequest{EntityIDs: []string{"e1"}, Range: r, Types: []domain.DataType{"heart_rate"}})
	assert.ErrorIs(t, err, domain.ErrInvalidExport)

	_, err = f.planner.Plan(domain.ExportRequest{EntityIDs: []string{"e1"}, Range: domain.TimeRange{From: r.To, To: r.From}, Types: []domain.DataType{domain.DataBattery}})
	assert.ErrorIs(t, err, domain.ErrInvalidExport)

	_, err = f.planner.Plan(domain.ExportRequest{EntityIDs: []string{"ghost"}, Range: r, Types: []domain.DataType{domain.DataBattery}})
	assert.ErrorIs(t, err, domain.ErrUnknownEntity)
}

func TestRangeForPreset(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	r, err := RangeForPreset("24h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), r.From)
	assert.Equal(t, now, r.To)

	r, err = RangeForPreset("3m", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC), r.From)

	r, err = RangeForPreset("all", now)
	require.NoError(t, err)
	assert.True(t, r.From.IsZero())

	_, err = RangeForPreset("1y", now)
	assert.ErrorIs(t, err, domain.ErrInvalidExport)
}
