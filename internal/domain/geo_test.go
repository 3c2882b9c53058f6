package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMeters(t *testing.T) {
	// Cape Town to Johannesburg is roughly 1260 km.
	d := DistanceMeters(Coordinate{Lat: -33.9249, Lng: 18.4241}, Coordinate{Lat: -26.2041, Lng: 28.0473})
	assert.InDelta(t, 1260000, d, 20000)
	assert.Zero(t, DistanceMeters(Coordinate{Lat: 1, Lng: 1}, Coordinate{Lat: 1, Lng: 1}))
}

func TestGeofenceZone_ContainsCircle(t *testing.T) {
	zone := GeofenceZone{Label: "school", Shape: ZoneCircle, Center: Coordinate{Lat: -26.2, Lng: 28.04}, Radius: 500}

	assert.True(t, zone.Contains(Coordinate{Lat: -26.2, Lng: 28.04}))
	assert.True(t, zone.Contains(Coordinate{Lat: -26.2030, Lng: 28.04}))
	assert.False(t, zone.Contains(Coordinate{Lat: -26.21, Lng: 28.04}))
}

func TestGeofenceZone_ContainsPolygon(t *testing.T) {
	zone := GeofenceZone{
		Label: "home block",
		Shape: ZonePolygon,
		Vertices: []Coordinate{
			{Lat: 0, Lng: 0},
			{Lat: 0, Lng: 1},
			{Lat: 1, Lng: 1},
			{Lat: 1, Lng: 0},
		},
	}

	assert.True(t, zone.Contains(Coordinate{Lat: 0.5, Lng: 0.5}))
	assert.False(t, zone.Contains(Coordinate{Lat: 1.5, Lng: 0.5}))
	assert.False(t, zone.Contains(Coordinate{Lat: 0.5, Lng: -0.1}))
}

func TestGeofenceZone_Validate(t *testing.T) {
	tests := []struct {
		name string
		zone GeofenceZone
		ok   bool
	}{
		{"circle", GeofenceZone{Shape: ZoneCircle, Center: Coordinate{Lat: 1, Lng: 1}, Radius: 10}, true},
		{"circle zero radius", GeofenceZone{Shape: ZoneCircle, Center: Coordinate{Lat: 1, Lng: 1}}, false},
		{"polygon two vertices", GeofenceZone{Shape: ZonePolygon, Vertices: []Coordinate{{}, {Lat: 1}}}, false},
		{"unknown shape", GeofenceZone{Shape: "hexagon"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.zone.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidZone))
			}
		})
	}
}

func TestMaxStatus(t *testing.T) {
	assert.Equal(t, StatusWarning, MaxStatus(StatusSafe, StatusWarning))
	assert.Equal(t, StatusDanger, MaxStatus(StatusDanger, StatusWarning))
	assert.Equal(t, StatusSafe, MaxStatus("", StatusSafe))
}

func TestTimeRange(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := TimeRange{From: t0, To: t0.Add(time.Hour)}

	assert.True(t, r.Contains(t0))
	assert.False(t, r.Contains(t0.Add(time.Hour)))
	assert.False(t, r.Empty())
	assert.True(t, TimeRange{From: t0, To: t0}.Empty())
	assert.True(t, TimeRange{From: t0}.Contains(t0.Add(24*time.Hour)))
}

func TestTelemetrySample_Validate(t *testing.T) {
	s := TelemetrySample{EntityID: "e1", Timestamp: time.Now(), BatteryPct: 50, Location: Coordinate{Lat: 1, Lng: 1}}
	assert.NoError(t, s.Validate())

	s.BatteryPct = 101
	assert.ErrorIs(t, s.Validate(), ErrInvalidSample)

	s.BatteryPct = 50
	s.Location.Lat = 91
	assert.ErrorIs(t, s.Validate(), ErrInvalidSample)
}
