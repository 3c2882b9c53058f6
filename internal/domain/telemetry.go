package domain

import (
	"fmt"
	"time"
)

type TelemetrySample struct {
	// ReceivedAt is assigned by the server on ingest.
	ReceivedAt time.Time `json:"received_at"`

	Timestamp time.Time `json:"timestamp"`
	EntityID  string    `json:"entity_id"`

	Location Coordinate `json:"location"`

	BatteryPct int  `json:"battery_pct"`
	Online     bool `json:"online"`
}

// Validate checks the sample fields that do not depend on stored history.
func (s TelemetrySample) Validate() error {
	if s.EntityID == "" {
		return fmt.Errorf("%w: empty entity id", ErrInvalidSample)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidSample)
	}
	if s.BatteryPct < 0 || s.BatteryPct > 100 {
		return fmt.Errorf("%w: battery %d outside 0..100", ErrInvalidSample, s.BatteryPct)
	}
	if !s.Location.Valid() {
		return fmt.Errorf("%w: coordinate %s out of range", ErrInvalidSample, s.Location)
	}
	return nil
}

// TimeRange is the half-open interval [From, To). A zero To means unbounded.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) Contains(t time.Time) bool {
	if t.Before(r.From) {
		return false
	}
	return r.To.IsZero() || t.Before(r.To)
}

func (r TimeRange) Empty() bool {
	return !r.To.IsZero() && !r.From.Before(r.To)
}
