package store

import (
	"fmt"
	"iter"
	"sort"
	"sync"

	"sanatrack/safety-engine/internal/domain"
)

// TelemetryStore is the append-only per-entity sample history.
type TelemetryStore interface {
	Append(sample domain.TelemetrySample) error
	Query(entityID string, r domain.TimeRange) iter.Seq[domain.TelemetrySample]
	Latest(entityID string) (domain.TelemetrySample, error)
}

// MemoryTelemetryStore keeps samples in per-entity slices ordered by
// timestamp. Stored elements are never mutated, so a reader holding a
// slice header taken under the lock sees a consistent snapshot even while
// later appends grow the slice.
type MemoryTelemetryStore struct {
	mu      sync.RWMutex
	samples map[string][]domain.TelemetrySample
}

func NewMemoryTelemetryStore() *MemoryTelemetryStore {
	return &MemoryTelemetryStore{samples: make(map[string][]domain.TelemetrySample)}
}

func (s *MemoryTelemetryStore) Append(sample domain.TelemetrySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.samples[sample.EntityID]
	if n := len(history); n > 0 {
		last := history[n-1].Timestamp
		if sample.Timestamp.Before(last) {
			return fmt.Errorf("%w: entity %s sample at %s, last stored %s",
				domain.ErrOutOfOrder, sample.EntityID, sample.Timestamp.Format(timeLayout), last.Format(timeLayout))
		}
	}
	s.samples[sample.EntityID] = append(history, sample)
	return nil
}

// Query yields the samples inside r in timestamp order. The returned
// sequence may be ranged over any number of times.
func (s *MemoryTelemetryStore) Query(entityID string, r domain.TimeRange) iter.Seq[domain.TelemetrySample] {
	s.mu.RLock()
	snapshot := s.samples[entityID]
	s.mu.RUnlock()

	return func(yield func(domain.TelemetrySample) bool) {
		if r.Empty() {
			return
		}
		start := sort.Search(len(snapshot), func(i int) bool {
			return !snapshot[i].Timestamp.Before(r.From)
		})
		for _, sample := range snapshot[start:] {
			if !r.Contains(sample.Timestamp) {
				return
			}
			if !yield(sample) {
				return
			}
		}
	}
}

func (s *MemoryTelemetryStore) Latest(entityID string) (domain.TelemetrySample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.samples[entityID]
	if len(history) == 0 {
		return domain.TelemetrySample{}, fmt.Errorf("%w: %s", domain.ErrNoData, entityID)
	}
	return history[len(history)-1], nil
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
