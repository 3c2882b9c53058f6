package store

import (
	"iter"
	"sync"
	"time"

	"sanatrack/safety-engine/internal/domain"
)

// StatusLog records the current derived status per entity and the history
// of transitions.
type StatusLog struct {
	mu      sync.RWMutex
	current map[string]domain.SafetyStatus
	changes map[string][]domain.StatusChange
}

func NewStatusLog() *StatusLog {
	return &StatusLog{
		current: make(map[string]domain.SafetyStatus),
		changes: make(map[string][]domain.StatusChange),
	}
}

// Record stores status as the entity's current value and returns the
// transition when it differs from the previous one.
func (l *StatusLog) Record(entityID string, status domain.SafetyStatus, at time.Time) (domain.StatusChange, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.current[entityID]
	if prev == status {
		return domain.StatusChange{}, false
	}
	change := domain.StatusChange{EntityID: entityID, At: at, From: prev, To: status}
	l.current[entityID] = status
	l.changes[entityID] = append(l.changes[entityID], change)
	return change, true
}

// Current returns the last derived status. ok is false if the entity has
// never been evaluated.
func (l *StatusLog) Current(entityID string) (domain.SafetyStatus, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.current[entityID]
	return s, ok
}

func (l *StatusLog) History(entityID string, r domain.TimeRange) iter.Seq[domain.StatusChange] {
	l.mu.RLock()
	snapshot := l.changes[entityID]
	l.mu.RUnlock()

	return func(yield func(domain.StatusChange) bool) {
		for _, c := range snapshot {
			if !r.Contains(c.At) {
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}
