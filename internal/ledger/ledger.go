// Package ledger tracks alert episodes. At most one unresolved alert exists
// per (entity, kind); a resolved alert is archival and a later trigger of
// the same kind opens a new episode.
package ledger

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sanatrack/safety-engine/internal/domain"
)

var ErrUnknownAlert = errors.New("unknown alert")

type key struct {
	entityID string
	kind     domain.AlertKind
}

// ManualDetails accompany a MANUAL alert.
type ManualDetails struct {
	Message string
	ActorID string
	Reason  domain.ManualReason
}

// RaiseResult describes what Raise did. Alert is a copy safe to hand out.
type RaiseResult struct {
	Alert     *domain.Alert
	Created   bool
	Escalated bool
}

// NeedsDispatch reports whether contacts should be notified for this raise.
func (r RaiseResult) NeedsDispatch() bool {
	return r.Created || r.Escalated
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

type Ledger struct {
	mu      sync.RWMutex
	now     func() time.Time
	active  map[key]*domain.Alert
	byID    map[string]*domain.Alert
	history map[string][]*domain.Alert
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		now:     time.Now,
		active:  make(map[key]*domain.Alert),
		byID:    make(map[string]*domain.Alert),
		history: make(map[string][]*domain.Alert),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Raise opens an episode for (entityID, kind) or updates the open one.
// Severity never decreases within an episode.
func (l *Ledger) Raise(entityID string, kind domain.AlertKind, severity domain.SafetyStatus) RaiseResult {
	return l.raise(entityID, kind, severity, nil)
}

// RaiseManual raises a DANGER alert of kind MANUAL.
func (l *Ledger) RaiseManual(entityID string, details ManualDetails) RaiseResult {
	return l.raise(entityID, domain.AlertManual, domain.StatusDanger, &details)
}

func (l *Ledger) raise(entityID string, kind domain.AlertKind, severity domain.SafetyStatus, manual *ManualDetails) RaiseResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := key{entityID: entityID, kind: kind}

	if a, ok := l.active[k]; ok {
		escalated := severity.Rank() > a.Severity.Rank()
		a.Severity = domain.MaxStatus(a.Severity, severity)
		a.UpdatedAt = now
		applyManual(a, manual)
		return RaiseResult{Alert: a.Clone(), Escalated: escalated}
	}

	a := &domain.Alert{
		ID:        uuid.NewString(),
		EntityID:  entityID,
		Kind:      kind,
		Severity:  severity,
		RaisedAt:  now,
		UpdatedAt: now,
	}
	applyManual(a, manual)

	l.active[k] = a
	l.byID[a.ID] = a
	l.history[entityID] = append(l.history[entityID], a)
	return RaiseResult{Alert: a.Clone(), Created: true}
}

func applyManual(a *domain.Alert, m *ManualDetails) {
	if m == nil {
		return
	}
	if m.Message != "" {
		a.Message = m.Message
	}
	if m.ActorID != "" {
		a.ActorID = m.ActorID
	}
	if m.Reason != "" {
		a.Reason = m.Reason
	}
}

// Resolve closes the open episode for (entityID, kind). It is a no-op when
// no episode is open; the returned bool reports whether one was closed.
func (l *Ledger) Resolve(entityID string, kind domain.AlertKind) (*domain.Alert, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{entityID: entityID, kind: kind}
	a, ok := l.active[k]
	if !ok {
		return nil, false
	}
	now := l.now()
	a.ResolvedAt = &now
	a.UpdatedAt = now
	delete(l.active, k)
	return a.Clone(), true
}

// Active returns the unresolved alerts of an entity ordered by raise time.
func (l *Ledger) Active(entityID string) []*domain.Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*domain.Alert
	for k, a := range l.active {
		if k.entityID == entityID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RaisedAt.Equal(out[j].RaisedAt) {
			return out[i].Kind < out[j].Kind
		}
		return out[i].RaisedAt.Before(out[j].RaisedAt)
	})
	return out
}

func (l *Ledger) HasActive(entityID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for k := range l.active {
		if k.entityID == entityID {
			return true
		}
	}
	return false
}

// History yields every alert of the entity raised inside r, resolved or
// not, in raise order.
func (l *Ledger) History(entityID string, r domain.TimeRange) iter.Seq[*domain.Alert] {
	l.mu.RLock()
	var snapshot []*domain.Alert
	for _, a := range l.history[entityID] {
		if r.Contains(a.RaisedAt) {
			snapshot = append(snapshot, a.Clone())
		}
	}
	l.mu.RUnlock()

	return func(yield func(*domain.Alert) bool) {
		for _, a := range snapshot {
			if !yield(a.Clone()) {
				return
			}
		}
	}
}

func (l *Ledger) Get(alertID string) (*domain.Alert, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.byID[alertID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlert, alertID)
	}
	return a.Clone(), nil
}

// RecordDelivery appends a dispatch's per-contact outcomes to the alert.
func (l *Ledger) RecordDelivery(alertID string, records []domain.DeliveryRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.byID[alertID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAlert, alertID)
	}
	a.Deliveries = append(a.Deliveries, records...)
	return nil
}
