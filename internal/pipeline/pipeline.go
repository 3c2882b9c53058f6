// Package pipeline ties telemetry ingest, status evaluation, the alert ledger
// and notification dispatch together. Every mutation for one entity runs
// under that entity's lock, so samples, status changes and alert updates for
// it are applied one at a time and in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sanatrack/safety-engine/internal/domain"
	"sanatrack/safety-engine/internal/engine"
	"sanatrack/safety-engine/internal/ledger"
	"sanatrack/safety-engine/internal/metrics"
	"sanatrack/safety-engine/internal/notify"
	"sanatrack/safety-engine/internal/store"
)

type EntityDirectory interface {
	Get(entityID string) (domain.Entity, error)
	IDs() []string
	Remove(entityID string) error
}

type ContactDirectory interface {
	ContactsFor(ctx context.Context, entityID string) ([]*domain.ContactRef, error)
}

type Deps struct {
	Entities   EntityDirectory
	Contacts   ContactDirectory
	Telemetry  store.TelemetryStore
	Zones      *store.GeofenceIndex
	Statuses   *store.StatusLog
	Engine     *engine.Engine
	Ledger     *ledger.Ledger
	Dispatcher *notify.Dispatcher
	Publisher  Publisher
	Logger     *zap.Logger
	// Now defaults to time.Now. It is the evaluation clock of the stale rule.
	Now func() time.Time
}

type Pipeline struct {
	entities   EntityDirectory
	contacts   ContactDirectory
	telemetry  store.TelemetryStore
	zones      *store.GeofenceIndex
	statuses   *store.StatusLog
	engine     *engine.Engine
	ledger     *ledger.Ledger
	dispatcher *notify.Dispatcher
	publisher  Publisher
	logger     *zap.Logger
	now        func() time.Time

	states   sync.Map // entityID -> *entityState
	inflight sync.WaitGroup
}

type entityState struct {
	mu    sync.Mutex
	prior engine.Prior
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}

func New(d Deps) *Pipeline {
	p := &Pipeline{
		entities:   d.Entities,
		contacts:   d.Contacts,
		telemetry:  d.Telemetry,
		zones:      d.Zones,
		statuses:   d.Statuses,
		engine:     d.Engine,
		ledger:     d.Ledger,
		dispatcher: d.Dispatcher,
		publisher:  d.Publisher,
		logger:     d.Logger,
		now:        d.Now,
	}
	if p.publisher == nil {
		p.publisher = nopPublisher{}
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

func (p *Pipeline) state(entityID string) *entityState {
	if st, ok := p.states.Load(entityID); ok {
		return st.(*entityState)
	}
	st, _ := p.states.LoadOrStore(entityID, &entityState{})
	return st.(*entityState)
}

// lock takes the entity's lock and reads the entity under it, so a removal
// that raced the caller's first lookup is seen. On error the lock is
// already released.
func (p *Pipeline) lock(entityID string) (domain.Entity, *entityState, error) {
	st := p.state(entityID)
	st.mu.Lock()
	entity, err := p.entities.Get(entityID)
	if err != nil {
		st.mu.Unlock()
		return domain.Entity{}, nil, err
	}
	return entity, st, nil
}

// IngestResult summarizes what one sample changed.
type IngestResult struct {
	Status   domain.SafetyStatus `json:"status"`
	Changed  bool                `json:"changed"`
	Raised   []*domain.Alert     `json:"raised,omitempty"`
	Resolved []*domain.Alert     `json:"resolved,omitempty"`
}

// Ingest stores the sample, re-derives the entity's status and updates the
// ledger. Contacts are notified in the background for new or escalated
// alerts; Wait blocks until those dispatches finish.
func (p *Pipeline) Ingest(ctx context.Context, sample domain.TelemetrySample) (*IngestResult, error) {
	if _, err := p.entities.Get(sample.EntityID); err != nil {
		metrics.SamplesIngested.WithLabelValues("unknown_entity").Inc()
		return nil, err
	}
	if err := sample.Validate(); err != nil {
		metrics.SamplesIngested.WithLabelValues("invalid").Inc()
		return nil, err
	}

	entity, st, err := p.lock(sample.EntityID)
	if err != nil {
		metrics.SamplesIngested.WithLabelValues("unknown_entity").Inc()
		return nil, err
	}
	defer st.mu.Unlock()

	sample.ReceivedAt = p.now()
	if err := p.telemetry.Append(sample); err != nil {
		label := "rejected"
		if errors.Is(err, domain.ErrOutOfOrder) {
			label = "out_of_order"
		}
		metrics.SamplesIngested.WithLabelValues(label).Inc()
		p.logger.Debug("Sample rejected",
			zap.String("entity_id", entity.ID),
			zap.Time("timestamp", sample.Timestamp),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.SamplesIngested.WithLabelValues("accepted").Inc()

	s := sample
	p.publisher.Publish(Event{Kind: EventSample, EntityID: entity.ID, At: sample.Timestamp, Sample: &s})

	return p.evaluate(entity, st, sample, sample.ReceivedAt, sample.Timestamp), nil
}

// evaluate runs the rule table and applies the outcome. The caller holds
// st.mu. now feeds the stale rule; at stamps the status change.
func (p *Pipeline) evaluate(entity domain.Entity, st *entityState, sample domain.TelemetrySample, now, at time.Time) *IngestResult {
	res := p.engine.Evaluate(engine.Input{
		Entity: entity,
		Sample: sample,
		Prior:  st.prior,
		Zones:  p.zones.ZonesFor(entity.ID),
		Now:    now,
	})
	st.prior = engine.Prior{Status: res.Status, OutsideSince: res.OutsideSince}

	out := &IngestResult{Status: res.Status}

	if change, ok := p.statuses.Record(entity.ID, res.Status, at); ok {
		out.Changed = true
		metrics.StatusTransitions.WithLabelValues(string(res.Status)).Inc()
		p.logger.Info("Status changed",
			zap.String("entity_id", entity.ID),
			zap.String("from", string(change.From)),
			zap.String("to", string(change.To)),
		)
		p.publisher.Publish(Event{Kind: EventStatus, EntityID: entity.ID, At: at, Status: &change})
	}

	for _, kind := range domain.DerivedAlertKinds {
		trig, fired := res.Triggered(kind)
		if !fired {
			if a, ok := p.ledger.Resolve(entity.ID, kind); ok {
				out.Resolved = append(out.Resolved, a)
				p.alertResolved(a)
			}
			continue
		}

		r := p.ledger.Raise(entity.ID, kind, trig.Severity)
		switch {
		case r.Created:
			metrics.AlertsRaised.WithLabelValues(string(kind)).Inc()
			p.publisher.Publish(Event{Kind: EventAlertRaised, EntityID: entity.ID, At: r.Alert.UpdatedAt, Alert: r.Alert})
		case r.Escalated:
			p.publisher.Publish(Event{Kind: EventAlertUpdated, EntityID: entity.ID, At: r.Alert.UpdatedAt, Alert: r.Alert})
		}
		if r.NeedsDispatch() {
			out.Raised = append(out.Raised, r.Alert)
			p.logger.Info("Alert raised",
				zap.String("entity_id", entity.ID),
				zap.String("alert_id", r.Alert.ID),
				zap.String("kind", string(kind)),
				zap.String("severity", string(r.Alert.Severity)),
				zap.Bool("escalated", r.Escalated),
			)
			p.dispatchAsync(entity, r.Alert)
		}
	}
	return out
}

func (p *Pipeline) alertResolved(a *domain.Alert) {
	metrics.AlertsResolved.WithLabelValues(string(a.Kind)).Inc()
	p.logger.Info("Alert resolved",
		zap.String("entity_id", a.EntityID),
		zap.String("alert_id", a.ID),
		zap.String("kind", string(a.Kind)),
	)
	p.publisher.Publish(Event{Kind: EventAlertResolved, EntityID: a.EntityID, At: *a.ResolvedAt, Alert: a})
}

func (p *Pipeline) dispatchAsync(entity domain.Entity, alert *domain.Alert) {
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		// The dispatcher applies its own deadline.
		if _, err := p.dispatch(context.Background(), entity, alert); err != nil {
			p.logger.Warn("Dispatch skipped",
				zap.String("entity_id", entity.ID),
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		}
	}()
}

func (p *Pipeline) dispatch(ctx context.Context, entity domain.Entity, alert *domain.Alert) (*notify.Report, error) {
	contacts, err := p.contacts.ContactsFor(ctx, entity.ID)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	report, err := p.dispatcher.Dispatch(ctx, alert, entity, contacts)
	if err != nil {
		return nil, err
	}
	if err := p.ledger.RecordDelivery(alert.ID, report.Entries); err != nil {
		return report, err
	}
	if updated, err := p.ledger.Get(alert.ID); err == nil {
		p.publisher.Publish(Event{Kind: EventAlertUpdated, EntityID: entity.ID, At: report.FinishedAt, Alert: updated})
	}
	p.publisher.Publish(Event{Kind: EventDelivery, EntityID: entity.ID, At: report.FinishedAt, Report: report})
	return report, nil
}

// Wait blocks until background dispatches finish or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ManualRequest is a guardian's emergency alert.
type ManualRequest struct {
	Message string              `json:"message"`
	ActorID string              `json:"actor_id"`
	Reason  domain.ManualReason `json:"reason,omitempty"`
}

// ManualResult carries the ledger alert and, separately, how dispatch went.
// The alert exists even when DispatchErr is set.
type ManualResult struct {
	Alert       *domain.Alert  `json:"alert"`
	Created     bool           `json:"created"`
	Report      *notify.Report `json:"report,omitempty"`
	DispatchErr error          `json:"-"`
}

// ManualAlert raises a MANUAL alert at DANGER and dispatches it
// synchronously. A repeat while the alert is open updates the open alert
// and notifies contacts again.
func (p *Pipeline) ManualAlert(ctx context.Context, entityID string, req ManualRequest) (*ManualResult, error) {
	if _, err := p.entities.Get(entityID); err != nil {
		return nil, err
	}
	if !req.Reason.Valid() {
		return nil, fmt.Errorf("%w: unknown reason %q", domain.ErrInvalidManualAlert, req.Reason)
	}

	entity, st, err := p.lock(entityID)
	if err != nil {
		return nil, err
	}
	r := p.ledger.RaiseManual(entityID, ledger.ManualDetails{
		Message: req.Message,
		ActorID: req.ActorID,
		Reason:  req.Reason,
	})
	st.mu.Unlock()

	if r.Created {
		metrics.AlertsRaised.WithLabelValues(string(domain.AlertManual)).Inc()
		p.publisher.Publish(Event{Kind: EventAlertRaised, EntityID: entityID, At: r.Alert.UpdatedAt, Alert: r.Alert})
	} else {
		p.publisher.Publish(Event{Kind: EventAlertUpdated, EntityID: entityID, At: r.Alert.UpdatedAt, Alert: r.Alert})
	}
	p.logger.Info("Manual alert raised",
		zap.String("entity_id", entityID),
		zap.String("alert_id", r.Alert.ID),
		zap.String("actor_id", req.ActorID),
		zap.String("reason", string(req.Reason)),
	)

	out := &ManualResult{Alert: r.Alert, Created: r.Created}
	report, err := p.dispatch(ctx, entity, r.Alert)
	out.Report = report
	out.DispatchErr = err
	if err != nil {
		p.logger.Warn("Manual alert dispatch failed",
			zap.String("entity_id", entityID),
			zap.String("alert_id", r.Alert.ID),
			zap.Error(err),
		)
	}
	if a, err := p.ledger.Get(r.Alert.ID); err == nil {
		out.Alert = a
	}
	return out, nil
}

// BroadcastManual raises the same manual alert for every enrolled entity.
// Results are keyed by entity id.
func (p *Pipeline) BroadcastManual(ctx context.Context, req ManualRequest, maxParallel int) (map[string]*ManualResult, error) {
	if !req.Reason.Valid() {
		return nil, fmt.Errorf("%w: unknown reason %q", domain.ErrInvalidManualAlert, req.Reason)
	}
	ids := p.entities.IDs()
	results := make([]*ManualResult, len(ids))

	var g errgroup.Group
	if maxParallel > 0 {
		g.SetLimit(maxParallel)
	}
	for i, id := range ids {
		g.Go(func() error {
			res, err := p.ManualAlert(ctx, id, req)
			if err != nil {
				// Entity removed since IDs was read.
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*ManualResult, len(ids))
	for i, id := range ids {
		if results[i] != nil {
			out[id] = results[i]
		}
	}
	return out, nil
}

// ResolveAlert closes the open alert of kind. Only MANUAL alerts can be
// closed from outside; derived kinds resolve when their condition clears.
func (p *Pipeline) ResolveAlert(entityID string, kind domain.AlertKind) (*domain.Alert, error) {
	if _, err := p.entities.Get(entityID); err != nil {
		return nil, err
	}
	if kind != domain.AlertManual {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotResolvable, kind)
	}

	_, st, err := p.lock(entityID)
	if err != nil {
		return nil, err
	}
	a, ok := p.ledger.Resolve(entityID, kind)
	st.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no open %s alert for %s", ledger.ErrUnknownAlert, kind, entityID)
	}
	p.alertResolved(a)
	return a, nil
}

// RemoveEntity deletes an enrolled entity. It holds the entity's lock so no
// ingest or manual alert can raise between the open-alert check and the
// removal.
func (p *Pipeline) RemoveEntity(entityID string) error {
	_, st, err := p.lock(entityID)
	if err != nil {
		return err
	}
	defer st.mu.Unlock()

	if p.ledger.HasActive(entityID) {
		return fmt.Errorf("%w: %s", domain.ErrActiveAlerts, entityID)
	}
	if err := p.entities.Remove(entityID); err != nil {
		return err
	}
	p.logger.Info("Entity removed", zap.String("entity_id", entityID))
	return nil
}

// Sweep re-evaluates every entity's latest sample against the current time
// so silent entities turn stale without a new report.
func (p *Pipeline) Sweep(ctx context.Context) int {
	changed := 0
	for _, id := range p.entities.IDs() {
		if ctx.Err() != nil {
			break
		}
		entity, st, err := p.lock(id)
		if err != nil {
			continue
		}
		latest, err := p.telemetry.Latest(id)
		if err == nil {
			now := p.now()
			if res := p.evaluate(entity, st, latest, now, now); res.Changed {
				changed++
			}
		}
		st.mu.Unlock()
	}
	return changed
}

// CurrentStatus fails with ErrNoData until the entity has reported once.
func (p *Pipeline) CurrentStatus(entityID string) (domain.SafetyStatus, error) {
	if _, err := p.entities.Get(entityID); err != nil {
		return "", err
	}
	status, ok := p.statuses.Current(entityID)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrNoData, entityID)
	}
	return status, nil
}

func (p *Pipeline) ActiveAlerts(entityID string) ([]*domain.Alert, error) {
	if _, err := p.entities.Get(entityID); err != nil {
		return nil, err
	}
	return p.ledger.Active(entityID), nil
}

func (p *Pipeline) AlertHistory(entityID string, r domain.TimeRange) (iter.Seq[*domain.Alert], error) {
	if _, err := p.entities.Get(entityID); err != nil {
		return nil, err
	}
	return p.ledger.History(entityID, r), nil
}

func (p *Pipeline) Telemetry(entityID string, r domain.TimeRange) (iter.Seq[domain.TelemetrySample], error) {
	if _, err := p.entities.Get(entityID); err != nil {
		return nil, err
	}
	return p.telemetry.Query(entityID, r), nil
}

func (p *Pipeline) Latest(entityID string) (domain.TelemetrySample, error) {
	if _, err := p.entities.Get(entityID); err != nil {
		return domain.TelemetrySample{}, err
	}
	return p.telemetry.Latest(entityID)
}

// Nearby lists entities whose latest sample lies within radius meters of c,
// nearest first.
func (p *Pipeline) Nearby(_ context.Context, c domain.Coordinate, radius float64) ([]string, error) {
	type hit struct {
		id       string
		distance float64
	}
	var hits []hit
	for _, id := range p.entities.IDs() {
		latest, err := p.telemetry.Latest(id)
		if err != nil {
			continue
		}
		if d := domain.DistanceMeters(c, latest.Location); d <= radius {
			hits = append(hits, hit{id: id, distance: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].distance != hits[j].distance {
			return hits[i].distance < hits[j].distance
		}
		return hits[i].id < hits[j].id
	})
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids, nil
}

// SetZones replaces the entity's zones and re-evaluates its latest sample
// so the status reflects the new constraint immediately.
func (p *Pipeline) SetZones(entityID string, zones []domain.GeofenceZone) error {
	entity, st, err := p.lock(entityID)
	if err != nil {
		return err
	}
	defer st.mu.Unlock()

	if err := p.zones.SetZones(entityID, zones); err != nil {
		return err
	}
	if latest, err := p.telemetry.Latest(entityID); err == nil {
		now := p.now()
		p.evaluate(entity, st, latest, now, now)
	}
	return nil
}
