package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sanatrack/safety-engine/internal/domain"
	"sanatrack/safety-engine/internal/metrics"
)

// Report is the per-contact result of one dispatch, in contact order.
// Partial delivery is a normal report, not an error.
type Report struct {
	DispatchID string                  `json:"dispatch_id"`
	AlertID    string                  `json:"alert_id"`
	EntityID   string                  `json:"entity_id"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Entries    []domain.DeliveryRecord `json:"entries"`
}

func (r *Report) Outcome(contactID string) (domain.DeliveryOutcome, bool) {
	for _, e := range r.Entries {
		if e.ContactID == contactID {
			return e.Outcome, true
		}
	}
	return "", false
}

func (r *Report) Delivered() int {
	n := 0
	for _, e := range r.Entries {
		if e.Outcome == domain.Delivered {
			n++
		}
	}
	return n
}

func (r *Report) Unreachable() int {
	return len(r.Entries) - r.Delivered()
}

// Dispatcher notifies every contact of an alert. Contacts are independent:
// each one gets its own sequential retry loop and one contact's failure
// never affects another.
type Dispatcher struct {
	notifier Notifier
	policy   Policy
	logger   *zap.Logger
	now      func() time.Time
}

func NewDispatcher(notifier Notifier, policy Policy, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// Dispatch fails only when the target is structurally invalid. Once the
// deadline passes, attempts already in flight finish but no new attempt
// starts; contacts left over are reported Unreachable with reason timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *domain.Alert, entity domain.Entity, contacts []*domain.ContactRef) (*Report, error) {
	if alert == nil || alert.ID == "" {
		return nil, fmt.Errorf("%w: missing alert", domain.ErrInvalidDispatchTarget)
	}
	if len(contacts) == 0 {
		return nil, fmt.Errorf("%w: entity %s has no registered contacts", domain.ErrInvalidDispatchTarget, alert.EntityID)
	}
	for _, c := range contacts {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}

	if d.policy.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.policy.Deadline)
		defer cancel()
	}

	report := &Report{
		DispatchID: uuid.NewString(),
		AlertID:    alert.ID,
		EntityID:   alert.EntityID,
		StartedAt:  d.now(),
		Entries:    make([]domain.DeliveryRecord, len(contacts)),
	}
	msg := ComposeMessage(alert, entity)

	var g errgroup.Group
	g.SetLimit(d.policy.workers(len(contacts)))
	for i, c := range contacts {
		contact := *c
		g.Go(func() error {
			report.Entries[i] = d.deliver(ctx, report.DispatchID, contact, msg)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = d.now()
	metrics.DispatchDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	d.logger.Info("Dispatch finished",
		zap.String("dispatch_id", report.DispatchID),
		zap.String("alert_id", alert.ID),
		zap.String("entity_id", alert.EntityID),
		zap.Int("contacts", len(contacts)),
		zap.Int("delivered", report.Delivered()),
		zap.Int("unreachable", report.Unreachable()),
	)
	return report, nil
}

func (d *Dispatcher) deliver(ctx context.Context, dispatchID string, contact domain.ContactRef, msg Message) domain.DeliveryRecord {
	rec := domain.DeliveryRecord{
		DispatchID: dispatchID,
		ContactID:  contact.ID,
		Channel:    contact.Channel,
		Address:    contact.Address,
	}
	finish := func(outcome domain.DeliveryOutcome, reason domain.UnreachableReason) domain.DeliveryRecord {
		rec.Outcome = outcome
		rec.Reason = reason
		rec.FinishedAt = d.now()
		return rec
	}

	bo := backoff.WithContext(d.policy.NewBackOff(), ctx)
	maxAttempts := d.policy.attempts()
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return finish(domain.Unreachable, domain.ReasonTimeout)
		}

		rec.Attempts++
		err := d.attempt(ctx, contact, msg)
		if err == nil {
			metrics.DeliveryAttempts.WithLabelValues(string(contact.Channel), "delivered").Inc()
			return finish(domain.Delivered, "")
		}

		metrics.DeliveryAttempts.WithLabelValues(string(contact.Channel), "failed").Inc()
		rec.LastError = err.Error()
		d.logger.Warn("Delivery attempt failed",
			zap.String("dispatch_id", dispatchID),
			zap.String("contact_id", contact.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if IsPermanent(err) {
			return finish(domain.Unreachable, domain.ReasonPermanent)
		}
		if attempt == maxAttempts {
			break
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return finish(domain.Unreachable, domain.ReasonTimeout)
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return finish(domain.Unreachable, domain.ReasonTimeout)
		}
	}
	return finish(domain.Unreachable, domain.ReasonExhausted)
}

// attempt runs one notifier call. The call is detached from the dispatch
// deadline so an attempt already started is allowed to complete.
func (d *Dispatcher) attempt(ctx context.Context, contact domain.ContactRef, msg Message) error {
	attemptCtx := context.WithoutCancel(ctx)
	if d.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(attemptCtx, d.policy.AttemptTimeout)
		defer cancel()
	}
	return d.notifier.Notify(attemptCtx, contact, msg)
}
