package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sanatrack/safety-engine/internal/domain"
)

// LiveState is the dashboard-facing mirror of entity state.
type LiveState interface {
	PipelineStateUpdate(ctx context.Context, s domain.TelemetrySample) error
	SetStatus(ctx context.Context, c domain.StatusChange) error
	SyncAlert(ctx context.Context, a *domain.Alert) error
}

type StateWriter struct {
	ch     <-chan Event
	state  LiveState
	logger *zap.Logger
}

func NewStateWriter(ch <-chan Event, state LiveState, logger *zap.Logger) *StateWriter {
	return &StateWriter{ch: ch, state: state, logger: logger}
}

func (w *StateWriter) Run(ctx context.Context) {
	batch := make([]Event, 0, 100)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-w.ch:
			if !ok {
				w.flushBatch(ctx, batch)
				return
			}
			batch = append(batch, ev)
			if len(batch) >= 100 {
				w.flushBatch(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flushBatch(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			w.flushBatch(context.WithoutCancel(ctx), batch)
			return
		}
	}
}

// flushBatch applies events in arrival order so the mirror ends on the
// latest value for each key.
func (w *StateWriter) flushBatch(ctx context.Context, batch []Event) {
	for _, ev := range batch {
		var err error
		switch ev.Kind {
		case EventSample:
			err = w.state.PipelineStateUpdate(ctx, *ev.Sample)
		case EventStatus:
			err = w.state.SetStatus(ctx, *ev.Status)
		case EventAlertRaised, EventAlertUpdated, EventAlertResolved:
			err = w.state.SyncAlert(ctx, ev.Alert)
		}
		if err != nil {
			w.logger.Warn("Live state update failed",
				zap.String("event", string(ev.Kind)),
				zap.String("entity_id", ev.EntityID),
				zap.Error(err),
			)
		}
	}
}
