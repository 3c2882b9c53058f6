package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sanatrack/safety-engine/internal/domain"
	"sanatrack/safety-engine/internal/metrics"
)

// Archive is the durable copy of the pipeline's output.
type Archive interface {
	BatchInsert(ctx context.Context, samples []domain.TelemetrySample) error
	InsertStatusChange(ctx context.Context, c domain.StatusChange) error
	UpsertAlert(ctx context.Context, a *domain.Alert) error
}

// ArchiveWriter batches samples for COPY and writes status changes and
// alert updates as they arrive.
type ArchiveWriter struct {
	ch         <-chan Event
	db         Archive
	logger     *zap.Logger
	batchSize  int
	flushMS    int
	retryDelay time.Duration
}

func NewArchiveWriter(
	ch <-chan Event,
	db Archive,
	logger *zap.Logger,
	batchSize int,
	flushMS int,
) *ArchiveWriter {
	if batchSize <= 0 {
		batchSize = 1
	}
	if flushMS <= 0 {
		flushMS = 1000
	}
	return &ArchiveWriter{
		ch:         ch,
		db:         db,
		logger:     logger,
		batchSize:  batchSize,
		flushMS:    flushMS,
		retryDelay: 500 * time.Millisecond,
	}
}

func (w *ArchiveWriter) Run(ctx context.Context) {
	batch := make([]domain.TelemetrySample, 0, w.batchSize)
	ticker := time.NewTicker(time.Duration(w.flushMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-w.ch:
			if !ok {
				if len(batch) > 0 {
					w.flush(ctx, batch)
				}
				return
			}
			if ev.Kind != EventSample {
				w.write(ctx, ev)
				continue
			}
			batch = append(batch, *ev.Sample)
			if len(batch) >= w.batchSize {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			if len(batch) > 0 {
				w.flush(context.WithoutCancel(ctx), batch)
			}
			return
		}
	}
}

func (w *ArchiveWriter) write(ctx context.Context, ev Event) {
	var err error
	switch ev.Kind {
	case EventStatus:
		err = w.db.InsertStatusChange(ctx, *ev.Status)
	case EventAlertRaised, EventAlertUpdated, EventAlertResolved:
		err = w.db.UpsertAlert(ctx, ev.Alert)
	default:
		return
	}
	if err != nil {
		w.logger.Error("Archive write failed",
			zap.String("event", string(ev.Kind)),
			zap.String("entity_id", ev.EntityID),
			zap.Error(err),
		)
		metrics.ArchiveWrites.WithLabelValues("failure").Inc()
		return
	}
	metrics.ArchiveWrites.WithLabelValues("success").Inc()
}

func (w *ArchiveWriter) flush(ctx context.Context, batch []domain.TelemetrySample) {
	err := w.db.BatchInsert(ctx, batch)
	if err != nil {
		w.logger.Warn("Archive batch failed, retrying", zap.Int("batch", len(batch)), zap.Error(err))
		time.Sleep(w.retryDelay)
		err = w.db.BatchInsert(ctx, batch)
		if err != nil {
			w.logger.Error("Archive batch permanently failed", zap.Int("batch", len(batch)), zap.Error(err))
			metrics.ArchiveWrites.WithLabelValues("failure").Add(float64(len(batch)))
			return
		}
	}
	metrics.ArchiveWrites.WithLabelValues("success").Add(float64(len(batch)))
}
