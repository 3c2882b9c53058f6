package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sanatrack/safety-engine/internal/domain"
	"sanatrack/safety-engine/internal/store"
)

type fakeArchive struct {
	mu       sync.Mutex
	batches  [][]domain.TelemetrySample
	statuses []domain.StatusChange
	alerts   []*domain.Alert
	failures int
}

func (a *fakeArchive) BatchInsert(_ context.Context, samples []domain.TelemetrySample) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failures > 0 {
		a.failures--
		return errors.New("connection reset")
	}
	a.batches = append(a.batches, append([]domain.TelemetrySample(nil), samples...))
	return nil
}

func (a *fakeArchive) InsertStatusChange(_ context.Context, c domain.StatusChange) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statuses = append(a.statuses, c)
	return nil
}

func (a *fakeArchive) UpsertAlert(_ context.Context, al *domain.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, al)
	return nil
}

func sampleEvent(entityID string, at time.Time) Event {
	s := sample(entityID, at, 80, true)
	return Event{Kind: EventSample, EntityID: entityID, At: at, Sample: &s}
}

func TestArchiveWriter_BatchesSamples(t *testing.T) {
	ch := make(chan Event, 16)
	db := &fakeArchive{}
	w := NewArchiveWriter(ch, db, zap.NewNop(), 3, 10_000)

	for i := 0; i < 7; i++ {
		ch <- sampleEvent("e1", t0.Add(time.Duration(i)*time.Second))
	}
	change := domain.StatusChange{EntityID: "e1", At: t0, To: domain.StatusWarning}
	ch <- Event{Kind: EventStatus, EntityID: "e1", Status: &change}
	ch <- Event{Kind: EventAlertRaised, EntityID: "e1", Alert: &domain.Alert{ID: "a1", EntityID: "e1"}}
	ch <- Event{Kind: EventDelivery, EntityID: "e1"}
	close(ch)

	w.Run(context.Background())

	require.Len(t, db.batches, 3)
	assert.Len(t, db.batches[0], 3)
	assert.Len(t, db.batches[1], 3)
	assert.Len(t, db.batches[2], 1)
	assert.Len(t, db.statuses, 1)
	assert.Len(t, db.alerts, 1)
}

func TestArchiveWriter_RetriesOnce(t *testing.T) {
	ch := make(chan Event, 4)
	db := &fakeArchive{failures: 1}
	w := NewArchiveWriter(ch, db, zap.NewNop(), 1, 10_000)
	w.retryDelay = time.Millisecond

	ch <- sampleEvent("e1", t0)
	close(ch)
	w.Run(context.Background())

	assert.Len(t, db.batches, 1)
}

func TestArchiveWriter_FlushesOnTicker(t *testing.T) {
	ch := make(chan Event, 4)
	db := &fakeArchive{}
	w := NewArchiveWriter(ch, db, zap.NewNop(), 100, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	ch <- sampleEvent("e1", t0)
	assert.Eventually(t, func() bool {
		db.mu.Lock()
		defer db.mu.Unlock()
		return len(db.batches) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestStateWriter_MirrorsEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rs := store.NewRedisStoreFromClient(client, time.Hour)

	ch := make(chan Event, 8)
	w := NewStateWriter(ch, rs, zap.NewNop())

	ch <- sampleEvent("e1", t0)
	change := domain.StatusChange{EntityID: "e1", At: t0, From: domain.StatusSafe, To: domain.StatusDanger}
	ch <- Event{Kind: EventStatus, EntityID: "e1", Status: &change}
	ch <- Event{Kind: EventAlertRaised, EntityID: "e1", Alert: &domain.Alert{ID: "a1", EntityID: "e1", Kind: domain.AlertBattery}}
	close(ch)

	w.Run(context.Background())

	ctx := context.Background()
	state, err := rs.GetState(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "DANGER", state["status"])
	assert.Equal(t, "80", state["battery_pct"])

	ids, err := rs.ActiveAlertIDs(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids)
}

func TestFanout_DropsWhenFull(t *testing.T) {
	f := NewFanout(1, 0, 2)

	f.Publish(sampleEvent("e1", t0))
	f.Publish(sampleEvent("e1", t0.Add(time.Second)))

	assert.Len(t, f.ArchiveChan, 1)
	assert.Len(t, f.StreamChan, 2)
	assert.Nil(t, f.StateChan)

	f.Close()
	_, ok := <-f.ArchiveChan
	assert.True(t, ok)
	_, ok = <-f.ArchiveChan
	assert.False(t, ok)
}

func TestFanout_PublishAfterCloseIsDropped(t *testing.T) {
	f := NewFanout(4, 4, 4)
	f.Close()
	f.Close()

	assert.NotPanics(t, func() {
		f.Publish(Event{Kind: EventDelivery, EntityID: "e1", At: t0})
	})
	_, ok := <-f.StreamChan
	assert.False(t, ok)
}

func TestSweeper_InvalidSchedule(t *testing.T) {
	f := newFixture(t)
	_, err := NewSweeper(f.p, "every now and then", zap.NewNop())
	assert.Error(t, err)

	s, err := NewSweeper(f.p, "@every 1h", zap.NewNop())
	require.NoError(t, err)
	s.Start()
	<-s.Stop().Done()
}
