package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sanatrack/safety-engine/internal/domain"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStoreFromClient(client, time.Hour)
}

func TestRedisStore_PipelineStateUpdate(t *testing.T) {
	mr, rs := setupTestRedis(t)
	ctx := context.Background()

	s := sampleAt("e1", 0, 64)
	s.ReceivedAt = t0.Add(time.Second)
	require.NoError(t, rs.PipelineStateUpdate(ctx, s))

	state, err := rs.GetState(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "e1", state["entity_id"])
	assert.Equal(t, "64", state["battery_pct"])
	assert.Equal(t, "1", state["online"])

	assert.Equal(t, time.Hour, mr.TTL("entity:e1:state"))
}

func TestRedisStore_SetStatusKeepsSampleFields(t *testing.T) {
	_, rs := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, rs.PipelineStateUpdate(ctx, sampleAt("e1", 0, 50)))
	require.NoError(t, rs.SetStatus(ctx, domain.StatusChange{
		EntityID: "e1", At: t0, To: domain.StatusWarning,
	}))

	state, err := rs.GetState(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "WARNING", state["status"])
	assert.Equal(t, "50", state["battery_pct"])
}

func TestRedisStore_SyncAlert(t *testing.T) {
	_, rs := setupTestRedis(t)
	ctx := context.Background()

	a := &domain.Alert{ID: "a1", EntityID: "e1", Kind: domain.AlertBattery, Severity: domain.StatusWarning}
	require.NoError(t, rs.SyncAlert(ctx, a))

	ids, err := rs.ActiveAlertIDs(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids)

	resolved := t0
	a.ResolvedAt = &resolved
	require.NoError(t, rs.SyncAlert(ctx, a))

	ids, err = rs.ActiveAlertIDs(ctx, "e1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRedisStore_SyncAlertPublishes(t *testing.T) {
	_, rs := setupTestRedis(t)
	ctx := context.Background()

	sub := rs.Client().Subscribe(ctx, "entity:e1:alert_events")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	a := &domain.Alert{ID: "a1", EntityID: "e1", Kind: domain.AlertManual, Severity: domain.StatusDanger}
	require.NoError(t, rs.SyncAlert(ctx, a))

	select {
	case msg := <-sub.Channel():
		assert.Contains(t, msg.Payload, `"id":"a1"`)
	case <-time.After(2 * time.Second):
		t.Fatal("no alert published")
	}
}

func TestRedisStore_Nearby(t *testing.T) {
	_, rs := setupTestRedis(t)
	ctx := context.Background()

	near := sampleAt("near", 0, 80)
	far := sampleAt("far", 0, 80)
	far.Location = domain.Coordinate{Lat: -33.92, Lng: 18.42}
	require.NoError(t, rs.PipelineStateUpdate(ctx, near))
	require.NoError(t, rs.PipelineStateUpdate(ctx, far))

	ids, err := rs.Nearby(ctx, domain.Coordinate{Lat: -26.2, Lng: 28.04}, 1000)
	require.NoError(t, err)
	assert.Equal(t, []string{"near"}, ids)
}
