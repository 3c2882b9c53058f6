package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sanatrack/safety-engine/internal/config"
	"sanatrack/safety-engine/internal/domain"
)

// RedisStore mirrors live entity state for dashboards: latest sample,
// current status, open alert ids and a geo index of last known positions.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

const geoKey = "entities:geo"

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: cfg.StateTTL}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Client() *redis.Client {
	return r.client
}

func stateKey(entityID string) string {
	return fmt.Sprintf("entity:%s:state", entityID)
}

func alertsKey(entityID string) string {
	return fmt.Sprintf("entity:%s:alerts", entityID)
}

func telemetryChannel(entityID string) string {
	return fmt.Sprintf("entity:%s:telemetry", entityID)
}

func statusChannel(entityID string) string {
	return fmt.Sprintf("entity:%s:status", entityID)
}

func alertChannel(entityID string) string {
	return fmt.Sprintf("entity:%s:alert_events", entityID)
}

func (r *RedisStore) PipelineStateUpdate(ctx context.Context, s domain.TelemetrySample) error {
	stateData := map[string]any{
		"entity_id":   s.EntityID,
		"lat":         s.Location.Lat,
		"lng":         s.Location.Lng,
		"battery_pct": s.BatteryPct,
		"online":      s.Online,
		"timestamp":   s.Timestamp.Unix(),
		"received_at": s.ReceivedAt.Unix(),
	}

	pubPayload, err := json.Marshal(stateData)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	key := stateKey(s.EntityID)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, stateData)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      s.EntityID,
		Longitude: s.Location.Lng,
		Latitude:  s.Location.Lat,
	})
	pipe.Publish(ctx, telemetryChannel(s.EntityID), pubPayload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

func (r *RedisStore) SetStatus(ctx context.Context, c domain.StatusChange) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal status change: %w", err)
	}

	key := stateKey(c.EntityID)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, "status", string(c.To), "status_at", c.At.Unix())
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	pipe.Publish(ctx, statusChannel(c.EntityID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis status update failed: %w", err)
	}
	return nil
}

func (r *RedisStore) GetState(ctx context.Context, entityID string) (map[string]string, error) {
	val, err := r.client.HGetAll(ctx, stateKey(entityID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get state failed: %w", err)
	}
	return val, nil
}

// SyncAlert keeps the open-alert set in step with the ledger and publishes
// the alert on the entity's alert channel.
func (r *RedisStore) SyncAlert(ctx context.Context, a *domain.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	pipe := r.client.Pipeline()
	if a.Resolved() {
		pipe.SRem(ctx, alertsKey(a.EntityID), a.ID)
	} else {
		pipe.SAdd(ctx, alertsKey(a.EntityID), a.ID)
	}
	pipe.Publish(ctx, alertChannel(a.EntityID), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis alert sync failed: %w", err)
	}
	return nil
}

func (r *RedisStore) ActiveAlertIDs(ctx context.Context, entityID string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, alertsKey(entityID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis active alerts failed: %w", err)
	}
	return ids, nil
}

// Nearby lists entities whose last known position is within radius meters.
func (r *RedisStore) Nearby(ctx context.Context, c domain.Coordinate, radius float64) ([]string, error) {
	locs, err := r.client.GeoRadius(ctx, geoKey, c.Lng, c.Lat, &redis.GeoRadiusQuery{
		Radius: radius,
		Unit:   "m",
		Sort:   "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis geo search failed: %w", err)
	}
	ids := make([]string, len(locs))
	for i, l := range locs {
		ids[i] = l.Name
	}
	return ids, nil
}
