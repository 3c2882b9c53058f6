package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sanatrack/safety-engine/internal/config"
	"sanatrack/safety-engine/internal/domain"
)

// TimescaleStore archives telemetry, status changes and alerts. It is a
// write-behind copy; the in-memory stores answer every query.
type TimescaleStore struct {
	pool *pgxpool.Pool
}

// DSN builds the pool connection string from config.
func DSN(cfg *config.Config) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBMaxConns,
	)
}

func NewTimescaleStore(ctx context.Context, cfg *config.Config) (*TimescaleStore, error) {
	pool, err := pgxpool.New(ctx, DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &TimescaleStore{pool: pool}, nil
}

// NewTimescaleStoreFromPool wraps an existing pool, sharing it with other
// readers such as the contact directory.
func NewTimescaleStoreFromPool(pool *pgxpool.Pool) *TimescaleStore {
	return &TimescaleStore{pool: pool}
}

func (s *TimescaleStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *TimescaleStore) Close() {
	s.pool.Close()
}

func (s *TimescaleStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var telemetryColumns = []string{
	"timestamp",
	"entity_id",
	"latitude",
	"longitude",
	"battery_pct",
	"online",
	"received_at",
}

func (s *TimescaleStore) BatchInsert(ctx context.Context, samples []domain.TelemetrySample) error {
	if len(samples) == 0 {
		return nil
	}

	rows := make([][]any, len(samples))
	for i, m := range samples {
		rows[i] = []any{
			m.Timestamp,
			m.EntityID,
			m.Location.Lat,
			m.Location.Lng,
			m.BatteryPct,
			m.Online,
			m.ReceivedAt,
		}
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"entity_telemetry"},
		telemetryColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("CopyFrom failed for batch of %d: %w", len(samples), err)
	}

	return nil
}

func (s *TimescaleStore) InsertStatusChange(ctx context.Context, c domain.StatusChange) error {
	query := `
		INSERT INTO entity_status_changes
			(entity_id, changed_at, from_status, to_status)
		VALUES
			($1, $2, NULLIF($3, ''), $4)
	`
	_, err := s.pool.Exec(ctx, query, c.EntityID, c.At, string(c.From), string(c.To))
	return err
}

// UpsertAlert writes the alert row, overwriting the mutable columns on
// escalation, resolution and delivery updates.
func (s *TimescaleStore) UpsertAlert(ctx context.Context, a *domain.Alert) error {
	deliveries, err := json.Marshal(a.Deliveries)
	if err != nil {
		return fmt.Errorf("failed to marshal deliveries: %w", err)
	}

	query := `
		INSERT INTO entity_alerts
			(id, entity_id, kind, severity, raised_at, updated_at, resolved_at,
			 message, actor_id, reason, deliveries)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			severity    = EXCLUDED.severity,
			updated_at  = EXCLUDED.updated_at,
			resolved_at = EXCLUDED.resolved_at,
			deliveries  = EXCLUDED.deliveries
	`
	_, err = s.pool.Exec(
		ctx,
		query,
		a.ID,
		a.EntityID,
		string(a.Kind),
		string(a.Severity),
		a.RaisedAt,
		a.UpdatedAt,
		a.ResolvedAt,
		a.Message,
		a.ActorID,
		string(a.Reason),
		deliveries,
	)
	return err
}
