package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		dbGetEnv("DB_USER", "safety_user"),
		dbGetEnv("DB_PASSWORD", "safety_password"),
		dbGetEnv("DB_HOST", "localhost"),
		dbGetEnv("DB_PORT", "5432"),
		dbGetEnv("DB_NAME", "safety_engine"),
	)

	ctx := context.Background()

	fmt.Println("Connecting to TimescaleDB...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure TimescaleDB is running:\n  docker-compose up -d timescaledb", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	step1_extensions(ctx, conn)
	step2_telemetry_table(ctx, conn)
	step3_status_table(ctx, conn)
	step4_alerts_table(ctx, conn)
	step5_contacts_tables(ctx, conn)
	step6_indexes(ctx, conn)
	step7_verify(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run ./scripts/seed_demo")
}

// ─────────────────────────────────────────────────────────────
// Step 1: Extensions
// ─────────────────────────────────────────────────────────────
func step1_extensions(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: Extensions ──────────────────────────")

	execOrFatal(ctx, conn,
		"CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;",
		"timescaledb extension",
	)
}

// ─────────────────────────────────────────────────────────────
// Step 2: entity_telemetry hypertable
// ─────────────────────────────────────────────────────────────
func step2_telemetry_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: entity_telemetry table ──────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS entity_telemetry (
			-- Device clock; partition key
			timestamp    TIMESTAMPTZ      NOT NULL,
			-- Server clock at ingest
			received_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW(),

			entity_id    TEXT             NOT NULL,
			latitude     DOUBLE PRECISION NOT NULL,
			longitude    DOUBLE PRECISION NOT NULL,
			battery_pct  SMALLINT         NOT NULL,
			online       BOOLEAN          NOT NULL,

			CONSTRAINT chk_battery CHECK (battery_pct BETWEEN 0 AND 100)
		);
	`, "entity_telemetry table created")

	execOrFatal(ctx, conn, `
		SELECT create_hypertable(
			'entity_telemetry',
			'timestamp',
			if_not_exists => TRUE
		);
	`, "entity_telemetry converted to hypertable")
}

// ─────────────────────────────────────────────────────────────
// Step 3: entity_status_changes
// ─────────────────────────────────────────────────────────────
func step3_status_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: entity_status_changes table ─────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS entity_status_changes (
			id           BIGSERIAL   PRIMARY KEY,
			entity_id    TEXT        NOT NULL,
			changed_at   TIMESTAMPTZ NOT NULL,
			-- NULL for the first evaluation of an entity
			from_status  TEXT,
			to_status    TEXT        NOT NULL,

			CONSTRAINT chk_to_status CHECK (to_status IN ('SAFE', 'WARNING', 'DANGER'))
		);
	`, "entity_status_changes table created")
}

// ─────────────────────────────────────────────────────────────
// Step 4: entity_alerts
// ─────────────────────────────────────────────────────────────
func step4_alerts_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 4: entity_alerts table ─────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS entity_alerts (
			-- Ledger-assigned UUID; upserts key on it
			id           TEXT        PRIMARY KEY,
			entity_id    TEXT        NOT NULL,
			kind         TEXT        NOT NULL,
			severity     TEXT        NOT NULL,
			raised_at    TIMESTAMPTZ NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL,
			resolved_at  TIMESTAMPTZ,

			-- MANUAL alerts only
			message      TEXT        NOT NULL DEFAULT '',
			actor_id     TEXT        NOT NULL DEFAULT '',
			reason       TEXT        NOT NULL DEFAULT '',

			-- Per-contact delivery records, replaced on every dispatch
			deliveries   JSONB       NOT NULL DEFAULT '[]',

			CONSTRAINT chk_kind CHECK (kind IN ('LOCATION', 'BATTERY', 'STALE', 'MANUAL')),
			CONSTRAINT chk_severity CHECK (severity IN ('SAFE', 'WARNING', 'DANGER'))
		);
	`, "entity_alerts table created")
}

// ─────────────────────────────────────────────────────────────
// Step 5: contacts and entity_contacts
// ─────────────────────────────────────────────────────────────
func step5_contacts_tables(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 5: contact tables ──────────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS contacts (
			id        TEXT     PRIMARY KEY,
			name      TEXT     NOT NULL,
			-- Lower dispatches first
			priority  INTEGER  NOT NULL DEFAULT 0,
			channel   TEXT     NOT NULL,
			address   TEXT     NOT NULL,

			CONSTRAINT chk_channel CHECK (channel IN ('voice', 'message'))
		);
	`, "contacts table created")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS entity_contacts (
			entity_id   TEXT    NOT NULL,
			contact_id  TEXT    NOT NULL REFERENCES contacts (id) ON DELETE CASCADE,
			-- Tie-break between contacts of equal priority
			position    INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (entity_id, contact_id)
		);
	`, "entity_contacts table created")
}

// ─────────────────────────────────────────────────────────────
// Step 6: Indexes
// ─────────────────────────────────────────────────────────────
func step6_indexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 6: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_telemetry_entity_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_telemetry_entity_time
				  ON entity_telemetry (entity_id, timestamp DESC);`,
			why: "query: telemetry history for one entity",
		},
		{
			name: "idx_status_entity_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_status_entity_time
				  ON entity_status_changes (entity_id, changed_at DESC);`,
			why: "query: status history for one entity",
		},
		{
			name: "idx_alerts_entity_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_alerts_entity_time
				  ON entity_alerts (entity_id, raised_at DESC);`,
			why: "query: alert history for one entity",
		},
		{
			name: "idx_alerts_open",
			sql: `CREATE INDEX IF NOT EXISTS idx_alerts_open
				  ON entity_alerts (entity_id, kind)
				  WHERE resolved_at IS NULL;`,
			why: "query: open alerts only (partial index)",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql,
			fmt.Sprintf("%-32s ← %s", idx.name, idx.why),
		)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 7: Verify everything was created
// ─────────────────────────────────────────────────────────────
func step7_verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 7: Verification ────────────────────────")

	tables := []string{"entity_telemetry", "entity_status_changes", "entity_alerts", "contacts", "entity_contacts"}
	for _, table := range tables {
		var exists bool
		err := conn.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil || !exists {
			log.Fatalf("Table %s was not created: %v", table, err)
		}
		fmt.Printf("  ✓ table: %s\n", table)
	}

	var hypertableName string
	err := conn.QueryRow(ctx, `
		SELECT hypertable_name
		FROM timescaledb_information.hypertables
		WHERE hypertable_name = 'entity_telemetry'
	`).Scan(&hypertableName)
	if err != nil {
		log.Fatalf("entity_telemetry is not a hypertable: %v", err)
	}
	fmt.Printf("  ✓ hypertable: %s (time partitioned)\n", hypertableName)
}

// ─────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────

func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED: %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func dbGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
