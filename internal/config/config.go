package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP
	HTTPPort string

	// TimescaleDB archive
	ArchiveEnabled bool
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBMaxConns     int32

	// Redis live state
	StateEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StateTTL      time.Duration

	// MQTT device ingest
	MQTTEnabled  bool
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTTopic    string
	MQTTQoS      byte

	// Status rules
	StaleThreshold     time.Duration
	LowBatteryPct      int
	GeofenceEscalation time.Duration
	SweepSpec          string

	// Notification dispatch
	DispatchMaxAttempts    int
	DispatchInitialBackoff time.Duration
	DispatchMaxBackoff     time.Duration
	DispatchMultiplier     float64
	DispatchDeadline       time.Duration
	DispatchAttemptTimeout time.Duration
	DispatchMaxWorkers     int
	VoiceGatewayURL        string
	MessageGatewayURL      string
	GatewayToken           string

	// Contacts
	ContactsSource   string
	ContactsCacheTTL time.Duration

	// Sink channels
	ArchiveChannelSize int
	StateChannelSize   int
	StreamChannelSize  int

	// Archive batch writer tuning
	DBBatchSize       int
	DBFlushIntervalMS int

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads .env when present, then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPPort:               getEnv("HTTP_PORT", "8001"),
		ArchiveEnabled:         getEnvBool("ARCHIVE_ENABLED", false),
		DBHost:                 getEnv("DB_HOST", "localhost"),
		DBPort:                 getEnv("DB_PORT", "5432"),
		DBUser:                 getEnv("DB_USER", "safety_user"),
		DBPassword:             getEnv("DB_PASSWORD", "safety_password"),
		DBName:                 getEnv("DB_NAME", "safety_engine"),
		DBMaxConns:             int32(getEnvInt("DB_MAX_CONNS", 15)),
		StateEnabled:           getEnvBool("STATE_ENABLED", false),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisDB:                getEnvInt("REDIS_DB", 0),
		StateTTL:               getEnvDuration("STATE_TTL", 24*time.Hour),
		MQTTEnabled:            getEnvBool("MQTT_ENABLED", false),
		MQTTBroker:             getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:           getEnv("MQTT_CLIENT_ID", "safety-engine"),
		MQTTUsername:           getEnv("MQTT_USERNAME", ""),
		MQTTPassword:           getEnv("MQTT_PASSWORD", ""),
		MQTTTopic:              getEnv("MQTT_TOPIC", "devices/+/telemetry"),
		MQTTQoS:                byte(getEnvInt("MQTT_QOS", 1)),
		StaleThreshold:         getEnvDuration("STALE_THRESHOLD", 10*time.Minute),
		LowBatteryPct:          getEnvInt("LOW_BATTERY_PCT", 20),
		GeofenceEscalation:     getEnvDuration("GEOFENCE_ESCALATION", 5*time.Minute),
		SweepSpec:              getEnv("SWEEP_SPEC", "@every 30s"),
		DispatchMaxAttempts:    getEnvInt("DISPATCH_MAX_ATTEMPTS", 3),
		DispatchInitialBackoff: getEnvDuration("DISPATCH_INITIAL_BACKOFF", 500*time.Millisecond),
		DispatchMaxBackoff:     getEnvDuration("DISPATCH_MAX_BACKOFF", 10*time.Second),
		DispatchMultiplier:     getEnvFloat("DISPATCH_BACKOFF_MULTIPLIER", 2),
		DispatchDeadline:       getEnvDuration("DISPATCH_DEADLINE", time.Minute),
		DispatchAttemptTimeout: getEnvDuration("DISPATCH_ATTEMPT_TIMEOUT", 15*time.Second),
		DispatchMaxWorkers:     getEnvInt("DISPATCH_MAX_WORKERS", 8),
		VoiceGatewayURL:        getEnv("VOICE_GATEWAY_URL", ""),
		MessageGatewayURL:      getEnv("MESSAGE_GATEWAY_URL", ""),
		GatewayToken:           getEnv("GATEWAY_TOKEN", ""),
		ContactsSource:         getEnv("CONTACTS_SOURCE", "memory"),
		ContactsCacheTTL:       getEnvDuration("CONTACTS_CACHE_TTL", 5*time.Minute),
		ArchiveChannelSize:     getEnvInt("ARCHIVE_CHANNEL_SIZE", 10000),
		StateChannelSize:       getEnvInt("STATE_CHANNEL_SIZE", 10000),
		StreamChannelSize:      getEnvInt("STREAM_CHANNEL_SIZE", 1000),
		DBBatchSize:            getEnvInt("DB_BATCH_SIZE", 500),
		DBFlushIntervalMS:      getEnvInt("DB_FLUSH_INTERVAL_MS", 100),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "json"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
