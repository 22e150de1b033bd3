package config

import (
	"os"
	"strconv"
	"time"

	pstrings "guardrail/pkg/platform/strings"
)

// Storage backends for usage and workflow state.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Server captures process level configuration.
type Server struct {
	Addr     string
	LogLevel string

	// Backend selects the usage store; overdraft, notification and audit
	// state live in Postgres unless Backend is memory.
	Backend     string
	PostgresDSN string
	Redis       RedisConfig
	Kafka       KafkaConfig

	PolicyDir     string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	AdminToken    string
	AuditChainKey string

	ReserveTimeout        time.Duration
	SweepInterval         time.Duration
	RedeliverInterval     time.Duration
	NotificationQueueSize int

	ArchivePath  string
	ArchiveAfter time.Duration
}

// RedisConfig configures the Redis usage store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the notification producer. Empty Brokers selects
// the log deliverer.
type KafkaConfig struct {
	Brokers           []string
	ClientID          string
	NotificationTopic string
	Partitions        int32
	ReplicationFactor int16
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("GUARDRAIL_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}
	chainKey := os.Getenv("GUARDRAIL_AUDIT_CHAIN_KEY")
	if chainKey == "" {
		chainKey = "dev-audit-chain-key"
	}

	return Server{
		Addr:          envOr("GUARDRAIL_ADDR", ":8080"),
		LogLevel:      envOr("GUARDRAIL_LOG_LEVEL", "info"),
		Backend:       envOr("GUARDRAIL_BACKEND", BackendMemory),
		PostgresDSN:   os.Getenv("GUARDRAIL_POSTGRES_DSN"),
		PolicyDir:     os.Getenv("GUARDRAIL_POLICY_DIR"),
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     envOr("GUARDRAIL_JWT_ISSUER", "guardrail-admin"),
		JWTAudience:   envOr("GUARDRAIL_JWT_AUDIENCE", "guardrail"),
		AdminToken:    os.Getenv("GUARDRAIL_ADMIN_TOKEN"),
		AuditChainKey: chainKey,

		ReserveTimeout:        durationOr("GUARDRAIL_RESERVE_TIMEOUT", 2*time.Second),
		SweepInterval:         durationOr("GUARDRAIL_SWEEP_INTERVAL", time.Minute),
		RedeliverInterval:     durationOr("GUARDRAIL_REDELIVER_INTERVAL", 5*time.Minute),
		NotificationQueueSize: intOr("GUARDRAIL_NOTIFICATION_QUEUE", 256),

		ArchivePath:  os.Getenv("GUARDRAIL_ARCHIVE_PATH"),
		ArchiveAfter: durationOr("GUARDRAIL_ARCHIVE_AFTER", 90*24*time.Hour),

		Redis: RedisConfig{
			URL:          os.Getenv("GUARDRAIL_REDIS_URL"),
			PoolSize:     intOr("GUARDRAIL_REDIS_POOL_SIZE", 20),
			MinIdleConns: intOr("GUARDRAIL_REDIS_MIN_IDLE", 2),
			DialTimeout:  durationOr("GUARDRAIL_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationOr("GUARDRAIL_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationOr("GUARDRAIL_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           pstrings.SplitList(os.Getenv("GUARDRAIL_KAFKA_BROKERS")),
			ClientID:          envOr("GUARDRAIL_KAFKA_CLIENT_ID", "guardrail"),
			NotificationTopic: envOr("GUARDRAIL_KAFKA_TOPIC", "guardrail.minor-notifications"),
			Partitions:        int32(intOr("GUARDRAIL_KAFKA_PARTITIONS", 3)),
			ReplicationFactor: int16(intOr("GUARDRAIL_KAFKA_REPLICATION", 1)),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}

func intOr(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return fallback
}

