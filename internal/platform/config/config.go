package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config gathers every tunable the server and worker processes need so main
// stays lean and nothing reads the environment after startup.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Webhook  WebhookConfig
	Jobs     JobsConfig
	Crypto   CryptoConfig
	Admin    AdminConfig
	Stats    StatsConfig
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// PostgresConfig configures the shared database pool.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the shared Redis client. An empty URL disables Redis
// backed features (distributed locks fall back to in-process locking, stats
// are computed uncached).
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit outbox publisher. Empty brokers disable
// publishing; outbox rows still accumulate for a later drain.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// WebhookConfig configures bank confirmation webhook verification.
type WebhookConfig struct {
	Secret       string
	MaxBodyBytes int64
}

// JobsConfig configures the background processing pipeline.
type JobsConfig struct {
	Workers     int
	QueueSize   int
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	LockLease   time.Duration
}

// CryptoConfig holds key material for field encryption and document hashing.
type CryptoConfig struct {
	FieldKey        string
	DocumentHashKey string
}

// AdminConfig guards privileged endpoints (soft delete).
type AdminConfig struct {
	JWTSigningKey string
}

// StatsConfig tunes the statistics read cache.
type StatsConfig struct {
	CacheTTL time.Duration
}

// FromEnv builds a Config from environment variables with development
// defaults. Secrets default to obviously-unsafe values so a misconfigured
// deployment is visible in logs rather than silently unauthenticated.
func FromEnv() Config {
	return Config{
		Server: ServerConfig{
			Addr:            getString("LOANFLOW_ADDR", ":8080"),
			ShutdownTimeout: getDuration("LOANFLOW_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: PostgresConfig{
			URL:             getString("LOANFLOW_POSTGRES_URL", ""),
			MaxOpenConns:    getInt("LOANFLOW_POSTGRES_MAX_OPEN", 25),
			MaxIdleConns:    getInt("LOANFLOW_POSTGRES_MAX_IDLE", 5),
			ConnMaxLifetime: getDuration("LOANFLOW_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          getString("LOANFLOW_REDIS_URL", ""),
			PoolSize:     getInt("LOANFLOW_REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("LOANFLOW_REDIS_MIN_IDLE", 2),
			DialTimeout:  getDuration("LOANFLOW_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("LOANFLOW_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("LOANFLOW_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    getStrings("LOANFLOW_KAFKA_BROKERS"),
			AuditTopic: getString("LOANFLOW_KAFKA_AUDIT_TOPIC", "loanflow.audit"),
		},
		Webhook: WebhookConfig{
			Secret:       getString("LOANFLOW_WEBHOOK_SECRET", "dev-webhook-secret-change-in-production"),
			MaxBodyBytes: int64(getInt("LOANFLOW_WEBHOOK_MAX_BODY_BYTES", 64*1024)),
		},
		Jobs: JobsConfig{
			Workers:     getInt("LOANFLOW_JOB_WORKERS", 4),
			QueueSize:   getInt("LOANFLOW_JOB_QUEUE_SIZE", 256),
			MaxRetries:  getInt("LOANFLOW_JOB_MAX_RETRIES", 3),
			BaseBackoff: getDuration("LOANFLOW_JOB_BASE_BACKOFF", time.Second),
			MaxBackoff:  getDuration("LOANFLOW_JOB_MAX_BACKOFF", time.Minute),
			LockLease:   getDuration("LOANFLOW_JOB_LOCK_LEASE", 30*time.Second),
		},
		Crypto: CryptoConfig{
			FieldKey:        getString("LOANFLOW_FIELD_KEY", "dev-field-key-32-bytes-change-me"),
			DocumentHashKey: getString("LOANFLOW_DOCUMENT_HASH_KEY", "dev-document-hash-key-change-me"),
		},
		Admin: AdminConfig{
			JWTSigningKey: getString("LOANFLOW_ADMIN_JWT_KEY", "dev-secret-key-change-in-production"),
		},
		Stats: StatsConfig{
			CacheTTL: getDuration("LOANFLOW_STATS_CACHE_TTL", time.Minute),
		},
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getStrings(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getInt(key string, fallback int) int {
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

func getDuration(key string, fallback time.Duration) time.Duration {
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
