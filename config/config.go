// Package config loads the service configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full service configuration
type Config struct {
	AppName                       string `env:"APP_NAME" envDefault:"unchain-api"`
	Port                          int    `env:"PORT" envDefault:"3000"`
	LogLevel                      string `env:"LOG_LEVEL" envDefault:"info"`
	PrettyLogs                    bool   `env:"PRETTY_LOGS" envDefault:"false"`
	HTTPServerWriteTimeoutSeconds int    `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" envDefault:"10"`
	HTTPServerReadTimeoutSeconds  int    `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" envDefault:"10"`
	HTTPServerIdleTimeoutSeconds  int    `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" envDefault:"10"`

	// Database settings
	DatabaseHost                string        `env:"DB_HOST" envDefault:"localhost"`
	DatabasePort                string        `env:"DB_PORT" envDefault:"5432"`
	DatabaseUserName            string        `env:"DB_USER_NAME" envDefault:""`
	DatabasePassword            string        `env:"DB_PASSWORD" envDefault:""`
	DatabaseName                string        `env:"DB_NAME" envDefault:"unchain"`
	DatabaseSSLMode             string        `env:"DB_SSL_MODE" envDefault:"disable"`
	DatabaseMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DatabaseMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DatabaseConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"10s"`
	DatabaseMigrationFolderPath string        `env:"DB_MIGRATION_FOLDER_PATH" envDefault:"db/pg"`
	DatabaseMigrationVersion    uint          `env:"DB_MIGRATION_VERSION" envDefault:"0"`
	DatabaseMigrationForce      int           `env:"DB_MIGRATION_FORCE" envDefault:"0"`

	// Auth settings. When AuthEnabled is false the X-User-ID header is
	// honored for local development and tests.
	AuthEnabled   bool   `env:"AUTH_ENABLED" envDefault:"false"`
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" envDefault:""`
	AuthClientID  string `env:"AUTH_CLIENT_ID" envDefault:""`
	// OIDC login URL advertised on 401 responses
	AuthLoginURL string `env:"AUTH_LOGIN_URL" envDefault:""`

	// Redis settings
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka settings
	KafkaEnabled    bool   `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers    string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEventTopic string `env:"KAFKA_EVENT_TOPIC" envDefault:"unchain-flag-events"`

	// Audit integrity settings. An empty secret disables hash chaining and
	// signing; entries are still written.
	AuditSigningSecret string `env:"AUDIT_SIGNING_SECRET" envDefault:""`

	// Scheduler settings
	SchedulerEnabled      bool          `env:"SCHEDULER_ENABLED" envDefault:"true"`
	SchedulerPollInterval time.Duration `env:"SCHEDULER_POLL_INTERVAL" envDefault:"1m"`

	// Tracing settings
	OTLPEnabled  bool   `env:"OTLP_ENABLED" envDefault:"false"`
	OTLPEndpoint string `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTLPProtocol string `env:"OTLP_PROTOCOL" envDefault:"grpc"`
	OTLPInsecure bool   `env:"OTLP_INSECURE" envDefault:"true"`
}

// Load reads .env (when present) and then the process environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
