package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Server captures process level configuration.
type Server struct {
	Addr            string        `env:"CHECKIN_ADDR" envDefault:":4000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigin      string        `env:"CORS_ORIGIN" envDefault:"*"`

	Database DatabaseConfig
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Kafka    KafkaConfig
	Log      LogConfig `envPrefix:"LOG_"`

	// ReportCutoff is the last timeslot date (dd/mm/yyyy) included in date reports.
	ReportCutoff   string        `env:"REPORT_CUTOFF" envDefault:"15/02/2026"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"10m"`
	OTELEndpoint   string        `env:"OTEL_ENDPOINT"`
}

// DatabaseConfig configures the candidate store. An empty URL selects the
// in-memory store, seeded from RosterCSV when set.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	RosterCSV       string        `env:"ROSTER_CSV"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig configures the shared Redis client. An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures the audit sink. No brokers selects the in-memory sink.
type KafkaConfig struct {
	Brokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
	AuditTopic  string   `env:"AUDIT_TOPIC" envDefault:"checkin.audit"`
	AuditBuffer int      `env:"AUDIT_BUFFER" envDefault:"256"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// FromEnv loads an optional .env file and then parses the environment.
// Variables already set in the environment win over .env entries.
func FromEnv() (Server, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Server{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads configuration from the process environment only.
func Parse() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.IdempotencyTTL <= 0 {
		return Server{}, errors.New("IDEMPOTENCY_TTL must be positive")
	}
	return cfg, nil
}
