package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Reservations ReservationsConfig
	Cron         CronConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Tracing      TracingConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Outbox.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"INVENTORY_APP_ENV" required:"true"`
	Port         string `envconfig:"INVENTORY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"INVENTORY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"INVENTORY_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma separated allow list for browser callers.
	CORSOrigins []string `envconfig:"INVENTORY_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind    string `envconfig:"INVENTORY_SERVICE_KIND" default:"api"`
	Version string `envconfig:"INVENTORY_SERVICE_VERSION" default:"dev"`
	// MetricsAddr exposes /metrics from background workers when set.
	MetricsAddr string `envconfig:"INVENTORY_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"INVENTORY_DB_DSN"`
	Driver string `envconfig:"INVENTORY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"INVENTORY_DB_HOST"`
	LegacyPort     int    `envconfig:"INVENTORY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"INVENTORY_DB_USER"`
	LegacyPassword string `envconfig:"INVENTORY_DB_PASSWORD"`
	LegacyName     string `envconfig:"INVENTORY_DB_NAME"`
	LegacySSLMode  string `envconfig:"INVENTORY_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"INVENTORY_SQLITE_PATH" default:"inventory.db"`

	MaxOpenConns    int           `envconfig:"INVENTORY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"INVENTORY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"INVENTORY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"INVENTORY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"INVENTORY_DB_SLOW_QUERY" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"INVENTORY_REDIS_URL"`
	Address      string        `envconfig:"INVENTORY_REDIS_ADDR"`
	Password     string        `envconfig:"INVENTORY_REDIS_PASSWORD"`
	DB           int           `envconfig:"INVENTORY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"INVENTORY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"INVENTORY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"INVENTORY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"INVENTORY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"INVENTORY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"INVENTORY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"INVENTORY_AUTO_MIGRATE" default:"false"`
}

// ReservationsConfig holds hold defaults. The TTL applies when a caller does
// not pass one.
type ReservationsConfig struct {
	DefaultTTL     time.Duration `envconfig:"INVENTORY_RESERVATION_TTL" default:"30m"`
	SweepBatchSize int           `envconfig:"INVENTORY_RESERVATION_SWEEP_BATCH" default:"500"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"INVENTORY_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"INVENTORY_CRON_LOCK_TTL" default:"5m"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"INVENTORY_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"INVENTORY_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	InventoryTopic     string `envconfig:"INVENTORY_PUBSUB_INVENTORY_TOPIC" default:"inventory-events"`
	OrdersSubscription string `envconfig:"INVENTORY_PUBSUB_ORDERS_SUBSCRIPTION"`
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"INVENTORY_KAFKA_BROKERS"`
	Topic        string        `envconfig:"INVENTORY_KAFKA_TOPIC" default:"inventory-events"`
	BatchTimeout time.Duration `envconfig:"INVENTORY_KAFKA_BATCH_TIMEOUT" default:"10ms"`
}

type OutboxConfig struct {
	Transport        string `envconfig:"INVENTORY_OUTBOX_TRANSPORT" default:"pubsub"`
	BatchSize        int    `envconfig:"INVENTORY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS   int    `envconfig:"INVENTORY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts      int    `envconfig:"INVENTORY_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays    int    `envconfig:"INVENTORY_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays int    `envconfig:"INVENTORY_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
}

// TransportName returns the normalized outbox transport.
func (o OutboxConfig) TransportName() string {
	name := strings.ToLower(strings.TrimSpace(o.Transport))
	if name == "" {
		return OutboxTransportPubSub
	}
	return name
}

func (o OutboxConfig) validate() error {
	switch o.TransportName() {
	case OutboxTransportPubSub, OutboxTransportKafka:
		return nil
	}
	return fmt.Errorf("%s must be one of %s, %s", EnvOutboxTransport, OutboxTransportPubSub, OutboxTransportKafka)
}

type TracingConfig struct {
	Enabled      bool    `envconfig:"INVENTORY_TRACING_ENABLED" default:"false"`
	OTLPEndpoint string  `envconfig:"INVENTORY_OTLP_ENDPOINT" default:"localhost:4318"`
	OTLPInsecure bool    `envconfig:"INVENTORY_OTLP_INSECURE" default:"true"`
	SampleRatio  float64 `envconfig:"INVENTORY_TRACING_SAMPLE_RATIO" default:"1"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

// RateLimitConfig bounds mutating API calls per client in a fixed window.
type RateLimitConfig struct {
	Enabled  bool          `envconfig:"INVENTORY_RATE_LIMIT_ENABLED" default:"true"`
	Requests int           `envconfig:"INVENTORY_RATE_LIMIT_REQUESTS" default:"120"`
	Window   time.Duration `envconfig:"INVENTORY_RATE_LIMIT_WINDOW" default:"1m"`
}
