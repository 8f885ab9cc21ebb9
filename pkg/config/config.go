package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Scheduler    SchedulerConfig
	Audit        AuditConfig
	Award        AwardConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if _, err := cfg.Scheduler.SystemActorID(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TENDERFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"TENDERFLOW_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TENDERFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TENDERFLOW_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"TENDERFLOW_LOG_FORMAT" default:"json"`

	CORSOrigins []string `envconfig:"TENDERFLOW_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TENDERFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TENDERFLOW_DB_DSN"`
	Driver string `envconfig:"TENDERFLOW_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"TENDERFLOW_DB_HOST"`
	Port     int    `envconfig:"TENDERFLOW_DB_PORT" default:"5432"`
	User     string `envconfig:"TENDERFLOW_DB_USER"`
	Password string `envconfig:"TENDERFLOW_DB_PASSWORD"`
	Name     string `envconfig:"TENDERFLOW_DB_NAME"`
	SSLMode  string `envconfig:"TENDERFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TENDERFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TENDERFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TENDERFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TENDERFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// Queries slower than this are logged at warn level; zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"TENDERFLOW_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TENDERFLOW_REDIS_URL"`
	Address      string        `envconfig:"TENDERFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"TENDERFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"TENDERFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TENDERFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TENDERFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TENDERFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TENDERFLOW_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"TENDERFLOW_REDIS_WRITE_TIMEOUT" default:"3s"`

	// IdempotencyTTL is how long a response stays replayable for a repeated
	// Idempotency-Key.
	IdempotencyTTL time.Duration `envconfig:"TENDERFLOW_REDIS_IDEMPOTENCY_TTL" default:"24h"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret string `envconfig:"TENDERFLOW_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"TENDERFLOW_JWT_ISSUER" required:"true"`

	ExpirationMinutes int `envconfig:"TENDERFLOW_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite        bool `envconfig:"TENDERFLOW_USE_SQLITE" default:"false"`
	AutoMigrate      bool `envconfig:"TENDERFLOW_AUTO_MIGRATE" default:"false"`
	UseRedisSequence bool `envconfig:"TENDERFLOW_USE_REDIS_SEQUENCE" default:"true"`
}

// SchedulerConfig tunes the auto-close sweep run by the cron worker.
type SchedulerConfig struct {
	Interval    time.Duration `envconfig:"TENDERFLOW_SCHEDULER_INTERVAL" default:"60s"`
	BatchSize   int           `envconfig:"TENDERFLOW_SCHEDULER_BATCH_SIZE" default:"100"`
	OpTimeout   time.Duration `envconfig:"TENDERFLOW_SCHEDULER_OP_TIMEOUT" default:"10s"`
	LockTTL     time.Duration `envconfig:"TENDERFLOW_SCHEDULER_LOCK_TTL" default:"55s"`
	SystemActor string        `envconfig:"TENDERFLOW_SCHEDULER_SYSTEM_ACTOR" default:"5f0c1e2a-7d3b-4c9e-8a61-2b4d6f8e0a17"`
}

// DefaultSystemActor is the opener recorded on reports generated by the sweep
// when no actor is configured.
const DefaultSystemActor = "5f0c1e2a-7d3b-4c9e-8a61-2b4d6f8e0a17"

// SystemActorID parses SystemActor. The nil uuid is rejected because opening
// reports require a non-empty opener.
func (s SchedulerConfig) SystemActorID() (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s.SystemActor))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid scheduler system actor %q: %w", s.SystemActor, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("scheduler system actor must not be the nil uuid")
	}
	return id, nil
}

type AuditConfig struct {
	BatchSize     int           `envconfig:"TENDERFLOW_AUDIT_BATCH_SIZE" default:"50"`
	FlushInterval time.Duration `envconfig:"TENDERFLOW_AUDIT_FLUSH_INTERVAL" default:"2s"`
	MaxAttempts   int           `envconfig:"TENDERFLOW_AUDIT_MAX_ATTEMPTS" default:"5"`

	// BackfillGrace must exceed the flush interval times max attempts.
	BackfillGrace    time.Duration `envconfig:"TENDERFLOW_AUDIT_BACKFILL_GRACE" default:"5m"`
	BackfillLookback time.Duration `envconfig:"TENDERFLOW_AUDIT_BACKFILL_LOOKBACK" default:"72h"`
	BackfillBatch    int           `envconfig:"TENDERFLOW_AUDIT_BACKFILL_BATCH" default:"200"`
}

type AwardConfig struct {
	MaxAttempts int `envconfig:"TENDERFLOW_AWARD_MAX_ATTEMPTS" default:"3"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TENDERFLOW_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"TENDERFLOW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TENDERFLOW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	TenderEventsTopic string `envconfig:"TENDERFLOW_PUBSUB_TENDER_EVENTS_TOPIC" default:"tender-events"`

	// AutoCreateTopics creates missing topics at startup. Meant for the
	// emulator; production topics are provisioned ahead of time.
	AutoCreateTopics bool `envconfig:"TENDERFLOW_PUBSUB_AUTO_CREATE_TOPICS" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TENDERFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TENDERFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TENDERFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"TENDERFLOW_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.Driver = DriverSQLite
		db.DSN = defaultSQLiteDSN
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
