package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "splittab"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "SPLITTAB_DB_DSN"
	EnvDBHost = "SPLITTAB_DB_HOST"
	EnvDBUser = "SPLITTAB_DB_USER"
	EnvDBName = "SPLITTAB_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Ledger       LedgerConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SPLITTAB_APP_ENV" required:"true"`
	Port         string `envconfig:"SPLITTAB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SPLITTAB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SPLITTAB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SPLITTAB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SPLITTAB_DB_DSN"`
	Driver string `envconfig:"SPLITTAB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SPLITTAB_DB_HOST"`
	LegacyPort     int    `envconfig:"SPLITTAB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SPLITTAB_DB_USER"`
	LegacyPassword string `envconfig:"SPLITTAB_DB_PASSWORD"`
	LegacyName     string `envconfig:"SPLITTAB_DB_NAME"`
	LegacySSLMode  string `envconfig:"SPLITTAB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SPLITTAB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SPLITTAB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SPLITTAB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SPLITTAB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SPLITTAB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SPLITTAB_REDIS_ADDR"`
	Password     string        `envconfig:"SPLITTAB_REDIS_PASSWORD"`
	DB           int           `envconfig:"SPLITTAB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SPLITTAB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SPLITTAB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SPLITTAB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SPLITTAB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SPLITTAB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SPLITTAB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SPLITTAB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SPLITTAB_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SPLITTAB_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"SPLITTAB_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SPLITTAB_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"SPLITTAB_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SPLITTAB_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic          string `envconfig:"SPLITTAB_PUBSUB_DOMAIN_TOPIC" required:"true"`
	LedgerSubscription   string `envconfig:"SPLITTAB_PUBSUB_LEDGER_SUBSCRIPTION" required:"true"`
	CascadeSubscription  string `envconfig:"SPLITTAB_PUBSUB_CASCADE_SUBSCRIPTION" required:"true"`
	BackfillSubscription string `envconfig:"SPLITTAB_PUBSUB_BACKFILL_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SPLITTAB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SPLITTAB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SPLITTAB_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type LedgerConfig struct {
	BackfillScanLimit int `envconfig:"SPLITTAB_LEDGER_BACKFILL_SCAN_LIMIT" default:"200"`
	CascadeBatchSize  int `envconfig:"SPLITTAB_LEDGER_CASCADE_BATCH_SIZE" default:"500"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
