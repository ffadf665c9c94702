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
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	Shipping     ShippingConfig
	Reconcile    ReconcileConfig
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
	Env          string `envconfig:"PAGETURNER_APP_ENV" required:"true"`
	OpsPort      string `envconfig:"PAGETURNER_OPS_PORT" default:"9090"`
	LogLevel     string `envconfig:"PAGETURNER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PAGETURNER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PAGETURNER_SERVICE_KIND" default:"reconciler"`
}

type DBConfig struct {
	DSN    string `envconfig:"PAGETURNER_DB_DSN"`
	Driver string `envconfig:"PAGETURNER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PAGETURNER_DB_HOST"`
	LegacyPort     int    `envconfig:"PAGETURNER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PAGETURNER_DB_USER"`
	LegacyPassword string `envconfig:"PAGETURNER_DB_PASSWORD"`
	LegacyName     string `envconfig:"PAGETURNER_DB_NAME"`
	LegacySSLMode  string `envconfig:"PAGETURNER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PAGETURNER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PAGETURNER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PAGETURNER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PAGETURNER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PAGETURNER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PAGETURNER_REDIS_ADDR"`
	Password     string        `envconfig:"PAGETURNER_REDIS_PASSWORD"`
	DB           int           `envconfig:"PAGETURNER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PAGETURNER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PAGETURNER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PAGETURNER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PAGETURNER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PAGETURNER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PAGETURNER_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PAGETURNER_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"PAGETURNER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PAGETURNER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"PAGETURNER_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription string `envconfig:"PAGETURNER_PUBSUB_ORDERS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PAGETURNER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PAGETURNER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PAGETURNER_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey string `envconfig:"PAGETURNER_STRIPE_API_KEY"`
	Env    string `envconfig:"PAGETURNER_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type ShippingConfig struct {
	APIKey  string `envconfig:"PAGETURNER_SHIPPING_API_KEY"`
	Env     string `envconfig:"PAGETURNER_SHIPPING_ENV" default:"sandbox"`
	BaseURL string `envconfig:"PAGETURNER_SHIPPING_BASE_URL"`
}

// Environment returns the normalized carrier environment (sandbox/production).
func (s ShippingConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// ReconcileConfig carries the tunables for the order reconciliation pass.
type ReconcileConfig struct {
	Interval            time.Duration `envconfig:"PAGETURNER_RECONCILE_INTERVAL" default:"10m"`
	PassTimeout         time.Duration `envconfig:"PAGETURNER_RECONCILE_PASS_TIMEOUT" default:"5m"`
	CallTimeout         time.Duration `envconfig:"PAGETURNER_RECONCILE_CALL_TIMEOUT" default:"10s"`
	RetryMaxAttempts    int           `envconfig:"PAGETURNER_RECONCILE_RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff time.Duration `envconfig:"PAGETURNER_RECONCILE_RETRY_INITIAL_BACKOFF" default:"250ms"`
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
