package config

// EnvPrefix is passed to envconfig; every variable carries it already via
// struct tags, the prefix exists so Process can validate required fields.
const EnvPrefix = "pageturner"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names shared between Load, validation messages and tests.
const (
	EnvAppEnv       = "PAGETURNER_APP_ENV"
	EnvOpsPort      = "PAGETURNER_OPS_PORT"
	EnvDBDSN        = "PAGETURNER_DB_DSN"
	EnvDBHost       = "PAGETURNER_DB_HOST"
	EnvDBUser       = "PAGETURNER_DB_USER"
	EnvDBName       = "PAGETURNER_DB_NAME"
	EnvRedisURL     = "PAGETURNER_REDIS_URL"
	EnvGCPProjectID = "PAGETURNER_GCP_PROJECT_ID"
	EnvOrdersTopic  = "PAGETURNER_PUBSUB_ORDERS_TOPIC"
	EnvOrdersSub    = "PAGETURNER_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvStripeAPIKey = "PAGETURNER_STRIPE_API_KEY"
	EnvShippingKey  = "PAGETURNER_SHIPPING_API_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
