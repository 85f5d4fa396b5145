package config

const (
	EnvPrefix = "INVENTORY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	OutboxTransportPubSub = "pubsub"
	OutboxTransportKafka  = "kafka"
)

const (
	EnvAppEnv   = "INVENTORY_APP_ENV"
	EnvPort     = "INVENTORY_APP_PORT"
	EnvLogLevel = "INVENTORY_LOG_LEVEL"

	EnvDBDSN     = "INVENTORY_DB_DSN"
	EnvDBHost    = "INVENTORY_DB_HOST"
	EnvDBPort    = "INVENTORY_DB_PORT"
	EnvDBUser    = "INVENTORY_DB_USER"
	EnvDBPass    = "INVENTORY_DB_PASSWORD"
	EnvDBName    = "INVENTORY_DB_NAME"
	EnvDBSSL     = "INVENTORY_DB_SSLMODE"
	EnvUseSQLite = "INVENTORY_USE_SQLITE"

	EnvRedisURL = "INVENTORY_REDIS_URL"

	EnvReservationTTL = "INVENTORY_RESERVATION_TTL"
	EnvCronInterval   = "INVENTORY_CRON_INTERVAL"

	EnvGCPProjectID         = "INVENTORY_GCP_PROJECT_ID"
	EnvPubSubInventoryTopic = "INVENTORY_PUBSUB_INVENTORY_TOPIC"
	EnvPubSubOrdersSub      = "INVENTORY_PUBSUB_ORDERS_SUBSCRIPTION"

	EnvKafkaBrokers = "INVENTORY_KAFKA_BROKERS"
	EnvKafkaTopic   = "INVENTORY_KAFKA_TOPIC"

	EnvOutboxTransport = "INVENTORY_OUTBOX_TRANSPORT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
