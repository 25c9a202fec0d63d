package config

const EnvPrefix = "TABLEPOS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	RealtimeSourceRedis    = "redis"
	RealtimeSourcePostgres = "postgres"
	RealtimeSourceRabbitMQ = "rabbitmq"
)

const (
	EnvAppEnv   = "TABLEPOS_APP_ENV"
	EnvPort     = "TABLEPOS_APP_PORT"
	EnvLogLevel = "TABLEPOS_LOG_LEVEL"

	EnvDBDSN  = "TABLEPOS_DB_DSN"
	EnvDBHost = "TABLEPOS_DB_HOST"
	EnvDBUser = "TABLEPOS_DB_USER"
	EnvDBName = "TABLEPOS_DB_NAME"

	EnvRedisURL = "TABLEPOS_REDIS_URL"

	EnvJWTSecret = "TABLEPOS_JWT_SECRET"
	EnvJWTIssuer = "TABLEPOS_JWT_ISSUER"

	EnvRealtimeSource = "TABLEPOS_REALTIME_SOURCE"
	EnvRabbitMQURL    = "TABLEPOS_RABBITMQ_URL"

	EnvOptimisticBackend = "TABLEPOS_OPTIMISTIC_BACKEND"

	EnvGCPProjectID          = "TABLEPOS_GCP_PROJECT_ID"
	EnvPubSubDomainTopic     = "TABLEPOS_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubAnalyticsSub    = "TABLEPOS_PUBSUB_ANALYTICS_SUBSCRIPTION"
	EnvPubSubAuditSub        = "TABLEPOS_PUBSUB_AUDIT_SUBSCRIPTION"
	EnvPubSubStaffAlertSub   = "TABLEPOS_PUBSUB_STAFF_ALERT_SUBSCRIPTION"
	EnvMongoURI              = "TABLEPOS_MONGO_URI"
	EnvKitchenTimezone       = "TABLEPOS_KITCHEN_TIMEZONE"
	EnvSheetsCredentialsJSON = "TABLEPOS_SHEETS_CREDENTIALS_JSON"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
