package config

const (
	EnvPrefix = "CARD_CONNECTOR"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "CARD_CONNECTOR_APP_ENV"
	EnvPort     = "CARD_CONNECTOR_APP_PORT"
	EnvLogLevel = "CARD_CONNECTOR_LOG_LEVEL"

	EnvDBDSN  = "CARD_CONNECTOR_DB_DSN"
	EnvDBHost = "CARD_CONNECTOR_DB_HOST"
	EnvDBUser = "CARD_CONNECTOR_DB_USER"
	EnvDBName = "CARD_CONNECTOR_DB_NAME"

	EnvRedisURL = "CARD_CONNECTOR_REDIS_URL"

	EnvUseSQLite   = "CARD_CONNECTOR_USE_SQLITE"
	EnvAutoMigrate = "CARD_CONNECTOR_AUTO_MIGRATE"

	EnvProcessorBaseURL = "CARD_CONNECTOR_PROCESSOR_BASE_URL"
	EnvProcessorAPIKey  = "CARD_CONNECTOR_PROCESSOR_API_KEY"
	EnvProcessorUseMock = "CARD_CONNECTOR_PROCESSOR_USE_MOCK"

	EnvUpstreamAdminBaseURL  = "CARD_CONNECTOR_UPSTREAM_ADMIN_BASE_URL"
	EnvUpstreamClientID      = "CARD_CONNECTOR_UPSTREAM_CLIENT_ID"
	EnvUpstreamClientSecret  = "CARD_CONNECTOR_UPSTREAM_CLIENT_SECRET"
	EnvUpstreamTokenURL      = "CARD_CONNECTOR_UPSTREAM_TOKEN_URL"
	EnvUpstreamReportTimeout = "CARD_CONNECTOR_UPSTREAM_REPORT_TIMEOUT"

	EnvWebhookSecret = "CARD_CONNECTOR_WEBHOOK_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
