package config

const (
	EnvPrefix = "TENDERFLOW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:tenderflow.db?_foreign_keys=on"
)

const (
	EnvAppEnv    = "TENDERFLOW_APP_ENV"
	EnvPort      = "TENDERFLOW_APP_PORT"
	EnvDBDSN     = "TENDERFLOW_DB_DSN"
	EnvDBHost    = "TENDERFLOW_DB_HOST"
	EnvDBUser    = "TENDERFLOW_DB_USER"
	EnvDBName    = "TENDERFLOW_DB_NAME"
	EnvUseSQLite = "TENDERFLOW_USE_SQLITE"
	EnvRedisURL  = "TENDERFLOW_REDIS_URL"
	EnvJWTSecret = "TENDERFLOW_JWT_SECRET"
	EnvJWTIssuer = "TENDERFLOW_JWT_ISSUER"

	EnvSchedulerInterval  = "TENDERFLOW_SCHEDULER_INTERVAL"
	EnvSchedulerBatchSize = "TENDERFLOW_SCHEDULER_BATCH_SIZE"
	EnvSchedulerActor     = "TENDERFLOW_SCHEDULER_SYSTEM_ACTOR"
	EnvAuditMaxAttempts   = "TENDERFLOW_AUDIT_MAX_ATTEMPTS"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
