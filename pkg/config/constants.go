package config

// EnvPrefix is intentionally empty; every field carries its fully prefixed
// envconfig tag so the variable names stay greppable.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "VOXLINE_DB_DSN"
	EnvDBHost = "VOXLINE_DB_HOST"
	EnvDBUser = "VOXLINE_DB_USER"
	EnvDBName = "VOXLINE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
