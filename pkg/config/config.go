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
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Providers    ProvidersConfig
	Pipeline     PipelineConfig
	Recovery     RecoveryConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"VOXLINE_APP_ENV" required:"true"`
	Port         string `envconfig:"VOXLINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VOXLINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VOXLINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"VOXLINE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"VOXLINE_DB_DSN"`
	Driver string `envconfig:"VOXLINE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VOXLINE_DB_HOST"`
	LegacyPort     int    `envconfig:"VOXLINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VOXLINE_DB_USER"`
	LegacyPassword string `envconfig:"VOXLINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"VOXLINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"VOXLINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VOXLINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VOXLINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VOXLINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VOXLINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VOXLINE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VOXLINE_REDIS_ADDR"`
	Password     string        `envconfig:"VOXLINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"VOXLINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VOXLINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VOXLINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VOXLINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VOXLINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VOXLINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"VOXLINE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"VOXLINE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"VOXLINE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type RateLimitConfig struct {
	SubmitWindow      time.Duration `envconfig:"VOXLINE_RATE_LIMIT_SUBMIT_WINDOW" default:"1m"`
	SubmitIPLimit     int           `envconfig:"VOXLINE_RATE_LIMIT_SUBMIT_IP_LIMIT" default:"120"`
	SubmitTenantLimit int           `envconfig:"VOXLINE_RATE_LIMIT_SUBMIT_TENANT_LIMIT" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"VOXLINE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"VOXLINE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"VOXLINE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"VOXLINE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"VOXLINE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	TranscribeTopic        string `envconfig:"VOXLINE_PUBSUB_TRANSCRIBE_TOPIC" required:"true"`
	TranscribeSubscription string `envconfig:"VOXLINE_PUBSUB_TRANSCRIBE_SUBSCRIPTION" required:"true"`
	ProcessTopic           string `envconfig:"VOXLINE_PUBSUB_PROCESS_TOPIC" required:"true"`
	ProcessSubscription    string `envconfig:"VOXLINE_PUBSUB_PROCESS_SUBSCRIPTION" required:"true"`
	EmbedTopic             string `envconfig:"VOXLINE_PUBSUB_EMBED_TOPIC" required:"true"`
	EmbedSubscription      string `envconfig:"VOXLINE_PUBSUB_EMBED_SUBSCRIPTION" required:"true"`
	LifecycleTopic         string `envconfig:"VOXLINE_PUBSUB_LIFECYCLE_TOPIC" required:"true"`
	FailureSubscription    string `envconfig:"VOXLINE_PUBSUB_FAILURE_SUBSCRIPTION" required:"true"`
}

type ProvidersConfig struct {
	TranscriptionURL     string        `envconfig:"VOXLINE_TRANSCRIPTION_URL" default:"https://api.openai.com/v1/audio/transcriptions"`
	TranscriptionAPIKey  string        `envconfig:"VOXLINE_TRANSCRIPTION_API_KEY"`
	TranscriptionTimeout time.Duration `envconfig:"VOXLINE_TRANSCRIPTION_TIMEOUT" default:"10m"`
	EmbeddingURL         string        `envconfig:"VOXLINE_EMBEDDING_URL" default:"https://api.openai.com/v1/embeddings"`
	EmbeddingAPIKey      string        `envconfig:"VOXLINE_EMBEDDING_API_KEY"`
	EmbeddingModel       string        `envconfig:"VOXLINE_EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingTimeout     time.Duration `envconfig:"VOXLINE_EMBEDDING_TIMEOUT" default:"1m"`
}

type PipelineConfig struct {
	TenantTranscribeCap int `envconfig:"VOXLINE_PIPELINE_TENANT_TRANSCRIBE_CAP" default:"10"`
	EmbedBatchSize      int `envconfig:"VOXLINE_PIPELINE_EMBED_BATCH_SIZE" default:"20"`
	ChunkTokenTarget    int `envconfig:"VOXLINE_PIPELINE_CHUNK_TOKEN_TARGET" default:"300"`
	StageMaxAttempts    int `envconfig:"VOXLINE_PIPELINE_STAGE_MAX_ATTEMPTS" default:"5"`
}

type RecoveryConfig struct {
	ScanInterval     time.Duration `envconfig:"VOXLINE_RECOVERY_SCAN_INTERVAL" default:"5m"`
	StalenessWindow  time.Duration `envconfig:"VOXLINE_RECOVERY_STALENESS_WINDOW" default:"10m"`
	MaxAttempts      int           `envconfig:"VOXLINE_RECOVERY_MAX_ATTEMPTS" default:"3"`
	MinRetryInterval time.Duration `envconfig:"VOXLINE_RECOVERY_MIN_RETRY_INTERVAL" default:"60m"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"VOXLINE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"VOXLINE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"VOXLINE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	IdempotencyTTL time.Duration `envconfig:"VOXLINE_OUTBOX_IDEMPOTENCY_TTL" default:"24h"`
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
