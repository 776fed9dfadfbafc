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
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Processor    ProcessorConfig
	Upstream     UpstreamConfig
	Webhook      WebhookConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !cfg.FeatureFlags.UseSQLite {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Processor.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Name         string `envconfig:"CARD_CONNECTOR_APP_NAME" default:"card-connector"`
	Env          string `envconfig:"CARD_CONNECTOR_APP_ENV" required:"true"`
	Port         string `envconfig:"CARD_CONNECTOR_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CARD_CONNECTOR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CARD_CONNECTOR_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN        string `envconfig:"CARD_CONNECTOR_DB_DSN"`
	Driver     string `envconfig:"CARD_CONNECTOR_DB_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"CARD_CONNECTOR_DB_SQLITE_PATH" default:"card-connector.db"`

	LegacyHost     string `envconfig:"CARD_CONNECTOR_DB_HOST"`
	LegacyPort     int    `envconfig:"CARD_CONNECTOR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CARD_CONNECTOR_DB_USER"`
	LegacyPassword string `envconfig:"CARD_CONNECTOR_DB_PASSWORD"`
	LegacyName     string `envconfig:"CARD_CONNECTOR_DB_NAME"`
	LegacySSLMode  string `envconfig:"CARD_CONNECTOR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CARD_CONNECTOR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CARD_CONNECTOR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CARD_CONNECTOR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CARD_CONNECTOR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// RedisConfig is optional; an empty URL and address disables the shared token store.
type RedisConfig struct {
	URL          string        `envconfig:"CARD_CONNECTOR_REDIS_URL"`
	Address      string        `envconfig:"CARD_CONNECTOR_REDIS_ADDR"`
	Password     string        `envconfig:"CARD_CONNECTOR_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARD_CONNECTOR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CARD_CONNECTOR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CARD_CONNECTOR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CARD_CONNECTOR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARD_CONNECTOR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARD_CONNECTOR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CARD_CONNECTOR_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CARD_CONNECTOR_AUTO_MIGRATE" default:"false"`
}

type ProcessorConfig struct {
	BaseURL string        `envconfig:"CARD_CONNECTOR_PROCESSOR_BASE_URL"`
	APIKey  string        `envconfig:"CARD_CONNECTOR_PROCESSOR_API_KEY"`
	UseMock bool          `envconfig:"CARD_CONNECTOR_PROCESSOR_USE_MOCK" default:"false"`
	Timeout time.Duration `envconfig:"CARD_CONNECTOR_PROCESSOR_TIMEOUT" default:"30s"`
}

func (p ProcessorConfig) validate() error {
	if p.UseMock {
		return nil
	}
	missing := []string{}
	if strings.TrimSpace(p.BaseURL) == "" {
		missing = append(missing, EnvProcessorBaseURL)
	}
	if strings.TrimSpace(p.APIKey) == "" {
		missing = append(missing, EnvProcessorAPIKey)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s required unless %s is set", strings.Join(missing, ", "), EnvProcessorUseMock)
	}
	return nil
}

type UpstreamConfig struct {
	AdminBaseURL     string        `envconfig:"CARD_CONNECTOR_UPSTREAM_ADMIN_BASE_URL" required:"true"`
	ClientID         string        `envconfig:"CARD_CONNECTOR_UPSTREAM_CLIENT_ID" required:"true"`
	ClientSecret     string        `envconfig:"CARD_CONNECTOR_UPSTREAM_CLIENT_SECRET" required:"true"`
	Scope            string        `envconfig:"CARD_CONNECTOR_UPSTREAM_SCOPE" default:"CardUpdate"`
	TokenURL         string        `envconfig:"CARD_CONNECTOR_UPSTREAM_TOKEN_URL"`
	ReportPathPrefix string        `envconfig:"CARD_CONNECTOR_UPSTREAM_REPORT_PATH_PREFIX" default:"/tagpay"`
	ExternalIDPrefix string        `envconfig:"CARD_CONNECTOR_UPSTREAM_EXTERNAL_ID_PREFIX" default:"NI-"`
	ReportTimeout    time.Duration `envconfig:"CARD_CONNECTOR_UPSTREAM_REPORT_TIMEOUT" default:"30s"`
	TokenTimeout     time.Duration `envconfig:"CARD_CONNECTOR_UPSTREAM_TOKEN_TIMEOUT" default:"15s"`
	TokenDefaultTTL  time.Duration `envconfig:"CARD_CONNECTOR_UPSTREAM_TOKEN_DEFAULT_TTL" default:"5m"`
	TokenExpirySkew  time.Duration `envconfig:"CARD_CONNECTOR_UPSTREAM_TOKEN_EXPIRY_SKEW" default:"30s"`
}

type WebhookConfig struct {
	Secret          string `envconfig:"CARD_CONNECTOR_WEBHOOK_SECRET"`
	SignatureHeader string `envconfig:"CARD_CONNECTOR_WEBHOOK_SIGNATURE_HEADER" default:"X-Webhook-Signature"`
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
