package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/aussiebroadwan/tokenkeeper/pkg/cryptox"
	"github.com/aussiebroadwan/tokenkeeper/pkg/jwtx"
)

// Config is the service configuration, read from the environment and an
// optional .env file in the working directory.
type Config struct {
	Env                 string        `mapstructure:"ENV"`        // dev, staging, prod (default: dev)
	LogLevel            string        `mapstructure:"LOG_LEVEL"`  // debug, info, warn, error (default: info)
	LogFormat           string        `mapstructure:"LOG_FORMAT"` // json, text (default: json)
	Port                int           `mapstructure:"PORT"`
	ShutdownGracePeriod time.Duration `mapstructure:"SHUTDOWN_GRACE_PERIOD"`

	StoreDriver  string        `mapstructure:"STORE_DRIVER"`  // sqlite, postgres
	DatabaseFile string        `mapstructure:"DATABASE_FILE"` // sqlite only
	DatabaseURL  string        `mapstructure:"DATABASE_URL"`  // postgres only
	StoreTimeout time.Duration `mapstructure:"STORE_TIMEOUT"`
	PepperFile   string        `mapstructure:"PEPPER_FILE"`

	Issuer             string        `mapstructure:"TOKEN_ISSUER"`
	AccessTokenSecret  string        `mapstructure:"ACCESS_TOKEN_SECRET"`
	RefreshTokenSecret string        `mapstructure:"REFRESH_TOKEN_SECRET"`
	AccessTokenTTL     time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL    time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`

	SweepInterval  time.Duration `mapstructure:"SWEEP_INTERVAL"`
	PurgeInterval  time.Duration `mapstructure:"PURGE_INTERVAL"`
	PurgeRetention time.Duration `mapstructure:"PURGE_RETENTION"`

	DeactivationBackend string `mapstructure:"DEACTIVATION_BACKEND"` // store, redis
	RedisAddr           string `mapstructure:"REDIS_ADDR"`
	RedisPassword       string `mapstructure:"REDIS_PASSWORD"`
	RedisDB             int    `mapstructure:"REDIS_DB"`

	// OTLP gRPC endpoint for metrics. Empty keeps metrics in-process.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Creates the first superadmin when the account table is empty.
	BootstrapLogin    string `mapstructure:"BOOTSTRAP_LOGIN"`
	BootstrapPassword string `mapstructure:"BOOTSTRAP_PASSWORD"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	BackendStore = "store"
	BackendRedis = "redis"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("PORT", 8080)
	v.SetDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second)

	v.SetDefault("STORE_DRIVER", DriverSQLite)
	v.SetDefault("DATABASE_FILE", "tokenkeeper.db")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("STORE_TIMEOUT", 3*time.Second)
	v.SetDefault("PEPPER_FILE", "pepper")

	v.SetDefault("TOKEN_ISSUER", "tokenkeeper")
	v.SetDefault("ACCESS_TOKEN_SECRET", "")
	v.SetDefault("REFRESH_TOKEN_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL)
	v.SetDefault("REFRESH_TOKEN_TTL", jwtx.DefaultRefreshTokenTTL)

	v.SetDefault("SWEEP_INTERVAL", time.Hour)
	v.SetDefault("PURGE_INTERVAL", 24*time.Hour)
	v.SetDefault("PURGE_RETENTION", 30*24*time.Hour)

	v.SetDefault("DEACTIVATION_BACKEND", BackendStore)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	v.SetDefault("BOOTSTRAP_LOGIN", "")
	v.SetDefault("BOOTSTRAP_PASSWORD", "")
}

// LoadConfig reads .env (if present) and the environment, fills in dev
// secrets when allowed, and validates the result. Env vars override .env.
func LoadConfig() (Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := cfg.fillDevSecrets(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fillDevSecrets generates throwaway signing secrets in dev. Tokens do not
// survive a restart.
func (c *Config) fillDevSecrets() error {
	if c.Env != "dev" {
		return nil
	}
	for _, s := range []*string{&c.AccessTokenSecret, &c.RefreshTokenSecret} {
		if *s != "" {
			continue
		}
		tok, err := cryptox.GenerateToken(jwtx.MinSecretLength)
		if err != nil {
			return fmt.Errorf("config: generate dev secret: %w", err)
		}
		*s = tok
	}
	return nil
}

// Validate checks the config is usable.
func (c Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}

	switch c.StoreDriver {
	case DriverSQLite:
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("DATABASE_FILE must be set for the sqlite driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL must be set for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	switch c.DeactivationBackend {
	case BackendStore:
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR must be set for the redis deactivation backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DEACTIVATION_BACKEND %q", c.DeactivationBackend))
	}

	if c.Issuer == "" {
		errs = append(errs, errors.New("TOKEN_ISSUER must be set"))
	}
	if len(c.AccessTokenSecret) < jwtx.MinSecretLength {
		errs = append(errs, fmt.Errorf("ACCESS_TOKEN_SECRET must be at least %d bytes", jwtx.MinSecretLength))
	}
	if len(c.RefreshTokenSecret) < jwtx.MinSecretLength {
		errs = append(errs, fmt.Errorf("REFRESH_TOKEN_SECRET must be at least %d bytes", jwtx.MinSecretLength))
	}
	if c.AccessTokenSecret != "" && c.AccessTokenSecret == c.RefreshTokenSecret {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= c.AccessTokenTTL {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be positive and shorter than REFRESH_TOKEN_TTL"))
	}

	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.SweepInterval <= 0 || c.PurgeInterval <= 0 || c.PurgeRetention <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL, PURGE_INTERVAL and PURGE_RETENTION must be positive"))
	}

	if (c.BootstrapLogin == "") != (c.BootstrapPassword == "") {
		errs = append(errs, errors.New("BOOTSTRAP_LOGIN and BOOTSTRAP_PASSWORD must be set together"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
