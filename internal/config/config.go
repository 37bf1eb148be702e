package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultOperationTimeout = 10 * time.Second

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	LogLevel            string
	DatabaseURL         string // postgres DSN, or sqlite:<path> for local runs
	RedisURL            string
	IdentityTokenSecret string // HS256 secret shared with the identity provider for bearer tokens
	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	HealthAdminKey      string
	OperationTimeout    time.Duration
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("OPERATION_TIMEOUT", defaultOperationTimeout.String())

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	timeout := viper.GetDuration("OPERATION_TIMEOUT")
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}

	return &Config{
		Env:                 env,
		Port:                viper.GetString("PORT"),
		LogLevel:            viper.GetString("LOG_LEVEL"),
		DatabaseURL:         viper.GetString("DATABASE_URL"),
		RedisURL:            viper.GetString("REDIS_URL"),
		IdentityTokenSecret: viper.GetString("IDENTITY_TOKEN_SECRET"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         viper.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:   strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
		OperationTimeout:    timeout,
	}, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
