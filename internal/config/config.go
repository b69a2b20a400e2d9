package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DBSource string `mapstructure:"DB_SOURCE"`
	Port     string `mapstructure:"SERVER_PORT"`
	Env      string `mapstructure:"ENVIRONMENT"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTIssuer string        `mapstructure:"JWT_ISSUER"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	CORSAllowedOrigins []string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	RequireActiveAccount bool `mapstructure:"REQUIRE_ACTIVE_ACCOUNT"`
	MaxMutationRetries   int  `mapstructure:"MAX_MUTATION_RETRIES"`
	BcryptCost           int  `mapstructure:"BCRYPT_COST"`

	// Optional integrations; empty disables them.
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	LoginMaxAttempts int           `mapstructure:"LOGIN_MAX_ATTEMPTS"`
	LoginWindow      time.Duration `mapstructure:"LOGIN_WINDOW"`
	PINMaxAttempts   int           `mapstructure:"PIN_MAX_ATTEMPTS"`
	PINWindow        time.Duration `mapstructure:"PIN_WINDOW"`

	ReconcileSchedule string `mapstructure:"RECONCILE_SCHEDULE"`
}

var keys = []string{
	"DB_SOURCE", "SERVER_PORT", "ENVIRONMENT",
	"JWT_SECRET", "JWT_ISSUER", "JWT_TTL",
	"CORS_ALLOWED_ORIGINS",
	"REQUIRE_ACTIVE_ACCOUNT", "MAX_MUTATION_RETRIES", "BCRYPT_COST",
	"RABBITMQ_URL", "REDIS_URL",
	"LOGIN_MAX_ATTEMPTS", "LOGIN_WINDOW",
	"PIN_MAX_ATTEMPTS", "PIN_WINDOW",
	"RECONCILE_SCHEDULE",
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("JWT_ISSUER", "mfs-server")
	viper.SetDefault("JWT_TTL", "1h")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", []string{
		"http://localhost:5173",
		"https://mobile-financial-service-8e757.web.app",
		"https://mobile-financial-service-8e757.firebaseapp.com",
	})
	viper.SetDefault("REQUIRE_ACTIVE_ACCOUNT", false)
	viper.SetDefault("MAX_MUTATION_RETRIES", 3)
	viper.SetDefault("BCRYPT_COST", 10)
	viper.SetDefault("LOGIN_MAX_ATTEMPTS", 5)
	viper.SetDefault("LOGIN_WINDOW", "15m")
	viper.SetDefault("PIN_MAX_ATTEMPTS", 5)
	viper.SetDefault("PIN_WINDOW", "15m")
	viper.SetDefault("RECONCILE_SCHEDULE", "@every 5m")
	viper.AutomaticEnv()

	for _, k := range keys {
		_ = viper.BindEnv(k)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.DBSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if cfg.JWTTTL <= 0 {
		return nil, fmt.Errorf("JWT_TTL must be positive, got %s", cfg.JWTTTL)
	}

	return &cfg, nil
}
