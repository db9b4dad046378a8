package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the server configuration, read from the environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Cache    CacheConfig
	Events   EventsConfig
}

type ServerConfig struct {
	Port            string
	Environment     string
	LogLevel        string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	// Driver is one of pgx, postgres, sqlite or mongo.
	Driver        string
	URL           string
	MongoDatabase string
}

type JWTConfig struct {
	Secret     string
	ExpiresIn  time.Duration
	Issuer     string
	BcryptCost int
}

type CacheConfig struct {
	// RedisURL empty disables the task list cache.
	RedisURL string
	TTL      time.Duration
}

type EventsConfig struct {
	// MQTTURL empty disables event publishing.
	MQTTURL  string
	ClientID string
}

// LoadENV loads a .env file into the process environment if one exists.
func LoadENV() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Load builds a Config from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "3000"),
			Environment:     getEnv("APP_ENV", "production"),
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:        getEnv("DB_DRIVER", "pgx"),
			URL:           getEnv("DATABASE_URL", os.Getenv("POSTGRESQL_URI")),
			MongoDatabase: getEnv("MONGO_DATABASE", "tasks"),
		},
		JWT: JWTConfig{
			Secret:     os.Getenv("JWT_SECRET"),
			ExpiresIn:  getEnvAsDuration("JWT_EXPIRES_IN", 7*24*time.Hour),
			Issuer:     getEnv("JWT_ISSUER", "go-tasks"),
			BcryptCost: getEnvAsInt("BCRYPT_COST", 10),
		},
		Cache: CacheConfig{
			RedisURL: os.Getenv("REDIS_URL"),
			TTL:      getEnvAsDuration("CACHE_TTL", 5*time.Minute),
		},
		Events: EventsConfig{
			MQTTURL:  os.Getenv("MQTT_URL"),
			ClientID: getEnv("MQTT_CLIENT_ID", "go-tasks-api"),
		},
	}

	if cfg.JWT.Secret == "" && cfg.IsDevelopment() {
		cfg.JWT.Secret = "dev-secret-change-in-production"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "pgx", "postgres", "sqlite", "mongo":
	default:
		return errors.New("DB_DRIVER must be one of pgx, postgres, sqlite, mongo")
	}
	if c.Database.URL == "" {
		return errors.New("you must set your 'DATABASE_URL' environmental variable")
	}
	if c.JWT.Secret == "" {
		return errors.New("you must set your 'JWT_SECRET' environmental variable")
	}
	if c.JWT.ExpiresIn <= 0 {
		return errors.New("JWT_EXPIRES_IN must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	return defaultValue
}
