package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverRedis  = "redis"
	StoreDriverSQL    = "sql"
	StoreDriverMemory = "memory"

	defaultJWTSecret = "your-secret-key"
)

type Config struct {
	Server       ServerConfig       `json:"server"`
	Database     DatabaseConfig     `json:"database"`
	Redis        RedisConfig        `json:"redis"`
	Store        StoreConfig        `json:"store"`
	Worker       WorkerConfig       `json:"worker"`
	Auth         AuthConfig         `json:"auth"`
	RateLimit    RateLimitConfig    `json:"rate_limit"`
	Provisioning ProvisioningConfig `json:"provisioning"`
	Logging      LoggingConfig      `json:"logging"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            string        `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	Environment     string        `json:"environment"`
}

type DatabaseConfig struct {
	Driver          string        `json:"driver"`
	Host            string        `json:"host"`
	Port            string        `json:"port"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	Name            string        `json:"name"`
	SSLMode         string        `json:"ssl_mode"`
	SQLitePath      string        `json:"sqlite_path"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

type RedisConfig struct {
	Host         string        `json:"host"`
	Port         string        `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns"`
	MaxRetries   int           `json:"max_retries"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// StoreConfig selects where the persisted collections live.
type StoreConfig struct {
	Driver             string        `json:"driver"`
	KeyPrefix          string        `json:"key_prefix"`
	BreakerEnabled     bool          `json:"breaker_enabled"`
	BreakerMaxFailures int           `json:"breaker_max_failures"`
	BreakerTimeout     time.Duration `json:"breaker_timeout"`
}

type WorkerConfig struct {
	Enabled      bool          `json:"enabled"`
	Concurrency  int           `json:"concurrency"`
	PollInterval time.Duration `json:"poll_interval"`
	Queues       []string      `json:"queues"`
	DigestTime   string        `json:"digest_time"`
	Timezone     string        `json:"timezone"`
}

type AuthConfig struct {
	JWTSecret       string        `json:"jwt_secret"`
	Issuer          string        `json:"issuer"`
	AccessTokenTTL  time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl"`
	BCryptCost      int           `json:"bcrypt_cost"`
}

type RateLimitConfig struct {
	Enabled         bool          `json:"enabled"`
	RequestsPerMin  int           `json:"requests_per_minute"`
	BurstSize       int           `json:"burst_size"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

// ProvisioningConfig points sign-up at a remote create-user function. An
// empty Endpoint provisions in-process.
type ProvisioningConfig struct {
	Endpoint    string        `json:"endpoint"`
	Timeout     time.Duration `json:"timeout"`
	CORSOrigins []string      `json:"cors_origins"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// LoadConfig reads the environment after applying envFiles, or ./.env when
// none are given. Variables already set in the environment win.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	environment := getEnv("ENVIRONMENT", "development")
	logFormat := "json"
	if environment == "development" {
		logFormat = "console"
	}

	config := &Config{
		Server: ServerConfig{
			Host:            getEnv("HOST", "localhost"),
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getEnvAsDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
			Environment:     environment,
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "taskflow"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			SQLitePath:      getEnv("DB_SQLITE_PATH", "data/taskflow.db"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Store: StoreConfig{
			Driver:             strings.ToLower(getEnv("STORE_DRIVER", StoreDriverRedis)),
			KeyPrefix:          getEnv("STORE_KEY_PREFIX", "taskflow:"),
			BreakerEnabled:     getEnvAsBool("STORE_BREAKER_ENABLED", true),
			BreakerMaxFailures: getEnvAsInt("STORE_BREAKER_MAX_FAILURES", 5),
			BreakerTimeout:     getEnvAsDuration("STORE_BREAKER_TIMEOUT", 30*time.Second),
		},
		Worker: WorkerConfig{
			Enabled:      getEnvAsBool("WORKER_ENABLED", false),
			Concurrency:  getEnvAsInt("WORKER_CONCURRENCY", 2),
			PollInterval: getEnvAsDuration("WORKER_POLL_INTERVAL", 5*time.Second),
			Queues:       getEnvAsSlice("WORKER_QUEUES", []string{"taskflow:jobs:default"}),
			DigestTime:   getEnv("DIGEST_TIME", "08:00"),
			Timezone:     getEnv("DIGEST_TIMEZONE", "Local"),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("JWT_SECRET", defaultJWTSecret),
			Issuer:          getEnv("JWT_ISSUER", "taskflow"),
			AccessTokenTTL:  getEnvAsDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTokenTTL: getEnvAsDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
			BCryptCost:      getEnvAsInt("BCRYPT_COST", 10),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin:  getEnvAsInt("RATE_LIMIT_RPM", 100),
			BurstSize:       getEnvAsInt("RATE_LIMIT_BURST", 10),
			CleanupInterval: getEnvAsDuration("RATE_LIMIT_CLEANUP", 10*time.Minute),
		},
		Provisioning: ProvisioningConfig{
			Endpoint:    getEnv("PROVISIONING_URL", ""),
			Timeout:     getEnvAsDuration("PROVISIONING_TIMEOUT", 10*time.Second),
			CORSOrigins: getEnvAsSlice("CORS_ORIGINS", []string{"*"}),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", logFormat),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverRedis, StoreDriverSQL, StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Worker.Enabled && c.Store.Driver != StoreDriverRedis {
		return fmt.Errorf("worker requires the redis store driver, got %q", c.Store.Driver)
	}

	if c.IsProduction() {
		if c.Database.Driver == "postgres" && c.Database.Password == "" {
			return fmt.Errorf("database password is required in production")
		}
		if c.Auth.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT secret must be set in production")
		}
	}
	return nil
}

func (c *Config) GetDatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLitePath
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// NeedsDatabase reports whether anything besides auth uses the SQL database.
func (c *Config) NeedsDatabase() bool {
	return c.Store.Driver == StoreDriverSQL
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
