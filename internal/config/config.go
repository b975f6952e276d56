package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Payment    PaymentConfig
	Capacity   CapacityConfig
	Worker     WorkerConfig
	Auth       AuthConfig
	Migrations MigrationsConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver       string
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	SSLMode      string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// DSN builds the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return "file:" + d.SQLitePath + "?cache=shared&_pragma=busy_timeout(5000)"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.Username, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     d.Database,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

type RedisConfig struct {
	// Addr empty means the in-process lock is used instead of Redis.
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
	LockWait time.Duration
}

type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
	Enabled     bool
	EnsureTopic bool
}

type PaymentConfig struct {
	IBAN                 string
	AccountName          string
	DefaultTTL           time.Duration
	AmountToleranceMinor int64
	VariableSymbolDigits int
	QRSize               int
}

type CapacityConfig struct {
	// Unit is "slot" or "person".
	Unit string
}

type WorkerConfig struct {
	ExpiryInterval   time.Duration
	ExpiryBatch      int
	RelayInterval    time.Duration
	RelayBatch       int
	RelayMaxAttempts int
}

type AuthConfig struct {
	JWTSecret    string
	OIDCIssuer   string
	OIDCClientID string
	// AdminRole is the token role allowed on admin endpoints.
	AdminRole string
}

type MigrationsConfig struct {
	Dir  string
	Auto bool
}

type LogConfig struct {
	Service string
	Dir     string
	Level   string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8080"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "registration_user"),
			Password:     getEnv("DB_PASSWORD", "registration_pass"),
			Database:     getEnv("DB_NAME", "registration"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			SQLitePath:   getEnv("SQLITE_PATH", "registration.db"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			LockTTL:  getEnvDuration("LOCK_TTL", 30*time.Second),
			LockWait: getEnvDuration("LOCK_WAIT", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:     getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", "registration."),
			Enabled:     getEnvBool("KAFKA_ENABLED", true),
			EnsureTopic: getEnvBool("KAFKA_ENSURE_TOPICS", true),
		},
		Payment: PaymentConfig{
			IBAN:                 getEnv("PAYMENT_IBAN", ""),
			AccountName:          getEnv("PAYMENT_ACCOUNT_NAME", "GameOne"),
			DefaultTTL:           getEnvDuration("PAYMENT_TTL", 0),
			AmountToleranceMinor: int64(getEnvInt("PAYMENT_AMOUNT_TOLERANCE_MINOR", 1)),
			VariableSymbolDigits: getEnvInt("PAYMENT_VS_DIGITS", 10),
			QRSize:               getEnvInt("PAYMENT_QR_SIZE", 256),
		},
		Capacity: CapacityConfig{
			Unit: getEnv("CAPACITY_UNIT", "slot"),
		},
		Worker: WorkerConfig{
			ExpiryInterval:   getEnvDuration("EXPIRY_SWEEP_INTERVAL", time.Minute),
			ExpiryBatch:      getEnvInt("EXPIRY_SWEEP_BATCH", 100),
			RelayInterval:    getEnvDuration("OUTBOX_RELAY_INTERVAL", 2*time.Second),
			RelayBatch:       getEnvInt("OUTBOX_RELAY_BATCH", 100),
			RelayMaxAttempts: getEnvInt("OUTBOX_MAX_ATTEMPTS", 10),
		},
		Auth: AuthConfig{
			JWTSecret:    getEnv("JWT_SECRET", ""),
			OIDCIssuer:   getEnv("OIDC_ISSUER", ""),
			OIDCClientID: getEnv("OIDC_CLIENT_ID", ""),
			AdminRole:    getEnv("ADMIN_ROLE", "admin"),
		},
		Migrations: MigrationsConfig{
			Dir:  getEnv("MIGRATIONS_DIR", "migrations"),
			Auto: getEnvBool("MIGRATIONS_AUTO", false),
		},
		Log: LogConfig{
			Service: getEnv("SERVICE_NAME", "registration-service"),
			Dir:     getEnv("LOG_DIR", "logs"),
			Level:   getEnv("LOG_LEVEL", "INFO"),
		},
	}
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is empty while KAFKA_ENABLED is set")
	}
	if c.Payment.VariableSymbolDigits < 1 || c.Payment.VariableSymbolDigits > 10 {
		return fmt.Errorf("PAYMENT_VS_DIGITS must be between 1 and 10, got %d", c.Payment.VariableSymbolDigits)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
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
	return out
}
