package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	defaultPort               = "8080"
	defaultLedgerQueueSize    = 256
	defaultNumLedgerWorkers   = 2
	defaultJWTExpirationHours = 24
	defaultStatsCacheTTL      = 60
	defaultPermitSweep        = "0 */15 * * * *"
)

type Config struct {
	Port string

	// database
	DatabaseDriver string // sqlite or postgres
	DatabasePath   string // sqlite file
	DatabaseDSN    string // postgres connection string

	// auth
	JWTSecret          string
	JWTExpirationHours int

	CORSAllowedOrigins []string

	// when true, 500 responses carry the underlying error text
	DiagnosticMode bool
	LogLevel       string

	// statistics cache, disabled when RedisURL is empty
	RedisURL             string
	StatsCacheTTLSeconds int

	// ledger event fan-out; AMQP sink disabled when AMQPURL is empty
	AMQPURL          string
	AMQPExchange     string
	LedgerQueueSize  int
	NumLedgerWorkers int

	// six-field cron expression (with seconds) for the permit expiry sweep
	PermitSweepSchedule string
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvBoolOrDefault(envVar string, defaultVal bool) bool {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %t. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func LoadConfig() (Config, error) {
	driver := strings.ToLower(getEnvOrDefault("DATABASE_DRIVER", DriverSQLite))
	if driver != DriverSQLite && driver != DriverPostgres {
		return Config{}, fmt.Errorf("unsupported DATABASE_DRIVER '%s' (want %s or %s)", driver, DriverSQLite, DriverPostgres)
	}

	dsn := os.Getenv("DATABASE_DSN")
	if driver == DriverPostgres && dsn == "" {
		return Config{}, fmt.Errorf("DATABASE_DSN is required when DATABASE_DRIVER is %s", DriverPostgres)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET environment variable not set")
	}

	cfg := Config{
		Port:                 getEnvOrDefault("PORT", defaultPort),
		DatabaseDriver:       driver,
		DatabasePath:         getEnvOrDefault("DATABASE_PATH", "registry.db"),
		DatabaseDSN:          dsn,
		JWTSecret:            secret,
		JWTExpirationHours:   getEnvIntOrDefault("JWT_EXPIRATION_HOURS", defaultJWTExpirationHours),
		CORSAllowedOrigins:   splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		DiagnosticMode:       getEnvBoolOrDefault("DIAGNOSTIC_MODE", false),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		RedisURL:             os.Getenv("REDIS_URL"),
		StatsCacheTTLSeconds: getEnvIntOrDefault("STATS_CACHE_TTL_SECONDS", defaultStatsCacheTTL),
		AMQPURL:              os.Getenv("AMQP_URL"),
		AMQPExchange:         getEnvOrDefault("AMQP_EXCHANGE", "registry.ledger"),
		LedgerQueueSize:      getEnvIntOrDefault("LEDGER_QUEUE_SIZE", defaultLedgerQueueSize),
		NumLedgerWorkers:     getEnvIntOrDefault("NUM_LEDGER_WORKERS", defaultNumLedgerWorkers),
		PermitSweepSchedule:  getEnvOrDefault("PERMIT_SWEEP_SCHEDULE", defaultPermitSweep),
	}

	return cfg, nil
}
