package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"parking_garage/internal/engine"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	ServerPort  string
	StoreDriver string

	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	DBSslMode      string
	DBMaxOpenConns int

	AWSRegion             string
	SQSDetectionQueueURL  string
	IoTMQTTEndpoint       string
	BarrierTopicPrefix    string
	PlateMinConfidence    float32
	SQSMaxMessages        int32
	SQSWaitTimeSeconds    int32
	SQSVisibilityTimeout  int32
	SQSProcessingDeadline time.Duration

	JWTSecret          string
	JWTExpirationHours time.Duration

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	DetectionDebounce time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string

	DefaultStayOffset time.Duration
	DefaultParkWindow time.Duration
	ShowUpLead        time.Duration
	ReassignLookahead time.Duration

	ReassignSweepSpec       string
	DetectionLogCleanupSpec string
	DetectionLogRetention   time.Duration

	LogLevel       string
	LogDevelopment bool
	ServiceName    string

	GeneratedUserDomain string
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	p := &parser{}
	cfg := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         p.int("DB_PORT", 5432),
		DBUser:         getEnv("DB_USER", "parking"),
		DBPassword:     getEnv("DB_PASSWORD", "parking"),
		DBName:         getEnv("DB_NAME", "parking_garage"),
		DBSslMode:      getEnv("DB_SSLMODE", "disable"),
		DBMaxOpenConns: p.int("DB_MAX_OPEN_CONNS", 20),

		AWSRegion:             getEnv("AWS_REGION", "eu-central-1"),
		SQSDetectionQueueURL:  getEnv("SQS_DETECTION_QUEUE_URL", ""),
		IoTMQTTEndpoint:       getEnv("IOT_MQTT_ENDPOINT", ""),
		BarrierTopicPrefix:    getEnv("BARRIER_TOPIC_PREFIX", "garages"),
		PlateMinConfidence:    float32(p.float("PLATE_MIN_CONFIDENCE", 80)),
		SQSMaxMessages:        int32(p.int("SQS_MAX_MESSAGES", 10)),
		SQSWaitTimeSeconds:    int32(p.int("SQS_WAIT_TIME_SECONDS", 20)),
		SQSVisibilityTimeout:  int32(p.int("SQS_VISIBILITY_TIMEOUT", 30)),
		SQSProcessingDeadline: p.duration("SQS_PROCESSING_DEADLINE", 25*time.Second),

		JWTSecret:          getEnv("JWT_SECRET", "change-me"),
		JWTExpirationHours: time.Duration(p.int("JWT_EXPIRATION_HOURS", 24)) * time.Hour,

		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           p.int("REDIS_DB", 0),
		DetectionDebounce: p.duration("DETECTION_DEBOUNCE", 10*time.Second),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		DefaultStayOffset: p.duration("DEFAULT_STAY_OFFSET", 8*time.Hour),
		DefaultParkWindow: p.duration("DEFAULT_PARK_WINDOW", 2*time.Hour),
		ShowUpLead:        p.duration("SHOW_UP_LEAD", 30*time.Minute),
		ReassignLookahead: p.duration("REASSIGN_LOOKAHEAD", 8*time.Hour),

		ReassignSweepSpec:       getEnv("REASSIGN_SWEEP_SPEC", "@every 1m"),
		DetectionLogCleanupSpec: getEnv("DETECTION_LOG_CLEANUP_SPEC", "0 0 3 * * *"),
		DetectionLogRetention:   p.duration("DETECTION_LOG_RETENTION", 30*24*time.Hour),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogDevelopment: p.bool("LOG_DEVELOPMENT", false),
		ServiceName:    getEnv("SERVICE_NAME", "parking-garage"),

		GeneratedUserDomain: getEnv("GENERATED_USER_DOMAIN", "parking.local"),
	}
	if p.err != nil {
		return nil, p.err
	}
	if cfg.StoreDriver != StoreDriverPostgres && cfg.StoreDriver != StoreDriverMemory {
		return nil, fmt.Errorf("config: STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, cfg.StoreDriver)
	}
	return cfg, nil
}

// Engine returns the tunables of the allocation engine.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		DefaultStayOffset: c.DefaultStayOffset,
		DefaultParkWindow: c.DefaultParkWindow,
		ShowUpLead:        c.ShowUpLead,
		ReassignLookahead: c.ReassignLookahead,
	}
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// parser keeps the first conversion error so Load can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: invalid %s=%q: %w", key, value, err)
	}
}

func (p *parser) int(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) float(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) bool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}
