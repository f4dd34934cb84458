package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"servicedesk/internal/store"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string
	DatabaseURL string

	RateLimitPerMinute     int
	RateLimitBurst         int
	UserRateLimitPerMinute int
	UserRateLimitBurst     int

	UploadDir             string
	HighPriorityThreshold decimal.Decimal
	CORSOrigins           []string
	ClaimRulesFile        string

	RedisAddr     string
	RedisPassword string
	MonitorCache  time.Duration

	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTTopic    string

	OmniEnabled         bool
	OmniAPIURL          string
	OmniAPIToken        string
	OmniUpdateStatusURL string
	OmniTimeout         time.Duration

	OmniRetryInterval    time.Duration
	OmniRetryBatchSize   int
	OmniRetryMaxAttempts int

	Environment      string
	OTLPEndpoint     string
	OTLPInsecure     bool
	TraceSampleRatio float64
}

func Load() Config {
	// A local .env is optional; real environment variables win.
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                   port,
		DatabaseURL:            os.Getenv("DB_DSN"),
		RateLimitPerMinute:     readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:         readInt("RATE_LIMIT_BURST", 30),
		UserRateLimitPerMinute: readInt("USER_RATE_LIMIT_PER_MIN", 600),
		UserRateLimitBurst:     readInt("USER_RATE_LIMIT_BURST", 120),
		UploadDir:              readString("UPLOAD_DIR", "./uploads"),
		HighPriorityThreshold:  readDecimal("HIGH_PRIORITY_THRESHOLD", store.DefaultHighPriorityThreshold),
		CORSOrigins:            readList("CORS_ORIGINS"),
		ClaimRulesFile:         os.Getenv("CLAIM_RULES_FILE"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		MonitorCache:           readDurationSeconds("MONITOR_CACHE_SECONDS", 15),
		MQTTBroker:             os.Getenv("MQTT_BROKER"),
		MQTTClientID:           readString("MQTT_CLIENT_ID", "servicedesk"),
		MQTTUsername:           os.Getenv("MQTT_USERNAME"),
		MQTTPassword:           os.Getenv("MQTT_PASSWORD"),
		MQTTTopic:              readString("MQTT_TOPIC_ATM_STATUS", "atm/status"),
		OmniEnabled:            readBool("OMNI_ENABLED", false),
		OmniAPIURL:             os.Getenv("OMNI_API_URL"),
		OmniAPIToken:           os.Getenv("OMNI_API_TOKEN"),
		OmniUpdateStatusURL:    os.Getenv("OMNI_UPDATE_STATUS_URL"),
		OmniTimeout:            readDurationSeconds("OMNI_TIMEOUT_SECONDS", 30),
		OmniRetryInterval:      readDurationSeconds("OMNI_RETRY_INTERVAL_SECONDS", 60),
		OmniRetryBatchSize:     readInt("OMNI_RETRY_BATCH_SIZE", 50),
		OmniRetryMaxAttempts:   readInt("OMNI_RETRY_MAX_ATTEMPTS", 3),
		Environment:            readString("APP_ENV", "development"),
		OTLPEndpoint:           strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTLPInsecure:           readBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSampleRatio:       readFloat("OTEL_TRACES_SAMPLER_RATIO", 1),
	}
}

// LoadClaimRules overlays the YAML rules file, if any, on the built-in rules.
func LoadClaimRules(path string) (store.ClaimRules, error) {
	rules := store.DefaultClaimRules()
	if path == "" {
		return rules, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return rules, err
	}
	var fromFile store.ClaimRules
	if err := yaml.Unmarshal(raw, &fromFile); err != nil {
		return rules, fmt.Errorf("parse %s: %w", path, err)
	}
	return rules.Merge(fromFile), nil
}

func readString(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func readList(key string) []string {
	var values []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			values = append(values, item)
		}
	}
	return values
}

func readDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := decimal.NewFromString(raw)
	if err != nil || !value.IsPositive() {
		log.Printf("config invalid key=%s value=%q using default", key, raw)
		return fallback
	}
	return value
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
