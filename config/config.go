package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Seed       SeedConfig
	Report     ReportConfig
	Extraction ExtractionConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Observ     ObservabilityConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Path string
}

type SeedConfig struct {
	CSVURL         string
	TimeoutSeconds int
}

type ReportConfig struct {
	Path string
}

type ExtractionConfig struct {
	Provider       string
	APIKey         string
	Model          string
	BaseURL        string
	TimeoutSeconds int
}

type RedisConfig struct {
	Addr                string
	Password            string
	DB                  int
	IdempotencyTTLHours int
	// PendingTTLSeconds bounds how long an unfinished submission holds its key
	PendingTTLSeconds int
}

type KafkaConfig struct {
	Brokers     []string
	TopicReturn string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	idemTTL, _ := strconv.Atoi(getEnv("IDEMPOTENCY_TTL_HOURS", "24"))
	pendingTTL, _ := strconv.Atoi(getEnv("IDEMPOTENCY_PENDING_SECONDS", "60"))
	extractTimeout, _ := strconv.Atoi(getEnv("EXTRACTION_TIMEOUT_SECONDS", "60"))
	seedTimeout, _ := strconv.Atoi(getEnv("SEED_TIMEOUT_SECONDS", "30"))

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "returns.db"),
		},
		Seed: SeedConfig{
			CSVURL:         getEnv("SEED_CSV_URL", ""),
			TimeoutSeconds: seedTimeout,
		},
		Report: ReportConfig{
			Path: getEnv("REPORT_PATH", "returns_summary.xlsx"),
		},
		Extraction: ExtractionConfig{
			Provider:       getEnv("EXTRACTOR", "gemini"),
			APIKey:         getEnv("GEMINI_API_KEY", ""),
			Model:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			BaseURL:        getEnv("GEMINI_BASE_URL", ""),
			TimeoutSeconds: extractTimeout,
		},
		Redis: RedisConfig{
			Addr:                getEnv("REDIS_ADDR", ""),
			Password:            getEnv("REDIS_PASSWORD", ""),
			DB:                  redisDB,
			IdempotencyTTLHours: idemTTL,
			PendingTTLSeconds:   pendingTTL,
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(getEnv("KAFKA_BROKERS", "")),
			TopicReturn: getEnv("KAFKA_TOPIC_RETURN_EVENTS", "return-events"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
		},
	}

	log.Printf("Config loaded: env=%s, port=%s, db=%s", cfg.Server.Env, cfg.Server.Port, cfg.Database.Path)
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// splitList splits a comma separated value, dropping blanks.
func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
