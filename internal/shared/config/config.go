package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	Env             string
	DatabaseURL     string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	PipelineBaseURL      string
	PipelineToken        string
	PipelineClientID     string
	PipelineClientSecret string
	PipelineTokenURL     string
	PipelineTimeout      time.Duration

	// StrictExtraction requires the extraction record to carry an OCR
	// storage path before the completion predicate holds.
	StrictExtraction bool

	TrackerInitialDelay  time.Duration
	TrackerInterval      time.Duration
	TrackerMaxAttempts   int
	BlockingWaitInterval time.Duration
	BlockingWaitCeiling  time.Duration
	ReadinessDelay       time.Duration
	ReadinessInterval    time.Duration
	ReadinessCeiling     time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		Env:             env,
		DatabaseURL:     dbURL,

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		PipelineBaseURL:      getEnv("PIPELINE_BASE_URL", "http://localhost:9000"),
		PipelineToken:        getEnv("PIPELINE_TOKEN", ""),
		PipelineClientID:     getEnv("PIPELINE_CLIENT_ID", ""),
		PipelineClientSecret: getEnv("PIPELINE_CLIENT_SECRET", ""),
		PipelineTokenURL:     getEnv("PIPELINE_TOKEN_URL", ""),
		PipelineTimeout:      getEnvDuration("PIPELINE_TIMEOUT", 15*time.Second),

		StrictExtraction: getEnvBool("STRICT_EXTRACTION", false),

		TrackerInitialDelay:  getEnvDuration("TRACKER_INITIAL_DELAY", 2*time.Second),
		TrackerInterval:      getEnvDuration("TRACKER_INTERVAL", 3*time.Second),
		TrackerMaxAttempts:   getEnvInt("TRACKER_MAX_ATTEMPTS", 40),
		BlockingWaitInterval: getEnvDuration("BLOCKING_WAIT_INTERVAL", 2*time.Second),
		BlockingWaitCeiling:  getEnvDuration("BLOCKING_WAIT_CEILING", 3*time.Minute),
		ReadinessDelay:       getEnvDuration("READINESS_INITIAL_DELAY", 2*time.Second),
		ReadinessInterval:    getEnvDuration("READINESS_INTERVAL", 2500*time.Millisecond),
		ReadinessCeiling:     getEnvDuration("READINESS_CEILING", 5*time.Minute),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
