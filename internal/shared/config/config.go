package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	Env             string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	DatabaseURL string

	// Upload limits.
	MinUploadBytes int64
	MaxUploadBytes int64
	MinTextChars   int
	MaxTextChars   int

	// Per-owner quotas.
	MaxActiveDocuments int
	MaxStoredBytes     int64

	// Threat scanning.
	ScannerURL     string
	ScanTimeout    time.Duration
	ScanFailOpen   bool
	RescanQueueURL string

	// Extraction budget.
	ExtractTimeout time.Duration
	MaxPDFPages    int
	RedactPII      bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	_ = godotenv.Load(".env")
	_ = godotenv.Load("cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		Env:             env,

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		DatabaseURL: dbURL,

		MinUploadBytes: getEnvInt64("MIN_UPLOAD_BYTES", 1<<10),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 10<<20),
		MinTextChars:   getEnvInt("MIN_TEXT_CHARS", 50),
		MaxTextChars:   getEnvInt("MAX_TEXT_CHARS", 10000),

		MaxActiveDocuments: getEnvInt("MAX_ACTIVE_DOCUMENTS", 20),
		MaxStoredBytes:     getEnvInt64("MAX_STORED_BYTES", 100<<20),

		ScannerURL:     getEnv("SCANNER_URL", ""),
		ScanTimeout:    getEnvDuration("SCAN_TIMEOUT", 15*time.Second),
		ScanFailOpen:   getEnvBool("SCAN_FAIL_OPEN", false),
		RescanQueueURL: getEnv("RESCAN_QUEUE_URL", ""),

		ExtractTimeout: getEnvDuration("EXTRACT_TIMEOUT", 30*time.Second),
		MaxPDFPages:    getEnvInt("MAX_PDF_PAGES", 50),
		RedactPII:      getEnvBool("REDACT_PII", false),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return def
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
