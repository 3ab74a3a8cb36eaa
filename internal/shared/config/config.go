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
	Env             string
	CORSAllowOrigin []string
	PublicBaseURL   string
	MaxUploadBytes  int64

	APIBaseURL           string
	AnalysisTimeout      time.Duration
	AnalysisClientID     string
	AnalysisClientSecret string
	AnalysisTokenURL     string

	IdentityProvider        string
	FirebaseCredentialsFile string
	FirebaseProjectID       string
	FirebaseWebAPIKey       string
	ProfileStore            string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	GCSBucket       string

	DatabaseURL      string
	RedisURL         string
	ReportSessionTTL time.Duration
	BusyLockTTL      time.Duration
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
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000")),
		PublicBaseURL:   strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		MaxUploadBytes:  getEnvInt64("MAX_UPLOAD_BYTES", 10<<20),

		APIBaseURL:           strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8000"), "/"),
		AnalysisTimeout:      getEnvDuration("ANALYSIS_TIMEOUT", 120*time.Second),
		AnalysisClientID:     getEnv("ANALYSIS_CLIENT_ID", ""),
		AnalysisClientSecret: getEnv("ANALYSIS_CLIENT_SECRET", ""),
		AnalysisTokenURL:     getEnv("ANALYSIS_TOKEN_URL", ""),

		IdentityProvider:        normalizeChoice(getEnv("IDENTITY_PROVIDER", "memory"), "memory", "firebase"),
		FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseWebAPIKey:       getEnv("FIREBASE_WEB_API_KEY", ""),
		ProfileStore:            normalizeChoice(getEnv("PROFILE_STORE", "memory"), "memory", "firestore", "postgres"),

		ObjectStoreType: normalizeChoice(getEnv("OBJECT_STORE", "local"), "local", "s3", "gcs"),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),
		GCSBucket:       getEnv("GCS_BUCKET", ""),

		DatabaseURL:      dbURL,
		RedisURL:         getEnv("REDIS_URL", ""),
		ReportSessionTTL: getEnvDuration("REPORT_SESSION_TTL", time.Hour),
		BusyLockTTL:      getEnvDuration("BUSY_LOCK_TTL", 2*time.Minute),
	}
}

// lockTTLMargin is the slack a busy lock keeps beyond the analysis timeout.
const lockTTLMargin = 30 * time.Second

// EffectiveBusyLockTTL is BusyLockTTL raised to cover a full analysis call
// when the analysis timeout is bounded. With no timeout the hold relies on
// renewal while its owner runs.
func (c Config) EffectiveBusyLockTTL() time.Duration {
	ttl := c.BusyLockTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if c.AnalysisTimeout > 0 && ttl < c.AnalysisTimeout+lockTTLMargin {
		ttl = c.AnalysisTimeout + lockTTLMargin
	}
	return ttl
}

// IsDevLike reports whether env allows in-memory fallbacks.
func (c Config) IsDevLike() bool {
	return c.Env == "dev" || c.Env == "local"
}

// loadEnvFiles loads KEY=VALUE files that exist. Variables already set win.
func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			log.Printf("config: skip %s: %v", path, err)
		}
	}
}

func getEnv(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || val <= 0 {
		log.Printf("config: %s invalid int %q, using %d", key, raw, def)
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val < 0 {
		log.Printf("config: %s invalid duration %q, using %s", key, raw, def)
		return def
	}
	return val
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

// normalizeChoice lowercases raw and falls back to the first allowed value.
func normalizeChoice(raw string, allowed ...string) string {
	clean := strings.ToLower(strings.TrimSpace(raw))
	for _, a := range allowed {
		if clean == a {
			return a
		}
	}
	return allowed[0]
}
