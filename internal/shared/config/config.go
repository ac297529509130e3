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
	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	SQSQueueURL     string
	DatabaseURL     string
	Env             string
	JWTSecret       string
	Signup          SignupConfig
	Worker          WorkerConfig
}

// SignupConfig tunes the signup form sessions.
type SignupConfig struct {
	// UploadTransport is "simulated" or "store".
	UploadTransport string
	TickInterval    time.Duration
	TickIncrement   int
	NoticeTTL       time.Duration
	SessionTTL      time.Duration
	SweepInterval   time.Duration
	MaxFileBytes    int64
	DefaultSeats    int
}

// WorkerConfig tunes the review queue consumer.
type WorkerConfig struct {
	Concurrency       int
	VisibilitySeconds int
	ShutdownTimeout   time.Duration
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
		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),
		SQSQueueURL:     getEnv("SIGNUP_SQS_QUEUE_URL", ""),
		DatabaseURL:     dbURL,
		Env:             env,
		JWTSecret:       getEnv("JWT_SECRET", ""),
		Signup: SignupConfig{
			UploadTransport: normalizeTransport(getEnv("SIGNUP_UPLOAD_TRANSPORT", "simulated")),
			TickInterval:    getDuration("SIGNUP_TICK_INTERVAL", 200*time.Millisecond),
			TickIncrement:   getInt("SIGNUP_TICK_INCREMENT", 10),
			NoticeTTL:       getDuration("SIGNUP_NOTICE_TTL", 5*time.Second),
			SessionTTL:      getDuration("SIGNUP_SESSION_TTL", 2*time.Hour),
			SweepInterval:   getDuration("SIGNUP_SWEEP_INTERVAL", time.Minute),
			MaxFileBytes:    int64(getInt("SIGNUP_MAX_FILE_BYTES", 10<<20)),
			DefaultSeats:    getInt("LICENSE_DEFAULT_SEATS", 50),
		},
		Worker: WorkerConfig{
			Concurrency:       getInt("WORKER_CONCURRENCY", 4),
			VisibilitySeconds: getInt("SQS_VISIBILITY_TIMEOUT_SECONDS", 300),
			ShutdownTimeout:   getDuration("WORKER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config env %s invalid int: %v", key, err)
		return def
	}
	return val
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config env %s invalid duration: %v", key, err)
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

func normalizeTransport(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "store":
		return "store"
	default:
		return "simulated"
	}
}
