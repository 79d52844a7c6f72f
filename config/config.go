package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr  string        `validate:"required"`
	JWTSecret string        `validate:"required"`
	TokenTTL  time.Duration `validate:"gt=0"`

	// Base of public share links; derived from the request when empty.
	PublicBaseURL string `validate:"omitempty,url"`

	// Storage root holding one sandbox per user plus the log file.
	StoragePath       string `validate:"required"`
	DefaultQuotaBytes int64  `validate:"gt=0"`
	MaxUploadBytes    int64  `validate:"gt=0"`
	MaxFolderDepth    int    `validate:"gt=0"`

	DBDriver string `validate:"oneof=sqlite mysql"`
	DBPath   string
	DBHost   string
	DBPort   string
	DBUser   string
	DBPass   string
	DBName   string

	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	ListCacheTTL  time.Duration

	MinioEnabled  bool
	MinioHost     string
	MinioPort     string
	MinioUsername string
	MinioPassword string
	MinioUseSSL   bool
	BackupBucket  string

	RabbitMQURL      string
	RabbitMQPrefetch int

	DerivativeMode        string  `validate:"oneof=local queue"`
	DerivativeWorkers     int     `validate:"gt=0"`
	DerivativeRate        float64 `validate:"gte=0"`
	DerivativeBurst       int     `validate:"gt=0"`
	DerivativeRetryMax    int     `validate:"gte=0"`
	DerivativeRetryDelays []time.Duration
	DerivativeTimeout     time.Duration `validate:"gt=0"`
	ThumbnailSize         uint          `validate:"gt=0"`
	ThumbnailMaxPixels    int64         `validate:"gt=0"`
	FFmpegPath            string
	FFprobePath           string

	AdminUsername string
	AdminPassword string

	LogLevel string
	LogFile  string
}

var AppConfig Config

var validate = validator.New()

// getEnv returns the environment value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDurationList(key string, defaultValue []time.Duration) []time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed, err := time.ParseDuration(part)
		if err != nil {
			return defaultValue
		}
		out = append(out, parsed)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// InitConfig loads configuration from the environment, reading a .env file first when present.
func InitConfig() {
	_ = godotenv.Load()

	rabbitURL := getEnv("RABBITMQ_URL", "")
	if rabbitURL == "" {
		rabbitURL = fmt.Sprintf(
			"amqp://%s:%s@%s:%s/%s",
			url.PathEscape(getEnv("RABBITMQ_USER", "guest")),
			url.PathEscape(getEnv("RABBITMQ_PASSWORD", "guest")),
			getEnv("RABBITMQ_HOST", "localhost"),
			getEnv("RABBITMQ_PORT", "5672"),
			url.PathEscape(getEnv("RABBITMQ_VHOST", "/")),
		)
	}
	storagePath := getEnv("STORAGE_PATH", "user_data")

	AppConfig = Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":4444"),
		JWTSecret: getEnv("JWT_SECRET", "dev-secret-key"),
		TokenTTL:  getEnvDuration("TOKEN_TTL", 24*time.Hour),

		PublicBaseURL: strings.TrimRight(getEnv("APP_BASE_URL", ""), "/"),

		StoragePath:       storagePath,
		DefaultQuotaBytes: getEnvInt64("DEFAULT_QUOTA_BYTES", 50*1024*1024*1024),
		MaxUploadBytes:    getEnvInt64("MAX_UPLOAD_SIZE", 500*1024*1024),
		MaxFolderDepth:    getEnvInt("MAX_FOLDER_DEPTH", 64),

		DBDriver: getEnv("DB_DRIVER", "sqlite"),
		DBPath:   getEnv("DB_PATH", filepath.Join(storagePath, "cabinet.db")),
		DBHost:   getEnv("DB_HOST", "localhost"),
		DBPort:   getEnv("DB_PORT", "3306"),
		DBUser:   getEnv("DB_USER", "root"),
		DBPass:   getEnv("DB_PASS", "root"),
		DBName:   getEnv("DB_NAME", "cabinet"),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		ListCacheTTL:  getEnvDuration("LIST_CACHE_TTL", 2*time.Minute),

		MinioEnabled:  getEnvBool("MINIO_ENABLED", false),
		MinioHost:     getEnv("MINIO_HOST", "localhost"),
		MinioPort:     getEnv("MINIO_PORT", "9000"),
		MinioUsername: getEnv("MINIO_USERNAME", "minioadmin"),
		MinioPassword: getEnv("MINIO_PASSWORD", "minioadmin"),
		MinioUseSSL:   getEnvBool("MINIO_USE_SSL", false),
		BackupBucket:  getEnv("BACKUP_BUCKET", "cabinet-backup"),

		RabbitMQURL:      rabbitURL,
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 8),

		DerivativeMode:     getEnv("DERIVATIVE_MODE", "local"),
		DerivativeWorkers:  getEnvInt("DERIVATIVE_WORKERS", 2),
		DerivativeRate:     getEnvFloat("DERIVATIVE_RATE", 0),
		DerivativeBurst:    getEnvInt("DERIVATIVE_BURST", 4),
		DerivativeRetryMax: getEnvInt("DERIVATIVE_RETRY_MAX", 3),
		DerivativeRetryDelays: getEnvDurationList(
			"DERIVATIVE_RETRY_DELAYS",
			[]time.Duration{10 * time.Second, time.Minute, 5 * time.Minute},
		),
		DerivativeTimeout:  getEnvDuration("DERIVATIVE_TIMEOUT", 2*time.Minute),
		ThumbnailSize:      uint(getEnvInt("THUMBNAIL_SIZE", 300)),
		// 16383 x 16383, the largest input accepted by common image pipelines.
		ThumbnailMaxPixels: getEnvInt64("THUMBNAIL_MAX_PIXELS", 268402689),
		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        getEnv("FFPROBE_PATH", "ffprobe"),

		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin123"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", filepath.Join(storagePath, "cabinet.log")),
	}
}

// Validate checks the loaded configuration.
func Validate() error {
	if err := validate.Struct(AppConfig); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
