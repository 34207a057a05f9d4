package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Every field has an environment variable and a usable default.
type Config struct {
	HTTPAddr string

	// Slot store
	DBDriver   string // "mysql" or "sqlite"
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string
	DBLogSQL   bool

	// MinIO / S3 audio source
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// Local audio root, used when AUDIO_SOURCE=local and by the watch command
	AudioSource    string // "minio" or "local"
	LocalAudioRoot string

	// Redis batch result cache
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	BatchCacheTTL time.Duration

	// MQTT slot events (disabled when MQTTBroker is empty)
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTTopic    string // e.g. "smileslot/slots/{device_id}"

	// Extractor
	ExtractorMode    string // "http" or "smilextract"
	ExtractorURL     string
	ExtractorTimeout time.Duration
	SMILExtractPath  string
	SMILExtractConf  string
	FeatureSet       string
	FFprobePath      string // duration probe for non-WAV audio; empty disables it

	// Pipeline
	Workers         int
	StoreRetries    int
	StoreBackoff    time.Duration
	SampleTolerance time.Duration
	StatusField     string

	// Logging
	LogLevel      string
	LogFormat     string // "json" or "console"
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("750ms", "2s").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() *Config {
	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8011"),

		DBDriver:   getEnv("DB_DRIVER", "mysql"),
		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "smileslot"),
		SQLitePath: getEnv("SQLITE_PATH", "smileslot.db"),
		DBLogSQL:   getEnvBool("DB_LOG_SQL", false),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "watchme-vault"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		AudioSource:    getEnv("AUDIO_SOURCE", "minio"),
		LocalAudioRoot: getEnv("LOCAL_AUDIO_ROOT", "."),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		BatchCacheTTL: getEnvDuration("BATCH_CACHE_TTL", 24*time.Hour),

		MQTTBroker:   getEnv("MQTT_BROKER", ""),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "smileslot"),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),
		MQTTTopic:    getEnv("MQTT_TOPIC", "smileslot/slots/{device_id}"),

		ExtractorMode:    getEnv("EXTRACTOR_MODE", "http"),
		ExtractorURL:     getEnv("EXTRACTOR_URL", "http://127.0.0.1:8012"),
		ExtractorTimeout: getEnvDuration("EXTRACTOR_TIMEOUT", 2*time.Minute),
		SMILExtractPath:  getEnv("SMILEXTRACT_PATH", "SMILExtract"),
		SMILExtractConf:  getEnv("SMILEXTRACT_CONFIG", "config/egemaps/v02/eGeMAPSv02.conf"),
		FeatureSet:       getEnv("FEATURE_SET", "eGeMAPSv02"),
		FFprobePath:      getEnv("FFPROBE_PATH", ""),

		Workers:         getEnvInt("PIPELINE_WORKERS", 1),
		StoreRetries:    getEnvInt("STORE_RETRIES", 3),
		StoreBackoff:    getEnvDuration("STORE_BACKOFF", 250*time.Millisecond),
		SampleTolerance: getEnvDuration("SAMPLE_TOLERANCE", 500*time.Millisecond),
		StatusField:     getEnv("STATUS_FIELD", "emotion_features_status"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 30),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),
	}
}
