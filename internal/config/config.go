package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Neo4j     DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Kafka     KafkaConfig
	Monitoring MonitoringConfig
	Logger    LoggingConfig
	Processor ProcessorConfig
	Queue     QueueConfig
	AIService AIServiceConfig
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host         string
	Port         string
	Version      string
	Environment  string
	GinMode      string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

// PostgresConfig holds the chunk-store database configuration.
//
// The teacher's cmd/server/main.go referenced cfg.Postgres.* and imported
// github.com/lib/pq without either the config struct or the dependency
// ever being declared. This completes that dangling reference using
// jackc/pgx/v5 + pgvector-go instead of lib/pq, since the chunk store
// needs native vector column binding that lib/pq does not provide.
type PostgresConfig struct {
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	SSLMode      string
	MaxConns     int
	MaxIdleConns int
}

// DSN returns the libpq-style connection string pgxpool.ParseConfig accepts.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		p.Host, p.Port, p.Database, p.Username, p.Password, p.SSLMode)
}

// DatabaseConfig holds Neo4j database configuration.
type DatabaseConfig struct {
	Enabled     bool
	URI         string
	Username    string
	Password    string
	Database    string
	MaxConns    int
	TLSInsecure bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
	// TTL, in seconds, for the document-resolution memoization cache used
	// by the queue dispatcher while the upload-completion row is racing
	// against the object-finalized event.
	ResolutionCacheTTLSeconds int
}

// StorageConfig holds S3/MinIO configuration for the object-store client.
type StorageConfig struct {
	Enabled         bool
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Endpoint        string
	UseSSL          bool
	UsePathStyle    bool
}

// KafkaConfig holds Kafka configuration for the durable task queue.
type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	TopicPrefix string
}

// MonitoringConfig holds monitoring configuration.
type MonitoringConfig struct {
	PrometheusEnabled bool
	OTELEndpoint      string
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string
	Format string
}

// ProcessorConfig holds the resource limits and concurrency controls for
// the processor HTTP service (C9) and media dispatcher (C8).
type ProcessorConfig struct {
	MaxConcurrentJobs   int
	JobDeadlineSeconds  int
	DocMaxBytes         int64
	ImageMaxBytes       int64
	AudioMaxDurationSec int
	VideoMaxDurationSec int
	VideoSegmentLenSec  int
	VideoMaxSegments    int
	ChunkTargetChars    int
	ChunkOverlapChars   int
}

// QueueConfig holds the queue dispatcher's (C10) topic and retry settings.
type QueueConfig struct {
	UploadEventsTopic   string
	ProcessTasksTopic   string
	ConsumerGroup       string
	UploadBucket        string
	DispatchDeadlineSec int
	ResolveMaxAttempts  int
	ResolveBaseDelayMs  int
}

// AIServiceConfig holds credentials and endpoints for the managed AI
// service used for text embedding (768-d), multimodal embedding (1408-d),
// transcription, and image/video description (C3, C4, C6).
type AIServiceConfig struct {
	ProjectID                   string
	Region                      string
	BaseURL                     string
	APIKey                      string
	TextEmbedModel              string
	MultimodalEmbedModel        string
	TranscriptionModel          string
	DescriptionModel            string
	TimeoutSeconds              int
	TextEmbedDim                int
	MultimodalEmbedDim          int
	RetryAttempts               int
	MultimodalContextTokenLimit int
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("HOST", "0.0.0.0"),
			Port:         getEnv("PORT", "8080"),
			Version:      getEnv("VERSION", "0.1.0"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			GinMode:      getEnv("GIN_MODE", "release"),
			ReadTimeout:  getEnvInt("READ_TIMEOUT", 10),
			WriteTimeout: getEnvInt("WRITE_TIMEOUT", 10),
			IdleTimeout:  getEnvInt("IDLE_TIMEOUT", 60),
		},
		Postgres: PostgresConfig{
			Host:         getEnv("POSTGRES_HOST", "localhost"),
			Port:         getEnvInt("POSTGRES_PORT", 5432),
			Database:     getEnv("POSTGRES_DATABASE", "ragcore"),
			Username:     getEnv("POSTGRES_USERNAME", "postgres"),
			Password:     getEnv("POSTGRES_PASSWORD", ""),
			SSLMode:      getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns:     getEnvInt("POSTGRES_MAX_CONNS", 20),
			MaxIdleConns: getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
		},
		Neo4j: DatabaseConfig{
			Enabled:     getEnvBool("NEO4J_ENABLED", false),
			URI:         getEnv("NEO4J_URI", "bolt://localhost:7687"),
			Username:    getEnv("NEO4J_USERNAME", "neo4j"),
			Password:    getEnv("NEO4J_PASSWORD", "password"),
			Database:    getEnv("NEO4J_DATABASE", "ragcore"),
			MaxConns:    getEnvInt("NEO4J_MAX_CONNS", 50),
			TLSInsecure: getEnvBool("NEO4J_TLS_INSECURE", false),
		},
		Redis: RedisConfig{
			Enabled:                   getEnvBool("REDIS_ENABLED", false),
			Addr:                      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:                  getEnv("REDIS_PASSWORD", ""),
			DB:                        getEnvInt("REDIS_DB", 0),
			PoolSize:                  getEnvInt("REDIS_POOL_SIZE", 10),
			ResolutionCacheTTLSeconds: getEnvInt("REDIS_RESOLUTION_CACHE_TTL_SECONDS", 300),
		},
		Storage: StorageConfig{
			Enabled:         getEnvBool("STORAGE_ENABLED", true),
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("UPLOAD_BUCKET", "rag-uploads"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			UseSSL:          getEnvBool("S3_USE_SSL", true),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", false),
		},
		Kafka: KafkaConfig{
			Enabled:     getEnvBool("KAFKA_ENABLED", true),
			Brokers:     getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", "ragcore"),
		},
		Monitoring: MonitoringConfig{
			PrometheusEnabled: getEnvBool("PROMETHEUS_ENABLED", true),
			OTELEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
		Logger: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Processor: ProcessorConfig{
			MaxConcurrentJobs:   getEnvInt("MAX_CONCURRENT_JOBS", 1),
			JobDeadlineSeconds:  getEnvInt("JOB_DEADLINE_SECONDS", 3600),
			DocMaxBytes:         getEnvInt64("DOC_MAX_BYTES", 100*1024*1024),
			ImageMaxBytes:       getEnvInt64("IMAGE_MAX_BYTES", 20*1024*1024),
			AudioMaxDurationSec: getEnvInt("AUDIO_MAX_DURATION_SEC", 3600),
			VideoMaxDurationSec: getEnvInt("VIDEO_MAX_DURATION_SEC", 900),
			VideoSegmentLenSec:  getEnvInt("VIDEO_SEGMENT_LEN_SEC", 30),
			VideoMaxSegments:    getEnvInt("VIDEO_MAX_SEGMENTS", 30),
			ChunkTargetChars:    getEnvInt("CHUNK_TARGET_CHARS", 1000),
			ChunkOverlapChars:   getEnvInt("CHUNK_OVERLAP_CHARS", 100),
		},
		Queue: QueueConfig{
			UploadEventsTopic:   getEnv("QUEUE_UPLOAD_EVENTS_TOPIC", "object.finalized"),
			ProcessTasksTopic:   getEnv("QUEUE_PROCESS_TASKS_TOPIC", "document.process-task"),
			ConsumerGroup:       getEnv("QUEUE_CONSUMER_GROUP", "ragcore-queue-dispatcher"),
			UploadBucket:        getEnv("UPLOAD_BUCKET", "rag-uploads"),
			DispatchDeadlineSec: getEnvInt("QUEUE_DISPATCH_DEADLINE_SEC", 5),
			ResolveMaxAttempts:  getEnvInt("QUEUE_RESOLVE_MAX_ATTEMPTS", 5),
			ResolveBaseDelayMs:  getEnvInt("QUEUE_RESOLVE_BASE_DELAY_MS", 200),
		},
		AIService: AIServiceConfig{
			ProjectID:                   getEnv("AI_PROJECT_ID", ""),
			Region:                      getEnv("AI_REGION", "us-central1"),
			BaseURL:                     getEnv("AI_SERVICE_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			APIKey:                      getEnv("AI_SERVICE_API_KEY", ""),
			TextEmbedModel:              getEnv("AI_TEXT_EMBED_MODEL", "text-embedding-004"),
			MultimodalEmbedModel:        getEnv("AI_MULTIMODAL_EMBED_MODEL", "multimodalembedding@001"),
			TranscriptionModel:          getEnv("AI_TRANSCRIPTION_MODEL", "gemini-1.5-flash"),
			DescriptionModel:            getEnv("AI_DESCRIPTION_MODEL", "gemini-1.5-flash"),
			TimeoutSeconds:              getEnvInt("AI_SERVICE_TIMEOUT_SECONDS", 60),
			TextEmbedDim:                getEnvInt("AI_TEXT_EMBED_DIM", 768),
			MultimodalEmbedDim:          getEnvInt("AI_MULTIMODAL_EMBED_DIM", 1408),
			RetryAttempts:               getEnvInt("RETRY_ATTEMPTS", 3),
			MultimodalContextTokenLimit: getEnvInt("MULTIMODAL_CONTEXT_TOKEN_LIMIT", 32),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Postgres.Password == "" && c.Server.Environment == "production" {
		return fmt.Errorf("POSTGRES_PASSWORD is required in production")
	}

	if c.Storage.Enabled && (c.Storage.AccessKeyID == "" || c.Storage.SecretAccessKey == "") {
		return fmt.Errorf("AWS credentials (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY) are required when storage is enabled")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("at least one Kafka broker is required when Kafka is enabled")
	}

	if c.Processor.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1")
	}

	if c.Processor.VideoSegmentLenSec < 1 {
		return fmt.Errorf("VIDEO_SEGMENT_LEN_SEC must be positive")
	}

	if c.AIService.TextEmbedDim != 768 {
		return fmt.Errorf("AI_TEXT_EMBED_DIM must be 768 per the chunk store schema")
	}

	if c.AIService.MultimodalEmbedDim != 1408 {
		return fmt.Errorf("AI_MULTIMODAL_EMBED_DIM must be 1408 per the chunk store schema")
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.GinMode == "debug" || c.Server.GinMode == "dev"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.GinMode == "release"
}

// Helper functions for environment variables.

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
