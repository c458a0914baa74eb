package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Qdrant    QdrantConfig
	LLM       LLMConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Worker    WorkerConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
}

// LLMConfig selects the generation backend and bounds every external call.
type LLMConfig struct {
	Provider       string
	Model          string
	APIKey         string
	EmbedModel     string
	Temperature    float32
	MaxTokens      int
	RequestTimeout time.Duration
	MaxAttempts    int
	BackoffFactor  float64
	BackoffMin     time.Duration
	BackoffMax     time.Duration
}

type StorageConfig struct {
	UploadPath  string
	MaxFileSize int64
}

type RetrievalConfig struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

type WorkerConfig struct {
	Concurrency       int
	RetryMaxAttempts  int
	RetryBackoffBase  float64
	EvaluationTimeout time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using default values.")
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "3000"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "candidate_screener"),
		},
		Qdrant: QdrantConfig{
			URL:        getEnv("QDRANT_URL", "http://localhost:6333"),
			APIKey:     getEnv("QDRANT_API_KEY", ""),
			Collection: getEnv("QDRANT_COLLECTION", "screener_reference_docs"),
		},
		LLM: LLMConfig{
			Provider:       getEnv("LLM_PROVIDER", "gemini"),
			Model:          getEnv("LLM_MODEL", "gemini-2.5-flash"),
			APIKey:         getEnv("LLM_API_KEY", ""),
			EmbedModel:     getEnv("LLM_EMBED_MODEL", "text-embedding-004"),
			Temperature:    getEnvAsFloat32("LLM_TEMPERATURE", 0.3),
			MaxTokens:      getEnvAsInt("LLM_MAX_TOKENS", 2000),
			RequestTimeout: getEnvAsDuration("LLM_REQUEST_TIMEOUT", "60s"),
			MaxAttempts:    getEnvAsInt("LLM_MAX_ATTEMPTS", 3),
			BackoffFactor:  getEnvAsFloat("LLM_BACKOFF_FACTOR", 2),
			BackoffMin:     getEnvAsDuration("LLM_BACKOFF_MIN", "1s"),
			BackoffMax:     getEnvAsDuration("LLM_BACKOFF_MAX", "10s"),
		},
		Storage: StorageConfig{
			UploadPath:  getEnv("UPLOAD_PATH", "./uploads"),
			MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 10485760),
		},
		Retrieval: RetrievalConfig{
			ChunkSize:    getEnvAsInt("CHUNK_SIZE", 1000),
			ChunkOverlap: getEnvAsInt("CHUNK_OVERLAP", 200),
			TopK:         getEnvAsInt("RETRIEVAL_TOP_K", 5),
		},
		Worker: WorkerConfig{
			Concurrency:       getEnvAsInt("WORKER_CONCURRENCY", 3),
			RetryMaxAttempts:  getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			RetryBackoffBase:  getEnvAsFloat("RETRY_BACKOFF_BASE", 2),
			EvaluationTimeout: getEnvAsDuration("EVALUATION_TIMEOUT", "5m"),
		},
	}
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	return float32(getEnvAsFloat(key, float64(defaultValue)))
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
