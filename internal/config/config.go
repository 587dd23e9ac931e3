package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI     string
	DBName       string
	JWTSecret    string
	JWTExpiresIn string
	GeminiAPIKey string
	Port         string
	GinMode      string
	CORSOrigins  []string

	// Document ingestion
	MaxFileSize     int64
	AllowedTypes    []string
	FileStorageDir  string
	IndexStorageDir string

	// Chunking defaults (per-context config may override chunk size)
	DefaultChunkSize int

	// Embeddings
	EmbeddingModel   string // e.g. "text-embedding-004"
	VectorDimensions int
	GeminiTier       string

	// Completion
	CompletionModel string

	// Retrieval
	TopKPerContext int

	// Redis / queue
	RedisURL          string
	RedisPassword     string
	RedisDB           int
	WorkerConcurrency int

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Version integrity audit
	IntegrityAuditHours int
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017/context_rag"),
		DBName:       getEnv("DB_NAME", "context_rag"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		JWTExpiresIn: getEnv("JWT_EXPIRES_IN", "24h"),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		Port:         getEnv("PORT", "8080"),
		GinMode:      getEnv("GIN_MODE", "debug"),
		CORSOrigins:  strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		MaxFileSize:     getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB
		AllowedTypes:    strings.Split(getEnv("ALLOWED_FILE_TYPES", "application/pdf,text/plain,text/markdown"), ","),
		FileStorageDir:  getEnv("FILE_STORAGE_DIR", "./storage"),
		IndexStorageDir: getEnv("INDEX_STORAGE_DIR", "./storage/indexes"),

		DefaultChunkSize: getEnvInt("DEFAULT_CHUNK_SIZE", 1000),

		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		VectorDimensions: getEnvInt("VECTOR_DIM", 768),
		GeminiTier:       getEnv("GEMINI_TIER", "free"),

		CompletionModel: getEnv("COMPLETION_MODEL", "gemini-2.0-flash"),

		TopKPerContext: getEnvInt("TOP_K_PER_CONTEXT", 5),

		RedisURL:          getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 10),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		IntegrityAuditHours: getEnvInt("INTEGRITY_AUDIT_HOURS", 24),
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required - set it in .env file")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.VectorDimensions <= 0 {
		return nil, fmt.Errorf("VECTOR_DIM must be positive")
	}

	return cfg, nil
}

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
