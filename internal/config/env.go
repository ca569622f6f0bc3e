package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     string
	LogLevel string

	DatabaseURL string

	// Storage: "local" writes under DataDir, "s3" uses the bucket below.
	StorageBackend string
	DataDir        string
	UploadDir      string
	OutputDir      string
	AwsAccessKey   string
	AwsSecretKey   string
	AwsRegion      string
	BucketName     string

	// Embedding provider: "huggingface", "gemini", "openai" or "" (disabled).
	EmbedProvider   string
	EmbedModel      string
	EmbedDim        int
	EmbedBatchSize  int
	EmbedMaxRetries int
	EmbedRetryDelay time.Duration
	EmbedTimeout    time.Duration
	EmbedRPS        float64
	HFBaseURL       string
	HFAPIKey        string
	AIAPIKey        string
	OpenAIAPIKey    string
	OpenAIBaseURL   string

	RedisURL string

	ChunkSize      int
	ChunkOverlap   int
	ChunkMinLength int

	PDFMaxPages    int
	RenderScale    float64
	RenderQuality  int
	RenderMaxPages int
	RenderTimeout  time.Duration

	WorkerCount int
	QueueSize   int
}

// LoadConfig loads the environment variables and returns config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENVIRONMENT", "dev"),
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		StorageBackend: getEnv("STORAGE_BACKEND", "local"),
		DataDir:        getEnv("DATA_DIR", "./data"),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		OutputDir:      getEnv("OUTPUT_DIR", "outputs"),
		AwsAccessKey:   getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:   getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:      getEnv("AWS_REGION", "us-east-2"),
		BucketName:     getEnv("BUCKET_NAME", "prism-docs"),

		EmbedProvider:   getEnv("EMBED_PROVIDER", "huggingface"),
		EmbedModel:      getEnv("EMBED_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
		EmbedDim:        getEnvInt("EMBED_DIM", 384),
		EmbedBatchSize:  getEnvInt("EMBED_BATCH_SIZE", 64),
		EmbedMaxRetries: getEnvInt("EMBED_MAX_RETRIES", 3),
		EmbedRetryDelay: getEnvDuration("EMBED_RETRY_DELAY", 2*time.Second),
		EmbedTimeout:    getEnvDuration("EMBED_TIMEOUT", 60*time.Second),
		EmbedRPS:        getEnvFloat("EMBED_RPS", 2),
		HFBaseURL:       getEnv("HF_BASE_URL", "https://api-inference.huggingface.co"),
		HFAPIKey:        getEnv("HF_API_KEY", ""),
		AIAPIKey:        getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),

		RedisURL: getEnv("REDIS_URL", ""),

		ChunkSize:      getEnvInt("CHUNK_SIZE", 500),
		ChunkOverlap:   getEnvInt("CHUNK_OVERLAP", 50),
		ChunkMinLength: getEnvInt("CHUNK_MIN_LENGTH", 20),

		PDFMaxPages:    getEnvInt("PDF_MAX_PAGES", 1500),
		RenderScale:    getEnvFloat("RENDER_SCALE", 1.4),
		RenderQuality:  getEnvInt("RENDER_QUALITY", 85),
		RenderMaxPages: getEnvInt("RENDER_MAX_PAGES", 50),
		RenderTimeout:  getEnvDuration("RENDER_TIMEOUT", 2*time.Minute),

		WorkerCount: getEnvInt("WORKER_COUNT", 4),
		QueueSize:   getEnvInt("QUEUE_SIZE", 64),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
