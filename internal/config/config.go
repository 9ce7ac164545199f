package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	APIPort  string
	LogLevel string

	EmbeddingProvider  string
	EmbeddingDimension int

	OllamaURL        string
	OllamaEmbedModel string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	EmbedRateLimit float64
	EmbedRateBurst int

	QdrantURL        string
	QdrantCollection string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PostgresDSN string

	NATSURL     string
	NATSSubject string

	RetrievalK           int
	RetrievalKMultiplier int
	RetrievalMode        string
	MMRLambda            float64
	SimilarityThreshold  float64
	GatingThreshold      float64
	MinQueryTokens       int
	GatingKeywords       []string
	CacheTTLSeconds      int

	IngestBatchSize     int
	MaxConcurrentTasks  int
	DedupThreshold      float64
	DedupSampleLimit    int
	CentroidSampleLimit int

	APIRateLimitRPS   float64
	APIRateLimitBurst int
	APIMaxInFlight    int
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		EmbeddingProvider:  mustEnv("EMBEDDING_PROVIDER", "ollama"),
		EmbeddingDimension: mustEnvInt("EMBEDDING_DIMENSION", 768),

		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaEmbedModel: mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),

		OpenAIAPIKey:  mustEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: mustEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:   mustEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small"),

		EmbedRateLimit: mustEnvFloat("EMBED_RATE_LIMIT", 0),
		EmbedRateBurst: mustEnvInt("EMBED_RATE_BURST", 1),

		QdrantURL:        mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: mustEnv("QDRANT_COLLECTION", "chunks"),

		RedisAddr:     mustEnv("REDIS_ADDR", ""),
		RedisPassword: mustEnv("REDIS_PASSWORD", ""),
		RedisDB:       mustEnvInt("REDIS_DB", 0),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "corpus.changed"),

		RetrievalK:           mustEnvInt("RETRIEVAL_K", 4),
		RetrievalKMultiplier: mustEnvInt("RETRIEVAL_K_MULTIPLIER", 3),
		RetrievalMode:        mustEnv("RETRIEVAL_MODE", "semantic"),
		MMRLambda:            mustEnvFloat("MMR_LAMBDA", 0.5),
		SimilarityThreshold:  mustEnvFloat("SIMILARITY_THRESHOLD", 0),
		GatingThreshold:      mustEnvFloat("GATING_THRESHOLD", 0.42),
		MinQueryTokens:       mustEnvInt("MIN_QUERY_TOKENS", 2),
		GatingKeywords:       mustEnvList("GATING_KEYWORDS", ""),
		CacheTTLSeconds:      mustEnvInt("CACHE_TTL_SECONDS", 3600),

		IngestBatchSize:     mustEnvInt("INGEST_BATCH_SIZE", 32),
		MaxConcurrentTasks:  mustEnvInt("MAX_CONCURRENT_TASKS", 4),
		DedupThreshold:      mustEnvFloat("DEDUP_THRESHOLD", 0.95),
		DedupSampleLimit:    mustEnvInt("DEDUP_SAMPLE_LIMIT", 512),
		CentroidSampleLimit: mustEnvInt("CENTROID_SAMPLE_LIMIT", 2048),

		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 0),
		APIMaxInFlight:    mustEnvInt("API_MAX_IN_FLIGHT", 0),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvList(key, fallback string) []string {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
