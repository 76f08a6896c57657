// Package config collects every tunable of the gateway into one explicit
// value that is loaded once in main and injected into the components that
// need it. Nothing below main reads the environment directly.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Defaults for the conversation protocol and retrieval pipeline. Each can be
// overridden through the environment variable named next to it.
const (
	DefaultPort               = "8080"
	DefaultSessionTimeout     = 10 * time.Minute // SESSION_TIMEOUT
	DefaultRelevanceThreshold = 0.75             // RELEVANCE_THRESHOLD
	DefaultSearchTopK         = 4                // SEARCH_TOP_K
	DefaultRerankThreshold    = 3                // RERANK_THRESHOLD
	DefaultRerankTopN         = 3                // RERANK_TOP_N
	DefaultEmbeddingModel     = "text-embedding-ada-002"
	DefaultCompletionModel    = "gpt-3.5-turbo"
	DefaultRerankModel        = "rerank-english-v2.0"
	DefaultRegion             = "us-east-1"
	DefaultSessionsDBPath     = "/var/lib/raggate/sessions"
)

// Config is the root configuration of the gateway.
type Config struct {
	Port string

	// WeaviateURL is the base URL of the vector index, e.g.
	// "http://weaviate:8080". Required; every turn is grounded.
	WeaviateURL string

	// OTLPEndpoint is the OTLP/gRPC collector address. Empty disables
	// trace export.
	OTLPEndpoint string

	// SessionsDBPath is the badger directory for the durable session store.
	SessionsDBPath string

	OpenAI    OpenAIConfig
	Cohere    CohereConfig
	S3        S3Config
	Session   SessionConfig
	Retrieval RetrievalConfig
}

// OpenAIConfig configures the embedding and completion collaborator.
type OpenAIConfig struct {
	APIKey          string
	EmbeddingModel  string
	CompletionModel string

	// BaseURL overrides the API endpoint. Used by tests and by
	// OpenAI-compatible local backends.
	BaseURL string
}

// CohereConfig configures the reranking collaborator. An empty APIKey
// disables reranking entirely; the pipeline then keeps fetch order.
type CohereConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// S3Config configures the document blob store.
type S3Config struct {
	Bucket string
	Region string

	// Endpoint is an optional custom endpoint (MinIO and friends).
	Endpoint string
}

// SessionConfig holds the session lifecycle policy.
type SessionConfig struct {
	// InactivityTimeout is how long a session may sit idle before the
	// guard terminates the connection.
	InactivityTimeout time.Duration
}

// RetrievalConfig holds the pipeline tunables from the protocol contract.
type RetrievalConfig struct {
	// TopK is how many matches to request from the vector index.
	TopK int

	// RelevanceThreshold filters matches: only scores strictly greater
	// than this contribute grounding text.
	RelevanceThreshold float64

	// RerankThreshold triggers reranking when the fetched-document count
	// exceeds it.
	RerankThreshold int

	// RerankTopN is how many documents survive a rerank.
	RerankTopN int
}

// Load builds a Config from the environment, falling back to defaults and
// logging each fallback the same way the rest of the service logs.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getenv("RAGGATE_PORT", DefaultPort),
		WeaviateURL:    os.Getenv("WEAVIATE_SERVICE_URL"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SessionsDBPath: getenv("SESSIONS_DB_PATH", DefaultSessionsDBPath),
		OpenAI: OpenAIConfig{
			APIKey:          os.Getenv("OPENAI_API_KEY"),
			EmbeddingModel:  getenv("EMBEDDING_MODEL", DefaultEmbeddingModel),
			CompletionModel: getenv("COMPLETION_MODEL", DefaultCompletionModel),
		},
		Cohere: CohereConfig{
			APIKey: os.Getenv("COHERE_API_KEY"),
			Model:  getenv("COHERE_RERANK_MODEL", DefaultRerankModel),
		},
		S3: S3Config{
			Bucket:   os.Getenv("S3_BUCKET_NAME"),
			Region:   getenv("AWS_REGION", DefaultRegion),
			Endpoint: os.Getenv("S3_ENDPOINT"),
		},
		Session: SessionConfig{
			InactivityTimeout: DefaultSessionTimeout,
		},
		Retrieval: DefaultRetrieval(),
	}

	if raw := os.Getenv("SESSION_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TIMEOUT %q: %w", raw, err)
		}
		cfg.Session.InactivityTimeout = d
	}
	if err := overrideFloat("RELEVANCE_THRESHOLD", &cfg.Retrieval.RelevanceThreshold); err != nil {
		return nil, err
	}
	if err := overrideInt("SEARCH_TOP_K", &cfg.Retrieval.TopK); err != nil {
		return nil, err
	}
	if err := overrideInt("RERANK_THRESHOLD", &cfg.Retrieval.RerankThreshold); err != nil {
		return nil, err
	}
	if err := overrideInt("RERANK_TOP_N", &cfg.Retrieval.RerankTopN); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultRetrieval returns the retrieval tunables at their contract defaults.
func DefaultRetrieval() RetrievalConfig {
	return RetrievalConfig{
		TopK:               DefaultSearchTopK,
		RelevanceThreshold: DefaultRelevanceThreshold,
		RerankThreshold:    DefaultRerankThreshold,
		RerankTopN:         DefaultRerankTopN,
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Debug("environment variable not set, using default", "key", key, "default", fallback)
	return fallback
}

func overrideInt(key string, dst *int) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	*dst = v
	return nil
}

func overrideFloat(key string, dst *float64) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	*dst = v
	return nil
}
