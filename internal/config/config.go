package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Environment string `json:"environment"`
	APIPrefix   string `json:"api_prefix"`
	LogLevel    string `json:"log_level"`
	StaticDir   string `json:"static_dir"`

	// CORS
	CORSOrigins []string `json:"cors_origins"`

	// Auth
	APIKeyHeader string   `json:"api_key_header"`
	APIKeys      []string `json:"api_keys"`
	EnableAuth   bool     `json:"enable_auth"`

	// Rate Limiting
	RateLimitPerMinute int `json:"rate_limit_per_minute"`

	// AI / LLM
	AnthropicAPIKey  string `json:"anthropic_api_key"`
	AnthropicBaseURL string `json:"anthropic_base_url"` // override for a compatible proxy
	AnthropicModel   string `json:"anthropic_model"`
	MaxTokens        int    `json:"max_tokens"`
	AgentTimeout     int    `json:"agent_timeout"`
	MaxToolRounds    int    `json:"max_tool_rounds"`
	SequentialTools  bool   `json:"sequential_tools"`

	// Embeddings
	EmbeddingProvider string `json:"embedding_provider"` // "openai" | "local"
	EmbeddingBaseURL  string `json:"embedding_base_url"`
	EmbeddingAPIKey   string `json:"embedding_api_key"`
	EmbeddingModel    string `json:"embedding_model"`
	EmbeddingDims     int    `json:"embedding_dims"`

	// Retrieval
	IndexBackend       string  `json:"index_backend"` // "memory" | "elasticsearch"
	CatalogIndex       string  `json:"catalog_index"`
	ContentIndex       string  `json:"content_index"`
	MaxResults         int     `json:"max_results"`
	CourseNameDistance float64 `json:"course_name_distance"`
	ContentDistance    float64 `json:"content_distance"`
	SeedFile           string  `json:"seed_file"`

	// Elasticsearch
	ElasticsearchHost        string `json:"elasticsearch_host"`
	ElasticsearchPort        int    `json:"elasticsearch_port"`
	ElasticsearchScheme      string `json:"elasticsearch_scheme"`
	ElasticsearchUser        string `json:"elasticsearch_user"`
	ElasticsearchPassword    string `json:"elasticsearch_password"`
	ElasticsearchVerifyCerts bool   `json:"elasticsearch_verify_certs"`
	ElasticsearchMaxRetries  int    `json:"elasticsearch_max_retries"`
	ElasticsearchTimeout     int    `json:"elasticsearch_timeout"`

	// Sessions
	SessionBackend string `json:"session_backend"` // "memory" | "postgres"
	DatabaseURL    string `json:"database_url"`
	MaxHistory     int    `json:"max_history"`
	SessionIdleTTL int    `json:"session_idle_ttl"` // minutes; memory backend only, 0 keeps sessions forever

	// Security / audit
	MaxPromptLength    int    `json:"max_prompt_length"`
	MaxQueryTokens     int64  `json:"max_query_tokens"` // 0 disables the budget
	EnableAuditLogging bool   `json:"enable_audit_logging"`
	GCPProjectID       string `json:"gcp_project_id"`
	GoogleCredentials  string `json:"google_application_credentials"`
	AuditDataset       string `json:"audit_dataset"`
	AuditTable         string `json:"audit_table"`
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	cfg := &Config{
		Host:                     DefaultHost,
		Port:                     DefaultPort,
		Environment:              DefaultEnvironment,
		APIPrefix:                DefaultAPIPrefix,
		LogLevel:                 DefaultLogLevel,
		CORSOrigins:              DefaultCORSOrigins,
		APIKeyHeader:             "X-API-Key",
		EnableAuth:               false,
		RateLimitPerMinute:       DefaultRateLimitPerMinute,
		AnthropicModel:           DefaultAnthropicModel,
		MaxTokens:                DefaultMaxTokens,
		AgentTimeout:             DefaultAgentTimeout,
		MaxToolRounds:            DefaultMaxToolRounds,
		SequentialTools:          true,
		EmbeddingProvider:        DefaultEmbeddingProvider,
		EmbeddingModel:           DefaultEmbeddingModel,
		EmbeddingDims:            DefaultEmbeddingDims,
		IndexBackend:             DefaultIndexBackend,
		CatalogIndex:             DefaultCatalogIndex,
		ContentIndex:             DefaultContentIndex,
		MaxResults:               DefaultMaxResults,
		CourseNameDistance:       DefaultCourseNameDistance,
		ContentDistance:          DefaultContentDistance,
		ElasticsearchHost:        "localhost",
		ElasticsearchPort:        DefaultElasticsearchPort,
		ElasticsearchScheme:      DefaultElasticsearchScheme,
		ElasticsearchVerifyCerts: true,
		ElasticsearchMaxRetries:  DefaultElasticsearchMaxRetries,
		ElasticsearchTimeout:     DefaultElasticsearchTimeout,
		SessionBackend:           DefaultSessionBackend,
		MaxHistory:               DefaultMaxHistory,
		SessionIdleTTL:           DefaultSessionIdleTTL,
		MaxPromptLength:          DefaultMaxPromptLength,
		EnableAuditLogging:       true,
		AuditTable:               "query_audit",
	}

	// Load from JSON config file if specified
	if path := getEnv("COURSEBOT_CONFIG", ""); path != "" {
		if err := loadJSON(path, cfg); err != nil {
			return nil, err
		}
	}

	// Environment overrides
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the retrieval and agent layers cannot run with.
func (c *Config) Validate() error {
	if c.MaxResults <= 0 {
		return fmt.Errorf("max_results must be positive, got %d", c.MaxResults)
	}
	if c.MaxToolRounds <= 0 {
		return fmt.Errorf("max_tool_rounds must be positive, got %d", c.MaxToolRounds)
	}
	if c.CourseNameDistance < 0 || c.ContentDistance < 0 {
		return fmt.Errorf("distance thresholds must not be negative")
	}
	switch c.IndexBackend {
	case "memory", "elasticsearch":
	default:
		return fmt.Errorf("unknown index backend %q", c.IndexBackend)
	}
	switch c.SessionBackend {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("session backend postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.SessionBackend)
	}
	return nil
}

// AgentDeadline is the per-query budget for the whole orchestration.
func (c *Config) AgentDeadline() time.Duration {
	return time.Duration(c.AgentTimeout) * time.Second
}

func loadJSON(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := getEnv("COURSEBOT_HOST", ""); v != "" {
		cfg.Host = v
	}
	if v := getEnv("COURSEBOT_PORT", ""); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := getEnv("COURSEBOT_ENV", ""); v != "" {
		cfg.Environment = v
	}
	if v := getEnv("COURSEBOT_LOG_LEVEL", ""); v != "" {
		cfg.LogLevel = v
	}
	if v := getEnv("COURSEBOT_STATIC_DIR", ""); v != "" {
		cfg.StaticDir = v
	}
	if v := getEnv("COURSEBOT_API_KEYS", ""); v != "" {
		cfg.APIKeys = strings.Split(v, ",")
	}
	if v := getEnv("ENABLE_AUTH", ""); v != "" {
		cfg.EnableAuth = v == "true" || v == "1"
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		if r, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerMinute = r
		}
	}
	if v := getEnv("ANTHROPIC_API_KEY", ""); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := getEnv("ANTHROPIC_BASE_URL", ""); v != "" {
		cfg.AnthropicBaseURL = v
	}
	if v := getEnv("ANTHROPIC_MODEL", ""); v != "" {
		cfg.AnthropicModel = v
	}
	if v := getEnv("SEQUENTIAL_TOOLS", ""); v != "" {
		cfg.SequentialTools = v == "true" || v == "1"
	}
	if v := getEnv("EMBEDDING_PROVIDER", ""); v != "" {
		cfg.EmbeddingProvider = v
	}
	if v := getEnv("EMBEDDING_BASE_URL", ""); v != "" {
		cfg.EmbeddingBaseURL = v
	}
	if v := getEnv("EMBEDDING_API_KEY", ""); v != "" {
		cfg.EmbeddingAPIKey = v
	}
	if v := getEnv("EMBEDDING_MODEL", ""); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := getEnv("INDEX_BACKEND", ""); v != "" {
		cfg.IndexBackend = v
	}
	if v := getEnv("MAX_RESULTS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxResults = n
		}
	}
	if v := getEnv("COURSE_NAME_DISTANCE", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.CourseNameDistance = f
		}
	}
	if v := getEnv("CONTENT_DISTANCE", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ContentDistance = f
		}
	}
	if v := getEnv("SEED_FILE", ""); v != "" {
		cfg.SeedFile = v
	}
	if v := getEnv("ELASTICSEARCH_HOST", ""); v != "" {
		cfg.ElasticsearchHost = v
	}
	if v := getEnv("ELASTICSEARCH_PORT", ""); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.ElasticsearchPort = p
		}
	}
	if v := getEnv("ELASTICSEARCH_SCHEME", ""); v != "" {
		cfg.ElasticsearchScheme = v
	}
	if v := getEnv("ELASTICSEARCH_USER", ""); v != "" {
		cfg.ElasticsearchUser = v
	}
	if v := getEnv("ELASTICSEARCH_PASSWORD", ""); v != "" {
		cfg.ElasticsearchPassword = v
	}
	if v := getEnv("SESSION_BACKEND", ""); v != "" {
		cfg.SessionBackend = v
	}
	if v := getEnv("DATABASE_URL", ""); v != "" {
		cfg.DatabaseURL = v
	}
	if v := getEnv("MAX_HISTORY", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxHistory = n
		}
	}
	if v := getEnv("SESSION_IDLE_TTL", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SessionIdleTTL = n
		}
	}
	if v := getEnv("GCP_PROJECT_ID", ""); v != "" {
		cfg.GCPProjectID = v
	}
	if v := getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""); v != "" {
		cfg.GoogleCredentials = v
	}
	if v := getEnv("AUDIT_DATASET", ""); v != "" {
		cfg.AuditDataset = v
	}
	if v := getEnv("MAX_QUERY_TOKENS", ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxQueryTokens = n
		}
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
