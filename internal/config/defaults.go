package config

import "time"

const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultEnvironment = "development"
	DefaultAPIPrefix   = "/api"
	DefaultLogLevel    = "info"

	DefaultRateLimitPerMinute = 60

	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultMaxTokens      = 800
	DefaultAgentTimeout   = 120 // seconds
	DefaultMaxToolRounds  = 2

	DefaultEmbeddingProvider = "local"
	DefaultEmbeddingModel    = "text-embedding-3-small"
	DefaultEmbeddingDims     = 384

	DefaultIndexBackend       = "memory"
	DefaultCatalogIndex       = "course_catalog"
	DefaultContentIndex       = "course_content"
	DefaultMaxResults         = 5
	DefaultCourseNameDistance = 1.6
	DefaultContentDistance    = 1.8
	DefaultResolveCacheTTL    = 5 * time.Minute

	DefaultElasticsearchPort       = 9200
	DefaultElasticsearchScheme     = "http"
	DefaultElasticsearchMaxRetries = 3
	DefaultElasticsearchTimeout    = 30

	DefaultSessionBackend = "memory"
	DefaultMaxHistory     = 2
	DefaultSessionIdleTTL = 24 * 60 // minutes

	DefaultMaxPromptLength = 2000

	DefaultCORSMaxAge = 300
)

var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8000",
}
