// Package config provides configuration types and loading for the gateway.
//
// Configuration is file + environment driven (viper), validated with
// go-playground/validator struct tags. Three HTTP surfaces (admin,
// detection, proxy) share one config tree but are started independently
// so each process can be scaled and sized on its own.
package config

import "time"

// GatewayConfig is the top-level configuration for the gateway.
type GatewayConfig struct {
	// DeploymentMode selects SaaS-style quota/billing behavior ("saas") or
	// a no-quota enterprise deployment ("enterprise"). Default: "enterprise".
	DeploymentMode string `yaml:"deployment_mode" mapstructure:"deployment_mode" validate:"omitempty,oneof=saas enterprise"`

	// DevMode enables verbose logging and relaxed validation.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`

	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Database    DatabaseConfig    `yaml:"database" mapstructure:"database"`
	Detection   DetectionConfig   `yaml:"detection" mapstructure:"detection"`
	Embedding   EmbeddingConfig   `yaml:"embedding" mapstructure:"embedding"`
	Auth        AuthConfig        `yaml:"auth" mapstructure:"auth"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" mapstructure:"rate_limit"`
	AuditLog    AuditLogConfig    `yaml:"audit_log" mapstructure:"audit_log"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Upstream    UpstreamConfig    `yaml:"upstream" mapstructure:"upstream"`
	DataDir     string            `yaml:"data_dir" mapstructure:"data_dir"`
	DefaultLang string            `yaml:"default_language" mapstructure:"default_language" validate:"omitempty,oneof=en zh"`
}

// ServerConfig configures the three independently-startable HTTP listeners
// and their concurrency ceilings (spec.md §2 table).
type ServerConfig struct {
	AdminAddr     string `yaml:"admin_addr" mapstructure:"admin_addr" validate:"omitempty,hostname_port"`
	DetectionAddr string `yaml:"detection_addr" mapstructure:"detection_addr" validate:"omitempty,hostname_port"`
	ProxyAddr     string `yaml:"proxy_addr" mapstructure:"proxy_addr" validate:"omitempty,hostname_port"`

	AdminMaxConcurrent     int `yaml:"admin_max_concurrent" mapstructure:"admin_max_concurrent"`
	DetectionMaxConcurrent int `yaml:"detection_max_concurrent" mapstructure:"detection_max_concurrent"`
	ProxyMaxConcurrent     int `yaml:"proxy_max_concurrent" mapstructure:"proxy_max_concurrent"`

	LogLevel   string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	// DSN is a modernc.org/sqlite data source name, e.g. "file:gatekeep.db?cache=shared".
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// DetectionConfig configures the scanner engine.
type DetectionConfig struct {
	GuardrailsModelAPIURL string `yaml:"guardrails_model_api_url" mapstructure:"guardrails_model_api_url"`
	GuardrailsModelAPIKey string `yaml:"guardrails_model_api_key" mapstructure:"guardrails_model_api_key"`
	GuardrailsModelName   string `yaml:"guardrails_model_name" mapstructure:"guardrails_model_name"`

	// MaxContextLength is the sliding-window size proxy (characters, used as
	// a character-count proxy for tokens per spec.md §4.1).
	MaxContextLength int `yaml:"max_detection_context_length" mapstructure:"max_detection_context_length"`

	HTTPTimeout time.Duration `yaml:"http_timeout" mapstructure:"http_timeout"`
}

// EmbeddingConfig configures the KB similarity search embedding client.
type EmbeddingConfig struct {
	APIBaseURL         string  `yaml:"api_base_url" mapstructure:"api_base_url"`
	APIKey             string  `yaml:"api_key" mapstructure:"api_key"`
	ModelName          string  `yaml:"model_name" mapstructure:"model_name"`
	Dimension          int     `yaml:"dimension" mapstructure:"dimension"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold" validate:"omitempty,gte=0,lte=1"`
	MaxResults         int     `yaml:"max_results" mapstructure:"max_results"`

	// MilvusAddr, when set, backs the KB vector index with Milvus instead of
	// the in-process cosine-similarity fallback.
	MilvusAddr string `yaml:"milvus_addr" mapstructure:"milvus_addr"`
}

// AuthConfig configures JWT issuance and the auth cache TTL.
type AuthConfig struct {
	JWTSecretKey              string        `yaml:"jwt_secret_key" mapstructure:"jwt_secret_key"`
	JWTAlgorithm              string        `yaml:"jwt_algorithm" mapstructure:"jwt_algorithm"`
	JWTAccessTokenExpireMinutes int         `yaml:"jwt_access_token_expire_minutes" mapstructure:"jwt_access_token_expire_minutes"`
	CacheTTL                  time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`

	// UpstreamKeyEncryptionHex is a 64-char hex-encoded 32-byte AES-256-GCM
	// key (internal/adapter/outbound/crypt) protecting
	// tenant.UpstreamAPIConfig.APIKeyEncrypted at rest. Required in
	// production; a random key is generated and logged once in dev_mode.
	UpstreamKeyEncryptionHex string `yaml:"upstream_key_encryption_hex" mapstructure:"upstream_key_encryption_hex" validate:"omitempty,len=64,hexadecimal"`
}

// RateLimitConfig configures the per-tenant token bucket.
type RateLimitConfig struct {
	Enabled            bool `yaml:"enabled" mapstructure:"enabled"`
	DefaultRPS         int  `yaml:"default_rps" mapstructure:"default_rps"`
	AdminMaxConcurrent int  `yaml:"admin_max_concurrent" mapstructure:"admin_max_concurrent"`
}

// AuditLogConfig configures the JSONL detection-log pipeline.
type AuditLogConfig struct {
	Dir                string        `yaml:"dir" mapstructure:"dir"`
	StoreDetectionResults bool       `yaml:"store_detection_results" mapstructure:"store_detection_results"`
	FlushInterval      time.Duration `yaml:"flush_interval" mapstructure:"flush_interval"`
	TailInterval       time.Duration `yaml:"tail_interval" mapstructure:"tail_interval"`
	ChannelCapacity    int           `yaml:"channel_capacity" mapstructure:"channel_capacity"`
}

// CacheConfig selects the backend for the rate-limit bucket. Default is
// in-process; redis is opt-in. The gateway-integration session cache is
// always in-process and does not read this setting.
type CacheConfig struct {
	Backend  string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=memory redis"`
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr"`
}

// UpstreamConfig configures defaults for the HTTP client used to reach
// model upstreams from the proxy.
type UpstreamConfig struct {
	ConnectTimeout    time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	DetectionTimeout  time.Duration `yaml:"detection_timeout" mapstructure:"detection_timeout"`
	ProxyTimeout      time.Duration `yaml:"proxy_timeout" mapstructure:"proxy_timeout"`
}

// SetDefaults populates every default named in spec.md §6, without
// overwriting values already set (matches the teacher's SetDefaults idiom:
// config-file/env values always win over defaults).
func (c *GatewayConfig) SetDefaults() {
	if c.DeploymentMode == "" {
		c.DeploymentMode = "enterprise"
	}
	if c.DefaultLang == "" {
		c.DefaultLang = "en"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}

	if c.Server.AdminAddr == "" {
		c.Server.AdminAddr = "127.0.0.1:5000"
	}
	if c.Server.DetectionAddr == "" {
		c.Server.DetectionAddr = "127.0.0.1:5001"
	}
	if c.Server.ProxyAddr == "" {
		c.Server.ProxyAddr = "127.0.0.1:5002"
	}
	if c.Server.AdminMaxConcurrent == 0 {
		c.Server.AdminMaxConcurrent = 50
	}
	if c.Server.DetectionMaxConcurrent == 0 {
		c.Server.DetectionMaxConcurrent = 400
	}
	if c.Server.ProxyMaxConcurrent == 0 {
		c.Server.ProxyMaxConcurrent = 300
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}

	if c.Database.DSN == "" {
		c.Database.DSN = "file:gatekeep.db?cache=shared&_pragma=foreign_keys(1)"
	}

	if c.Detection.MaxContextLength == 0 {
		c.Detection.MaxContextLength = 7168
	}
	if c.Detection.HTTPTimeout == 0 {
		c.Detection.HTTPTimeout = 30 * time.Second
	}

	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = 1024
	}
	if c.Embedding.SimilarityThreshold == 0 {
		c.Embedding.SimilarityThreshold = 0.7
	}
	if c.Embedding.MaxResults == 0 {
		c.Embedding.MaxResults = 5
	}

	if c.Auth.JWTAlgorithm == "" {
		c.Auth.JWTAlgorithm = "HS256"
	}
	if c.Auth.JWTAccessTokenExpireMinutes == 0 {
		c.Auth.JWTAccessTokenExpireMinutes = 1440
	}
	if c.Auth.CacheTTL == 0 {
		c.Auth.CacheTTL = 300 * time.Second
	}

	if c.RateLimit.DefaultRPS == 0 {
		c.RateLimit.DefaultRPS = 10
	}

	if c.AuditLog.Dir == "" {
		c.AuditLog.Dir = c.DataDir + "/logs/detection"
	}
	if c.AuditLog.FlushInterval == 0 {
		c.AuditLog.FlushInterval = 1 * time.Second
	}
	if c.AuditLog.TailInterval == 0 {
		c.AuditLog.TailInterval = 5 * time.Second
	}
	if c.AuditLog.ChannelCapacity == 0 {
		c.AuditLog.ChannelCapacity = 10_000
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}

	if c.Upstream.ConnectTimeout == 0 {
		c.Upstream.ConnectTimeout = 5 * time.Second
	}
	if c.Upstream.DetectionTimeout == 0 {
		c.Upstream.DetectionTimeout = 30 * time.Second
	}
	if c.Upstream.ProxyTimeout == 0 {
		c.Upstream.ProxyTimeout = 120 * time.Second
	}
}
