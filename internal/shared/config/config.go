package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"clinical-review-backend/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port                string `mapstructure:"PORT"`
	Env                 string `mapstructure:"ENV"`
	LogLevel            string `mapstructure:"LOG_LEVEL"`
	CORSAllowOriginRaw  string `mapstructure:"CORS_ALLOW_ORIGINS"`
	DatabaseURL         string `mapstructure:"DATABASE_URL"`
	LLMProvider         string `mapstructure:"LLM_PROVIDER"`
	LLMModel            string `mapstructure:"LLM_MODEL"`
	LLMBaseURL          string `mapstructure:"LLM_BASE_URL"`
	OpenAIAPIKey        string `mapstructure:"OPENAI_API_KEY"`
	LLMTimeoutSeconds   int    `mapstructure:"LLM_TIMEOUT_SECONDS"`
	LLMMaxAttempts      int    `mapstructure:"LLM_MAX_ATTEMPTS"`
	MaxDocumentRunes    int    `mapstructure:"MAX_DOCUMENT_RUNES"`
	BatchConcurrency    int    `mapstructure:"BATCH_CONCURRENCY"`
	BatchTimeoutSeconds int    `mapstructure:"BATCH_TIMEOUT_SECONDS"`
	MaxUploadBytes      int64  `mapstructure:"MAX_UPLOAD_BYTES"`
	ObjectStoreType     string `mapstructure:"OBJECT_STORE"`
	LocalStoreDir       string `mapstructure:"LOCAL_STORE_DIR"`
	AWSRegion           string `mapstructure:"AWS_REGION"`
	S3Bucket            string `mapstructure:"S3_BUCKET"`
	S3Prefix            string `mapstructure:"S3_PREFIX"`
	SSEKMSKeyID         string `mapstructure:"SSE_KMS_KEY_ID"`
	ResultsQueueURL     string `mapstructure:"RESULTS_SQS_QUEUE_URL"`
	BatchRatePerMinute  int    `mapstructure:"BATCH_RATE_PER_MINUTE"`
	BatchRateBurst      int    `mapstructure:"BATCH_RATE_BURST"`
	DevTenantsRaw       string `mapstructure:"DEV_TENANTS"`

	// DB pool overrides; zero keeps the runtime profile's value.
	DBMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	DBConnMaxIdleTime time.Duration `mapstructure:"DB_CONN_MAX_IDLE_TIME"`
	DBPingTimeout     time.Duration `mapstructure:"DB_PING_TIMEOUT"`

	CORSAllowOrigin []string          `mapstructure:"-"`
	DevTenants      map[string]string `mapstructure:"-"`
}

var defaults = map[string]any{
	"PORT":                  "8080",
	"ENV":                   "dev",
	"LOG_LEVEL":             "info",
	"CORS_ALLOW_ORIGINS":    "http://localhost:5173",
	"DATABASE_URL":          "",
	"LLM_PROVIDER":          "openai",
	"LLM_MODEL":             "gpt-4o-mini",
	"LLM_BASE_URL":          "https://api.openai.com/v1",
	"OPENAI_API_KEY":        "",
	"LLM_TIMEOUT_SECONDS":   120,
	"LLM_MAX_ATTEMPTS":      2,
	"MAX_DOCUMENT_RUNES":    60000,
	"BATCH_CONCURRENCY":     4,
	"BATCH_TIMEOUT_SECONDS": 600,
	"MAX_UPLOAD_BYTES":      int64(20 << 20),
	"OBJECT_STORE":          "none",
	"LOCAL_STORE_DIR":       "./data",
	"AWS_REGION":            "",
	"S3_BUCKET":             "",
	"S3_PREFIX":             "",
	"SSE_KMS_KEY_ID":        "",
	"RESULTS_SQS_QUEUE_URL": "",
	"BATCH_RATE_PER_MINUTE": 30,
	"BATCH_RATE_BURST":      10,
	"DEV_TENANTS":           "",
	"DB_MAX_OPEN_CONNS":     0,
	"DB_MAX_IDLE_CONNS":     0,
	"DB_CONN_MAX_LIFETIME":  time.Duration(0),
	"DB_CONN_MAX_IDLE_TIME": time.Duration(0),
	"DB_PING_TIMEOUT":       time.Duration(0),
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	v := viper.New()
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		telemetry.Warn("config.unmarshal_failed", map[string]any{"error": err.Error()})
	}
	return normalize(cfg)
}

func normalize(cfg Config) Config {
	cfg.Env = normalizeEnv(cfg.Env)
	cfg.ObjectStoreType = normalizeStoreType(cfg.ObjectStoreType)
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.CORSAllowOrigin = splitAndTrim(cfg.CORSAllowOriginRaw)
	cfg.DevTenants = parseTenants(cfg.DevTenantsRaw)
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.LLMTimeoutSeconds <= 0 {
		cfg.LLMTimeoutSeconds = 120
	}
	if cfg.LLMMaxAttempts <= 0 {
		cfg.LLMMaxAttempts = 1
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 1
	}
	if cfg.BatchRatePerMinute < 0 {
		cfg.BatchRatePerMinute = 0
	}
	if cfg.BatchRateBurst <= 0 {
		cfg.BatchRateBurst = 1
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		telemetry.Warn("config.database_url_missing", map[string]any{"env": cfg.Env})
	}
	return cfg
}

// IsDevLike reports whether the env allows in-memory fallbacks.
func (c Config) IsDevLike() bool {
	return c.Env == "dev" || c.Env == "local"
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseTenants reads "email=tenantID" pairs separated by commas.
func parseTenants(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range splitAndTrim(raw) {
		email, id, ok := strings.Cut(pair, "=")
		email, id = strings.TrimSpace(email), strings.TrimSpace(id)
		if !ok || email == "" || id == "" {
			continue
		}
		out[email] = id
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "", "development", "dev":
		return "dev"
	default:
		telemetry.Warn("config.unknown_env", map[string]any{"env": raw, "using": "production"})
		return "production"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "local":
		return "local"
	default:
		return "none"
	}
}
