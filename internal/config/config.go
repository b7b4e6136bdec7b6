package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	ServiceName string

	// PublicBaseURL is the externally visible origin, used as JWT issuer and
	// audience and in OAuth discovery metadata.
	PublicBaseURL string

	// ControlDatabaseURL points at the control store holding principals,
	// memberships, client tokens, OAuth clients and the refresh ledger.
	ControlDatabaseURL string

	// TenantDSNPattern is a DSN with a single %s placeholder for the tenant
	// database name, e.g. postgres://app:secret@db:5432/%s
	TenantDSNPattern string

	TokenCacheTTL     time.Duration
	TokenCacheEntries int

	PoolMaxConns        int32
	PoolMinConns        int32
	PoolMaxConnIdleTime time.Duration
	PoolMaxConnLifetime time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	JWTSecret         string
	JWTPreviousSecret string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	AuthCodeTTL       time.Duration

	RedirectHosts        []string
	RevokeFamilyOnReplay bool
	LedgerMaxAge         time.Duration

	RateLimitToolRPM int
	RateLimitAuthRPM int
	RateLimitAPIRPM  int

	MaxBodyBytes int64

	TelemetryEndpoint string
	TelemetryInsecure bool

	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool

	BootstrapAdminEmail string
	BootstrapAdminToken string
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:        getEnv("APP_ENV", "development"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		ServiceName:        getEnv("SERVICE_NAME", "meetingintel"),
		PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		ControlDatabaseURL: os.Getenv("CONTROL_DATABASE_URL"),
		TenantDSNPattern:   os.Getenv("TENANT_DSN_PATTERN"),

		TokenCacheTTL:     getDuration("TOKEN_CACHE_TTL", 5*time.Minute),
		TokenCacheEntries: getInt("TOKEN_CACHE_ENTRIES", 1024),

		PoolMaxConns:        int32(getInt("TENANT_POOL_MAX_CONNS", 8)),
		PoolMinConns:        int32(getInt("TENANT_POOL_MIN_CONNS", 1)),
		PoolMaxConnIdleTime: getDuration("TENANT_POOL_MAX_IDLE", 5*time.Minute),
		PoolMaxConnLifetime: getDuration("TENANT_POOL_MAX_LIFETIME", 30*time.Minute),

		RetryAttempts:  getInt("RETRY_ATTEMPTS", 3),
		RetryBaseDelay: getDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
		RetryMaxDelay:  getDuration("RETRY_MAX_DELAY", 10*time.Second),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		JWTPreviousSecret: os.Getenv("JWT_PREVIOUS_SECRET"),
		AccessTokenTTL:    getDuration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:   getDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		AuthCodeTTL:       getDuration("AUTH_CODE_TTL", 10*time.Minute),

		RedirectHosts: getList("OAUTH_REDIRECT_HOSTS", []string{
			"claude.ai", "claude.com", "chatgpt.com", "openai.com", "localhost", "127.0.0.1",
		}),
		RevokeFamilyOnReplay: getBool("OAUTH_REVOKE_FAMILY_ON_REPLAY", true),
		LedgerMaxAge:         getDuration("OAUTH_LEDGER_MAX_AGE", 35*24*time.Hour),

		RateLimitToolRPM: getInt("RATE_LIMIT_TOOL_RPM", 60),
		RateLimitAuthRPM: getInt("RATE_LIMIT_AUTH_RPM", 20),
		RateLimitAPIRPM:  getInt("RATE_LIMIT_API_RPM", 120),

		MaxBodyBytes: int64(getInt("MAX_BODY_BYTES", 1<<20)),

		TelemetryEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure: getBool("OTEL_EXPORTER_OTLP_INSECURE", true),

		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"https://claude.ai", "http://localhost:5173"}),
		CORSAllowedMethods: getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}),
		CORSAllowedHeaders: getList("CORS_ALLOWED_HEADERS", []string{
			"Authorization", "Content-Type", "X-Workspace", "X-API-Key", "Mcp-Session-Id", "Mcp-Protocol-Version",
		}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),

		BootstrapAdminEmail: strings.ToLower(strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_EMAIL"))),
		BootstrapAdminToken: strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_TOKEN")),
	}

	if cfg.ControlDatabaseURL == "" {
		return Config{}, fmt.Errorf("CONTROL_DATABASE_URL is required")
	}
	if cfg.TenantDSNPattern == "" {
		return Config{}, fmt.Errorf("TENANT_DSN_PATTERN is required")
	}
	if !strings.Contains(cfg.TenantDSNPattern, "%s") {
		return Config{}, fmt.Errorf("TENANT_DSN_PATTERN must contain a %%s placeholder")
	}
	if cfg.JWTSecret == "" {
		if cfg.Environment != "development" {
			return Config{}, fmt.Errorf("JWT_SECRET is required outside development")
		}
		cfg.JWTSecret = "dev-only-signing-secret-not-for-production"
	}
	if len(cfg.JWTSecret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
