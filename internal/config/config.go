package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 資格情報ストアの種類
const (
	CredentialProviderPostgres = "postgres"
	CredentialProviderHosted   = "hosted"
)

// minJWTSecretLength はJWT署名鍵の最小バイト長。
const minJWTSecretLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session token
	JWTSecret            string
	JWTExpiresIn         time.Duration
	JWTRememberExpiresIn time.Duration

	// Credential store
	CredentialProvider string
	AuthProviderURL    string
	AuthProviderAPIKey string
	StoreTimeout       time.Duration
	BcryptCost         int

	// Rate Limit
	RateLimitGeneral int // req/min/user
	RateLimitAuth    int // req/min/IP

	// Logging
	LogLevel string

	// Metrics
	MetricsEnabled bool

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigins []string
	CORSMaxAge         time.Duration
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.CredentialProvider = getEnvString("CREDENTIAL_PROVIDER", CredentialProviderPostgres)
	if cfg.CredentialProvider == CredentialProviderHosted {
		cfg.AuthProviderURL = os.Getenv("AUTH_PROVIDER_URL")
		if cfg.AuthProviderURL == "" {
			missing = append(missing, "AUTH_PROVIDER_URL")
		}
		cfg.AuthProviderAPIKey = os.Getenv("AUTH_PROVIDER_API_KEY")
		if cfg.AuthProviderAPIKey == "" {
			missing = append(missing, "AUTH_PROVIDER_API_KEY")
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// 署名鍵の値そのものはエラーメッセージに含めない
	if len(cfg.JWTSecret) < minJWTSecretLength {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength)
	}

	switch cfg.CredentialProvider {
	case CredentialProviderPostgres, CredentialProviderHosted:
	default:
		return nil, fmt.Errorf("unknown CREDENTIAL_PROVIDER: %q", cfg.CredentialProvider)
	}

	// Optional fields with defaults
	cfg.JWTExpiresIn = getEnvDuration("JWT_EXPIRES_IN", 7*24*time.Hour)
	cfg.JWTRememberExpiresIn = getEnvDuration("JWT_REMEMBER_EXPIRES_IN", 30*24*time.Hour)
	cfg.StoreTimeout = getEnvDuration("STORE_TIMEOUT", 5*time.Second)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 10)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.MetricsEnabled = getEnvBool("METRICS_ENABLED", true)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	cfg.CORSMaxAge = getEnvDuration("CORS_MAX_AGE", 24*time.Hour)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvList はカンマ区切りの値を読み込む。空要素は除く。
func getEnvList(key string, defaultVal []string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
