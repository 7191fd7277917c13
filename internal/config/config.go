// Package config loads the gateway's pure, pre-resolved configuration from
// the environment (spec §6 "Configuration"). Values are collected once at
// startup; nothing here re-reads the environment afterward.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/mcpgw/authgw/internal/gwlog"
)

// Provider identifies which identity provider adapter is selected by default.
type Provider string

const (
	ProviderKeycloak Provider = "keycloak"
	ProviderCognito  Provider = "cognito"
	ProviderEntra    Provider = "entra"
)

// IdPConfig carries the per-provider connection details (spec §6, "Per-IdP").
type IdPConfig struct {
	Enabled      bool
	URL          string
	Realm        string // Keycloak realm / Cognito user pool / Entra tenant
	ClientID     string
	ClientSecret string
	M2MClientID  string
	M2MSecret    string
}

// VectorStoreConfig configures the Discovery Index backend (C6).
type VectorStoreConfig struct {
	Host             string
	Port             int
	APIKey           string
	CollectionPrefix string
}

// EmbeddingsConfig selects and configures the embedding provider (C6).
type EmbeddingsConfig struct {
	Provider string // "bedrock" or "openai"
	Model    string
	Region   string // bedrock
	APIKey   string // openai
}

// Config is the gateway's fully-resolved configuration.
type Config struct {
	AuthProvider Provider
	SecretKey    []byte

	JWTIssuer        string
	JWTAudience      string
	JWTSelfSignedKID string

	AuthServerURL         string
	AuthServerExternalURL string
	AuthServerAPIPrefix   string

	DeviceCodeExpiry      time.Duration
	DeviceCodePollInterval time.Duration
	OAuthSessionTTL       time.Duration

	MaxTokenLifetime     time.Duration
	DefaultTokenLifetime time.Duration
	MaxTokensPerUserHour int

	CORSOrigins []string
	LogLevel    string
	LogFormat   string

	IdPs map[Provider]IdPConfig

	ScopesConfigPath string

	VectorStore VectorStoreConfig
	Embeddings  EmbeddingsConfig

	// RedisURL selects the horizontally-scalable flow-table backend when
	// set; empty means the single-node in-memory KVStore (spec §9).
	RedisURL string
}

// defaults mirrors spec §6's enumerated defaults.
func defaults() Config {
	return Config{
		AuthProvider:           ProviderKeycloak,
		JWTSelfSignedKID:       "mcpgw-self-signed",
		AuthServerAPIPrefix:    "/api",
		DeviceCodeExpiry:       600 * time.Second,
		DeviceCodePollInterval: 5 * time.Second,
		OAuthSessionTTL:        600 * time.Second,
		MaxTokenLifetime:       24 * time.Hour,
		DefaultTokenLifetime:   8 * time.Hour,
		MaxTokensPerUserHour:   100,
		LogLevel:               "info",
		LogFormat:              "json",
		IdPs:                   map[Provider]IdPConfig{},
	}
}

// Load reads environment variables into a Config, applies defaults, and
// validates the result. When GATEWAY_CONFIG_FILE is set the file is read with
// viper and must parse, but no value from it is applied: every setting comes
// from the environment or the defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	if f := os.Getenv("GATEWAY_CONFIG_FILE"); f != "" {
		v.SetConfigFile(f)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := defaults()

	if p := os.Getenv("AUTH_PROVIDER"); p != "" {
		cfg.AuthProvider = Provider(p)
	}

	secret := os.Getenv("SECRET_KEY")
	if secret == "" {
		gwlog.Warn("SECRET_KEY not set; generating an ephemeral secret (single-node only)")
		generated, err := randomSecret(32)
		if err != nil {
			return nil, fmt.Errorf("generating ephemeral secret: %w", err)
		}
		cfg.SecretKey = generated
	} else {
		cfg.SecretKey = []byte(secret)
	}

	cfg.JWTIssuer = os.Getenv("JWT_ISSUER")
	cfg.JWTAudience = os.Getenv("JWT_AUDIENCE")
	if kid := os.Getenv("JWT_SELF_SIGNED_KID"); kid != "" {
		cfg.JWTSelfSignedKID = kid
	}

	cfg.AuthServerURL = os.Getenv("AUTH_SERVER_URL")
	cfg.AuthServerExternalURL = os.Getenv("AUTH_SERVER_EXTERNAL_URL")
	if prefix := os.Getenv("AUTH_SERVER_API_PREFIX"); prefix != "" {
		cfg.AuthServerAPIPrefix = prefix
	}

	if v := os.Getenv("DEVICE_CODE_EXPIRY_SECONDS"); v != "" {
		cfg.DeviceCodeExpiry = durationSeconds(v, cfg.DeviceCodeExpiry)
	}
	if v := os.Getenv("DEVICE_CODE_POLL_INTERVAL"); v != "" {
		cfg.DeviceCodePollInterval = durationSeconds(v, cfg.DeviceCodePollInterval)
	}
	if v := os.Getenv("OAUTH_SESSION_TTL_SECONDS"); v != "" {
		cfg.OAuthSessionTTL = durationSeconds(v, cfg.OAuthSessionTTL)
	}

	if v := os.Getenv("MAX_TOKEN_LIFETIME_HOURS"); v != "" {
		cfg.MaxTokenLifetime = durationHours(v, cfg.MaxTokenLifetime)
	}
	if v := os.Getenv("DEFAULT_TOKEN_LIFETIME_HOURS"); v != "" {
		cfg.DefaultTokenLifetime = durationHours(v, cfg.DefaultTokenLifetime)
	}
	if v := os.Getenv("MAX_TOKENS_PER_USER_PER_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxTokensPerUserHour = n
		}
	}

	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOr("LOG_FORMAT", cfg.LogFormat)
	cfg.ScopesConfigPath = os.Getenv("SCOPES_CONFIG_PATH")

	cfg.VectorStore = VectorStoreConfig{
		Host:             os.Getenv("VECTOR_STORE_HOST"),
		Port:             atoiOr(os.Getenv("VECTOR_STORE_PORT"), 8080),
		APIKey:           os.Getenv("VECTOR_STORE_API_KEY"),
		CollectionPrefix: envOr("VECTOR_STORE_COLLECTION_PREFIX", "mcpgw"),
	}
	cfg.Embeddings = EmbeddingsConfig{
		Provider: envOr("EMBEDDINGS_PROVIDER", "bedrock"),
		Model:    os.Getenv("EMBEDDINGS_MODEL"),
		Region:   os.Getenv("EMBEDDINGS_AWS_REGION"),
		APIKey:   os.Getenv("EMBEDDINGS_API_KEY"),
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.IdPs[ProviderKeycloak] = idpFromEnv("KEYCLOAK")
	cfg.IdPs[ProviderCognito] = idpFromEnv("COGNITO")
	cfg.IdPs[ProviderEntra] = idpFromEnv("ENTRA")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func idpFromEnv(prefix string) IdPConfig {
	return IdPConfig{
		Enabled:      os.Getenv(prefix+"_URL") != "",
		URL:          os.Getenv(prefix + "_URL"),
		Realm:        os.Getenv(prefix + "_REALM"),
		ClientID:     os.Getenv(prefix + "_CLIENT_ID"),
		ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
		M2MClientID:  os.Getenv(prefix + "_M2M_CLIENT_ID"),
		M2MSecret:    os.Getenv(prefix + "_M2M_CLIENT_SECRET"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func atoiOr(s string, fallback int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return fallback
}

func durationSeconds(s string, fallback time.Duration) time.Duration {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func durationHours(s string, fallback time.Duration) time.Duration {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Hour
	}
	return fallback
}

func randomSecret(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	// The secret is the base64url text of the random bytes, not the raw bytes.
	encoded := base64.RawURLEncoding.EncodeToString(b)
	return []byte(encoded), nil
}

// Validate fails closed on structurally invalid configuration (modeled on
// the teacher's authserver.Config.Validate).
func (c *Config) Validate() error {
	if len(c.SecretKey) < 16 {
		return fmt.Errorf("SECRET_KEY must be at least 16 bytes")
	}
	if c.MaxTokensPerUserHour <= 0 {
		return fmt.Errorf("MAX_TOKENS_PER_USER_PER_HOUR must be positive")
	}
	if c.MaxTokenLifetime <= 0 {
		return fmt.Errorf("MAX_TOKEN_LIFETIME_HOURS must be positive")
	}
	return nil
}

// Issuer returns the RFC 8414 issuer: the external URL with the API prefix
// stripped (spec §4.9).
func (c *Config) Issuer() string {
	return stripPrefix(c.AuthServerExternalURL, c.AuthServerAPIPrefix)
}

func stripPrefix(url, prefix string) string {
	if prefix == "" {
		return url
	}
	if len(url) >= len(prefix) && url[len(url)-len(prefix):] == prefix {
		return url[:len(url)-len(prefix)]
	}
	return url
}
