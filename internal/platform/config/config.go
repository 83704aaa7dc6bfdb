package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration for the provenance service.
type Server struct {
	Addr          string
	MapServerURL  string
	JWTSigningKey string
	TokenTTL      time.Duration

	GitHub   GitHubConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// GitHubConfig holds the OAuth application credentials for the login flow.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthorizeURL string
	TokenURL     string
	UserAPIURL   string
}

// PostgresConfig selects the annotation store backend. Empty URL means the
// in-memory store is used.
type PostgresConfig struct {
	URL string
}

// RedisConfig configures the optional annotation cache. Empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
}

// KafkaConfig configures the audit event publisher. Empty brokers disables it.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("FLATMAPS_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	mapServer := os.Getenv("FLATMAPS_MAP_SERVER")
	if mapServer == "" {
		mapServer = "http://localhost:8000"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	tokenTTL := durationEnv("FLATMAPS_TOKEN_TTL", time.Hour)

	github := GitHubConfig{
		ClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		RedirectURL:  os.Getenv("GITHUB_REDIRECT_URL"),
		AuthorizeURL: "https://github.com/login/oauth/authorize",
		TokenURL:     "https://github.com/login/oauth/access_token",
		UserAPIURL:   "https://api.github.com/user",
	}

	redis := RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     intEnv("REDIS_POOL_SIZE", 10),
		MinIdleConns: intEnv("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  durationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: durationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
		CacheTTL:     durationEnv("REDIS_CACHE_TTL", 5*time.Minute),
	}

	kafka := KafkaConfig{
		AuditTopic: envOr("AUDIT_TOPIC", "flatmaps.annotation.audit"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		kafka.Brokers = strings.Split(brokers, ",")
	}

	return Server{
		Addr:          addr,
		MapServerURL:  mapServer,
		JWTSigningKey: jwtSigningKey,
		TokenTTL:      tokenTTL,
		GitHub:        github,
		Postgres:      PostgresConfig{URL: os.Getenv("DATABASE_URL")},
		Redis:         redis,
		Kafka:         kafka,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
