package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/kaede/internal/platform/mongodb"
	"github.com/example/kaede/services/comments/internal/ghost"
)

// Config holds the comments service settings that sit on top of
// platform/config.AppConfig.
type Config struct {
	// GRPCAddr is empty when the gRPC listener is disabled.
	GRPCAddr string

	GhostURL string
	GhostKey string

	Mongo       mongodb.Options
	DatabaseURL string
	RedisURL    string
	NATSURL     string

	// MaxCount <= 0 disables the per-post cap.
	MaxCount   int
	MaxAuthor  int
	MaxContent int

	// CacheTTL of 0 disables the page cache.
	CacheTTL time.Duration

	AdminPassword string
	CORSOrigins   string

	CBTimeout          time.Duration
	CBFailureThreshold uint32
}

func Load() Config {
	grpcAddr, set := os.LookupEnv("GRPC_ADDR")
	grpcAddr = strings.TrimSpace(grpcAddr)
	if !set {
		grpcAddr = ":9090"
	}
	ghostURL := strings.TrimSpace(os.Getenv("GHOST_URL"))
	if ghostURL == "" {
		ghostURL = ghost.DefaultBaseURL
	}
	cors := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if cors == "" {
		cors = ghostURL
	}
	return Config{
		GRPCAddr:           grpcAddr,
		GhostURL:           ghostURL,
		GhostKey:           strings.TrimSpace(os.Getenv("GHOST_KEY")),
		Mongo:              mongodb.OptionsFromEnv(),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(os.Getenv("REDIS_URL")),
		NATSURL:            strings.TrimSpace(os.Getenv("NATS_URL")),
		MaxCount:           envInt("COMMENTS_MAX_COUNT", 10000),
		MaxAuthor:          positive(envInt("COMMENTS_MAX_AUTHOR", 32), 32),
		MaxContent:         positive(envInt("COMMENTS_MAX_CONTENT", 1500), 1500),
		CacheTTL:           envDuration("COMMENTS_CACHE_TTL", 30*time.Second),
		AdminPassword:      os.Getenv("ADMIN_PASSWORD"),
		CORSOrigins:        cors,
		CBTimeout:          envDuration("GHOST_CB_TIMEOUT", 30*time.Second),
		CBFailureThreshold: uint32(positive(envInt("GHOST_CB_FAILURE_THRESHOLD", 5), 5)),
	}
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func positive(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
