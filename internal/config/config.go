package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	NATS       NATSConfig
	Log        LogConfig
	CORS       CORSConfig
	RateLimit  RateLimitConfig
	Governance GovernanceConfig
	LLM        LLMConfig
	Embedding  EmbeddingConfig
	Vector     VectorConfig
	Memory     MemoryConfig
	Pipeline   PipelineConfig
	Migrations MigrationsConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// EncryptionConfig holds the hex-encoded AES-256 key used for saved
// conversation text.
type EncryptionConfig struct {
	Key string
}

// NATSConfig is optional; an empty URL disables event publishing.
type NATSConfig struct {
	URL string
}

type LogConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// RateLimitConfig limits unauthenticated auth endpoints per client IP.
type RateLimitConfig struct {
	AuthRequests int
	AuthWindow   time.Duration
}

// GovernanceConfig holds the default per-user quotas.
type GovernanceConfig struct {
	AskPerMinute      int
	DailyTokenLimit   int64
	DailyRequestLimit int
}

// LLMConfig points at any OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Temperature       float64
	MaxTokens         int
	RequestsPerSecond float64
}

// EmbeddingConfig points at any OpenAI-compatible embeddings endpoint.
type EmbeddingConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Dimensions        int
	RequestsPerSecond float64
}

type VectorConfig struct {
	Backend        string
	Table          string
	WeaviateHost   string
	WeaviateScheme string
	WeaviateClass  string
}

type MemoryConfig struct {
	Backend    string
	MaxEntries int
	TTL        time.Duration
}

// PipelineConfig bounds each outbound call of a conversation turn.
type PipelineConfig struct {
	EmbeddingTimeout  time.Duration
	RetrievalTimeout  time.Duration
	GenerationTimeout time.Duration
}

type MigrationsConfig struct {
	Path    string
	Disable bool
}

const (
	VectorBackendPgvector = "pgvector"
	VectorBackendWeaviate = "weaviate"

	MemoryBackendInProcess = "inprocess"
	MemoryBackendRedis     = "redis"
)

func Load() (*Config, error) {
	k := koanf.New(".")

	// .env is optional
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Environment variables override .env; SECTION_KEY maps to section.key.
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	l := loader{k: k}

	cfg := &Config{
		Server: ServerConfig{
			Host:            l.str("server.host", "0.0.0.0"),
			Port:            l.int("server.port", 8080),
			ReadTimeout:     l.duration("server.read.timeout", 15*time.Second),
			WriteTimeout:    l.duration("server.write.timeout", 90*time.Second),
			ShutdownTimeout: l.duration("server.shutdown.timeout", 30*time.Second),
		},
		DB: DBConfig{
			Host:     l.str("db.host", "localhost"),
			Port:     l.int("db.port", 5432),
			User:     l.str("db.user", "guide"),
			Password: k.String("db.password"),
			Name:     l.str("db.name", "guide"),
			SSLMode:  l.str("db.sslmode", "disable"),
			MaxConns: int32(l.int("db.max.conns", 25)),
		},
		Redis: RedisConfig{
			Host:     l.str("redis.host", "localhost"),
			Port:     l.int("redis.port", 6379),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		JWT: JWTConfig{
			AccessSecret:  k.String("jwt.access.secret"),
			RefreshSecret: k.String("jwt.refresh.secret"),
			AccessExpiry:  l.duration("jwt.access.expiry", 30*time.Minute),
			RefreshExpiry: l.duration("jwt.refresh.expiry", 168*time.Hour),
		},
		Encryption: EncryptionConfig{
			Key: k.String("encryption.key"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Log: LogConfig{
			Level:  l.str("log.level", "info"),
			Format: l.str("log.format", "text"),
		},
		CORS: CORSConfig{
			AllowedOrigins: l.list("cors.allowed.origins"),
		},
		RateLimit: RateLimitConfig{
			AuthRequests: l.int("ratelimit.auth.requests", 10),
			AuthWindow:   l.duration("ratelimit.auth.window", time.Minute),
		},
		Governance: GovernanceConfig{
			AskPerMinute:      l.int("governance.ask.per.minute", 20),
			DailyTokenLimit:   int64(l.int("governance.daily.token.limit", 200000)),
			DailyRequestLimit: l.int("governance.daily.request.limit", 500),
		},
		LLM: LLMConfig{
			BaseURL:           k.String("llm.base.url"),
			APIKey:            k.String("llm.api.key"),
			Model:             l.str("llm.model", "gpt-4o-mini"),
			Temperature:       l.float("llm.temperature", 0.7),
			MaxTokens:         k.Int("llm.max.tokens"),
			RequestsPerSecond: l.float("llm.requests.per.second", 5),
		},
		Embedding: EmbeddingConfig{
			BaseURL:           k.String("embedding.base.url"),
			APIKey:            k.String("embedding.api.key"),
			Model:             l.str("embedding.model", "text-embedding-3-small"),
			Dimensions:        k.Int("embedding.dimensions"),
			RequestsPerSecond: l.float("embedding.requests.per.second", 10),
		},
		Vector: VectorConfig{
			Backend:        l.str("vector.backend", VectorBackendPgvector),
			Table:          l.str("vector.table", "places"),
			WeaviateHost:   l.str("vector.weaviate.host", "localhost:8081"),
			WeaviateScheme: l.str("vector.weaviate.scheme", "http"),
			WeaviateClass:  l.str("vector.weaviate.class", "TourismPlace"),
		},
		Memory: MemoryConfig{
			Backend:    l.str("memory.backend", MemoryBackendInProcess),
			MaxEntries: k.Int("memory.max.entries"),
			TTL:        l.duration("memory.ttl", 0),
		},
		Pipeline: PipelineConfig{
			EmbeddingTimeout:  l.duration("pipeline.embedding.timeout", 15*time.Second),
			RetrievalTimeout:  l.duration("pipeline.retrieval.timeout", 10*time.Second),
			GenerationTimeout: l.duration("pipeline.generation.timeout", 60*time.Second),
		},
		Migrations: MigrationsConfig{
			Path:    l.str("migrations.path", "migrations"),
			Disable: k.Bool("migrations.disable"),
		},
	}

	if l.err != nil {
		return nil, l.err
	}
	return cfg, nil
}

// loader reads typed values with defaults and keeps the first parse error.
type loader struct {
	k   *koanf.Koanf
	err error
}

func (l *loader) str(key, def string) string {
	if v := l.k.String(key); v != "" {
		return v
	}
	return def
}

func (l *loader) int(key string, def int) int {
	if !l.k.Exists(key) || l.k.String(key) == "" {
		return def
	}
	return l.k.Int(key)
}

func (l *loader) float(key string, def float64) float64 {
	if !l.k.Exists(key) || l.k.String(key) == "" {
		return def
	}
	return l.k.Float64(key)
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	raw := l.k.String(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil && l.err == nil {
		l.err = fmt.Errorf("parsing %s: %w", key, err)
	}
	return d
}

func (l *loader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(l.k.String(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
