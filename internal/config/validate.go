package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for problems that would break the service at
// runtime. All problems are reported together.
func (c *Config) Validate() error {
	var errs []string

	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 characters")
	}
	if c.JWT.AccessSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// 32-byte AES key, hex encoded
	switch {
	case c.Encryption.Key == "":
		errs = append(errs, "ENCRYPTION_KEY is required")
	case len(c.Encryption.Key) != 64:
		errs = append(errs, "ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes)")
	default:
		if _, err := hex.DecodeString(c.Encryption.Key); err != nil {
			errs = append(errs, "ENCRYPTION_KEY must be valid hex")
		}
	}

	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	for name, port := range map[string]int{
		"SERVER_PORT": c.Server.Port,
		"DB_PORT":     c.DB.Port,
		"REDIS_PORT":  c.Redis.Port,
	} {
		if port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("%s must be between 1 and 65535, got %d", name, port))
		}
	}

	if c.LLM.Model == "" {
		errs = append(errs, "LLM_MODEL is required")
	}
	if c.Embedding.Model == "" {
		errs = append(errs, "EMBEDDING_MODEL is required")
	}

	switch c.Vector.Backend {
	case VectorBackendPgvector:
		if c.Vector.Table == "" {
			errs = append(errs, "VECTOR_TABLE is required for the pgvector backend")
		}
	case VectorBackendWeaviate:
		if c.Vector.WeaviateHost == "" || c.Vector.WeaviateClass == "" {
			errs = append(errs, "VECTOR_WEAVIATE_HOST and VECTOR_WEAVIATE_CLASS are required for the weaviate backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("VECTOR_BACKEND must be %q or %q, got %q",
			VectorBackendPgvector, VectorBackendWeaviate, c.Vector.Backend))
	}

	switch c.Memory.Backend {
	case MemoryBackendInProcess, MemoryBackendRedis:
	default:
		errs = append(errs, fmt.Sprintf("MEMORY_BACKEND must be %q or %q, got %q",
			MemoryBackendInProcess, MemoryBackendRedis, c.Memory.Backend))
	}
	if c.Memory.MaxEntries < 0 {
		errs = append(errs, "MEMORY_MAX_ENTRIES must not be negative")
	}

	if c.Pipeline.EmbeddingTimeout <= 0 || c.Pipeline.RetrievalTimeout <= 0 || c.Pipeline.GenerationTimeout <= 0 {
		errs = append(errs, "PIPELINE_*_TIMEOUT values must be positive")
	}

	// Local model servers often run without a key.
	if c.LLM.APIKey == "" {
		slog.Warn("LLM_API_KEY is empty, chat requests are sent unauthenticated")
	}
	if c.NATS.URL == "" {
		slog.Warn("NATS_URL is empty, conversation events and audit logging are disabled")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
