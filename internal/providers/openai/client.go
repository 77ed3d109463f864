// Package openai adapts any OpenAI-compatible HTTP endpoint (OpenAI, Gemini,
// Ollama, vLLM) to the embedding and completion interfaces used by the
// conversation pipeline.
package openai

import (
	"context"
	"fmt"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/moroccoguide/guide/internal/metrics"
)

const providerName = "openai"

// ClientConfig is shared by the embedding and chat adapters.
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	RequestsPerSecond float64
}

type client struct {
	api     *goopenai.Client
	model   string
	limiter *rate.Limiter
}

func newClient(cfg ClientConfig) *client {
	apiCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}

	return &client{
		api:     goopenai.NewClientWithConfig(apiCfg),
		model:   cfg.Model,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// call waits for a rate limiter token, runs fn and records its latency.
func (c *client) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	start := time.Now()
	err := fn(ctx)
	metrics.ProviderCallDuration.WithLabelValues(providerName, op).Observe(time.Since(start).Seconds())
	return err
}
