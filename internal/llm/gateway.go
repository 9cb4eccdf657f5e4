package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/speechstudio/internal/config"
)

type gateway struct {
	providers        map[string]Provider
	defaultProvider  string
	defaultModel     string
	fallbackProvider string
	maxRetries       int
}

// NewGateway registers a provider for every configured API key.
func NewGateway(ctx context.Context, cfg config.LLMConfig) (Gateway, error) {
	var providers []Provider
	if cfg.GeminiKey != "" {
		p, err := NewGeminiProvider(ctx, cfg.GeminiKey)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if cfg.OpenAIKey != "" {
		providers = append(providers, NewOpenAIProvider(cfg.OpenAIKey))
	}
	if cfg.AnthropicKey != "" {
		providers = append(providers, NewAnthropicProvider(cfg.AnthropicKey))
	}
	return NewGatewayWithProviders(cfg, providers...), nil
}

// NewGatewayWithProviders builds a gateway over explicit providers.
func NewGatewayWithProviders(cfg config.LLMConfig, providers ...Provider) Gateway {
	g := &gateway{
		providers:        make(map[string]Provider, len(providers)),
		defaultProvider:  cfg.DefaultProvider,
		defaultModel:     cfg.DefaultModel,
		fallbackProvider: cfg.FallbackProvider,
		maxRetries:       cfg.MaxRetries,
	}
	for _, p := range providers {
		g.providers[p.Name()] = p
	}
	// An unregistered default falls back to the first provider, with that
	// provider's own default model.
	if _, ok := g.providers[g.defaultProvider]; !ok && len(providers) > 0 {
		slog.Warn("default LLM provider not configured, using first available",
			"configured", g.defaultProvider,
			"using", providers[0].Name(),
		)
		g.defaultProvider = providers[0].Name()
		g.defaultModel = ""
	}
	return g
}

func (g *gateway) Provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

func (g *gateway) Stream(ctx context.Context, req GenerateRequest) (*Stream, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}

	s, err := g.streamWithRetry(ctx, providerName, req)
	if err != nil && g.fallbackProvider != "" && g.fallbackProvider != providerName {
		slog.Warn("primary provider failed, trying fallback",
			"primary", providerName,
			"fallback", g.fallbackProvider,
			"error", err,
		)
		// The configured model belongs to the primary provider.
		req.Model = ""
		return g.streamWithRetry(ctx, g.fallbackProvider, req)
	}
	return s, err
}

func (g *gateway) streamWithRetry(ctx context.Context, providerName string, req GenerateRequest) (*Stream, error) {
	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}

	if req.Model == "" {
		if providerName == g.defaultProvider && g.defaultModel != "" {
			req.Model = g.defaultModel
		} else if models := p.Models(); len(models) > 0 {
			req.Model = models[0]
		}
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			slog.Debug("retrying LLM call", "provider", providerName, "attempt", attempt)
		}

		ch, err := p.GenerateStream(ctx, req)
		if err == nil {
			return &Stream{Provider: providerName, Model: req.Model, Chunks: ch}, nil
		}
		lastErr = err
	}
	if g.maxRetries == 0 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("all retries exhausted for %s: %w", providerName, lastErr)
}

func (g *gateway) ListModels() []ModelInfo {
	var models []ModelInfo
	for _, p := range g.providers {
		for _, m := range p.Models() {
			models = append(models, ModelInfo{Provider: p.Name(), Model: m})
		}
	}
	return models
}

func (g *gateway) Close() error {
	var errs []error
	for _, p := range g.providers {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", p.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
