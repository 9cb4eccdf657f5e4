// Package draft asks a generative model for an introduction speech that
// pre-fills the text box.
package draft

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nikhilbhutani/speechstudio/internal/config"
	"github.com/nikhilbhutani/speechstudio/internal/llm"
	"github.com/nikhilbhutani/speechstudio/pkg/tokenizer"
)

// GenerationError reports a failed draft, whether the stream never started
// or broke part way.
type GenerationError struct {
	Provider string
	Cause    error
}

func (e *GenerationError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("speech generation failed: %v", e.Cause)
	}
	return fmt.Sprintf("speech generation failed (%s): %v", e.Provider, e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// Usage describes one completed draft call.
type Usage struct {
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         float64
	Latency      time.Duration
}

// DefaultSafety blocks medium-and-above content in every harm category.
var DefaultSafety = []llm.SafetySetting{
	{Category: llm.HarmHateSpeech, Threshold: llm.BlockMediumAndAbove},
	{Category: llm.HarmDangerousContent, Threshold: llm.BlockMediumAndAbove},
	{Category: llm.HarmSexuallyExplicit, Threshold: llm.BlockMediumAndAbove},
	{Category: llm.HarmHarassment, Threshold: llm.BlockMediumAndAbove},
}

type Option func(*Client)

// WithUsageHook is called after every successful draft.
func WithUsageHook(fn func(Usage)) Option {
	return func(c *Client) { c.onUsage = fn }
}

type Client struct {
	gateway     llm.Gateway
	template    string
	maxTokens   int
	temperature float64
	topP        float64
	onUsage     func(Usage)
}

func NewClient(gw llm.Gateway, cfg config.DraftConfig, opts ...Option) *Client {
	c := &Client{
		gateway:     gw,
		template:    cfg.Template,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
	}
	if c.template == "" {
		c.template = config.DefaultDraftTemplate
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is a finished draft and what it cost.
type Result struct {
	Text  string
	Usage Usage
}

// Draft renders the template with topic and returns the concatenated stream.
func (c *Client) Draft(ctx context.Context, topic string) (string, error) {
	res, err := c.Generate(ctx, topic)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Generate is Draft with the usage of the call.
func (c *Client) Generate(ctx context.Context, topic string) (Result, error) {
	prompt, err := Render(c.template, map[string]string{"input": topic})
	if err != nil {
		return Result{}, &GenerationError{Cause: err}
	}

	start := time.Now()
	stream, err := c.gateway.Stream(ctx, llm.GenerateRequest{
		Prompt:      prompt,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
		Safety:      DefaultSafety,
	})
	if err != nil {
		return Result{}, &GenerationError{Cause: err}
	}

	var sb strings.Builder
	var inputTokens, outputTokens int
	for chunk := range stream.Chunks {
		if chunk.Error != nil {
			// Drain so the provider goroutine can exit.
			for range stream.Chunks {
			}
			return Result{}, &GenerationError{Provider: stream.Provider, Cause: chunk.Error}
		}
		sb.WriteString(chunk.Content)
		if chunk.Done {
			inputTokens = chunk.InputTokens
			outputTokens = chunk.OutputTokens
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, &GenerationError{Provider: stream.Provider, Cause: err}
	}
	text := sb.String()
	if inputTokens == 0 && outputTokens == 0 {
		inputTokens = tokenizer.Estimate(prompt)
		outputTokens = tokenizer.Estimate(text)
	}

	usage := Usage{
		Provider:     stream.Provider,
		Model:        stream.Model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         llm.CalculateCost(stream.Model, inputTokens, outputTokens),
		Latency:      time.Since(start),
	}
	slog.Info("speech drafted",
		"provider", usage.Provider,
		"model", usage.Model,
		"output_tokens", usage.OutputTokens,
		"latency_ms", usage.Latency.Milliseconds(),
	)
	if c.onUsage != nil {
		c.onUsage(usage)
	}
	return Result{Text: text, Usage: usage}, nil
}
