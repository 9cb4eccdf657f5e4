package llm

import (
	"context"
)

// Provider abstracts a generative-text provider (Gemini, OpenAI, Anthropic).
type Provider interface {
	GenerateStream(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, error)
	Name() string
	Models() []string
}

// Gateway routes generation to the configured provider with optional
// fallback.
type Gateway interface {
	Stream(ctx context.Context, req GenerateRequest) (*Stream, error)
	Provider(name string) (Provider, error)
	ListModels() []ModelInfo
	Close() error
}

type HarmCategory string

const (
	HarmHateSpeech       HarmCategory = "HATE_SPEECH"
	HarmDangerousContent HarmCategory = "DANGEROUS_CONTENT"
	HarmSexuallyExplicit HarmCategory = "SEXUALLY_EXPLICIT"
	HarmHarassment       HarmCategory = "HARASSMENT"
)

type BlockThreshold string

const (
	BlockLowAndAbove    BlockThreshold = "BLOCK_LOW_AND_ABOVE"
	BlockMediumAndAbove BlockThreshold = "BLOCK_MEDIUM_AND_ABOVE"
	BlockOnlyHigh       BlockThreshold = "BLOCK_ONLY_HIGH"
	BlockNone           BlockThreshold = "BLOCK_NONE"
)

// SafetySetting blocks output whose harm probability in Category reaches
// Threshold. Providers without native thresholds ignore it.
type SafetySetting struct {
	Category  HarmCategory   `json:"category"`
	Threshold BlockThreshold `json:"threshold"`
}

// GenerateRequest is the input for a single-prompt generation.
type GenerateRequest struct {
	Provider    string          `json:"provider,omitempty"`
	Model       string          `json:"model"`
	Prompt      string          `json:"prompt"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	TopP        float64         `json:"top_p,omitempty"`
	Safety      []SafetySetting `json:"safety,omitempty"`
}

// StreamChunk is a single chunk from a streaming response.
type StreamChunk struct {
	Content      string `json:"content,omitempty"`
	Done         bool   `json:"done"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	Error        error  `json:"-"`
}

// Stream is an open generation. Chunks is closed after the Done chunk.
type Stream struct {
	Provider string
	Model    string
	Chunks   <-chan StreamChunk
}

// ModelInfo describes an available model.
type ModelInfo struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}
