package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Models() []string {
	return []string{"gemini-1.5-pro", "gemini-1.5-flash", "gemini-2.0-flash"}
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func (p *GeminiProvider) GenerateStream(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, error) {
	model := p.client.GenerativeModel(req.Model)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.Temperature > 0 {
		model.SetTemperature(float32(req.Temperature))
	}
	if req.TopP > 0 {
		model.SetTopP(float32(req.TopP))
	}
	model.SafetySettings = geminiSafety(req.Safety)

	iter := model.GenerateContentStream(ctx, genai.Text(req.Prompt))

	ch := make(chan StreamChunk, 64)
	go func() {
		defer close(ch)

		var inputTokens, outputTokens int
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				ch <- StreamChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
				return
			}
			if err != nil {
				ch <- StreamChunk{Error: fmt.Errorf("gemini stream: %w", err), Done: true}
				return
			}
			if resp.UsageMetadata != nil {
				inputTokens = int(resp.UsageMetadata.PromptTokenCount)
				outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			}
			if text := geminiText(resp); text != "" {
				ch <- StreamChunk{Content: text}
			}
		}
	}()

	return ch, nil
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out += string(txt)
		}
	}
	return out
}

var geminiCategories = map[HarmCategory]genai.HarmCategory{
	HarmHateSpeech:       genai.HarmCategoryHateSpeech,
	HarmDangerousContent: genai.HarmCategoryDangerousContent,
	HarmSexuallyExplicit: genai.HarmCategorySexuallyExplicit,
	HarmHarassment:       genai.HarmCategoryHarassment,
}

var geminiThresholds = map[BlockThreshold]genai.HarmBlockThreshold{
	BlockLowAndAbove:    genai.HarmBlockLowAndAbove,
	BlockMediumAndAbove: genai.HarmBlockMediumAndAbove,
	BlockOnlyHigh:       genai.HarmBlockOnlyHigh,
	BlockNone:           genai.HarmBlockNone,
}

func geminiSafety(settings []SafetySetting) []*genai.SafetySetting {
	var out []*genai.SafetySetting
	for _, s := range settings {
		cat, ok := geminiCategories[s.Category]
		if !ok {
			continue
		}
		th, ok := geminiThresholds[s.Threshold]
		if !ok {
			continue
		}
		out = append(out, &genai.SafetySetting{Category: cat, Threshold: th})
	}
	return out
}
