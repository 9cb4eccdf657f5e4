package llm

// costPerToken stores per-1K-token pricing for the drafting models.
// Prices in USD per 1K tokens: [input, output].
var costPerToken = map[string][2]float64{
	// Gemini
	"gemini-1.5-pro":   {0.00125, 0.005},
	"gemini-1.5-flash": {0.000075, 0.0003},
	"gemini-2.0-flash": {0.0001, 0.0004},

	// OpenAI
	"gpt-4o":      {0.0025, 0.01},
	"gpt-4o-mini": {0.00015, 0.0006},
	"gpt-4-turbo": {0.01, 0.03},

	// Anthropic
	"claude-sonnet-4-20250514": {0.003, 0.015},
	"claude-3-haiku-20240307":  {0.00025, 0.00125},
}

// CalculateCost returns the USD cost of a call, or 0 for unknown models.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	prices, ok := costPerToken[model]
	if !ok {
		return 0
	}
	inputCost := float64(inputTokens) / 1000.0 * prices[0]
	outputCost := float64(outputTokens) / 1000.0 * prices[1]
	return inputCost + outputCost
}
