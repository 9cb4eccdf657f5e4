// Package audit keeps the history of conversions and drafts.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Conversion is one attempt to synthesize audio.
type Conversion struct {
	ID           uuid.UUID `json:"id"`
	SessionID    string    `json:"session_id"`
	VoiceName    string    `json:"voice_name"`
	Language     string    `json:"language"`
	InputKind    string    `json:"input_kind"`
	OutputFormat string    `json:"output_format"`
	ProfileID    string    `json:"profile_id,omitempty"`
	SpeakingRate float64   `json:"speaking_rate"`
	Pitch        float64   `json:"pitch"`
	TextBytes    int       `json:"text_bytes"`
	AudioBytes   int       `json:"audio_bytes"`
	Cached       bool      `json:"cached"`
	OK           bool      `json:"ok"`
	Message      string    `json:"message,omitempty"`
	LatencyMs    int64     `json:"latency_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// Draft is one call to the speech-drafting model.
type Draft struct {
	ID           uuid.UUID `json:"id"`
	SessionID    string    `json:"session_id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	LatencyMs    int64     `json:"latency_ms"`
	OK           bool      `json:"ok"`
	Message      string    `json:"message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type HistoryQuery struct {
	SessionID string
	Limit     int
	Offset    int
}

// Recorder stores history. Failures to record never fail the user action.
type Recorder interface {
	RecordConversion(ctx context.Context, c Conversion) error
	RecordDraft(ctx context.Context, d Draft) error
	History(ctx context.Context, q HistoryQuery) ([]Conversion, error)
}

const defaultLimit = 50

func (q HistoryQuery) limit() int {
	if q.Limit <= 0 || q.Limit > 500 {
		return defaultLimit
	}
	return q.Limit
}

func stamp(id *uuid.UUID, at *time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if at.IsZero() {
		*at = time.Now().UTC()
	}
}
