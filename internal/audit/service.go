package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Recorder = (*Service)(nil)

// Service is the Postgres Recorder.
type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

func (s *Service) RecordConversion(ctx context.Context, c Conversion) error {
	stamp(&c.ID, &c.CreatedAt)

	_, err := s.db.Exec(ctx,
		`INSERT INTO conversions (id, session_id, voice_name, language, input_kind, output_format, profile_id,
		                          speaking_rate, pitch, text_bytes, audio_bytes, cached, ok, message, latency_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		c.ID, c.SessionID, c.VoiceName, c.Language, c.InputKind, c.OutputFormat, c.ProfileID,
		c.SpeakingRate, c.Pitch, c.TextBytes, c.AudioBytes, c.Cached, c.OK, c.Message, c.LatencyMs, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert conversion: %w", err)
	}
	return nil
}

func (s *Service) RecordDraft(ctx context.Context, d Draft) error {
	stamp(&d.ID, &d.CreatedAt)

	_, err := s.db.Exec(ctx,
		`INSERT INTO drafts (id, session_id, provider, model, input_tokens, output_tokens, cost_usd, latency_ms, ok, message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.SessionID, d.Provider, d.Model, d.InputTokens, d.OutputTokens, d.CostUSD, d.LatencyMs, d.OK, d.Message, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	return nil
}

// History returns a session's conversions, newest first.
func (s *Service) History(ctx context.Context, q HistoryQuery) ([]Conversion, error) {
	query := `SELECT id, session_id, voice_name, language, input_kind, output_format, profile_id,
			         speaking_rate, pitch, text_bytes, audio_bytes, cached, ok, message, latency_ms, created_at
			  FROM conversions`
	args := []interface{}{}
	argIdx := 1

	if q.SessionID != "" {
		query += fmt.Sprintf(" WHERE session_id = $%d", argIdx)
		args = append(args, q.SessionID)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, q.limit(), q.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversions: %w", err)
	}
	defer rows.Close()

	var out []Conversion
	for rows.Next() {
		var c Conversion
		if err := rows.Scan(&c.ID, &c.SessionID, &c.VoiceName, &c.Language, &c.InputKind, &c.OutputFormat, &c.ProfileID,
			&c.SpeakingRate, &c.Pitch, &c.TextBytes, &c.AudioBytes, &c.Cached, &c.OK, &c.Message, &c.LatencyMs, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversion: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
