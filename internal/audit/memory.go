package audit

import (
	"context"
	"sync"
)

var _ Recorder = (*MemoryLog)(nil)

// MemoryLog is a bounded in-process Recorder used when no database is
// configured. The oldest records are dropped first.
type MemoryLog struct {
	mu          sync.Mutex
	max         int
	conversions []Conversion
	drafts      []Draft
}

func NewMemoryLog(max int) *MemoryLog {
	if max <= 0 {
		max = 1000
	}
	return &MemoryLog{max: max}
}

func (m *MemoryLog) RecordConversion(_ context.Context, c Conversion) error {
	stamp(&c.ID, &c.CreatedAt)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversions = append(m.conversions, c)
	if len(m.conversions) > m.max {
		m.conversions = m.conversions[len(m.conversions)-m.max:]
	}
	return nil
}

func (m *MemoryLog) RecordDraft(_ context.Context, d Draft) error {
	stamp(&d.ID, &d.CreatedAt)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts = append(m.drafts, d)
	if len(m.drafts) > m.max {
		m.drafts = m.drafts[len(m.drafts)-m.max:]
	}
	return nil
}

func (m *MemoryLog) History(_ context.Context, q HistoryQuery) ([]Conversion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Conversion
	skipped := 0
	for i := len(m.conversions) - 1; i >= 0 && len(out) < q.limit(); i-- {
		c := m.conversions[i]
		if q.SessionID != "" && c.SessionID != q.SessionID {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Drafts returns recorded drafts, newest first.
func (m *MemoryLog) Drafts() []Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Draft, 0, len(m.drafts))
	for i := len(m.drafts) - 1; i >= 0; i-- {
		out = append(out, m.drafts[i])
	}
	return out
}
