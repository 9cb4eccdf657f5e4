package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/speechstudio/internal/queue"
)

// PurgeWorker deletes per-session audio under the media directory.
type PurgeWorker struct {
	mediaDir string
}

func NewPurgeWorker(mediaDir string) *PurgeWorker {
	return &PurgeWorker{mediaDir: mediaDir}
}

func (w *PurgeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.MediaPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	if !validSessionID(payload.SessionID) {
		return fmt.Errorf("invalid session id %q: %w", payload.SessionID, asynq.SkipRetry)
	}

	dir := filepath.Join(w.mediaDir, payload.SessionID)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(payload.ProducedAt) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed++
	}

	// Only succeeds when nothing newer was kept.
	_ = os.Remove(dir)

	slog.Info("media purged", "session_id", payload.SessionID, "files", removed)
	return nil
}

func validSessionID(id string) bool {
	return id != "" && id != "." && id != ".." && filepath.Base(id) == id
}
