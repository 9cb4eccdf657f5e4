package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/speechstudio/internal/form"
)

type HealthHandler struct {
	db     *pgxpool.Pool
	redis  *redis.Client
	voices form.VoiceSource
}

// NewHealthHandler takes optional dependencies; a nil one is not checked.
func NewHealthHandler(db *pgxpool.Pool, rdb *redis.Client, voices form.VoiceSource) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb, voices: voices}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]string{}

	if h.db != nil {
		checks["database"] = check(h.db.Ping(ctx))
	}
	if h.redis != nil {
		checks["redis"] = check(h.redis.Ping(ctx).Err())
	}
	if h.voices != nil {
		checks["voices"] = check(voicesReady(ctx, h.voices))
	}

	status := http.StatusOK
	for _, v := range checks {
		if v != "ok" {
			status = http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, status, map[string]interface{}{"status": statusStr(status), "checks": checks})
}

func voicesReady(ctx context.Context, src form.VoiceSource) error {
	_, err := src.ListVoices(ctx)
	return err
}

func check(err error) string {
	if err != nil {
		return "unhealthy: " + err.Error()
	}
	return "ok"
}

func statusStr(code int) string {
	if code == http.StatusOK {
		return "ok"
	}
	return "unhealthy"
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
