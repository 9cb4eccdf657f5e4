package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/nikhilbhutani/speechstudio/internal/audit"
	"github.com/nikhilbhutani/speechstudio/internal/auth"
	"github.com/nikhilbhutani/speechstudio/internal/form"
	"github.com/nikhilbhutani/speechstudio/internal/profile"
	"github.com/nikhilbhutani/speechstudio/internal/voice"
)

// VoiceCatalog is the refreshable voice list behind the API.
type VoiceCatalog interface {
	ListVoices(ctx context.Context) ([]voice.Voice, error)
	Invalidate(ctx context.Context) error
}

type APIHandler struct {
	ctrl     *form.Controller
	voices   VoiceCatalog
	profiles *profile.Catalog
	history  audit.Recorder
}

func NewAPIHandler(ctrl *form.Controller, voices VoiceCatalog, profiles *profile.Catalog, history audit.Recorder) *APIHandler {
	return &APIHandler{ctrl: ctrl, voices: voices, profiles: profiles, history: history}
}

type voiceJSON struct {
	voice.Voice
	VoiceType    string `json:"voice_type"`
	FriendlyName string `json:"friendly_name"`
}

// Voices lists the catalog, optionally narrowed by ?language= and
// ?voice_type=.
func (h *APIHandler) Voices(w http.ResponseWriter, r *http.Request) {
	voices, ok := h.listVoices(w, r)
	if !ok {
		return
	}
	if lang := r.URL.Query().Get("language"); lang != "" {
		voices = voice.FilterByLanguage(voices, lang)
	}
	if vt := r.URL.Query().Get("voice_type"); vt != "" {
		voices = voice.FilterByVoiceType(voices, vt)
	}

	out := make([]voiceJSON, 0, len(voices))
	for _, v := range voices {
		out = append(out, voiceJSON{Voice: v, VoiceType: v.VoiceType(), FriendlyName: v.FriendlyName()})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"voices": out})
}

func (h *APIHandler) Languages(w http.ResponseWriter, r *http.Request) {
	voices, ok := h.listVoices(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"languages": nonNil(voice.Languages(voices))})
}

// VoiceTypes lists the voice types offered for ?language=.
func (h *APIHandler) VoiceTypes(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("language")
	if lang == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "language required"})
		return
	}
	voices, ok := h.listVoices(w, r)
	if !ok {
		return
	}
	types := voice.DeriveVoiceTypes(voice.FilterByLanguage(voices, lang))
	writeJSON(w, http.StatusOK, map[string]interface{}{"language": lang, "voice_types": nonNil(types)})
}

func (h *APIHandler) Profiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"profiles": h.profiles.All()})
}

// RefreshVoices drops the cached catalog and fetches it again.
func (h *APIHandler) RefreshVoices(w http.ResponseWriter, r *http.Request) {
	if err := h.voices.Invalidate(r.Context()); err != nil {
		slog.Warn("invalidate voice catalog failed", "error", err)
	}
	voices, ok := h.listVoices(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(voices)})
}

type synthesizeRequest struct {
	Text         string   `json:"text"`
	InputKind    string   `json:"input_kind"`
	Language     string   `json:"language"`
	VoiceType    string   `json:"voice_type"`
	Voice        string   `json:"voice"`
	AudioProfile string   `json:"audio_profile"`
	OutputFormat string   `json:"output_format"`
	SpeakingRate *float64 `json:"speaking_rate"`
	Pitch        *float64 `json:"pitch"`
}

// Synthesize converts a JSON request and responds with the audio bytes.
func (h *APIHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	sel := form.Selections{
		Text:         req.Text,
		Kind:         req.InputKind,
		Language:     req.Language,
		VoiceType:    req.VoiceType,
		Voice:        req.Voice,
		Profile:      req.AudioProfile,
		Format:       req.OutputFormat,
		SpeakingRate: form.DefaultSpeakingRate,
		Pitch:        form.DefaultPitch,
	}
	if req.SpeakingRate != nil {
		sel.SpeakingRate = *req.SpeakingRate
	}
	if req.Pitch != nil {
		sel.Pitch = *req.Pitch
	}

	out := h.ctrl.Convert(r.Context(), auth.SessionID(r.Context()), sel)
	switch out.Status {
	case form.StatusSkipped:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text required"})
		return
	case form.StatusFatal:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": out.Message})
		return
	case form.StatusInvalid:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": out.Message})
		return
	case form.StatusFailed:
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": out.Message, "detail": out.Detail})
		return
	}

	audio, err := os.ReadFile(out.Result.Path)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not read audio"})
		return
	}
	w.Header().Set("Content-Type", out.Result.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.Header().Set("X-Voice-Name", out.Request.Voice.Name)
	w.Header().Set("X-Cache", cacheHeader(out.Result.Cached))
	if out.ArchiveURL != "" {
		w.Header().Set("X-Archive-URL", out.ArchiveURL)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

func (h *APIHandler) Draft(w http.ResponseWriter, r *http.Request) {
	if !h.ctrl.CanDraft() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": form.MsgDraftDisabled})
		return
	}

	var req struct {
		Topic string `json:"topic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	out := h.ctrl.Draft(r.Context(), auth.SessionID(r.Context()), req.Topic)
	if !out.OK {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": out.Message, "detail": out.Detail})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": out.Text})
}

// History lists the session's conversions, newest first.
func (h *APIHandler) History(w http.ResponseWriter, r *http.Request) {
	q := audit.HistoryQuery{SessionID: auth.SessionID(r.Context())}
	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	q.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if q.Limit < 0 || q.Offset < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit and offset must not be negative"})
		return
	}

	items, err := h.history.History(r.Context(), q)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if items == nil {
		items = []audit.Conversion{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversions": items})
}

func (h *APIHandler) listVoices(w http.ResponseWriter, r *http.Request) ([]voice.Voice, bool) {
	voices, err := h.voices.ListVoices(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": form.MsgCatalogUnavailable, "detail": err.Error()})
		return nil, false
	}
	return voices, true
}

func cacheHeader(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
