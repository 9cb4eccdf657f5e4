package handlers

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/speechstudio/internal/auth"
	"github.com/nikhilbhutani/speechstudio/internal/form"
	"github.com/nikhilbhutani/speechstudio/internal/synthesis"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// page is the data behind templates/index.html.
type page struct {
	View     form.View
	CanDraft bool
	Topic    string

	Fatal   string
	Error   string
	Detail  string
	Success string

	AudioURL    string
	DownloadURL string
	ContentType string
	ArchiveURL  string
}

type FormHandler struct {
	ctrl      *form.Controller
	maxUpload int64
}

func NewFormHandler(ctrl *form.Controller, maxUpload int64) *FormHandler {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &FormHandler{ctrl: ctrl, maxUpload: maxUpload}
}

// Index renders the form for the selections in the query string.
func (h *FormHandler) Index(w http.ResponseWriter, r *http.Request) {
	sel, err := parseSelections(r.URL.Query())
	if err != nil {
		h.render(w, r, http.StatusUnprocessableEntity, sel, page{Error: err.Error()})
		return
	}
	h.render(w, r, http.StatusOK, sel, page{})
}

// Draft posts with the whole form so the text box and selections survive a
// failed generation.
func (h *FormHandler) Draft(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, form.Selections{}, page{Error: "invalid form"})
		return
	}
	sel, err := parseSelections(r.PostForm)
	if err != nil {
		slog.Debug("draft with malformed selections", "error", err)
	}
	topic := r.PostForm.Get("topic")
	out := h.ctrl.Draft(r.Context(), auth.SessionID(r.Context()), topic)

	p := page{Topic: topic}
	status := http.StatusOK
	if out.OK {
		sel.Text = out.Text
	} else {
		p.Error, p.Detail = out.Message, out.Detail
		status = http.StatusBadGateway
	}
	h.render(w, r, status, sel, p)
}

func (h *FormHandler) Convert(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, form.Selections{}, page{Error: "invalid form"})
		return
	}
	sel, err := parseSelections(r.PostForm)
	if err != nil {
		h.render(w, r, http.StatusUnprocessableEntity, sel, page{Error: err.Error()})
		return
	}

	out := h.ctrl.Convert(r.Context(), auth.SessionID(r.Context()), sel)
	switch out.Status {
	case form.StatusSkipped:
		h.render(w, r, http.StatusOK, sel, page{})
	case form.StatusFatal:
		h.fatal(w, out.Message)
	case form.StatusInvalid:
		h.render(w, r, http.StatusUnprocessableEntity, sel, page{Error: out.Message})
	case form.StatusFailed:
		h.render(w, r, http.StatusBadGateway, sel, page{Error: out.Message, Detail: out.Detail})
	default:
		name := out.Request.Format.FileName()
		version := strconv.FormatInt(int64(out.Result.Size), 10) + "-" + out.Request.Key()[:12]
		h.render(w, r, http.StatusOK, sel, page{
			Success:     out.Message,
			AudioURL:    "/media/" + name + "?v=" + version,
			DownloadURL: "/media/" + name + "?download=1&v=" + version,
			ContentType: out.Result.ContentType,
			ArchiveURL:  out.ArchiveURL,
		})
	}
}

// Import fills the text box from the multipart file field "document".
func (h *FormHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.render(w, r, http.StatusRequestEntityTooLarge, form.Selections{}, page{Error: "upload too large or not a multipart form"})
		return
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		h.render(w, r, http.StatusBadRequest, form.Selections{}, page{Error: "document required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.render(w, r, http.StatusBadRequest, form.Selections{}, page{Error: "could not read upload"})
		return
	}

	out := h.ctrl.Import(r.Context(), auth.SessionID(r.Context()), header.Filename, data)
	sel := form.Selections{Text: out.Text, Kind: out.Kind.Label()}
	if !out.OK {
		h.render(w, r, http.StatusUnprocessableEntity, sel, page{Error: out.Message})
		return
	}
	h.render(w, r, http.StatusOK, sel, page{})
}

// Media serves the session's audio file. ?download=1 sends it as an
// attachment.
func (h *FormHandler) Media(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	path, format, err := h.ctrl.MediaFile(r.Context(), auth.SessionID(r.Context()), name)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, "could not read audio", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Cache-Control", "private, no-cache")
	if r.URL.Query().Get("download") == "1" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	}
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

func (h *FormHandler) render(w http.ResponseWriter, r *http.Request, status int, sel form.Selections, p page) {
	view, err := h.ctrl.View(r.Context(), auth.SessionID(r.Context()), sel)
	if err != nil {
		slog.Error("build form view failed", "error", err)
		h.fatal(w, form.MsgCatalogUnavailable)
		return
	}
	p.View = view
	p.CanDraft = h.ctrl.CanDraft()
	if p.AudioURL == "" && p.Error == "" && view.LastOutput != "" {
		p.AudioURL = "/media/" + view.LastOutput
		p.DownloadURL = "/media/" + view.LastOutput + "?download=1"
		p.ContentType = contentTypeOf(view.LastOutput)
	}
	writeHTML(w, status, p)
}

func (h *FormHandler) fatal(w http.ResponseWriter, msg string) {
	writeHTML(w, http.StatusServiceUnavailable, page{Fatal: msg})
}

func writeHTML(w http.ResponseWriter, status int, p page) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		slog.Error("render page failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func contentTypeOf(fileName string) string {
	if strings.HasSuffix(fileName, "."+synthesis.FormatMP3.Extension()) {
		return synthesis.FormatMP3.ContentType()
	}
	return synthesis.FormatWAV.ContentType()
}

// parseSelections reads the form fields. Missing speed and pitch take the
// form defaults; malformed numbers are a validation error.
func parseSelections(v url.Values) (form.Selections, error) {
	sel := form.Selections{
		Text:         strings.ReplaceAll(v.Get("text"), "\r\n", "\n"),
		Kind:         v.Get("kind"),
		Language:     v.Get("language"),
		VoiceType:    v.Get("voice_type"),
		Voice:        v.Get("voice"),
		Profile:      v.Get("profile"),
		Format:       v.Get("format"),
		SpeakingRate: form.DefaultSpeakingRate,
		Pitch:        form.DefaultPitch,
	}
	var err error
	if sel.SpeakingRate, err = parseNumber(v.Get("speed"), "speaking_rate", form.DefaultSpeakingRate); err != nil {
		sel.SpeakingRate = form.DefaultSpeakingRate
		return sel, err
	}
	if sel.Pitch, err = parseNumber(v.Get("pitch"), "pitch", form.DefaultPitch); err != nil {
		sel.Pitch = form.DefaultPitch
		return sel, err
	}
	return sel, nil
}

func parseNumber(s, field string, fallback float64) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fallback, &synthesis.ValidationError{Field: field, Value: s, Reason: "not a number"}
	}
	return f, nil
}
