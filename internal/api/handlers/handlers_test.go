package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/speechstudio/internal/audit"
	"github.com/nikhilbhutani/speechstudio/internal/auth"
	"github.com/nikhilbhutani/speechstudio/internal/draft"
	"github.com/nikhilbhutani/speechstudio/internal/form"
	"github.com/nikhilbhutani/speechstudio/internal/profile"
	"github.com/nikhilbhutani/speechstudio/internal/synthesis"
	"github.com/nikhilbhutani/speechstudio/internal/voice"
)

const english = "English (United States)"

type fakeVoices struct {
	voices      []voice.Voice
	err         error
	invalidated int
}

func (f *fakeVoices) ListVoices(context.Context) ([]voice.Voice, error) { return f.voices, f.err }

func (f *fakeVoices) Invalidate(context.Context) error {
	f.invalidated++
	return nil
}

type fakeProvider struct {
	audio []byte
	err   error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Synthesize(context.Context, synthesis.Request) ([]byte, error) {
	return f.audio, f.err
}

type fakeDrafter struct {
	text string
	err  error
}

func (f *fakeDrafter) Generate(context.Context, string) (draft.Result, error) {
	return draft.Result{Text: f.text}, f.err
}

type testServer struct {
	voices   *fakeVoices
	provider *fakeProvider
	history  *audit.MemoryLog
	handler  http.Handler
}

func newTestServer(t *testing.T, opts ...form.Option) *testServer {
	t.Helper()
	profiles, err := profile.Parse([]byte(`[{"name":"Default","id":""},{"name":"Headphones","id":"headphone-class-device"}]`))
	require.NoError(t, err)

	ts := &testServer{
		voices: &fakeVoices{voices: []voice.Voice{
			{Name: "de-DE-Wavenet-A", LanguageCode: "de-DE", Gender: voice.GenderFemale, Language: "Deutsch (Deutschland)"},
			{Name: "en-US-Wavenet-A", LanguageCode: "en-US", Gender: voice.GenderMale, Language: english},
			{Name: "en-US-Standard-B", LanguageCode: "en-US", Gender: voice.GenderMale, Language: english},
		}},
		provider: &fakeProvider{audio: []byte("ID3 fake audio")},
		history:  audit.NewMemoryLog(10),
	}

	opts = append([]form.Option{form.WithRecorder(ts.history)}, opts...)
	ctrl := form.NewController(ts.voices, profiles, synthesis.NewClient(ts.provider), form.NewMemoryStore(), form.Config{
		MediaDir:        t.TempDir(),
		DefaultLanguage: english,
	}, opts...)

	fh := NewFormHandler(ctrl, 1<<20)
	api := NewAPIHandler(ctrl, ts.voices, profiles, ts.history)
	health := NewHealthHandler(nil, nil, ts.voices)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithSessionID(r.Context(), "sess-1")))
		})
	})
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Get("/", fh.Index)
	r.Post("/convert", fh.Convert)
	r.Post("/draft", fh.Draft)
	r.Post("/import", fh.Import)
	r.Get("/media/{file}", fh.Media)
	r.Get("/api/v1/voices", api.Voices)
	r.Post("/api/v1/voices/refresh", api.RefreshVoices)
	r.Get("/api/v1/languages", api.Languages)
	r.Get("/api/v1/voice-types", api.VoiceTypes)
	r.Get("/api/v1/profiles", api.Profiles)
	r.Post("/api/v1/synthesize", api.Synthesize)
	r.Post("/api/v1/draft", api.Draft)
	r.Get("/api/v1/history", api.History)
	ts.handler = r
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) postForm(path string, v url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(v.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ts.do(req)
}

func (ts *testServer) postJSON(path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return ts.do(req)
}

func convertForm() url.Values {
	return url.Values{
		"kind":       {"Text"},
		"text":       {"Hello there"},
		"language":   {english},
		"voice_type": {"Wavenet"},
		"voice":      {"en-US-Wavenet-A (MALE)"},
		"profile":    {"Headphones"},
		"format":     {"MP3"},
		"speed":      {"1.25"},
		"pitch":      {"-2.0"},
	}
}

func TestIndex_RendersSelectors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "Deutsch (Deutschland)")
	assert.Contains(t, body, "en-US-Wavenet-A (MALE)")
	assert.Contains(t, body, "Headphones")
	assert.NotContains(t, body, "/draft", "draft form hidden without a drafter")
}

func TestIndex_LanguageSelectionNarrowsVoices(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/?language="+url.QueryEscape("Deutsch (Deutschland)"), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "de-DE-Wavenet-A (FEMALE)")
	assert.NotContains(t, rec.Body.String(), "en-US-Standard-B")
}

func TestIndex_CatalogUnavailable(t *testing.T) {
	ts := newTestServer(t)
	ts.voices.err = errors.New("permission denied")

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), form.MsgCatalogUnavailable)
	assert.NotContains(t, rec.Body.String(), `action="/convert"`)
}

func TestConvert_SuccessThenServeMedia(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.postForm("/convert", convertForm())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Contains(t, body, form.MsgConverted)
	assert.Contains(t, body, "/media/audio.mp3?v=")

	media := ts.do(httptest.NewRequest(http.MethodGet, "/media/audio.mp3", nil))
	require.Equal(t, http.StatusOK, media.Code)
	assert.Equal(t, "audio/mpeg", media.Header().Get("Content-Type"))
	assert.Equal(t, ts.provider.audio, media.Body.Bytes())
	assert.Empty(t, media.Header().Get("Content-Disposition"))

	dl := ts.do(httptest.NewRequest(http.MethodGet, "/media/audio.mp3?download=1", nil))
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Contains(t, dl.Header().Get("Content-Disposition"), `attachment; filename="audio.mp3"`)
}

func TestConvert_EmptyTextIsNoop(t *testing.T) {
	ts := newTestServer(t)
	v := convertForm()
	v.Set("text", "  ")

	rec := ts.postForm("/convert", v)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), form.MsgConverted)
	assert.Equal(t, http.StatusNotFound, ts.do(httptest.NewRequest(http.MethodGet, "/media/audio.mp3", nil)).Code)
}

func TestConvert_RejectsMalformedNumbers(t *testing.T) {
	for _, speed := range []string{"NaN", "Inf", "fast"} {
		t.Run(speed, func(t *testing.T) {
			ts := newTestServer(t)
			v := convertForm()
			v.Set("speed", speed)

			rec := ts.postForm("/convert", v)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Contains(t, rec.Body.String(), "speaking_rate")
		})
	}
}

func TestConvert_OutOfRangeIsInvalid(t *testing.T) {
	ts := newTestServer(t)
	v := convertForm()
	v.Set("pitch", "25")

	rec := ts.postForm("/convert", v)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "pitch")
}

func TestConvert_ProviderFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.provider.err = errors.New("quota exceeded")

	rec := ts.postForm("/convert", convertForm())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), form.MsgConvertFailed)
	assert.Contains(t, rec.Body.String(), "quota exceeded")
}

func TestConvert_CatalogUnavailable(t *testing.T) {
	ts := newTestServer(t)
	ts.voices.err = errors.New("unauthenticated")

	rec := ts.postForm("/convert", convertForm())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), form.MsgCatalogUnavailable)
}

func TestMedia_UnknownFile(t *testing.T) {
	ts := newTestServer(t)
	for _, name := range []string{"audio.ogg", "..%2Fsecret", "audio.wav"} {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/media/"+name, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, name)
	}
}

func TestDraft_FillsTextBox(t *testing.T) {
	ts := newTestServer(t, form.WithDrafter(&fakeDrafter{text: "Good evening everyone"}))

	rec := ts.postForm("/draft", url.Values{"topic": {"a retirement party"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Good evening everyone")
	assert.Contains(t, rec.Body.String(), `formaction="/draft"`)

	// The drafted speech stays in the session for the next page view.
	idx := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, idx.Body.String(), "Good evening everyone")
}

func TestDraft_FailureKeepsPriorText(t *testing.T) {
	ts := newTestServer(t, form.WithDrafter(&fakeDrafter{err: errors.New("blocked")}))

	rec := ts.postForm("/draft", url.Values{"topic": {"x"}})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Could not generate the introduction speech")
}

func TestDraft_FailureKeepsTypedText(t *testing.T) {
	ts := newTestServer(t, form.WithDrafter(&fakeDrafter{err: errors.New("blocked")}))

	v := convertForm()
	v.Set("text", "My own carefully typed words")
	rec := ts.postForm("/convert", v)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "My own carefully typed words")

	v.Set("topic", "a product launch")
	rec = ts.postForm("/draft", v)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "My own carefully typed words")
	assert.Contains(t, body, "en-US-Wavenet-A (MALE)")
	assert.Contains(t, body, `value="a product launch"`)
}

func TestImport_PlainText(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("document", "speech.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("Imported words"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := ts.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Imported words")
}

func TestImport_MissingFile(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, ts.do(req).Code)
}

func TestAPI_VoicesFiltered(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/voices?language="+url.QueryEscape(english)+"&voice_type=Standard", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Voices []struct {
			Name         string `json:"name"`
			VoiceType    string `json:"voice_type"`
			FriendlyName string `json:"friendly_name"`
		} `json:"voices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Voices, 1)
	assert.Equal(t, "en-US-Standard-B", resp.Voices[0].Name)
	assert.Equal(t, "Standard", resp.Voices[0].VoiceType)
	assert.Equal(t, "en-US-Standard-B (MALE)", resp.Voices[0].FriendlyName)
}

func TestAPI_LanguagesAndVoiceTypes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/languages", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"languages":["Deutsch (Deutschland)","English (United States)"]}`, rec.Body.String())

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/voice-types?language="+url.QueryEscape(english), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"language":"English (United States)","voice_types":["Wavenet","Standard"]}`, rec.Body.String())

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/voice-types", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ProfilesAndRefresh(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/profiles", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "headphone-class-device")

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/api/v1/voices/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":3}`, rec.Body.String())
	assert.Equal(t, 1, ts.voices.invalidated)
}

func TestAPI_VoicesUnavailable(t *testing.T) {
	ts := newTestServer(t)
	ts.voices.err = errors.New("down")

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/voices", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Do not proceed")
}

func TestAPI_SynthesizeReturnsAudio(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.postJSON("/api/v1/synthesize", map[string]interface{}{
		"text":          "Hi",
		"voice":         "en-US-Wavenet-A",
		"output_format": "MP3",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "en-US-Wavenet-A", rec.Header().Get("X-Voice-Name"))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, ts.provider.audio, rec.Body.Bytes())

	hist := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=5", nil))
	require.Equal(t, http.StatusOK, hist.Code)
	var resp struct {
		Conversions []audit.Conversion `json:"conversions"`
	}
	require.NoError(t, json.Unmarshal(hist.Body.Bytes(), &resp))
	require.Len(t, resp.Conversions, 1)
	assert.Equal(t, "en-US-Wavenet-A", resp.Conversions[0].VoiceName)
	assert.True(t, resp.Conversions[0].OK)
}

func TestAPI_SynthesizeErrors(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, ts.postJSON("/api/v1/synthesize", map[string]string{"voice": "en-US-Wavenet-A"}).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, ts.postJSON("/api/v1/synthesize", map[string]interface{}{
		"text": "Hi", "voice": "en-US-Wavenet-A", "speaking_rate": 9.0,
	}).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, ts.postJSON("/api/v1/synthesize", map[string]interface{}{
		"text": "Hi", "voice": "xx-XX-Nope-Z",
	}).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/synthesize", strings.NewReader("{"))
	assert.Equal(t, http.StatusBadRequest, ts.do(req).Code)

	ts.provider.err = errors.New("boom")
	assert.Equal(t, http.StatusBadGateway, ts.postJSON("/api/v1/synthesize", map[string]string{"text": "Hi", "voice": "en-US-Wavenet-A"}).Code)
}

func TestAPI_Draft(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusServiceUnavailable, ts.postJSON("/api/v1/draft", map[string]string{"topic": "x"}).Code)

	ts = newTestServer(t, form.WithDrafter(&fakeDrafter{text: "Welcome all"}))
	rec := ts.postJSON("/api/v1/draft", map[string]string{"topic": "x"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"text":"Welcome all"}`, rec.Body.String())
}

func TestAPI_HistoryRejectsNegativePaging(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/history?offset=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"voices":"ok"}}`, rec.Body.String())

	ts.voices.err = errors.New("down")
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy: down")
}
