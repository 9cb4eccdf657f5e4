package form

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/speechstudio/internal/audit"
	"github.com/nikhilbhutani/speechstudio/internal/draft"
	"github.com/nikhilbhutani/speechstudio/internal/profile"
	"github.com/nikhilbhutani/speechstudio/internal/synthesis"
	"github.com/nikhilbhutani/speechstudio/internal/voice"
)

const (
	english = "English (United States)"
	german  = "Deutsch (Deutschland)"
)

var fixtureVoices = []voice.Voice{
	{Name: "de-DE-Wavenet-A", LanguageCode: "de-DE", Gender: voice.GenderFemale, Language: german},
	{Name: "en-US-Wavenet-A", LanguageCode: "en-US", Gender: voice.GenderMale, Language: english},
	{Name: "en-US-Wavenet-C", LanguageCode: "en-US", Gender: voice.GenderFemale, Language: english},
	{Name: "en-US-Standard-B", LanguageCode: "en-US", Gender: voice.GenderMale, Language: english},
}

type staticVoices struct {
	voices []voice.Voice
	err    error
	calls  int
}

func (s *staticVoices) ListVoices(context.Context) ([]voice.Voice, error) {
	s.calls++
	return s.voices, s.err
}

type fakeProvider struct {
	audio []byte
	err   error
	reqs  []synthesis.Request
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Synthesize(_ context.Context, req synthesis.Request) ([]byte, error) {
	f.reqs = append(f.reqs, req)
	return f.audio, f.err
}

type fakeDrafter struct {
	text string
	err  error
}

func (f *fakeDrafter) Generate(context.Context, string) (draft.Result, error) {
	if f.err != nil {
		return draft.Result{}, f.err
	}
	return draft.Result{Text: f.text, Usage: draft.Usage{Provider: "gemini", Model: "gemini-1.5-pro", OutputTokens: 12}}, nil
}

type fakeScheduler struct {
	sessions []string
	delay    time.Duration
}

func (f *fakeScheduler) SchedulePurge(_ context.Context, sessionID string, _ time.Time, delay time.Duration) error {
	f.sessions = append(f.sessions, sessionID)
	f.delay = delay
	return nil
}

type fakeArchiver struct{ err error }

func (f *fakeArchiver) Archive(_ context.Context, sessionID, localPath, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://archive.example/" + sessionID + "/" + filepath.Base(localPath), nil
}

type harness struct {
	ctrl      *Controller
	voices    *staticVoices
	provider  *fakeProvider
	store     *MemoryStore
	history   *audit.MemoryLog
	scheduler *fakeScheduler
	mediaDir  string
	outcomes  []string
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	profiles, err := profile.Parse([]byte(`[{"name":"Default","id":""},{"name":"Headphones","id":"headphone-class-device"}]`))
	require.NoError(t, err)

	h := &harness{
		voices:    &staticVoices{voices: fixtureVoices},
		provider:  &fakeProvider{audio: []byte("RIFF....WAVEfmt ")},
		store:     NewMemoryStore(),
		history:   audit.NewMemoryLog(10),
		scheduler: &fakeScheduler{},
		mediaDir:  t.TempDir(),
	}
	base := []Option{
		WithRecorder(h.history),
		WithPurgeScheduler(h.scheduler),
		WithOutcomeHook(func(action string, s Status) { h.outcomes = append(h.outcomes, action+":"+s.String()) }),
	}
	h.ctrl = NewController(h.voices, profiles, synthesis.NewClient(h.provider), h.store, Config{
		MediaDir:        h.mediaDir,
		MediaTTL:        time.Hour,
		DefaultLanguage: english,
	}, append(base, opts...)...)
	return h
}

func validSelections() Selections {
	return Selections{
		Text:         "Hello",
		Kind:         "Text",
		Language:     english,
		VoiceType:    "Wavenet",
		Voice:        "en-US-Wavenet-C (FEMALE)",
		Profile:      "Headphones",
		Format:       "MP3",
		SpeakingRate: 1.0,
		Pitch:        0.0,
	}
}

func TestConvert_Success(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out := h.ctrl.Convert(ctx, "sess-1", validSelections())
	require.Equal(t, StatusOK, out.Status, out.Message)
	assert.Equal(t, MsgConverted, out.Message)

	require.Len(t, h.provider.reqs, 1)
	req := h.provider.reqs[0]
	assert.Equal(t, "en-US-Wavenet-C", req.Voice.Name)
	assert.Equal(t, "headphone-class-device", req.ProfileID)
	assert.Equal(t, synthesis.FormatMP3, req.Format)
	assert.Equal(t, synthesis.KindPlain, req.Kind)

	wantPath := filepath.Join(h.mediaDir, "sess-1", "audio.mp3")
	assert.Equal(t, wantPath, out.Result.Path)
	data, err := os.ReadFile(wantPath)
	require.NoError(t, err)
	assert.Equal(t, h.provider.audio, data)

	state, err := h.store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, wantPath, state.LastOutput)

	hist, err := h.history.History(ctx, audit.HistoryQuery{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.True(t, hist[0].OK)
	assert.Equal(t, "MP3", hist[0].OutputFormat)

	assert.Equal(t, []string{"sess-1"}, h.scheduler.sessions)
	assert.Equal(t, time.Hour, h.scheduler.delay)
	assert.Equal(t, []string{"convert:ok"}, h.outcomes)
}

func TestConvert_EmptyTextSkipped(t *testing.T) {
	h := newHarness(t)
	sel := validSelections()
	sel.Text = "   \n"

	out := h.ctrl.Convert(context.Background(), "sess-1", sel)
	assert.Equal(t, StatusSkipped, out.Status)
	assert.Zero(t, h.voices.calls)
	assert.Empty(t, h.provider.reqs)
}

func TestConvert_CatalogUnavailableIsFatal(t *testing.T) {
	h := newHarness(t)
	h.voices.err = &voice.UnavailableError{Cause: errors.New("permission denied")}

	out := h.ctrl.Convert(context.Background(), "sess-1", validSelections())
	assert.Equal(t, StatusFatal, out.Status)
	assert.Equal(t, MsgCatalogUnavailable, out.Message)
	assert.Empty(t, h.provider.reqs)
}

func TestConvert_OutOfRangeIsInvalidWithoutProviderCall(t *testing.T) {
	for name, mutate := range map[string]func(*Selections){
		"rate too low":   func(s *Selections) { s.SpeakingRate = 0.1 },
		"rate too high":  func(s *Selections) { s.SpeakingRate = 4.5 },
		"pitch too low":  func(s *Selections) { s.Pitch = -20.5 },
		"pitch too high": func(s *Selections) { s.Pitch = 21 },
		"unknown voice":  func(s *Selections) { s.Voice = "de-DE-Wavenet-A (FEMALE)" },
		"unknown type":   func(s *Selections) { s.VoiceType = "Neural2" },
		"unknown format": func(s *Selections) { s.Format = "OGG" },
		"unknown kind":   func(s *Selections) { s.Kind = "HTML" },
		"unknown prof":   func(s *Selections) { s.Profile = "Spaceship" },
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			sel := validSelections()
			mutate(&sel)

			out := h.ctrl.Convert(context.Background(), "sess-1", sel)
			assert.Equal(t, StatusInvalid, out.Status)
			assert.NotEmpty(t, out.Message)
			assert.Empty(t, h.provider.reqs)
		})
	}
}

func TestConvert_ProviderFailure(t *testing.T) {
	h := newHarness(t)
	h.provider.err = errors.New("rpc error: code = InvalidArgument desc = invalid SSML")

	out := h.ctrl.Convert(context.Background(), "sess-1", validSelections())
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, MsgConvertFailed, out.Message)
	assert.Contains(t, out.Detail, "Error in converting text to speech: rpc error")

	assert.NoFileExists(t, filepath.Join(h.mediaDir, "sess-1", "audio.mp3"))
	assert.Empty(t, h.scheduler.sessions)

	hist, err := h.history.History(context.Background(), audit.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.False(t, hist[0].OK)
}

func TestConvert_SessionsDoNotShareOutput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.ctrl.Convert(ctx, "alice", validSelections())
	h.provider.audio = []byte("ID3bob")
	sel := validSelections()
	sel.Text = "Hello Bob"
	b := h.ctrl.Convert(ctx, "bob", sel)

	require.Equal(t, StatusOK, a.Status)
	require.Equal(t, StatusOK, b.Status)
	assert.NotEqual(t, a.Result.Path, b.Result.Path)

	data, err := os.ReadFile(a.Result.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF....WAVEfmt "), data)
}

func TestConvert_RejectsUnsafeSessionID(t *testing.T) {
	h := newHarness(t)
	out := h.ctrl.Convert(context.Background(), "../etc", validSelections())
	assert.Equal(t, StatusInvalid, out.Status)
	assert.Empty(t, h.provider.reqs)
}

func TestConvert_Archive(t *testing.T) {
	h := newHarness(t, WithArchiver(&fakeArchiver{}))
	out := h.ctrl.Convert(context.Background(), "sess-1", validSelections())
	require.Equal(t, StatusOK, out.Status)
	assert.Equal(t, "https://archive.example/sess-1/audio.mp3", out.ArchiveURL)

	h = newHarness(t, WithArchiver(&fakeArchiver{err: errors.New("bucket missing")}))
	out = h.ctrl.Convert(context.Background(), "sess-1", validSelections())
	assert.Equal(t, StatusOK, out.Status)
	assert.Empty(t, out.ArchiveURL)
}

func TestDraft_UpdatesState(t *testing.T) {
	h := newHarness(t, WithDrafter(&fakeDrafter{text: "Welcome to Bucharest!"}))
	ctx := context.Background()

	out := h.ctrl.Draft(ctx, "sess-1", "data cloud")
	require.True(t, out.OK)
	assert.Equal(t, "Welcome to Bucharest!", out.Text)

	state, err := h.store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Welcome to Bucharest!", state.DraftedSpeech)

	drafts := h.history.Drafts()
	require.Len(t, drafts, 1)
	assert.Equal(t, "gemini", drafts[0].Provider)
	assert.True(t, drafts[0].OK)
}

func TestDraft_FailureKeepsPriorText(t *testing.T) {
	h := newHarness(t, WithDrafter(&fakeDrafter{err: &draft.GenerationError{Provider: "gemini", Cause: errors.New("blocked")}}))
	ctx := context.Background()
	require.NoError(t, h.store.Save(ctx, "sess-1", State{DraftedSpeech: "my own words"}))

	out := h.ctrl.Draft(ctx, "sess-1", "x")
	assert.False(t, out.OK)
	assert.Equal(t, MsgDraftFailed, out.Message)
	assert.Equal(t, "my own words", out.Text)

	state, err := h.store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "my own words", state.DraftedSpeech)
	assert.Equal(t, []string{"draft:failed"}, h.outcomes)
}

func TestDraft_Disabled(t *testing.T) {
	h := newHarness(t)
	out := h.ctrl.Draft(context.Background(), "sess-1", "x")
	assert.False(t, out.OK)
	assert.Equal(t, MsgDraftDisabled, out.Message)
}

func TestImport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out := h.ctrl.Import(ctx, "sess-1", "intro.ssml", []byte("<speak>Hi</speak>"))
	require.True(t, out.OK, out.Message)
	assert.Equal(t, synthesis.KindMarkup, out.Kind)

	state, err := h.store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "<speak>Hi</speak>", state.DraftedSpeech)

	out = h.ctrl.Import(ctx, "sess-1", "song.mp3", []byte("x"))
	assert.False(t, out.OK)
	assert.Equal(t, "<speak>Hi</speak>", out.Text)

	out = h.ctrl.Import(ctx, "sess-1", "empty.txt", []byte("  "))
	assert.False(t, out.OK)
}

func TestView_Defaults(t *testing.T) {
	h := newHarness(t)
	v, err := h.ctrl.View(context.Background(), "sess-1", Selections{})
	require.NoError(t, err)

	assert.Equal(t, []string{german, english}, v.Languages)
	assert.Equal(t, english, v.Language)
	assert.Equal(t, []string{"Wavenet", "Standard"}, v.VoiceTypes)
	assert.Equal(t, "Wavenet", v.VoiceType)
	require.Len(t, v.Voices, 2)
	assert.Equal(t, "en-US-Wavenet-A", v.Voice.Name)
	assert.Equal(t, "Default", v.Profile.Name)
	assert.Len(t, v.Profiles, 2)
	assert.Equal(t, synthesis.FormatWAV, v.Format)
	assert.Equal(t, synthesis.KindPlain, v.Kind)
	assert.Equal(t, 1.0, v.SpeakingRate)
	assert.Equal(t, 0.0, v.Pitch)
}

func TestView_LanguageThenVoiceType(t *testing.T) {
	h := newHarness(t)
	v, err := h.ctrl.View(context.Background(), "sess-1", Selections{Language: english, VoiceType: "Standard"})
	require.NoError(t, err)
	require.Len(t, v.Voices, 1)
	assert.Equal(t, "en-US-Standard-B", v.Voice.Name)

	v, err = h.ctrl.View(context.Background(), "sess-1", Selections{Language: german, VoiceType: "Standard"})
	require.NoError(t, err)
	assert.Equal(t, "Wavenet", v.VoiceType)
	assert.Equal(t, "de-DE-Wavenet-A", v.Voice.Name)
}

func TestView_TextFromStateAndLastOutput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Save(ctx, "sess-1", State{DraftedSpeech: "drafted"}))

	v, err := h.ctrl.View(ctx, "sess-1", Selections{})
	require.NoError(t, err)
	assert.Equal(t, "drafted", v.Text)
	assert.Empty(t, v.LastOutput)

	require.Equal(t, StatusOK, h.ctrl.Convert(ctx, "sess-1", validSelections()).Status)
	v, err = h.ctrl.View(ctx, "sess-1", Selections{Text: "typed"})
	require.NoError(t, err)
	assert.Equal(t, "typed", v.Text)
	assert.Equal(t, "audio.mp3", v.LastOutput)
}

func TestView_CatalogUnavailable(t *testing.T) {
	h := newHarness(t)
	h.voices.err = &voice.UnavailableError{}
	_, err := h.ctrl.View(context.Background(), "sess-1", Selections{})
	assert.ErrorIs(t, err, voice.ErrCatalogUnavailable)
}

func TestMediaFile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.ctrl.MediaFile(ctx, "sess-1", "audio.mp3")
	assert.ErrorIs(t, err, ErrNoMedia)

	require.Equal(t, StatusOK, h.ctrl.Convert(ctx, "sess-1", validSelections()).Status)
	path, format, err := h.ctrl.MediaFile(ctx, "sess-1", "audio.mp3")
	require.NoError(t, err)
	assert.Equal(t, synthesis.FormatMP3, format)
	assert.FileExists(t, path)

	for _, name := range []string{"../audio.mp3", "audio.ogg", ""} {
		_, _, err := h.ctrl.MediaFile(ctx, "sess-1", name)
		assert.ErrorIs(t, err, ErrNoMedia, name)
	}
}

func TestConvert_VoiceNameAlone(t *testing.T) {
	h := newHarness(t)
	out := h.ctrl.Convert(context.Background(), "sess-1", Selections{
		Text:         "Hallo",
		Voice:        "de-DE-Wavenet-A",
		SpeakingRate: 1.0,
	})
	require.Equal(t, StatusOK, out.Status, out.Message)
	assert.Equal(t, "de-DE", out.Request.Voice.LanguageCode)
	assert.Equal(t, synthesis.FormatWAV, out.Request.Format)
	assert.Empty(t, out.Request.ProfileID)
}
