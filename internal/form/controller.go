// Package form drives the text-to-speech form: it resolves the user's
// selections against the voice catalog, runs conversions and drafts, and
// keeps per-session state.
package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nikhilbhutani/speechstudio/internal/audit"
	"github.com/nikhilbhutani/speechstudio/internal/draft"
	"github.com/nikhilbhutani/speechstudio/internal/profile"
	"github.com/nikhilbhutani/speechstudio/internal/synthesis"
	"github.com/nikhilbhutani/speechstudio/internal/voice"
	"github.com/nikhilbhutani/speechstudio/pkg/textextract"
)

const (
	MsgCatalogUnavailable = "Could not retrieve a list of available voices from the Google API! Do not proceed."
	MsgConvertFailed      = "Something went wrong! Could not convert the text using the Google API!"
	MsgConverted          = "Audio file created successfully! You can now play or download your audio file."
	MsgDraftFailed        = "Could not generate the introduction speech. Your text was kept."
	MsgDraftDisabled      = "Speech drafting is not configured."
	MsgImportFailed       = "Could not read text from the uploaded document."
)

var ErrNoMedia = errors.New("no audio for this session")

type VoiceSource interface {
	ListVoices(ctx context.Context) ([]voice.Voice, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req synthesis.Request, destinationPath string) synthesis.Result
}

type Drafter interface {
	Generate(ctx context.Context, topic string) (draft.Result, error)
}

// Archiver copies a finished audio file somewhere durable and returns its URL.
type Archiver interface {
	Archive(ctx context.Context, sessionID, localPath, contentType string) (string, error)
}

// PurgeScheduler arranges for a session's audio to be deleted later.
type PurgeScheduler interface {
	SchedulePurge(ctx context.Context, sessionID string, producedAt time.Time, delay time.Duration) error
}

type Config struct {
	MediaDir        string
	MediaTTL        time.Duration
	DefaultLanguage string
}

type Option func(*Controller)

func WithDrafter(d Drafter) Option {
	return func(c *Controller) { c.drafter = d }
}

func WithRecorder(r audit.Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

func WithArchiver(a Archiver) Option {
	return func(c *Controller) { c.archiver = a }
}

func WithPurgeScheduler(s PurgeScheduler) Option {
	return func(c *Controller) { c.scheduler = s }
}

// WithOutcomeHook is told the action ("convert", "draft", "import") and
// status of every controller call.
func WithOutcomeHook(fn func(action string, status Status)) Option {
	return func(c *Controller) { c.onOutcome = fn }
}

type Controller struct {
	voices   VoiceSource
	profiles *profile.Catalog
	synth    Synthesizer
	store    Store
	cfg      Config

	drafter   Drafter
	recorder  audit.Recorder
	archiver  Archiver
	scheduler PurgeScheduler
	onOutcome func(string, Status)
	now       func() time.Time
}

func NewController(voices VoiceSource, profiles *profile.Catalog, synth Synthesizer, store Store, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		voices:   voices,
		profiles: profiles,
		synth:    synth,
		store:    store,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type Status int

const (
	StatusOK Status = iota
	StatusSkipped
	StatusFatal
	StatusInvalid
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSkipped:
		return "skipped"
	case StatusFatal:
		return "fatal"
	case StatusInvalid:
		return "invalid"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Selections are the raw form values. Kind and Format take the UI labels.
type Selections struct {
	Text         string
	Kind         string
	Language     string
	VoiceType    string
	Voice        string
	Profile      string
	Format       string
	SpeakingRate float64
	Pitch        float64
}

type ConvertOutcome struct {
	Status  Status
	Message string
	// Detail is the underlying cause, shown under Message.
	Detail     string
	Request    synthesis.Request
	Result     synthesis.Result
	ArchiveURL string
}

type DraftOutcome struct {
	OK      bool
	Message string
	Detail  string
	// Text is the text box content after the call: the draft on success,
	// the previous text otherwise.
	Text string
}

type ImportOutcome struct {
	OK      bool
	Message string
	Text    string
	Kind    synthesis.InputKind
}

// CanDraft reports whether a speech-drafting model is configured.
func (c *Controller) CanDraft() bool {
	return c.drafter != nil
}

// OutputPath is where a session's audio of the given format is written.
func (c *Controller) OutputPath(sessionID string, f synthesis.Format) string {
	return filepath.Join(c.cfg.MediaDir, sessionID, f.FileName())
}

// Convert runs one conversion. Empty text is skipped without contacting
// any provider; invalid parameters never reach the synthesizer.
func (c *Controller) Convert(ctx context.Context, sessionID string, sel Selections) (out ConvertOutcome) {
	defer func() { c.outcome("convert", out.Status) }()

	if strings.TrimSpace(sel.Text) == "" {
		return ConvertOutcome{Status: StatusSkipped}
	}
	if !ValidSessionID(sessionID) {
		return ConvertOutcome{Status: StatusInvalid, Message: "invalid session"}
	}

	voices, err := c.voices.ListVoices(ctx)
	if err != nil {
		slog.Error("voice catalog unavailable", "error", err)
		return ConvertOutcome{Status: StatusFatal, Message: MsgCatalogUnavailable, Detail: err.Error()}
	}

	req, err := c.compose(voices, sel)
	if errors.Is(err, synthesis.ErrEmptyInput) {
		return ConvertOutcome{Status: StatusSkipped}
	}
	if err != nil {
		return ConvertOutcome{Status: StatusInvalid, Message: err.Error()}
	}

	dest := c.OutputPath(sessionID, req.Format)
	start := c.now()
	res := c.synth.Synthesize(ctx, req, dest)
	c.recordConversion(ctx, sessionID, req, res, c.now().Sub(start))

	if !res.OK {
		return ConvertOutcome{Status: StatusFailed, Message: MsgConvertFailed, Detail: res.Message, Request: req, Result: res}
	}

	state, err := c.store.Load(ctx, sessionID)
	if err != nil {
		slog.Warn("load session state failed", "session_id", sessionID, "error", err)
	}
	state.LastOutput = res.Path
	if err := c.store.Save(ctx, sessionID, state); err != nil {
		slog.Warn("save session state failed", "session_id", sessionID, "error", err)
	}

	out = ConvertOutcome{Status: StatusOK, Message: MsgConverted, Request: req, Result: res}

	if c.archiver != nil {
		url, err := c.archiver.Archive(ctx, sessionID, res.Path, res.ContentType)
		if err != nil {
			slog.Warn("archive audio failed", "session_id", sessionID, "error", err)
		}
		out.ArchiveURL = url
	}
	if c.scheduler != nil && c.cfg.MediaTTL > 0 {
		if err := c.scheduler.SchedulePurge(ctx, sessionID, c.now(), c.cfg.MediaTTL); err != nil {
			slog.Warn("schedule media purge failed", "session_id", sessionID, "error", err)
		}
	}
	return out
}

// compose resolves the selections strictly: a named language, voice type,
// voice or profile that does not exist is a validation error.
func (c *Controller) compose(voices []voice.Voice, sel Selections) (synthesis.Request, error) {
	kind, err := synthesis.ParseKind(sel.Kind)
	if err != nil {
		return synthesis.Request{}, err
	}
	format, err := synthesis.ParseFormat(sel.Format)
	if err != nil {
		return synthesis.Request{}, err
	}
	r, err := c.resolve(voices, sel, true)
	if err != nil {
		return synthesis.Request{}, err
	}
	return synthesis.Build(sel.Text, kind, r.voice, sel.SpeakingRate, sel.Pitch, r.profile.ID, format)
}

type resolution struct {
	languages  []string
	language   string
	voiceTypes []string
	voiceType  string
	voices     []voice.Voice
	voice      voice.Voice
	profile    profile.Profile
}

func (c *Controller) resolve(voices []voice.Voice, sel Selections, strict bool) (resolution, error) {
	var r resolution

	// A voice named on its own implies its language and voice type.
	if sel.Language == "" && sel.Voice != "" {
		if v, err := voice.Find(voices, sel.Voice); err == nil {
			sel.Language = v.Language
			if sel.VoiceType == "" {
				sel.VoiceType = v.VoiceType()
			}
		}
	}

	r.languages = voice.Languages(voices)
	switch {
	case contains(r.languages, sel.Language):
		r.language = sel.Language
	case strict && sel.Language != "":
		return r, &synthesis.ValidationError{Field: "language", Value: sel.Language, Reason: "no voices for this language"}
	case contains(r.languages, c.cfg.DefaultLanguage):
		r.language = c.cfg.DefaultLanguage
	case len(r.languages) > 0:
		r.language = r.languages[0]
	}

	byLanguage := voice.FilterByLanguage(voices, r.language)
	r.voiceTypes = voice.DeriveVoiceTypes(byLanguage)
	switch {
	case contains(r.voiceTypes, sel.VoiceType):
		r.voiceType = sel.VoiceType
	case strict && sel.VoiceType != "":
		return r, &synthesis.ValidationError{Field: "voice_type", Value: sel.VoiceType, Reason: "not offered for " + r.language}
	case len(r.voiceTypes) > 0:
		r.voiceType = r.voiceTypes[0]
	}

	r.voices = voice.FilterByVoiceType(byLanguage, r.voiceType)
	if v, err := voice.Find(r.voices, sel.Voice); err == nil {
		r.voice = v
	} else if strict && sel.Voice != "" {
		return r, &synthesis.ValidationError{Field: "voice", Value: sel.Voice, Reason: "not offered for this language and voice type"}
	} else if len(r.voices) > 0 {
		r.voice = r.voices[0]
	}

	if p, err := c.profiles.Lookup(sel.Profile); err == nil {
		r.profile = p
	} else if strict && sel.Profile != "" {
		return r, &synthesis.ValidationError{Field: "audio_profile", Value: sel.Profile, Reason: "unknown profile"}
	} else {
		r.profile = c.profiles.Default()
	}
	return r, nil
}

// Draft asks the model for a speech on topic and stores it as the text box
// content. On failure the previous text is kept.
func (c *Controller) Draft(ctx context.Context, sessionID, topic string) (out DraftOutcome) {
	defer func() {
		status := StatusOK
		if !out.OK {
			status = StatusFailed
		}
		c.outcome("draft", status)
	}()

	state, err := c.store.Load(ctx, sessionID)
	if err != nil {
		slog.Warn("load session state failed", "session_id", sessionID, "error", err)
	}
	if c.drafter == nil {
		return DraftOutcome{Message: MsgDraftDisabled, Text: state.DraftedSpeech}
	}

	start := c.now()
	res, err := c.drafter.Generate(ctx, topic)
	c.recordDraft(ctx, sessionID, res.Usage, err, c.now().Sub(start))
	if err != nil {
		slog.Error("draft failed", "session_id", sessionID, "error", err)
		return DraftOutcome{Message: MsgDraftFailed, Detail: err.Error(), Text: state.DraftedSpeech}
	}

	state.DraftedSpeech = res.Text
	if err := c.store.Save(ctx, sessionID, state); err != nil {
		slog.Warn("save session state failed", "session_id", sessionID, "error", err)
	}
	return DraftOutcome{OK: true, Text: res.Text}
}

// Import replaces the text box content with the text of an uploaded file.
func (c *Controller) Import(ctx context.Context, sessionID, filename string, data []byte) (out ImportOutcome) {
	defer func() {
		status := StatusOK
		if !out.OK {
			status = StatusFailed
		}
		c.outcome("import", status)
	}()

	state, err := c.store.Load(ctx, sessionID)
	if err != nil {
		slog.Warn("load session state failed", "session_id", sessionID, "error", err)
	}

	doc, err := textextract.Extract(data, filename)
	if err != nil {
		slog.Warn("document import failed", "file", filename, "error", err)
		return ImportOutcome{Message: MsgImportFailed + " " + err.Error(), Text: state.DraftedSpeech}
	}
	if doc.Content == "" {
		return ImportOutcome{Message: MsgImportFailed + " The document contains no text.", Text: state.DraftedSpeech}
	}

	kind := synthesis.KindPlain
	if doc.Markup {
		kind = synthesis.KindMarkup
	}

	state.DraftedSpeech = doc.Content
	if err := c.store.Save(ctx, sessionID, state); err != nil {
		slog.Warn("save session state failed", "session_id", sessionID, "error", err)
	}
	return ImportOutcome{OK: true, Text: doc.Content, Kind: kind}
}

// MediaFile returns the path of the session's audio file called name.
func (c *Controller) MediaFile(ctx context.Context, sessionID, name string) (string, synthesis.Format, error) {
	if !ValidSessionID(sessionID) {
		return "", "", ErrNoMedia
	}
	var format synthesis.Format
	switch name {
	case synthesis.FormatWAV.FileName():
		format = synthesis.FormatWAV
	case synthesis.FormatMP3.FileName():
		format = synthesis.FormatMP3
	default:
		return "", "", ErrNoMedia
	}

	path := c.OutputPath(sessionID, format)
	if _, err := os.Stat(path); err != nil {
		return "", "", ErrNoMedia
	}
	return path, format, nil
}

// ValidSessionID reports whether id is safe to use as a directory name.
func ValidSessionID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

func (c *Controller) recordConversion(ctx context.Context, sessionID string, req synthesis.Request, res synthesis.Result, elapsed time.Duration) {
	if c.recorder == nil {
		return
	}
	rec := audit.Conversion{
		SessionID:    sessionID,
		VoiceName:    req.Voice.Name,
		Language:     req.Voice.LanguageCode,
		InputKind:    string(req.Kind),
		OutputFormat: string(req.Format),
		ProfileID:    req.ProfileID,
		SpeakingRate: req.SpeakingRate,
		Pitch:        req.Pitch,
		TextBytes:    len(req.Text),
		AudioBytes:   res.Size,
		Cached:       res.Cached,
		OK:           res.OK,
		Message:      res.Message,
		LatencyMs:    elapsed.Milliseconds(),
	}
	if err := c.recorder.RecordConversion(ctx, rec); err != nil {
		slog.Warn("record conversion failed", "error", err)
	}
}

func (c *Controller) recordDraft(ctx context.Context, sessionID string, u draft.Usage, genErr error, elapsed time.Duration) {
	if c.recorder == nil {
		return
	}
	rec := audit.Draft{
		SessionID:    sessionID,
		Provider:     u.Provider,
		Model:        u.Model,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		CostUSD:      u.Cost,
		LatencyMs:    elapsed.Milliseconds(),
		OK:           genErr == nil,
	}
	if genErr != nil {
		rec.Message = genErr.Error()
		var ge *draft.GenerationError
		if errors.As(genErr, &ge) {
			rec.Provider = ge.Provider
		}
	}
	if err := c.recorder.RecordDraft(ctx, rec); err != nil {
		slog.Warn("record draft failed", "error", err)
	}
}

func (c *Controller) outcome(action string, s Status) {
	if c.onOutcome != nil {
		c.onOutcome(action, s)
	}
}

func contains(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
