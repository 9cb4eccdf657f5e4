package form

import (
	"context"
	"path/filepath"

	"github.com/nikhilbhutani/speechstudio/internal/profile"
	"github.com/nikhilbhutani/speechstudio/internal/synthesis"
	"github.com/nikhilbhutani/speechstudio/internal/voice"
)

const (
	DefaultSpeakingRate = 1.00
	DefaultPitch        = 0.0
)

// View is everything the form page needs to render: the option lists for
// each selector and the value selected in it.
type View struct {
	Text string
	Kind synthesis.InputKind

	Languages  []string
	Language   string
	VoiceTypes []string
	VoiceType  string
	Voices     []voice.Voice
	Voice      voice.Voice
	Profiles   []profile.Profile
	Profile    profile.Profile

	Format       synthesis.Format
	SpeakingRate float64
	Pitch        float64

	// LastOutput is the file name of the session's last audio, if any.
	LastOutput string
}

// View resolves sel leniently: unknown or empty selections fall back to
// the defaults. The text box shows sel.Text, or the session's drafted
// speech when sel.Text is empty.
func (c *Controller) View(ctx context.Context, sessionID string, sel Selections) (View, error) {
	voices, err := c.voices.ListVoices(ctx)
	if err != nil {
		return View{}, err
	}

	state, err := c.store.Load(ctx, sessionID)
	if err != nil {
		return View{}, err
	}

	r, _ := c.resolve(voices, sel, false)

	v := View{
		Text:         sel.Text,
		Kind:         synthesis.KindPlain,
		Languages:    r.languages,
		Language:     r.language,
		VoiceTypes:   r.voiceTypes,
		VoiceType:    r.voiceType,
		Voices:       r.voices,
		Voice:        r.voice,
		Profiles:     c.profiles.All(),
		Profile:      r.profile,
		Format:       synthesis.FormatWAV,
		SpeakingRate: sel.SpeakingRate,
		Pitch:        sel.Pitch,
	}
	if v.Text == "" {
		v.Text = state.DraftedSpeech
	}
	if k, err := synthesis.ParseKind(sel.Kind); err == nil {
		v.Kind = k
	}
	if f, err := synthesis.ParseFormat(sel.Format); err == nil {
		v.Format = f
	}
	if v.SpeakingRate < synthesis.MinSpeakingRate || v.SpeakingRate > synthesis.MaxSpeakingRate {
		v.SpeakingRate = DefaultSpeakingRate
	}
	if v.Pitch < synthesis.MinPitch || v.Pitch > synthesis.MaxPitch {
		v.Pitch = DefaultPitch
	}
	if state.LastOutput != "" {
		if _, _, err := c.MediaFile(ctx, sessionID, filepath.Base(state.LastOutput)); err == nil {
			v.LastOutput = filepath.Base(state.LastOutput)
		}
	}
	return v, nil
}
