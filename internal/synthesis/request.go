// Package synthesis turns form selections into a text-to-speech request,
// sends it to the provider and writes the returned audio to disk.
package synthesis

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nikhilbhutani/speechstudio/internal/voice"
)

type InputKind string

const (
	KindPlain  InputKind = "PLAIN"
	KindMarkup InputKind = "MARKUP"
)

// ParseKind accepts the UI labels "Text" and "SSML" as well as the kind names.
func ParseKind(s string) (InputKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TEXT", "PLAIN", "":
		return KindPlain, nil
	case "SSML", "MARKUP":
		return KindMarkup, nil
	}
	return "", &ValidationError{Field: "input_kind", Value: s, Reason: "must be Text or SSML"}
}

// Label is the name the form shows for the kind.
func (k InputKind) Label() string {
	if k == KindMarkup {
		return "SSML"
	}
	return "Text"
}

type Format string

const (
	FormatWAV Format = "WAV"
	FormatMP3 Format = "MP3"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WAV", "":
		return FormatWAV, nil
	case "MP3":
		return FormatMP3, nil
	}
	return "", &ValidationError{Field: "output_format", Value: s, Reason: "must be WAV or MP3"}
}

func (f Format) Extension() string {
	return strings.ToLower(string(f))
}

// FileName is the output file name for the format: audio.wav or audio.mp3.
func (f Format) FileName() string {
	return "audio." + f.Extension()
}

func (f Format) ContentType() string {
	if f == FormatMP3 {
		return "audio/mpeg"
	}
	return "audio/wav"
}

const (
	MinSpeakingRate = 0.25
	MaxSpeakingRate = 4.00
	MinPitch        = -20.00
	MaxPitch        = 20.00

	// MaxInputBytes is the provider's limit on text or SSML per request.
	MaxInputBytes = 5000
)

// ErrEmptyInput means there is nothing to convert. Callers skip the
// conversion; it is not a validation failure.
var ErrEmptyInput = errors.New("no text to convert")

// ValidationError reports a parameter the provider would reject.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Request is a fully validated synthesis request.
type Request struct {
	Text         string      `json:"text"`
	Kind         InputKind   `json:"input_kind"`
	Voice        voice.Voice `json:"voice"`
	SpeakingRate float64     `json:"speaking_rate"`
	Pitch        float64     `json:"pitch"`
	ProfileID    string      `json:"output_profile_id,omitempty"`
	Format       Format      `json:"output_format"`
}

// Build validates the selections and assembles a Request.
func Build(text string, kind InputKind, v voice.Voice, rate, pitch float64, profileID string, format Format) (Request, error) {
	if strings.TrimSpace(text) == "" {
		return Request{}, ErrEmptyInput
	}
	if len(text) > MaxInputBytes {
		return Request{}, &ValidationError{
			Field:  "text",
			Value:  strconv.Itoa(len(text)) + " bytes",
			Reason: fmt.Sprintf("must be at most %d bytes", MaxInputBytes),
		}
	}
	if kind != KindPlain && kind != KindMarkup {
		return Request{}, &ValidationError{Field: "input_kind", Value: string(kind), Reason: "must be PLAIN or MARKUP"}
	}
	if format != FormatWAV && format != FormatMP3 {
		return Request{}, &ValidationError{Field: "output_format", Value: string(format), Reason: "must be WAV or MP3"}
	}
	if v.Name == "" {
		return Request{}, &ValidationError{Field: "voice", Value: "", Reason: "no voice selected"}
	}
	// NaN fails both range checks.
	if !(rate >= MinSpeakingRate && rate <= MaxSpeakingRate) {
		return Request{}, &ValidationError{
			Field:  "speaking_rate",
			Value:  strconv.FormatFloat(rate, 'f', 2, 64),
			Reason: fmt.Sprintf("must be within [%.2f, %.2f]", MinSpeakingRate, MaxSpeakingRate),
		}
	}
	if !(pitch >= MinPitch && pitch <= MaxPitch) {
		return Request{}, &ValidationError{
			Field:  "pitch",
			Value:  strconv.FormatFloat(pitch, 'f', 2, 64),
			Reason: fmt.Sprintf("must be within [%.2f, %.2f]", MinPitch, MaxPitch),
		}
	}

	return Request{
		Text:         text,
		Kind:         kind,
		Voice:        v,
		SpeakingRate: rate,
		Pitch:        pitch,
		ProfileID:    profileID,
		Format:       format,
	}, nil
}

// Key identifies the request's audio output. Equal keys produce equal audio.
func (r Request) Key() string {
	h := sha256.New()
	for _, part := range []string{
		r.Text,
		string(r.Kind),
		r.Voice.Name,
		r.Voice.LanguageCode,
		string(r.Voice.Gender),
		strconv.FormatFloat(r.SpeakingRate, 'f', -1, 64),
		strconv.FormatFloat(r.Pitch, 'f', -1, 64),
		r.ProfileID,
		string(r.Format),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
