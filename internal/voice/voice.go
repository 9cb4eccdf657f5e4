// Package voice holds the catalog of synthesis voices offered by the TTS
// provider and the filters the form uses to narrow it down: first by
// language, then by the voice type derived from the voice name.
package voice

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

type Gender string

const (
	GenderMale    Gender = "MALE"
	GenderFemale  Gender = "FEMALE"
	GenderNeutral Gender = "NEUTRAL"
)

// ParseGender maps a provider gender label to a Gender. Unknown or
// unspecified labels map to GenderNeutral.
func ParseGender(s string) Gender {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MALE":
		return GenderMale
	case "FEMALE":
		return GenderFemale
	default:
		return GenderNeutral
	}
}

// Voice is one entry of the provider catalog.
type Voice struct {
	Name         string `json:"name"`
	LanguageCode string `json:"language_code"`
	Gender       Gender `json:"ssml_gender"`
	Language     string `json:"language"`
}

// VoiceType returns the voice type derived from the voice name.
func (v Voice) VoiceType() string {
	return DeriveVoiceType(v.Name)
}

// FriendlyName is the label shown in the voice selector.
func (v Voice) FriendlyName() string {
	return fmt.Sprintf("%s (%s)", v.Name, v.Gender)
}

var voiceTypePattern = regexp.MustCompile(`(\w+)-[A-Z\d]$`)

// DeriveVoiceType extracts the word immediately before a trailing
// "-<uppercase letter or digit>" suffix, e.g. "Wavenet" from
// "en-US-Wavenet-A". It returns "" when the name has no such suffix.
func DeriveVoiceType(name string) string {
	m := voiceTypePattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}

// DeriveVoiceTypes returns the distinct voice types of voices in first-seen
// order. Voices whose names carry no type are skipped.
func DeriveVoiceTypes(voices []Voice) []string {
	seen := make(map[string]bool)
	var types []string
	for _, v := range voices {
		t := v.VoiceType()
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		types = append(types, t)
	}
	return types
}

// FilterByLanguage returns the voices whose display language equals language.
func FilterByLanguage(voices []Voice, language string) []Voice {
	var out []Voice
	for _, v := range voices {
		if v.Language == language {
			out = append(out, v)
		}
	}
	return out
}

// FilterByVoiceType returns the voices of the given type. Voice types are
// only unique within a language, so apply FilterByLanguage first.
func FilterByVoiceType(voices []Voice, voiceType string) []Voice {
	var out []Voice
	for _, v := range voices {
		if t := v.VoiceType(); t != "" && t == voiceType {
			out = append(out, v)
		}
	}
	return out
}

// Languages returns the sorted distinct display languages of voices.
func Languages(voices []Voice) []string {
	seen := make(map[string]bool)
	var langs []string
	for _, v := range voices {
		if v.Language == "" || seen[v.Language] {
			continue
		}
		seen[v.Language] = true
		langs = append(langs, v.Language)
	}
	sort.Strings(langs)
	return langs
}

var ErrVoiceNotFound = errors.New("voice not found")

// Find looks a voice up by friendly name or, failing that, by plain name.
func Find(voices []Voice, label string) (Voice, error) {
	for _, v := range voices {
		if v.FriendlyName() == label {
			return v, nil
		}
	}
	for _, v := range voices {
		if v.Name == label {
			return v, nil
		}
	}
	return Voice{}, fmt.Errorf("%w: %q", ErrVoiceNotFound, label)
}
