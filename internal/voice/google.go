package voice

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// VoiceAPI is the part of the Cloud Text-to-Speech client used for listing.
type VoiceAPI interface {
	ListVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest, opts ...gax.CallOption) (*texttospeechpb.ListVoicesResponse, error)
}

var _ Lister = (*GoogleLister)(nil)

// GoogleLister lists voices from Google Cloud Text-to-Speech.
type GoogleLister struct {
	api VoiceAPI
}

func NewGoogleLister(api VoiceAPI) *GoogleLister {
	return &GoogleLister{api: api}
}

func (g *GoogleLister) ListVoices(ctx context.Context) ([]Voice, error) {
	resp, err := g.api.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{})
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}

	voices := make([]Voice, 0, len(resp.GetVoices()))
	for _, v := range resp.GetVoices() {
		codes := v.GetLanguageCodes()
		if len(codes) == 0 {
			continue
		}
		voices = append(voices, Voice{
			Name:         v.GetName(),
			LanguageCode: codes[0],
			Gender:       genderFromProto(v.GetSsmlGender()),
			Language:     DisplayLanguage(codes[0]),
		})
	}
	return voices, nil
}

func genderFromProto(g texttospeechpb.SsmlVoiceGender) Gender {
	switch g {
	case texttospeechpb.SsmlVoiceGender_MALE:
		return GenderMale
	case texttospeechpb.SsmlVoiceGender_FEMALE:
		return GenderFemale
	default:
		return GenderNeutral
	}
}

// GenderProto is the inverse of genderFromProto.
func GenderProto(g Gender) texttospeechpb.SsmlVoiceGender {
	switch g {
	case GenderMale:
		return texttospeechpb.SsmlVoiceGender_MALE
	case GenderFemale:
		return texttospeechpb.SsmlVoiceGender_FEMALE
	default:
		return texttospeechpb.SsmlVoiceGender_NEUTRAL
	}
}

// DisplayLanguage names a BCP-47 code in its own language, title-cased,
// e.g. "English (United States)" for en-US or "Deutsch (Deutschland)" for
// de-DE. Unparseable codes are returned unchanged.
func DisplayLanguage(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}

	base, _ := tag.Base()
	name := display.Languages(tag).Name(language.Make(base.String()))
	if name == "" {
		return code
	}

	if region, conf := tag.Region(); conf == language.Exact {
		if r := display.Regions(tag).Name(region); r != "" {
			name = name + " (" + r + ")"
		}
	}

	return cases.Title(tag).String(strings.ToLower(name))
}
