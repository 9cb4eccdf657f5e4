package synthesis

import (
	"context"
	"fmt"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"

	"github.com/nikhilbhutani/speechstudio/internal/voice"
)

// SpeechAPI is the part of the Cloud Text-to-Speech client used for
// synthesis.
type SpeechAPI interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
}

var _ Provider = (*GoogleProvider)(nil)

// GoogleProvider synthesizes speech with Google Cloud Text-to-Speech.
type GoogleProvider struct {
	api SpeechAPI
}

func NewGoogleProvider(api SpeechAPI) *GoogleProvider {
	return &GoogleProvider{api: api}
}

func (g *GoogleProvider) Name() string { return "google-cloud-tts" }

func (g *GoogleProvider) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	resp, err := g.api.SynthesizeSpeech(ctx, SpeechRequest(req))
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	if len(resp.GetAudioContent()) == 0 {
		return nil, fmt.Errorf("synthesize speech: empty audio content")
	}
	return resp.GetAudioContent(), nil
}

// SpeechRequest maps a Request onto the provider's wire request.
func SpeechRequest(req Request) *texttospeechpb.SynthesizeSpeechRequest {
	input := &texttospeechpb.SynthesisInput{}
	if req.Kind == KindMarkup {
		input.InputSource = &texttospeechpb.SynthesisInput_Ssml{Ssml: req.Text}
	} else {
		input.InputSource = &texttospeechpb.SynthesisInput_Text{Text: req.Text}
	}

	profiles := []string{}
	if req.ProfileID != "" {
		profiles = append(profiles, req.ProfileID)
	}

	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: input,
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: req.Voice.LanguageCode,
			Name:         req.Voice.Name,
			SsmlGender:   voice.GenderProto(req.Voice.Gender),
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:    encoding(req.Format),
			SpeakingRate:     req.SpeakingRate,
			Pitch:            req.Pitch,
			EffectsProfileId: profiles,
		},
	}
}

func encoding(f Format) texttospeechpb.AudioEncoding {
	if f == FormatMP3 {
		return texttospeechpb.AudioEncoding_MP3
	}
	return texttospeechpb.AudioEncoding_LINEAR16
}
