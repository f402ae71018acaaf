package httptemplate

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"talkback/internal/audio"
	"talkback/internal/domain"
	apperrors "talkback/internal/errors"
	"talkback/internal/provider"
)

// Transcriber posts a WAV encoding of each segment to a templated endpoint.
type Transcriber struct {
	client client
}

// NewTranscriber returns a Transcriber for an STT descriptor.
func NewTranscriber(desc provider.Descriptor, httpClient *http.Client) (*Transcriber, error) {
	if desc.Kind != provider.KindTranscription {
		return nil, apperrors.NewValidationf("descriptor %q is not a transcription template", desc.Name)
	}
	return &Transcriber{client: newClient(desc, httpClient)}, nil
}

func (t *Transcriber) Name() string { return t.client.desc.Name }

func (t *Transcriber) Transcribe(ctx context.Context, segment domain.AudioSegment) (string, error) {
	wav, err := audio.EncodeWAV(segment)
	if err != nil {
		return "", fmt.Errorf("failed to encode segment: %w", err)
	}
	return t.client.do(ctx, request{
		values: map[string]string{provider.PlaceholderAudio: base64.StdEncoding.EncodeToString(wav)},
		files:  map[string][]byte{provider.PlaceholderAudio: wav},
	})
}
