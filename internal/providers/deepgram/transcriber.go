// Package deepgram transcribes finalized segments over the Deepgram
// streaming websocket.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"talkback/internal/domain"
)

const defaultChunkSize = 8192

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	ChunkSize   int
}

// Transcriber implements ports.Transcriber for Deepgram. Each segment opens
// its own connection, streams the PCM and waits for the final results.
type Transcriber struct {
	cfg    Config
	dialer *websocket.Dialer
}

func New(cfg Config) *Transcriber {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	return &Transcriber{cfg: cfg, dialer: websocket.DefaultDialer}
}

func (t *Transcriber) Name() string { return "deepgram" }

func (t *Transcriber) Transcribe(ctx context.Context, segment domain.AudioSegment) (string, error) {
	if strings.TrimSpace(t.cfg.APIKey) == "" {
		return "", errors.New("DEEPGRAM_API_KEY is not configured")
	}
	if len(segment.Audio) == 0 {
		return "", errors.New("segment has no audio")
	}

	wsURL, err := buildListenURL(t.cfg, segment)
	if err != nil {
		return "", err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+t.cfg.APIKey)

	conn, _, err := t.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return "", fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}

	stream := &segmentStream{conn: conn, done: make(chan struct{})}
	go stream.readLoop()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	stream.send(segment.Audio, t.cfg.ChunkSize)
	if stream.waitErr() != nil {
		_ = conn.Close()
	}
	<-stream.done
	_ = conn.Close()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := stream.waitErr(); err != nil {
		return "", err
	}
	return stream.transcript.Text(), nil
}

type segmentStream struct {
	conn       *websocket.Conn
	done       chan struct{}
	transcript aggregator

	errMu sync.Mutex
	err   error
}

// send writes the audio in chunks and then asks the server to flush. Deepgram
// closes the socket once the final results have been delivered.
func (s *segmentStream) send(pcm []byte, chunkSize int) {
	for start := 0; start < len(pcm); start += chunkSize {
		end := min(start+chunkSize, len(pcm))
		if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm[start:end]); err != nil {
			s.setErr(fmt.Errorf("failed to send audio: %w", err))
			return
		}
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		s.setErr(fmt.Errorf("failed to close stream: %w", err))
	}
}

func (s *segmentStream) readLoop() {
	defer close(s.done)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.setErr(errors.New(message))
			return
		}

		transcript := extractTranscript(response)
		if transcript == "" {
			continue
		}
		s.transcript.Add(transcript, response.IsFinal || response.SpeechFinal)
	}
}

func (s *segmentStream) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *segmentStream) setErr(err error) {
	if err == nil {
		return
	}
	if isOrderlyClose(err) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// isOrderlyClose reports whether err, possibly wrapped, is the server ending
// the stream after delivering its results.
func isOrderlyClose(err error) bool {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	switch closeErr.Code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
		return true
	}
	return false
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func extractTranscript(response deepgramResponse) string {
	if len(response.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(response.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(response.Results.Channels) > 0 && len(response.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(response.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

func buildListenURL(cfg Config, segment domain.AudioSegment) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	if base == "" {
		base = "https://api.deepgram.com/v1"
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	sampleRate := segment.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := segment.Channels
	if channels <= 0 {
		channels = 1
	}

	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	query.Set("channels", fmt.Sprintf("%d", channels))
	query.Set("interim_results", "false")
	query.Set("smart_format", fmt.Sprintf("%t", cfg.SmartFormat))
	if cfg.Language != "" {
		query.Set("language", cfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
