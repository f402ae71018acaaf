package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"talkback/internal/domain"
)

type fakeListenServer struct {
	mu       sync.Mutex
	received int
	query    string
	auth     string
	replies  []string
	hang     bool
}

func (f *fakeListenServer) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.query = r.URL.RawQuery
		f.auth = r.Header.Get("Authorization")
		f.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				f.mu.Lock()
				f.received += len(payload)
				f.mu.Unlock()
				continue
			}
			if strings.Contains(string(payload), "CloseStream") {
				break
			}
		}

		for _, reply := range f.replies {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
		if f.hang {
			time.Sleep(time.Second)
			return
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
}

func newTestTranscriber(t *testing.T, fake *fakeListenServer) *Transcriber {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)
	return New(Config{APIKey: "key", APIBaseURL: server.URL + "/v1", ChunkSize: 1000})
}

func testSegment() domain.AudioSegment {
	return domain.AudioSegment{SessionID: "s1", Audio: make([]byte, 3200), SampleRate: 16000, Channels: 1}
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	tr := New(Config{})
	if tr.cfg.APIBaseURL != "https://api.deepgram.com/v1" {
		t.Fatalf("unexpected base url: %q", tr.cfg.APIBaseURL)
	}
	if tr.cfg.Model != "nova-2" {
		t.Fatalf("unexpected model: %q", tr.cfg.Model)
	}
	if tr.cfg.ChunkSize != defaultChunkSize {
		t.Fatalf("unexpected chunk size: %d", tr.cfg.ChunkSize)
	}
	if tr.Name() != "deepgram" {
		t.Fatalf("unexpected name: %q", tr.Name())
	}
}

func TestTranscribeRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}).Transcribe(context.Background(), testSegment())
	if err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestTranscribeStreamsSegmentAndJoinsFinals(t *testing.T) {
	t.Parallel()

	fake := &fakeListenServer{replies: []string{
		`{"type":"Metadata"}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"what is"}]}}`,
		`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"the capital of france"}]}}`,
	}}
	tr := newTestTranscriber(t, fake)

	text, err := tr.Transcribe(context.Background(), testSegment())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "what is the capital of france" {
		t.Fatalf("unexpected transcript: %q", text)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.received != 3200 {
		t.Fatalf("expected all audio to be streamed, got %d bytes", fake.received)
	}
	if fake.auth != "Token key" {
		t.Fatalf("unexpected auth header: %q", fake.auth)
	}
	if !strings.Contains(fake.query, "interim_results=false") {
		t.Fatalf("unexpected query: %s", fake.query)
	}
}

func TestTranscribeSurfacesProviderError(t *testing.T) {
	t.Parallel()

	fake := &fakeListenServer{replies: []string{`{"type":"Error","message":"bad audio"}`}}
	tr := newTestTranscriber(t, fake)

	_, err := tr.Transcribe(context.Background(), testSegment())
	if err == nil || err.Error() != "bad audio" {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestTranscribeHonoursContextDeadline(t *testing.T) {
	t.Parallel()

	fake := &fakeListenServer{hang: true}
	tr := newTestTranscriber(t, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := tr.Transcribe(ctx, testSegment())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestBuildListenURLDefaults(t *testing.T) {
	t.Parallel()

	url, err := buildListenURL(Config{APIBaseURL: "https://api.deepgram.com/v1", Model: "nova-2"}, domain.AudioSegment{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(url, "wss://api.deepgram.com/v1/listen") {
		t.Fatalf("unexpected ws url: %s", url)
	}
	if !strings.Contains(url, "encoding=linear16") {
		t.Fatalf("expected default encoding in url: %s", url)
	}
	if !strings.Contains(url, "sample_rate=16000") {
		t.Fatalf("expected default sample_rate in url: %s", url)
	}
	if !strings.Contains(url, "channels=1") {
		t.Fatalf("expected default channels in url: %s", url)
	}
}

func TestBuildListenURLWithLanguageAndSmartFormat(t *testing.T) {
	t.Parallel()

	url, err := buildListenURL(
		Config{APIBaseURL: "http://localhost:8080/v1", Model: "m", Language: "en-US", SmartFormat: true},
		domain.AudioSegment{SampleRate: 8000, Channels: 2},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(url, "ws://localhost:8080/v1/listen") {
		t.Fatalf("unexpected ws url: %s", url)
	}
	if !strings.Contains(url, "language=en-US") {
		t.Fatalf("expected language in url: %s", url)
	}
	if !strings.Contains(url, "sample_rate=8000") {
		t.Fatalf("expected sample rate in url: %s", url)
	}
}

func TestBuildListenURLInvalidBase(t *testing.T) {
	t.Parallel()

	_, err := buildListenURL(Config{APIBaseURL: ":// bad"}, domain.AudioSegment{})
	if err == nil {
		t.Fatalf("expected invalid base url error")
	}
}

func TestSetErrIgnoresCloseErrors(t *testing.T) {
	t.Parallel()

	s := &segmentStream{}
	s.setErr(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "closed"})
	if s.waitErr() != nil {
		t.Fatalf("expected close error to be ignored")
	}

	s.setErr(fmt.Errorf("failed to read provider event: %w", &websocket.CloseError{Code: websocket.CloseNormalClosure}))
	if s.waitErr() != nil {
		t.Fatalf("expected wrapped close error to be ignored, got %v", s.waitErr())
	}

	s.setErr(fmt.Errorf("failed to read provider event: %w", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}))
	if s.waitErr() == nil {
		t.Fatalf("expected abnormal close to be recorded")
	}

	s = &segmentStream{}
	s.setErr(errors.New("first"))
	s.setErr(errors.New("second"))
	if s.waitErr() == nil || s.waitErr().Error() != "first" {
		t.Fatalf("expected first error to win")
	}
}

func TestAggregatorFallsBackToInterim(t *testing.T) {
	t.Parallel()

	var a aggregator
	a.Add("hello wor", false)
	if got := a.Text(); got != "hello wor" {
		t.Fatalf("unexpected interim text: %q", got)
	}

	a.Add("hello world", true)
	a.Add("  ", true)
	if got := a.Text(); got != "hello world" {
		t.Fatalf("unexpected final text: %q", got)
	}
}
