package usecase

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"talkback/internal/audio"
	"talkback/internal/domain"
	"talkback/internal/ports"
)

const testFrame = 20 * time.Millisecond

type harness struct {
	controller    *CaptureController
	capture       *fakeAudioCapture
	permission    *fakePermission
	transcriber   *fakeTranscriber
	chat          *fakeChat
	conversations *fakeConversations
	clipboard     *fakeClipboard
	events        *fakeEventSink
	settings      *fakeSettings
}

func newHarness(t *testing.T, vadCfg domain.VadConfig, mutate ...func(*Deps, *Config)) *harness {
	t.Helper()

	h := &harness{
		capture:       &fakeAudioCapture{},
		permission:    &fakePermission{granted: true},
		transcriber:   &fakeTranscriber{text: "what is the capital of france"},
		chat:          &fakeChat{response: "Paris."},
		conversations: &fakeConversations{},
		clipboard:     &fakeClipboard{},
		events:        &fakeEventSink{},
		settings:      newFakeSettings(),
	}

	var (
		idMu sync.Mutex
		next int
	)
	deps := Deps{
		Audio:         h.capture,
		Permission:    h.permission,
		Dispatcher:    NewDispatcher(h.transcriber, time.Second),
		Responder:     NewResponder(h.chat, time.Second, 10),
		Conversations: h.conversations,
		Clipboard:     h.clipboard,
		Events:        h.events,
		Settings:      h.settings,
		NewID: func() string {
			idMu.Lock()
			defer idMu.Unlock()
			next++
			return fmt.Sprintf("id-%d", next)
		},
		Now: func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	cfg := Config{
		Audio:         ports.AudioConfig{SampleRate: 16000, Channels: 1},
		Vad:           vadCfg,
		FrameDuration: testFrame,
		TickInterval:  -1,
	}
	for _, fn := range mutate {
		fn(&deps, &cfg)
	}

	h.controller = NewCaptureController(deps, cfg)
	t.Cleanup(h.controller.Close)
	return h
}

func (h *harness) start(t *testing.T) string {
	t.Helper()
	if err := h.controller.StartCapture(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	status := h.controller.Status()
	if status.State != domain.CaptureStateCapturing || status.SessionID == "" {
		t.Fatalf("unexpected status after start: %+v", status)
	}
	return status.SessionID
}

// feed delivers frames covering [from, to) at the given level and stops as
// soon as the controller leaves Capturing. It returns the end offset of the
// last frame delivered.
func (h *harness) feed(t *testing.T, sessionID string, from, to time.Duration, level float64) time.Duration {
	t.Helper()
	end := from
	for at := from; at < to; at += testFrame {
		frame := audio.Frame{At: at, Duration: testFrame, LevelDB: level, PCM: make([]byte, 640)}
		if err := h.controller.Handle(context.Background(), AudioReceived{SessionID: sessionID, Frame: frame}); err != nil {
			t.Fatalf("audio delivery failed: %v", err)
		}
		end = frame.End()
		if h.controller.Status().State != domain.CaptureStateCapturing {
			break
		}
	}
	return end
}

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []*blockingAudioSession
	configs  []ports.AudioConfig
	err      error
	// opening runs while the device is being opened.
	opening func()
}

func (f *fakeAudioCapture) Start(_ context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	if f.opening != nil {
		f.opening()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	if f.err != nil {
		return nil, f.err
	}
	session := &blockingAudioSession{stopped: make(chan struct{})}
	f.sessions = append(f.sessions, session)
	return session, nil
}

func (f *fakeAudioCapture) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeAudioCapture) session(i int) *blockingAudioSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[i]
}

// blockingAudioSession produces no bytes; tests drive frames through Handle.
type blockingAudioSession struct {
	mu        sync.Mutex
	stopCalls int
	once      sync.Once
	stopped   chan struct{}
}

func (s *blockingAudioSession) Read(_ []byte) (int, error) {
	<-s.stopped
	return 0, io.EOF
}

func (s *blockingAudioSession) Close() error { return s.Stop() }

func (s *blockingAudioSession) Stop() error {
	s.mu.Lock()
	s.stopCalls++
	s.mu.Unlock()
	s.once.Do(func() { close(s.stopped) })
	return nil
}

func (s *blockingAudioSession) stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

type fakePermission struct {
	mu      sync.Mutex
	granted bool
	err     error
}

func (f *fakePermission) Check(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.granted, f.err
}

func (f *fakePermission) set(granted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.granted = granted
}

type fakeTranscriber struct {
	mu       sync.Mutex
	text     string
	err      error
	block    chan struct{}
	segments []domain.AudioSegment
}

func (f *fakeTranscriber) Name() string { return "fake-stt" }

func (f *fakeTranscriber) Transcribe(ctx context.Context, seg domain.AudioSegment) (string, error) {
	f.mu.Lock()
	f.segments = append(f.segments, seg)
	block, text, err := f.block, f.text, f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return text, err
}

func (f *fakeTranscriber) snapshot() []domain.AudioSegment {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.AudioSegment, len(f.segments))
	copy(out, f.segments)
	return out
}

type fakeChat struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []ports.Prompt
}

func (f *fakeChat) Name() string { return "fake-ai" }

func (f *fakeChat) Complete(_ context.Context, prompt ports.Prompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func (f *fakeChat) snapshot() []ports.Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ports.Prompt, len(f.prompts))
	copy(out, f.prompts)
	return out
}

type fakeConversations struct {
	mu    sync.Mutex
	turns []domain.ConversationTurn
	err   error
}

func (f *fakeConversations) Active() domain.Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	turns := make([]domain.ConversationTurn, len(f.turns))
	copy(turns, f.turns)
	return domain.Conversation{ID: "conv-1", Turns: turns}
}

func (f *fakeConversations) AppendTurn(_ context.Context, turn domain.ConversationTurn) (domain.ConversationTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.ConversationTurn{}, f.err
	}
	f.turns = append(f.turns, turn)
	return turn, nil
}

func (f *fakeConversations) snapshot() []domain.ConversationTurn {
	return f.Active().Turns
}

type fakeRules struct {
	transform string
	err       error
}

func (f *fakeRules) Apply(text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.transform != "" {
		return f.transform, nil
	}
	return text, nil
}

type fakeClipboard struct {
	mu       sync.Mutex
	lastText string
	err      error
}

func (f *fakeClipboard) SetText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastText = text
	return f.err
}

func (f *fakeClipboard) text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastText
}

type fakeSettings struct {
	mu       sync.Mutex
	vad      *domain.VadConfig
	settings map[string]string
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{settings: map[string]string{}}
}

func (f *fakeSettings) LoadVadConfig(_ context.Context) (domain.VadConfig, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vad == nil {
		return domain.VadConfig{}, false, nil
	}
	return *f.vad, true, nil
}

func (f *fakeSettings) SaveVadConfig(_ context.Context, cfg domain.VadConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vad = &cfg
	return nil
}

func (f *fakeSettings) LoadSetting(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.settings[key]
	return value, ok, nil
}

func (f *fakeSettings) SaveSetting(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[key] = value
	return nil
}

type fakeEventSink struct {
	mu sync.Mutex

	states   []stateEvent
	progress []int
	errors   []errEvent
}

type stateEvent struct {
	status domain.Status
	reason domain.StateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) StateChanged(status domain.Status, reason domain.StateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{status: status, reason: reason})
}

func (f *fakeEventSink) Progress(_ string, elapsedSecs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, elapsedSecs)
}

func (f *fakeEventSink) TurnAppended(string, domain.ConversationTurn) {}
func (f *fakeEventSink) ConversationStarted(string)                   {}
func (f *fakeEventSink) ConversationSelected(string)                  {}

func (f *fakeEventSink) Error(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stateEvent, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) snapshotProgress() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.progress))
	copy(out, f.progress)
	return out
}

func (f *fakeEventSink) reasons() []domain.StateReason {
	states := f.snapshotStates()
	out := make([]domain.StateReason, len(states))
	for i, s := range states {
		out[i] = s.reason
	}
	return out
}
