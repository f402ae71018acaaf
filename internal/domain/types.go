package domain

import (
	"errors"
	"time"
)

// CaptureState models the capture orchestration lifecycle.
type CaptureState string

const (
	CaptureStateIdle          CaptureState = "idle"
	CaptureStateSetupRequired CaptureState = "setup_required"
	CaptureStateCapturing     CaptureState = "capturing"
	CaptureStateProcessing    CaptureState = "processing"
	CaptureStateAIProcessing  CaptureState = "ai_processing"
	CaptureStateError         CaptureState = "error"
)

// CaptureMode selects how a capturing segment is finalized.
type CaptureMode string

const (
	CaptureModeVAD        CaptureMode = "vad"
	CaptureModeContinuous CaptureMode = "continuous"
)

// EndedReason records which trigger finalized a segment.
type EndedReason string

const (
	EndedReasonSilence     EndedReason = "silence"
	EndedReasonMaxDuration EndedReason = "maxDuration"
	EndedReasonManualStop  EndedReason = "manualStop"
)

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonReady               StateReason = "ready"
	ReasonPermissionMissing   StateReason = "permission_missing"
	ReasonPermissionGranted   StateReason = "permission_granted"
	ReasonCaptureStarted      StateReason = "capture_started"
	ReasonSilenceDetected     StateReason = "silence_detected"
	ReasonMaxDurationReached  StateReason = "max_duration_reached"
	ReasonManualStop          StateReason = "manual_stop"
	ReasonEmptyCapture        StateReason = "empty_capture"
	ReasonDeviceFailed        StateReason = "device_failed"
	ReasonTranscriptionFailed StateReason = "transcription_failed"
	ReasonNoSpeech            StateReason = "no_speech"
	ReasonResponding          StateReason = "responding"
	ReasonTurnAppended        StateReason = "turn_appended"
	ReasonResponseFailed      StateReason = "response_failed"
	ReasonPersistFailed       StateReason = "persist_failed"
	ReasonErrorAcknowledged   StateReason = "error_acknowledged"
)

// ErrorCode identifies the category of a surfaced failure.
type ErrorCode string

const (
	ErrorCodeSetupRequired ErrorCode = "SETUP_REQUIRED"
	ErrorCodeCaptureDevice ErrorCode = "CAPTURE_DEVICE"
	ErrorCodeBusy          ErrorCode = "BUSY"
	ErrorCodeProvider      ErrorCode = "PROVIDER"
	ErrorCodeDuplicate     ErrorCode = "DUPLICATE_LABEL"
	ErrorCodeValidation    ErrorCode = "VALIDATION"
	ErrorCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrorCodeNoSession     ErrorCode = "NO_ACTIVE_SESSION"
	ErrorCodeInternal      ErrorCode = "INTERNAL"
)

// VadConfig controls silence detection and the hard recording ceiling.
type VadConfig struct {
	SilenceThresholdDB       float64     `json:"silenceThresholdDb" yaml:"silence_threshold_db"`
	SilenceDurationMs        int         `json:"silenceDurationMs" yaml:"silence_duration_ms"`
	MaxRecordingDurationSecs int         `json:"maxRecordingDurationSecs" yaml:"max_recording_duration_secs"`
	Mode                     CaptureMode `json:"mode" yaml:"mode"`
}

// DefaultVadConfig returns the configuration used before the user customizes it.
func DefaultVadConfig() VadConfig {
	return VadConfig{
		SilenceThresholdDB:       -45,
		SilenceDurationMs:        800,
		MaxRecordingDurationSecs: 30,
		Mode:                     CaptureModeVAD,
	}
}

// Validate reports the first invariant the configuration breaks.
func (c VadConfig) Validate() error {
	switch c.Mode {
	case CaptureModeVAD, CaptureModeContinuous:
	default:
		return errors.New("mode must be vad or continuous")
	}
	if c.MaxRecordingDurationSecs <= 0 {
		return errors.New("max recording duration must be positive")
	}
	if c.Mode == CaptureModeVAD && c.SilenceDurationMs <= 0 {
		return errors.New("silence duration must be positive in vad mode")
	}
	if c.SilenceDurationMs < 0 {
		return errors.New("silence duration cannot be negative")
	}
	return nil
}

// SilenceDuration returns the silence window as a duration.
func (c VadConfig) SilenceDuration() time.Duration {
	return time.Duration(c.SilenceDurationMs) * time.Millisecond
}

// MaxRecordingDuration returns the hard cap as a duration.
func (c VadConfig) MaxRecordingDuration() time.Duration {
	return time.Duration(c.MaxRecordingDurationSecs) * time.Second
}

// CaptureSession is a read-only snapshot of the in-flight capture attempt.
type CaptureSession struct {
	ID          string       `json:"id"`
	Mode        CaptureMode  `json:"mode"`
	StartedAt   time.Time    `json:"startedAt"`
	ElapsedSecs int          `json:"elapsedSecs"`
	State       CaptureState `json:"state"`
	Config      VadConfig    `json:"config"`
}

// AudioSegment is a finalized capture buffer handed to transcription once.
type AudioSegment struct {
	SessionID    string      `json:"sessionId"`
	Audio        []byte      `json:"-"`
	SampleRate   int         `json:"sampleRate"`
	Channels     int         `json:"channels"`
	DurationSecs float64     `json:"durationSecs"`
	EndedReason  EndedReason `json:"endedReason"`
}

// ConversationTurn is one transcript/response exchange. Immutable once appended.
type ConversationTurn struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"createdAt"`
	Transcript       string    `json:"transcript"`
	AIResponse       *string   `json:"aiResponse,omitempty"`
	ContextUsed      *string   `json:"contextUsed,omitempty"`
	SystemPromptUsed *string   `json:"systemPromptUsed,omitempty"`
	QuickActionID    *string   `json:"quickActionId,omitempty"`
}

// Conversation is an ordered, append-only sequence of turns.
type Conversation struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"createdAt"`
	Turns     []ConversationTurn `json:"turns"`
}

// QuickAction is a saved prompt dispatchable without a fresh capture.
type QuickAction struct {
	ID             string    `json:"id"`
	Label          string    `json:"label"`
	PromptTemplate string    `json:"promptTemplate"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Status summarizes the controller for the UI.
type Status struct {
	State                    CaptureState `json:"state"`
	Mode                     CaptureMode  `json:"mode"`
	SessionID                string       `json:"sessionId,omitempty"`
	Capturing                bool         `json:"capturing"`
	Processing               bool         `json:"isProcessing"`
	AIProcessing             bool         `json:"isAIProcessing"`
	RecordingProgress        int          `json:"recordingProgress"`
	MaxRecordingDurationSecs int          `json:"maxRecordingDurationSecs"`
	LastTranscription        string       `json:"lastTranscription,omitempty"`
	LastAIResponse           string       `json:"lastAIResponse,omitempty"`
	Error                    string       `json:"error,omitempty"`
	SetupRequired            bool         `json:"setupRequired"`
}

// AudioDevice is one capture source offered by the recorder backend.
type AudioDevice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Default  bool   `json:"isDefault"`
	Monitor  bool   `json:"isMonitor"`
	Selected bool   `json:"selected"`
}

// StringPtr returns nil for empty strings so optional turn fields stay absent.
func StringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
