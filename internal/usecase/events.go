package usecase

import (
	"time"

	"talkback/internal/audio"
	"talkback/internal/domain"
)

// Event is an inbound signal delivered to CaptureController.Handle. Every
// platform signal, audio frame and timer tick is one of these.
type Event interface {
	event()
}

// StartRequested asks for a new capture session.
type StartRequested struct{}

// StopRequested finalizes the current session with endedReason manualStop.
type StopRequested struct{}

// ManualStopAndSendRequested flushes a continuous recording before the cap.
type ManualStopAndSendRequested struct{}

// AudioReceived carries one captured frame for a session.
type AudioReceived struct {
	SessionID string
	Frame     audio.Frame
}

// DeviceFailed reports that the audio source for a session broke.
type DeviceFailed struct {
	SessionID string
	Err       error
}

// TimerTicked reports wall-clock time elapsed since a session started.
type TimerTicked struct {
	SessionID string
	Elapsed   time.Duration
}

// PermissionChanged relays a platform capture permission grant or denial.
type PermissionChanged struct {
	Granted bool
}

// ErrorAcknowledged dismisses the current error.
type ErrorAcknowledged struct{}

// VisibilityToggled reports the host window being shown or hidden.
type VisibilityToggled struct {
	Visible bool
}

// VadConfigUpdated replaces the configuration used by future sessions.
type VadConfigUpdated struct {
	Config domain.VadConfig
}

// transcriptionCompleted is posted by the pipeline once dispatch returns.
type transcriptionCompleted struct {
	SessionID  string
	Transcript string
	Err        error
	Responding bool
}

// turnCompleted is posted by the pipeline after the turn outcome is known.
type turnCompleted struct {
	SessionID   string
	Turn        domain.ConversationTurn
	Appended    bool
	ResponseErr error
	AppendErr   error
}

func (StartRequested) event()             {}
func (StopRequested) event()              {}
func (ManualStopAndSendRequested) event() {}
func (AudioReceived) event()              {}
func (DeviceFailed) event()               {}
func (TimerTicked) event()                {}
func (PermissionChanged) event()          {}
func (ErrorAcknowledged) event()          {}
func (VisibilityToggled) event()          {}
func (VadConfigUpdated) event()           {}
func (transcriptionCompleted) event()     {}
func (turnCompleted) event()              {}
