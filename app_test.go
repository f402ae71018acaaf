package main

import (
	"errors"
	"strings"
	"testing"

	"talkback/internal/domain"
)

func TestReasonMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.StateReason]string{
		domain.ReasonReady:               "Ready",
		domain.ReasonPermissionMissing:   "Audio capture permission required",
		domain.ReasonPermissionGranted:   "Permission granted",
		domain.ReasonCaptureStarted:      "Listening...",
		domain.ReasonSilenceDetected:     "Silence detected. Transcribing...",
		domain.ReasonMaxDurationReached:  "Recording limit reached. Transcribing...",
		domain.ReasonManualStop:          "Recording stopped. Transcribing...",
		domain.ReasonEmptyCapture:        "Nothing was recorded",
		domain.ReasonDeviceFailed:        "Audio device failed",
		domain.ReasonTranscriptionFailed: "Transcription failed",
		domain.ReasonNoSpeech:            "No speech detected",
		domain.ReasonResponding:          "Thinking...",
		domain.ReasonTurnAppended:        "Response ready",
		domain.ReasonResponseFailed:      "AI response failed",
		domain.ReasonPersistFailed:       "Could not save the conversation",
		domain.ReasonErrorAcknowledged:   "Ready",
	}

	for reason, want := range cases {
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if got := reasonMessage(reason); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := reasonMessage("unknown"); got != "" {
		t.Fatalf("expected empty unknown reason message, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeSetupRequired: "Setup required",
		domain.ErrorCodeCaptureDevice: "Audio device issue",
		domain.ErrorCodeBusy:          "Still working on the previous request",
		domain.ErrorCodeProvider:      "Provider request failed",
		domain.ErrorCodeDuplicate:     "A quick action with that label already exists",
		domain.ErrorCodeValidation:    "Invalid settings",
		domain.ErrorCodeNotFound:      "Not found",
		domain.ErrorCodeNoSession:     "Nothing is being recorded",
		domain.ErrorCodeInternal:      "Unexpected error",
	}
	for code, want := range cases {
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if _, err := app.StartCapture(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error from binding, got %v", err)
	}
	if _, err := app.ListAudioDevices(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error from device listing, got %v", err)
	}
	if _, err := app.GenerateSystemPrompt("tutor", true); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error from prompt generation, got %v", err)
	}
}

func TestGetStatusWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	status := app.GetStatus()
	if status.State != domain.CaptureStateIdle || status.Capturing {
		t.Fatalf("unexpected status: %+v", status)
	}
	if app.GetSession() != nil {
		t.Fatalf("expected no session before startup")
	}

	app.bootErr = errors.New("boot")
	status = app.GetStatus()
	if status.State != domain.CaptureStateError || status.Error != "boot" {
		t.Fatalf("unexpected boot status: %+v", status)
	}
	if info := app.GetRuntimeInfo(); info["error"] != "boot" {
		t.Fatalf("unexpected runtime info: %+v", info)
	}
}

func TestEventsWithoutRuntimeContextAreDropped(t *testing.T) {
	t.Parallel()

	app := &App{}
	app.StateChanged(domain.Status{State: domain.CaptureStateIdle}, domain.ReasonReady)
	app.Progress("s1", 1)
	app.TurnAppended("c1", domain.ConversationTurn{ID: "t1"})
	app.ConversationStarted("c1")
	app.ConversationSelected("c1")
	app.Error(domain.ErrorCodeInternal, "boom")
}

func TestTurnPayloadRendersResponse(t *testing.T) {
	t.Parallel()

	response := "**Paris** is the capital."
	payload := turnPayload("c1", domain.ConversationTurn{ID: "t1", Transcript: "capital of france?", AIResponse: &response})

	if payload["conversationId"] != "c1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	html, ok := payload["responseHtml"].(string)
	if !ok || !strings.Contains(html, "<strong>Paris</strong>") {
		t.Fatalf("expected rendered response, got %v", payload["responseHtml"])
	}

	payload = turnPayload("c1", domain.ConversationTurn{ID: "t2", Transcript: "no answer"})
	if _, ok := payload["responseHtml"]; ok {
		t.Fatalf("expected no html without a response")
	}
}
