package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"talkback/internal/domain"
	apperrors "talkback/internal/errors"
)

func TestDispatcherTrimsTranscript(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(&fakeTranscriber{text: "  hello world \n"}, time.Second)
	text, err := d.Dispatch(context.Background(), domain.AudioSegment{SessionID: "s1"})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("unexpected transcript: %q", text)
	}
}

func TestDispatcherRejectsConcurrentDispatch(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	transcriber := &fakeTranscriber{text: "ok", block: release}
	d := NewDispatcher(transcriber, 0)

	done := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(context.Background(), domain.AudioSegment{SessionID: "s1"})
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for !d.InFlight() {
		if time.Now().After(deadline) {
			t.Fatalf("first dispatch never started")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := d.Dispatch(context.Background(), domain.AudioSegment{SessionID: "s2"})
	if !apperrors.Is(err, domain.ErrorCodeBusy) {
		t.Fatalf("expected busy, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first dispatch failed: %v", err)
	}
	if d.InFlight() {
		t.Fatalf("in-flight flag not cleared")
	}
}

func TestDispatcherWrapsProviderFailure(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(&fakeTranscriber{err: errors.New("401 unauthorized")}, time.Second)
	_, err := d.Dispatch(context.Background(), domain.AudioSegment{})

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected structured error, got %v", err)
	}
	if appErr.Code != domain.ErrorCodeProvider || appErr.Provider != "fake-stt" {
		t.Fatalf("unexpected error: %+v", appErr)
	}
}

func TestDispatcherTimeoutCancelsProvider(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(&fakeTranscriber{block: make(chan struct{})}, 10*time.Millisecond)
	_, err := d.Dispatch(context.Background(), domain.AudioSegment{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDispatcherWithoutTranscriber(t *testing.T) {
	t.Parallel()

	_, err := NewDispatcher(nil, 0).Dispatch(context.Background(), domain.AudioSegment{})
	if !apperrors.Is(err, domain.ErrorCodeProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
