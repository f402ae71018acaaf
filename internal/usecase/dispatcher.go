package usecase

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"talkback/internal/domain"
	apperrors "talkback/internal/errors"
	"talkback/internal/ports"
)

var errNoTranscriber = errors.New("no transcription provider configured")

// Dispatcher forwards one finalized segment at a time to the transcriber.
type Dispatcher struct {
	transcriber ports.Transcriber
	timeout     time.Duration
	inFlight    atomic.Bool
}

func NewDispatcher(transcriber ports.Transcriber, timeout time.Duration) *Dispatcher {
	return &Dispatcher{transcriber: transcriber, timeout: timeout}
}

// Dispatch transcribes seg. A second call while one is in flight fails with
// Busy instead of queueing. An empty transcript is a valid result.
func (d *Dispatcher) Dispatch(ctx context.Context, seg domain.AudioSegment) (string, error) {
	if d.transcriber == nil {
		return "", apperrors.NewProvider("none", errNoTranscriber)
	}
	if !d.inFlight.CompareAndSwap(false, true) {
		return "", apperrors.NewBusy("transcription")
	}
	defer d.inFlight.Store(false)

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	text, err := d.transcriber.Transcribe(ctx, seg)
	if err != nil {
		return "", apperrors.NewProvider(d.transcriber.Name(), err)
	}
	return strings.TrimSpace(text), nil
}

// InFlight reports whether a transcription is running.
func (d *Dispatcher) InFlight() bool {
	return d.inFlight.Load()
}
