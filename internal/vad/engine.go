package vad

import (
	"time"

	"talkback/internal/audio"
	"talkback/internal/domain"
)

// Engine evaluates frame levels against a silence threshold and window.
type Engine struct {
	threshold float64
	window    time.Duration

	inSilence    bool
	silenceStart time.Duration
	accumulated  time.Duration
}

// New builds an engine from a configuration snapshot.
func New(cfg domain.VadConfig) *Engine {
	return &Engine{threshold: cfg.SilenceThresholdDB, window: cfg.SilenceDuration()}
}

// Feed consumes one frame and reports whether the segment has ended. It
// returns true exactly once per silence run that reaches the window.
func (e *Engine) Feed(frame audio.Frame) bool {
	if frame.LevelDB >= e.threshold {
		e.Reset()
		return false
	}

	if !e.inSilence {
		e.inSilence = true
		e.silenceStart = frame.At
	}
	e.accumulated = frame.End() - e.silenceStart

	if e.window <= 0 || e.accumulated < e.window {
		return false
	}
	e.Reset()
	return true
}

// Silence returns the sub-threshold duration accumulated so far.
func (e *Engine) Silence() time.Duration {
	return e.accumulated
}

// Reset clears the silence accumulator.
func (e *Engine) Reset() {
	e.inSilence = false
	e.silenceStart = 0
	e.accumulated = 0
}
