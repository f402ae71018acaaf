package usecase

import (
	"bytes"
	"context"
	"sync"
	"time"

	"talkback/internal/audio"
	"talkback/internal/domain"
	"talkback/internal/ports"
	"talkback/internal/recording"
	"talkback/internal/vad"
)

// captureSession is owned by the controller and only touched under its lock.
type captureSession struct {
	id        string
	startedAt time.Time
	cfg       domain.VadConfig

	parent context.Context
	cancel context.CancelFunc
	audio  ports.AudioSession

	vad    *vad.Engine
	spoken bool
	timer  *recording.Timer
	buffer bytes.Buffer

	releaseOnce sync.Once
}

func newCaptureSession(
	parent context.Context,
	id string,
	startedAt time.Time,
	cfg domain.VadConfig,
	audioSession ports.AudioSession,
	cancel context.CancelFunc,
) *captureSession {
	s := &captureSession{
		id:        id,
		startedAt: startedAt,
		cfg:       cfg,
		parent:    parent,
		cancel:    cancel,
		audio:     audioSession,
		timer:     recording.NewTimer(cfg.MaxRecordingDuration()),
	}
	// Continuous sessions never consult the engine.
	if cfg.Mode == domain.CaptureModeVAD {
		s.vad = vad.New(cfg)
	}
	return s
}

func (s *captureSession) append(frame audio.Frame) {
	s.buffer.Write(frame.PCM)
}

// endOfSpeech feeds the engine once the session has heard a frame at or
// above the threshold. Leading silence never ends a segment.
func (s *captureSession) endOfSpeech(frame audio.Frame) bool {
	if s.vad == nil {
		return false
	}
	if !s.spoken {
		if frame.LevelDB < s.cfg.SilenceThresholdDB {
			return false
		}
		s.spoken = true
	}
	return s.vad.Feed(frame)
}

func (s *captureSession) segment(reason domain.EndedReason, audioCfg ports.AudioConfig) domain.AudioSegment {
	bytesPerSecond := audioCfg.SampleRate * audioCfg.Channels * 2
	return domain.AudioSegment{
		SessionID:    s.id,
		Audio:        s.buffer.Bytes(),
		SampleRate:   audioCfg.SampleRate,
		Channels:     audioCfg.Channels,
		DurationSecs: float64(s.buffer.Len()) / float64(bytesPerSecond),
		EndedReason:  reason,
	}
}

func (s *captureSession) snapshot(state domain.CaptureState) domain.CaptureSession {
	return domain.CaptureSession{
		ID:          s.id,
		Mode:        s.cfg.Mode,
		StartedAt:   s.startedAt,
		ElapsedSecs: s.timer.ElapsedSecs(),
		State:       state,
		Config:      s.cfg,
	}
}

// release stops the device and the session goroutines. Safe to call twice.
func (s *captureSession) release() error {
	var err error
	s.releaseOnce.Do(func() {
		s.cancel()
		err = s.audio.Stop()
	})
	return err
}
