package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"talkback/internal/ports"
)

// SystemDevice selects the loopback of the default output instead of a microphone.
const SystemDevice = "system"

const pulseMonitorSource = "@DEFAULT_MONITOR@"

// FFMPEGCapture captures PCM audio by running ffmpeg and reading its stdout.
type FFMPEGCapture struct {
	command      string
	startupGrace time.Duration
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command, startupGrace: 250 * time.Millisecond}
}

// Args builds the ffmpeg invocation for a capture configuration.
func Args(cfg ports.AudioConfig) []string {
	cfg = withAudioDefaults(cfg)

	device := cfg.InputDevice
	if device == SystemDevice && cfg.InputFormat == "pulse" {
		device = pulseMonitorSource
	}

	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-f", cfg.InputFormat,
		"-i", device,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cmd := exec.CommandContext(ctx, c.command, Args(cfg)...)
	stderr := &syncBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create recorder stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recorder: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		detail := trimOutput(stderr.String())
		if err != nil {
			return nil, fmt.Errorf("recorder exited before capture started: %w: %s", err, detail)
		}
		return nil, fmt.Errorf("recorder exited before capture started: %s", detail)
	case <-time.After(c.startupGrace):
	}

	return &ffmpegSession{
		stdout:  stdout,
		stderr:  stderr,
		process: cmd.Process,
		waitErr: waitErr,
		stopped: make(chan struct{}),
	}, nil
}

type ffmpegSession struct {
	stdout  io.ReadCloser
	stderr  *syncBuffer
	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopped  chan struct{}
	stopErr  error
}

// Read returns PCM bytes. A recorder that dies while nobody asked it to stop
// surfaces its stderr as a device error instead of a clean EOF. cmd.Wait
// closes the pipe on exit, so a closed pipe counts as end of stream.
func (s *ffmpegSession) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if err == nil || !(errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed)) {
		return n, err
	}
	select {
	case <-s.stopped:
		return n, io.EOF
	default:
	}
	if detail := trimOutput(s.stderr.String()); detail != "" {
		return n, fmt.Errorf("audio device stopped: %s", detail)
	}
	return n, errors.New("audio device stopped unexpectedly")
}

func (s *ffmpegSession) Close() error {
	return s.Stop()
}

func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopped)
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = closeErr
		}
		if s.stopErr != nil {
			if detail := trimOutput(s.stderr.String()); detail != "" {
				s.stopErr = fmt.Errorf("%w: %s", s.stopErr, detail)
			}
		}
	})
	return s.stopErr
}

func withAudioDefaults(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return cfg
}

// normalizeStopErr treats the exit status of an interrupted recorder as success.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimOutput(input string) string {
	return strings.TrimSpace(input)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
