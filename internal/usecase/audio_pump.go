package usecase

import (
	"errors"
	"fmt"
	"io"

	"talkback/internal/audio"
)

func newSessionFramer(cfg Config) *audio.Framer {
	return audio.NewFramer(cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.FrameDuration)
}

// pumpAudioFrames reads PCM from source until it ends, delivering timestamped
// frames tagged with the session. A read failure other than EOF is reported
// as a device failure.
func pumpAudioFrames(
	source io.Reader,
	framer *audio.Framer,
	sessionID string,
	chunkSize int,
	deliver func(Event),
) {
	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := source.Read(buf)
		if n > 0 {
			for _, frame := range framer.Push(buf[:n]) {
				deliver(AudioReceived{SessionID: sessionID, Frame: frame})
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				deliver(DeviceFailed{SessionID: sessionID, Err: fmt.Errorf("audio capture error: %w", err)})
				return
			}
			if frame, ok := framer.Flush(); ok {
				deliver(AudioReceived{SessionID: sessionID, Frame: frame})
			}
			return
		}
	}
}
