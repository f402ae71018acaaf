package audio

import (
	"encoding/binary"
	"errors"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"talkback/internal/domain"
)

// EncodeWAV wraps a segment's s16le PCM in a WAV container.
func EncodeWAV(segment domain.AudioSegment) ([]byte, error) {
	if len(segment.Audio) == 0 {
		return nil, errors.New("segment has no audio")
	}
	sampleRate := segment.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := segment.Channels
	if channels <= 0 {
		channels = 1
	}

	samples := len(segment.Audio) / 2
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, samples),
		SourceBitDepth: 16,
	}
	for i := 0; i < samples; i++ {
		buf.Data[i] = int(int16(binary.LittleEndian.Uint16(segment.Audio[i*2:])))
	}

	out := &memoryFile{}
	enc := wav.NewEncoder(out, sampleRate, 16, channels, 1)
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return out.data, nil
}

// memoryFile is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type memoryFile struct {
	data []byte
	pos  int64
}

func (m *memoryFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memoryFile) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = m.pos + offset
	case io.SeekEnd:
		next = int64(len(m.data)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if next < 0 {
		return 0, errors.New("negative position")
	}
	m.pos = next
	return next, nil
}
