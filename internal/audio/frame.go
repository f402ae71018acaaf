package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// FloorDB is the level reported for digital silence.
const FloorDB = -120.0

// Frame is a timestamped slice of PCM audio with its measured level.
// At is the offset from the start of the capture session.
type Frame struct {
	At       time.Duration
	Duration time.Duration
	LevelDB  float64
	PCM      []byte
}

// End returns the offset at which the frame finishes.
func (f Frame) End() time.Duration {
	return f.At + f.Duration
}

// LevelDB returns the RMS level of s16le samples in dBFS.
func LevelDB(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return FloorDB
	}

	var sum float64
	for i := 0; i < samples; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(samples))
	if rms == 0 {
		return FloorDB
	}
	db := 20 * math.Log10(rms/32768.0)
	if db < FloorDB {
		return FloorDB
	}
	return db
}

// Framer cuts a raw PCM byte stream into fixed-length frames.
type Framer struct {
	bytesPerSecond int
	frameBytes     int
	pending        []byte
	offset         int64
}

// NewFramer builds a framer for s16le audio with the given layout.
func NewFramer(sampleRate int, channels int, frame time.Duration) *Framer {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	if frame <= 0 {
		frame = 20 * time.Millisecond
	}

	blockAlign := channels * 2
	bytesPerSecond := sampleRate * blockAlign
	frameBytes := int(int64(bytesPerSecond) * int64(frame) / int64(time.Second))
	frameBytes -= frameBytes % blockAlign
	if frameBytes < blockAlign {
		frameBytes = blockAlign
	}

	return &Framer{bytesPerSecond: bytesPerSecond, frameBytes: frameBytes}
}

// Push appends raw bytes and returns every complete frame.
func (f *Framer) Push(data []byte) []Frame {
	f.pending = append(f.pending, data...)

	var frames []Frame
	for len(f.pending) >= f.frameBytes {
		frames = append(frames, f.cut(f.frameBytes))
	}
	return frames
}

// Flush returns the trailing partial frame, if any.
func (f *Framer) Flush() (Frame, bool) {
	n := len(f.pending)
	n -= n % 2
	if n == 0 {
		f.pending = nil
		return Frame{}, false
	}
	frame := f.cut(n)
	f.pending = nil
	return frame, true
}

func (f *Framer) cut(n int) Frame {
	pcm := make([]byte, n)
	copy(pcm, f.pending[:n])
	f.pending = f.pending[n:]

	frame := Frame{
		At:       f.durationOf(f.offset),
		Duration: f.durationOf(int64(n)),
		LevelDB:  LevelDB(pcm),
		PCM:      pcm,
	}
	f.offset += int64(n)
	return frame
}

func (f *Framer) durationOf(bytes int64) time.Duration {
	return time.Duration(bytes * int64(time.Second) / int64(f.bytesPerSecond))
}
