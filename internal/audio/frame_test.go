package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestLevelDB(t *testing.T) {
	t.Parallel()

	if got := LevelDB(nil); got != FloorDB {
		t.Fatalf("expected floor for empty input, got %f", got)
	}
	if got := LevelDB(make([]byte, 64)); got != FloorDB {
		t.Fatalf("expected floor for zeros, got %f", got)
	}

	full := make([]byte, 64)
	for i := 0; i < 32; i++ {
		v := int16(32767)
		if i%2 == 1 {
			v = -32767
		}
		binary.LittleEndian.PutUint16(full[i*2:], uint16(v))
	}
	if got := LevelDB(full); math.Abs(got) > 0.01 {
		t.Fatalf("expected ~0 dBFS for full scale, got %f", got)
	}
}

func TestFramerCutsFixedFramesWithOffsets(t *testing.T) {
	t.Parallel()

	// 16 kHz mono: 20ms = 640 bytes.
	f := NewFramer(16000, 1, 20*time.Millisecond)

	frames := f.Push(make([]byte, 1000))
	if len(frames) != 1 {
		t.Fatalf("expected one complete frame, got %d", len(frames))
	}
	if frames[0].At != 0 || frames[0].Duration != 20*time.Millisecond {
		t.Fatalf("unexpected first frame timing: %+v", frames[0])
	}

	frames = f.Push(make([]byte, 300))
	if len(frames) != 1 {
		t.Fatalf("expected the pending bytes to complete a frame, got %d", len(frames))
	}
	if frames[0].At != 20*time.Millisecond {
		t.Fatalf("expected second frame at 20ms, got %s", frames[0].At)
	}

	tail, ok := f.Flush()
	if !ok {
		t.Fatalf("expected trailing frame")
	}
	if tail.At != 40*time.Millisecond || len(tail.PCM) != 20 {
		t.Fatalf("unexpected tail: at=%s len=%d", tail.At, len(tail.PCM))
	}
	if _, ok := f.Flush(); ok {
		t.Fatalf("expected nothing after flush")
	}
}

func TestFrameEnd(t *testing.T) {
	t.Parallel()

	f := Frame{At: time.Second, Duration: 20 * time.Millisecond}
	if f.End() != 1020*time.Millisecond {
		t.Fatalf("unexpected end: %s", f.End())
	}
}
