package device

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func readSamples(t *testing.T, tl *Timeline, n int) []int16 {
	t.Helper()
	buf := make([]byte, n*2)
	read, err := tl.Read(buf)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if read != n*2 {
		t.Fatalf("Expected %d bytes, got %d", n*2, read)
	}
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	return out
}

func TestTimeline_ClockAdvancesWithReads(t *testing.T) {
	tl := NewTimeline(1000)

	if tl.CurrentTime() != 0 {
		t.Errorf("Expected time 0, got %f", tl.CurrentTime())
	}

	readSamples(t, tl, 500)

	if tl.CurrentTime() != 0.5 {
		t.Errorf("Expected time 0.5, got %f", tl.CurrentTime())
	}
}

func TestTimeline_SilenceWhenIdle(t *testing.T) {
	tl := NewTimeline(1000)

	for i, s := range readSamples(t, tl, 10) {
		if s != 0 {
			t.Errorf("Sample %d: expected silence, got %d", i, s)
		}
	}
}

func TestTimeline_VoiceStartsAtScheduledTime(t *testing.T) {
	tl := NewTimeline(1000)
	ended := 0

	_, err := tl.Schedule([]float32{0.5, 0.5}, 0.004, func() { ended++ })
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	out := readSamples(t, tl, 8)
	expected := []int16{0, 0, 0, 0, 16383, 16383, 0, 0}
	for i := range expected {
		if out[i] != expected[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, expected[i], out[i])
		}
	}
	if ended != 1 {
		t.Errorf("Expected onEnded once, got %d", ended)
	}
	if tl.Active() != 0 {
		t.Errorf("Expected no active voices, got %d", tl.Active())
	}
}

func TestTimeline_VoiceSpansReads(t *testing.T) {
	tl := NewTimeline(1000)
	ended := 0

	tl.Schedule([]float32{0.5, 0.5, 0.5, 0.5}, 0, func() { ended++ })

	readSamples(t, tl, 2)
	if ended != 0 {
		t.Errorf("Expected voice still playing, got %d endings", ended)
	}

	out := readSamples(t, tl, 4)
	if out[1] != 16383 || out[2] != 0 {
		t.Errorf("Expected voice to end after 4 samples, got %v", out)
	}
	if ended != 1 {
		t.Errorf("Expected onEnded once, got %d", ended)
	}
}

func TestTimeline_PastStartPlaysImmediately(t *testing.T) {
	tl := NewTimeline(1000)
	readSamples(t, tl, 10)

	tl.Schedule([]float32{0.5}, 0.001, nil)

	out := readSamples(t, tl, 2)
	if out[0] != 16383 {
		t.Errorf("Expected late voice at the current position, got %v", out)
	}
}

func TestTimeline_StopSuppressesOnEnded(t *testing.T) {
	tl := NewTimeline(1000)
	ended := 0

	v, _ := tl.Schedule([]float32{0.5, 0.5}, 0, func() { ended++ })
	v.Stop()

	out := readSamples(t, tl, 4)
	if out[0] != 0 {
		t.Errorf("Expected stopped voice to be silent, got %d", out[0])
	}
	if ended != 0 {
		t.Errorf("Expected no onEnded for stopped voice, got %d", ended)
	}
}

func TestTimeline_MixesOverlappingVoices(t *testing.T) {
	tl := NewTimeline(1000)

	tl.Schedule([]float32{0.25}, 0, nil)
	tl.Schedule([]float32{0.25}, 0, nil)

	out := readSamples(t, tl, 1)
	if out[0] != 16383 {
		t.Errorf("Expected mixed sample 16383, got %d", out[0])
	}
}

func TestTimeline_Close(t *testing.T) {
	tl := NewTimeline(1000)
	tl.Schedule([]float32{0.5}, 0, nil)

	tl.Close()

	if _, err := tl.Read(make([]byte, 4)); err != io.EOF {
		t.Errorf("Expected io.EOF after close, got %v", err)
	}
	if _, err := tl.Schedule([]float32{0.5}, 0, nil); !errors.Is(err, ErrTimelineClosed) {
		t.Errorf("Expected ErrTimelineClosed, got %v", err)
	}
}
