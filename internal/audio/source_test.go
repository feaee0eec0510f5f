package audio

import (
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/85Ryan/Nebula/internal/pcm"
)

func readAll(t *testing.T, s *Source) []int16 {
	t.Helper()
	var out []int16
	buf := make([]byte, 64)
	for {
		n, err := s.Read(buf)
		for i := 0; i+1 < n; i += 2 {
			out = append(out, int16(binary.LittleEndian.Uint16(buf[i:])))
		}
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
}

func TestSourceUnityRate(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1, -1}
	s := NewSource(pcm.NewBuffer(samples, 8000), 8000, 0, 1, 1)

	got := readAll(t, s)
	want := []int16{0, 16384, -16384, 32767, -32768}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
	if !s.Finished() {
		t.Error("source not finished after EOF")
	}
}

func TestSourceDoubleRateSkipsSamples(t *testing.T) {
	samples := []float32{0, 0.1, 0.2, 0.3, 0.4, 0.5}
	s := NewSource(pcm.NewBuffer(samples, 8000), 8000, 0, 2, 1)

	got := readAll(t, s)
	if len(got) != 3 {
		t.Fatalf("got %d samples, want 3", len(got))
	}
	if got[1] != pcm.Quantize(0.2) || got[2] != pcm.Quantize(0.4) {
		t.Errorf("unexpected samples %v", got)
	}
}

func TestSourceInterpolatesAtHalfRate(t *testing.T) {
	s := NewSource(pcm.NewBuffer([]float32{0, 0.5}, 8000), 8000, 0, 0.5, 1)

	got := readAll(t, s)
	if len(got) != 4 {
		t.Fatalf("got %d samples, want 4", len(got))
	}
	if got[1] != pcm.Quantize(0.25) {
		t.Errorf("midpoint = %d, want %d", got[1], pcm.Quantize(0.25))
	}
}

func TestSourceOffsetAndResampling(t *testing.T) {
	samples := make([]float32, 24000)
	s := NewSource(pcm.NewBuffer(samples, 24000), 48000, 0.5, 1, 1)

	if got := s.Position(); got != 0.5 {
		t.Fatalf("Position = %v, want 0.5", got)
	}
	// 0.5s of buffer at 48kHz output is 24000 output samples
	if got := len(readAll(t, s)); got != 24000 {
		t.Errorf("got %d output samples, want 24000", got)
	}
}

func TestSourceGainClamps(t *testing.T) {
	s := NewSource(pcm.NewBuffer([]float32{0.75, -0.75}, 8000), 8000, 0, 1, 2)

	got := readAll(t, s)
	if got[0] != 32767 || got[1] != -32768 {
		t.Errorf("gain not clamped: %v", got)
	}

	s = NewSource(pcm.NewBuffer([]float32{0.75}, 8000), 8000, 0, 1, 0)
	if got := readAll(t, s); got[0] != 0 {
		t.Errorf("zero gain produced %d", got[0])
	}
}

func TestSourceLiveGainChange(t *testing.T) {
	s := NewSource(pcm.NewBuffer([]float32{0.5, 0.5}, 8000), 8000, 0, 1, 1)

	buf := make([]byte, 2)
	if _, err := s.Read(buf); err != nil {
		t.Fatal(err)
	}
	s.SetGain(0.5)
	if _, err := s.Read(buf); err != nil {
		t.Fatal(err)
	}
	if v := int16(binary.LittleEndian.Uint16(buf)); v != pcm.Quantize(0.25) {
		t.Errorf("sample after gain change = %d", v)
	}
}

func TestSourceEndedCallbackOnce(t *testing.T) {
	s := NewSource(pcm.NewBuffer([]float32{0.1, 0.2}, 8000), 8000, 0, 1, 1)

	calls := make(chan struct{}, 2)
	s.OnEnded(func() { calls <- struct{}{} })

	readAll(t, s)
	if _, err := s.Read(make([]byte, 8)); err != io.EOF {
		t.Fatalf("expected EOF after end, got %v", err)
	}

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("ended callback not called")
	}
	select {
	case <-calls:
		t.Fatal("ended callback called twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSourceStopSuppressesCallback(t *testing.T) {
	s := NewSource(pcm.NewBuffer([]float32{0.1}, 8000), 8000, 0, 1, 1)

	called := make(chan struct{}, 1)
	s.OnEnded(func() { called <- struct{}{} })
	s.Stop()

	if n, err := s.Read(make([]byte, 8)); n != 0 || err != io.EOF {
		t.Fatalf("Read after Stop = %d, %v", n, err)
	}
	select {
	case <-called:
		t.Fatal("stopped source fired its ended callback")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSourceShortRead(t *testing.T) {
	s := NewSource(pcm.NewBuffer([]float32{0.1}, 8000), 8000, 0, 1, 1)
	if n, err := s.Read(make([]byte, 1)); n != 0 || err != nil {
		t.Fatalf("Read with 1-byte buffer = %d, %v", n, err)
	}
}
