package audio

import (
	"math"
	"testing"
	"time"

	"github.com/85Ryan/Nebula/internal/pcm"
	"github.com/85Ryan/Nebula/internal/ttypes"
	"github.com/85Ryan/Nebula/internal/wav"
)

const testRate = ttypes.SampleRate

func silence(secs float64) *pcm.Buffer {
	return pcm.NewBuffer(make([]float32, int(secs*testRate)), testRate)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *MockBackend, *ManualClock) {
	t.Helper()
	clock := NewManualClock(time.Unix(1000, 0))
	backend := NewMockBackend(testRate, false)
	opts = append([]Option{WithClock(clock), WithDecoder(wav.Decoder{})}, opts...)
	e := NewEngine(backend, opts...)
	t.Cleanup(func() { _ = e.Close() })
	return e, backend, clock
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func TestPlaybackTimeConversion(t *testing.T) {
	e, _, clock := newTestEngine(t, WithParams(Params{Speed: 2.0, Volume: 1}))
	e.Load(silence(10))

	if err := e.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	clock.Advance(3 * time.Second)

	approx(t, "Position", e.Position(), 6.0)
	approx(t, "DisplayPosition", e.DisplayPosition(), 3.0)
	approx(t, "DisplayDuration", e.DisplayDuration(), 5.0)
	if e.State() != ttypes.StatePlaying {
		t.Errorf("state = %s, want playing", e.State())
	}
}

func TestPauseResumeContinuity(t *testing.T) {
	e, _, clock := newTestEngine(t)
	e.Load(silence(10))

	if err := e.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	clock.Advance(2 * time.Second)
	e.Pause()

	if e.State() != ttypes.StatePaused {
		t.Fatalf("state = %s, want paused", e.State())
	}
	approx(t, "paused Position", e.Position(), 2.0)

	clock.Advance(5 * time.Second)
	approx(t, "Position while paused", e.Position(), 2.0)

	resumeAt := clock.Now()
	if err := e.Play(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	wantAnchor := resumeAt.Add(-2 * time.Second)
	if !e.Anchor().Equal(wantAnchor) {
		t.Errorf("anchor = %v, want %v", e.Anchor(), wantAnchor)
	}
	approx(t, "Position after resume", e.Position(), 2.0)

	clock.Advance(time.Second)
	approx(t, "Position 1s after resume", e.Position(), 3.0)
}

func TestResumeAnchorUsesEffectiveRate(t *testing.T) {
	e, _, clock := newTestEngine(t, WithParams(Params{Speed: 1.0, Pitch: 1200, Volume: 1}))
	e.Load(silence(10))

	_ = e.Play()
	clock.Advance(time.Second)
	e.Pause()
	approx(t, "paused Position", e.Position(), 2.0)

	resumeAt := clock.Now()
	_ = e.Play()
	if want := resumeAt.Add(-time.Second); !e.Anchor().Equal(want) {
		t.Errorf("anchor = %v, want %v", e.Anchor(), want)
	}
}

func TestPausedOffsetWrapsAround(t *testing.T) {
	e, _, clock := newTestEngine(t)
	e.Load(silence(2))

	_ = e.Play()
	clock.Advance(3 * time.Second)
	e.Pause()

	if err := e.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	approx(t, "Position after wrap", e.Position(), 1.0)
}

func TestSingleActiveSession(t *testing.T) {
	e, backend, _ := newTestEngine(t)
	e.Load(silence(5))

	if err := e.Play(); err != nil {
		t.Fatalf("first Play failed: %v", err)
	}
	if err := e.Play(); err != nil {
		t.Fatalf("second Play failed: %v", err)
	}

	if backend.OutputsOpened != 2 {
		t.Errorf("outputs opened = %d, want 2", backend.OutputsOpened)
	}
	if n := backend.ActiveOutputs(); n != 1 {
		t.Errorf("active outputs = %d, want 1", n)
	}
	if n := backend.PlayingOutputs(); n != 1 {
		t.Errorf("playing outputs = %d, want 1", n)
	}
}

func TestStopResets(t *testing.T) {
	e, backend, clock := newTestEngine(t)
	e.Load(silence(5))

	_ = e.Play()
	clock.Advance(2 * time.Second)
	e.Pause()
	e.Stop()

	if e.State() != ttypes.StateIdle {
		t.Errorf("state = %s, want idle", e.State())
	}
	approx(t, "Position", e.Position(), 0)
	if backend.ActiveOutputs() != 0 {
		t.Errorf("active outputs after stop = %d", backend.ActiveOutputs())
	}

	_ = e.Play()
	approx(t, "Position after replay", e.Position(), 0)
}

func TestStopClearsEndedCallback(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.Load(silence(0.01))

	_ = e.Play()
	src := e.node.src
	e.Stop()

	buf := make([]byte, 4096)
	if n, _ := src.Read(buf); n != 0 {
		t.Errorf("read %d bytes from a stopped source", n)
	}
	if src.Finished() {
		t.Error("stopped source reported a natural end")
	}
}

func TestPauseWhenNotPlayingIsNoop(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.Load(silence(5))

	e.Pause()
	if e.State() != ttypes.StateIdle {
		t.Errorf("state = %s, want idle", e.State())
	}
}

func TestSetParamsKeepsPositionContinuous(t *testing.T) {
	e, _, clock := newTestEngine(t)
	e.Load(silence(10))

	_ = e.Play()
	clock.Advance(4 * time.Second)
	approx(t, "Position before change", e.Position(), 4.0)

	e.SetParams(Params{Speed: 2.0, Volume: 0.5})
	approx(t, "Position after change", e.Position(), 4.0)
	approx(t, "DisplayPosition after change", e.DisplayPosition(), 2.0)

	if got := e.node.src.Rate(); got != 2.0 {
		t.Errorf("live rate = %v, want 2", got)
	}
	if got := e.node.src.Gain(); got != 0.5 {
		t.Errorf("live gain = %v, want 0.5", got)
	}

	clock.Advance(time.Second)
	approx(t, "Position 1s later", e.Position(), 6.0)
}

func TestSetParamsWhilePausedKeepsBufferOffset(t *testing.T) {
	e, _, clock := newTestEngine(t)
	e.Load(silence(10))

	_ = e.Play()
	clock.Advance(3 * time.Second)
	e.Pause()

	e.SetParams(Params{Speed: 0.5, Volume: 1})
	approx(t, "Position", e.Position(), 3.0)
	approx(t, "DisplayPosition", e.DisplayPosition(), 6.0)
}

func TestDecodeOnDemand(t *testing.T) {
	e, _, clock := newTestEngine(t)
	e.LoadBlob(wav.Encode(silence(3)))

	if e.Duration() != 0 {
		t.Errorf("blob decoded before play")
	}
	if err := e.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	approx(t, "Duration", e.Duration(), 3.0)

	clock.Advance(time.Second)
	approx(t, "Position", e.Position(), 1.0)
}

func TestDecodeFailureLeavesStateUnchanged(t *testing.T) {
	e, backend, _ := newTestEngine(t)
	e.LoadBlob([]byte("definitely not a wav file, but long enough to look like one"))

	err := e.Play()
	if !ttypes.IsDecode(err) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if e.State() != ttypes.StateIdle {
		t.Errorf("state = %s, want idle", e.State())
	}
	if backend.OutputsOpened != 0 {
		t.Errorf("output opened despite decode failure")
	}
}

func TestPlaybackFailure(t *testing.T) {
	e, backend, clock := newTestEngine(t)
	e.Load(silence(5))

	backend.FailOpen = true
	err := e.Play()
	if !ttypes.IsPlayback(err) {
		t.Fatalf("expected playback error, got %v", err)
	}
	if e.State() != ttypes.StateIdle {
		t.Errorf("state = %s, want idle", e.State())
	}

	backend.FailOpen = false
	_ = e.Play()
	clock.Advance(2 * time.Second)

	backend.FailOpen = true
	if err := e.Play(); !ttypes.IsPlayback(err) {
		t.Fatalf("expected playback error, got %v", err)
	}
	if e.State() != ttypes.StatePaused {
		t.Errorf("state = %s, want paused", e.State())
	}
	approx(t, "Position", e.Position(), 2.0)
}

func TestPlayWithoutAudio(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if err := e.Play(); !ttypes.IsPlayback(err) {
		t.Fatalf("expected playback error, got %v", err)
	}
}
