package audio

import (
	"context"
	"testing"
	"time"

	"github.com/85Ryan/Nebula/internal/ttypes"
)

type manualFrames struct {
	ch      chan time.Time
	stopped bool
}

func newManualFrames() *manualFrames {
	return &manualFrames{ch: make(chan time.Time, 1)}
}

func (f *manualFrames) Frames() <-chan time.Time { return f.ch }
func (f *manualFrames) Stop()                    { f.stopped = true }

func TestTrackerEndOfPlayback(t *testing.T) {
	e, backend, clock := newTestEngine(t)
	e.Load(silence(2))
	tr := NewTracker(e)

	_ = e.Play()

	clock.Advance(1900 * time.Millisecond)
	p, active := tr.Tick()
	if !active || p.Ended {
		t.Fatalf("tracker stopped early: %+v", p)
	}
	approx(t, "Position", p.Position, 1.9)

	clock.Advance(100 * time.Millisecond)
	p, active = tr.Tick()
	if active {
		t.Fatal("tracker still active at buffer end")
	}
	if !p.Ended {
		t.Error("natural end not reported")
	}
	if p.Position != 0 || p.Display != 0 {
		t.Errorf("position not reset: %+v", p)
	}
	if e.State() != ttypes.StateIdle {
		t.Errorf("state = %s, want idle", e.State())
	}
	approx(t, "engine Position", e.Position(), 0)
	if backend.ActiveOutputs() != 0 {
		t.Error("output left connected after natural end")
	}
}

func TestTrackerNeverLoopsPastEnd(t *testing.T) {
	e, _, clock := newTestEngine(t)
	e.Load(silence(2))
	tr := NewTracker(e)

	_ = e.Play()
	clock.Advance(5 * time.Second)

	p, active := tr.Tick()
	if active || !p.Ended {
		t.Fatalf("expected end, got %+v active=%v", p, active)
	}

	clock.Advance(time.Second)
	p, active = tr.Tick()
	if active || p.Ended || p.Position != 0 {
		t.Errorf("tracker resumed after end: %+v", p)
	}
}

func TestTrackerDisplayTime(t *testing.T) {
	e, _, clock := newTestEngine(t, WithParams(Params{Speed: 2, Volume: 1}))
	e.Load(silence(10))
	tr := NewTracker(e)

	_ = e.Play()
	clock.Advance(3 * time.Second)

	p, active := tr.Tick()
	if !active {
		t.Fatal("tracker inactive while playing")
	}
	approx(t, "Position", p.Position, 6.0)
	approx(t, "Display", p.Display, 3.0)
	approx(t, "DisplayTotal", p.DisplayTotal, 5.0)
	approx(t, "Fraction", p.Fraction(), 0.6)
}

func TestTrackerRunStopsOnPause(t *testing.T) {
	e, _, clock := newTestEngine(t)
	e.Load(silence(10))
	frames := &manualFrames{ch: make(chan time.Time)}
	tr := NewTracker(e).WithFrames(func() FrameSource { return frames })

	_ = e.Play()

	published := make(chan Progress, 4)
	done := make(chan error, 1)
	go func() {
		done <- tr.Run(context.Background(), func(p Progress) { published <- p })
	}()

	clock.Advance(time.Second)
	frames.ch <- clock.Now()
	first := <-published
	if first.State != ttypes.StatePlaying {
		t.Fatalf("first state = %s, want playing", first.State)
	}
	approx(t, "first Position", first.Position, 1.0)

	clock.Advance(time.Second)
	e.Pause()
	frames.ch <- clock.Now()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tracker kept polling after pause")
	}

	if !frames.stopped {
		t.Error("frame source not stopped")
	}
	last := <-published
	if last.State != ttypes.StatePaused {
		t.Errorf("last state = %s, want paused", last.State)
	}
	approx(t, "last Position", last.Position, 2.0)
}

func TestTrackerRunNotPlaying(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.Load(silence(1))
	frames := newManualFrames()
	tr := NewTracker(e).WithFrames(func() FrameSource { return frames })

	frames.ch <- time.Now()
	if err := tr.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestTrackerRunCanceled(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.Load(silence(10))
	_ = e.Play()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := NewTracker(e).WithFrames(func() FrameSource { return newManualFrames() })
	if err := tr.Run(ctx, nil); err != context.Canceled {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}
