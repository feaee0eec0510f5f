package audio

import (
	"context"
	"time"

	"github.com/85Ryan/Nebula/internal/ttypes"
)

// FrameRate is the default tracker cadence, matching a 60 Hz display.
const FrameRate = 60

// FrameSource paces the tracker, one receive per rendered frame.
type FrameSource interface {
	Frames() <-chan time.Time
	Stop()
}

type tickerFrames struct {
	t *time.Ticker
}

// NewTickerFrames returns a FrameSource ticking fps times per second.
func NewTickerFrames(fps int) FrameSource {
	return &tickerFrames{t: time.NewTicker(time.Second / time.Duration(fps))}
}

func (f *tickerFrames) Frames() <-chan time.Time { return f.t.C }
func (f *tickerFrames) Stop()                    { f.t.Stop() }

// Progress is one published sample of playback state.
type Progress struct {
	State ttypes.PlaybackState

	// Buffer time, in seconds along the nominal recording.
	Position float64
	Duration float64

	// Wall-clock time at the current effective rate.
	Display      float64
	DisplayTotal float64

	Rate float64

	// Ended is set on the tick that detected the natural end.
	Ended bool
}

// Fraction returns the played fraction in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Duration <= 0 {
		return 0
	}
	return min(1, max(0, p.Position/p.Duration))
}

// Tracker converts engine state into displayable progress.
type Tracker struct {
	engine *Engine
	frames func() FrameSource
}

// NewTracker creates a tracker paced at FrameRate.
func NewTracker(e *Engine) *Tracker {
	return &Tracker{
		engine: e,
		frames: func() FrameSource { return NewTickerFrames(FrameRate) },
	}
}

// WithFrames replaces the frame source factory.
func (t *Tracker) WithFrames(fn func() FrameSource) *Tracker {
	t.frames = fn
	return t
}

// Tick samples the engine once. It returns false when polling should stop:
// playback is not running or has just reached its end.
func (t *Tracker) Tick() (Progress, bool) {
	s := t.engine.snapshot()
	p := Progress{
		State:    s.state,
		Duration: s.duration,
		Rate:     s.rate,
	}
	if s.rate > 0 {
		p.DisplayTotal = s.duration / s.rate
	}

	if s.state != ttypes.StatePlaying {
		p.Position = s.elapsed
		p.Display = s.elapsed / s.rate
		return p, false
	}

	if s.elapsed >= s.duration {
		t.engine.finishSession(s.session)
		p.State = ttypes.StateIdle
		p.Ended = true
		return p, false
	}

	p.Position = max(0, s.elapsed)
	p.Display = p.Position / s.rate
	return p, true
}

// Run publishes progress every frame until playback stops, pauses or ends,
// or ctx is done. The final sample is always published.
func (t *Tracker) Run(ctx context.Context, publish func(Progress)) error {
	frames := t.frames()
	defer frames.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-frames.Frames():
			p, active := t.Tick()
			if publish != nil {
				publish(p)
			}
			if !active {
				return nil
			}
		}
	}
}
