package audio

import (
	"math"
	"sync"
	"time"

	"github.com/85Ryan/Nebula/internal/pcm"
	"github.com/85Ryan/Nebula/internal/ttypes"
	"github.com/charmbracelet/log"
)

// ContainerDecoder turns a persisted audio container into samples.
type ContainerDecoder interface {
	Decode(blob []byte) (*pcm.Buffer, error)
}

// Params are the live playback parameters.
type Params struct {
	Speed  float64
	Pitch  int
	Volume float64
}

// DefaultParams returns 1.0x speed, zero pitch and unity gain.
func DefaultParams() Params {
	return ParamsFrom(ttypes.DefaultSettings())
}

// ParamsFrom extracts playback parameters from settings.
func ParamsFrom(s ttypes.AudioSettings) Params {
	return Params{Speed: s.Speed, Pitch: s.Pitch, Volume: s.Volume}
}

// EffectiveRate returns the combined rate of speed and pitch.
func (p Params) EffectiveRate() float64 {
	return ttypes.EffectiveRate(p.Speed, p.Pitch)
}

// node is one connected source -> gain -> output chain.
type node struct {
	src *Source
	out Output
}

func (n *node) teardown() {
	n.src.Stop()
	n.out.Pause()
	if err := n.out.Close(); err != nil {
		log.Debug("Failed to close audio output", "error", err)
	}
}

// Engine is the playback state machine for one loaded buffer.
type Engine struct {
	mu sync.Mutex

	backend Backend
	decoder ContainerDecoder
	clock   Clock

	buf  *pcm.Buffer
	blob []byte

	params       Params
	state        ttypes.PlaybackState
	node         *node
	session      uint64
	anchor       time.Time
	pausedOffset float64 // buffer seconds
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the wall clock used for anchor math.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithDecoder sets the decoder used for persisted blobs.
func WithDecoder(d ContainerDecoder) Option {
	return func(e *Engine) { e.decoder = d }
}

// WithParams sets the initial playback parameters.
func WithParams(p Params) Option {
	return func(e *Engine) { e.params = p }
}

// NewEngine creates an idle engine playing through backend.
func NewEngine(backend Backend, opts ...Option) *Engine {
	e := &Engine{
		backend: backend,
		clock:   SystemClock(),
		params:  DefaultParams(),
		state:   ttypes.StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load replaces the buffer. Playback is stopped first.
func (e *Engine) Load(buf *pcm.Buffer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.buf = buf
	e.blob = nil
}

// LoadBlob replaces the buffer with a persisted container that is decoded on
// the next Play.
func (e *Engine) LoadBlob(blob []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.buf = nil
	e.blob = blob
}

// Unload stops playback and drops any buffer.
func (e *Engine) Unload() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.buf = nil
	e.blob = nil
}

// Loaded reports whether there is something to play.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf != nil || len(e.blob) > 0
}

func (e *Engine) ensureBufferLocked() error {
	if e.buf != nil {
		return nil
	}
	if len(e.blob) == 0 {
		return ttypes.NewPlaybackError("nothing to play", ttypes.ErrNoAudio)
	}
	if e.decoder == nil {
		return ttypes.NewDecodeError("no decoder configured for persisted audio", nil)
	}

	buf, err := e.decoder.Decode(e.blob)
	if err != nil {
		if ttypes.IsDecode(err) {
			return err
		}
		return ttypes.NewDecodeError("failed to decode persisted audio", err)
	}
	e.buf = buf
	log.Debug("Decoded persisted audio", "samples", buf.Len(), "seconds", buf.Seconds())
	return nil
}

// Play starts playback from the stored offset, replacing any active node.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureBufferLocked(); err != nil {
		return err
	}
	dur := e.buf.Seconds()
	if dur <= 0 {
		return ttypes.NewPlaybackError("audio buffer is empty", ttypes.ErrNoAudio)
	}

	now := e.clock.Now()
	wasPlaying := e.state == ttypes.StatePlaying
	interrupted := e.positionLocked(now)
	e.teardownLocked()

	offset := math.Mod(e.pausedOffset, dur)
	if offset < 0 {
		offset += dur
	}
	rate := e.params.EffectiveRate()

	src := NewSource(e.buf, e.backend.SampleRate(), offset, rate, e.params.Volume)
	out, err := e.backend.Open(src)
	if err != nil {
		if wasPlaying {
			// the old node is gone, so keep its position as a pause
			e.pausedOffset = interrupted
			e.state = ttypes.StatePaused
		}
		return ttypes.NewPlaybackError("failed to open audio output", err)
	}

	e.session++
	session := e.session
	n := &node{src: src, out: out}
	src.OnEnded(func() { e.handleEnded(session) })

	e.node = n
	e.anchor = now.Add(-seconds(offset / rate))
	out.Play()
	e.state = ttypes.StatePlaying

	log.Debug("Playback started", "offset", offset, "rate", rate, "volume", e.params.Volume)
	return nil
}

// Pause stops the active node and remembers the buffer position. It does
// nothing unless playing.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != ttypes.StatePlaying {
		return
	}
	now := e.clock.Now()
	e.pausedOffset = now.Sub(e.anchor).Seconds() * e.params.EffectiveRate()
	e.teardownLocked()
	e.state = ttypes.StatePaused
	log.Debug("Playback paused", "offset", e.pausedOffset)
}

// Toggle pauses when playing and plays otherwise.
func (e *Engine) Toggle() error {
	if e.State() == ttypes.StatePlaying {
		e.Pause()
		return nil
	}
	return e.Play()
}

// Stop tears down the active node and resets the position to zero.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.teardownLocked()
	e.pausedOffset = 0
	e.state = ttypes.StateIdle
}

func (e *Engine) teardownLocked() {
	if e.node != nil {
		e.node.teardown()
		e.node = nil
	}
}

// SetParams updates speed, pitch and volume. While playing, the live node is
// updated in place and the anchor is recomputed so the buffer position is
// continuous across the rate change.
func (e *Engine) SetParams(p Params) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == ttypes.StatePlaying && e.node != nil {
		now := e.clock.Now()
		pos := now.Sub(e.anchor).Seconds() * e.params.EffectiveRate()
		rate := p.EffectiveRate()
		e.anchor = now.Add(-seconds(pos / rate))
		e.node.src.SetRate(rate)
		e.node.src.SetGain(p.Volume)
	}
	e.params = p
}

// Params returns the current playback parameters.
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// State returns the playback state.
func (e *Engine) State() ttypes.PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Duration returns the nominal buffer duration in seconds, or zero if the
// buffer has not been decoded yet.
func (e *Engine) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.buf == nil {
		return 0
	}
	return e.buf.Seconds()
}

// Position returns the current position in buffer seconds.
func (e *Engine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked(e.clock.Now())
}

func (e *Engine) positionLocked(now time.Time) float64 {
	switch e.state {
	case ttypes.StatePlaying:
		pos := now.Sub(e.anchor).Seconds() * e.params.EffectiveRate()
		return math.Max(0, math.Min(pos, e.buf.Seconds()))
	case ttypes.StatePaused:
		if e.buf == nil || e.buf.Seconds() == 0 {
			return 0
		}
		return math.Mod(e.pausedOffset, e.buf.Seconds())
	default:
		return 0
	}
}

// DisplayPosition returns the position in wall-clock seconds.
func (e *Engine) DisplayPosition() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked(e.clock.Now()) / e.params.EffectiveRate()
}

// DisplayDuration returns how long the whole buffer takes to play at the
// current rate.
func (e *Engine) DisplayDuration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.buf == nil {
		return 0
	}
	return e.buf.Seconds() / e.params.EffectiveRate()
}

// Anchor returns the wall-clock anchor of the active session.
func (e *Engine) Anchor() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.anchor
}

// snapshot is a consistent view of the engine for one progress tick.
type snapshot struct {
	state    ttypes.PlaybackState
	session  uint64
	elapsed  float64 // unclamped buffer seconds
	duration float64
	rate     float64
}

func (e *Engine) snapshot() snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := snapshot{
		state:   e.state,
		session: e.session,
		rate:    e.params.EffectiveRate(),
	}
	if e.buf != nil {
		s.duration = e.buf.Seconds()
	}
	switch e.state {
	case ttypes.StatePlaying:
		s.elapsed = e.clock.Now().Sub(e.anchor).Seconds() * s.rate
	case ttypes.StatePaused:
		s.elapsed = e.positionLocked(e.clock.Now())
	}
	return s
}

// finishSession finishes only if session is still the active one.
func (e *Engine) finishSession(session uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != ttypes.StatePlaying || e.session != session {
		return false
	}
	e.stopLocked()
	log.Debug("Playback finished", "session", session)
	return true
}

// handleEnded runs when the source has handed its last sample to the device.
// The device may still be draining its buffer, so the session only finishes
// here once the clock agrees; otherwise the tracker finishes it.
func (e *Engine) handleEnded(session uint64) {
	s := e.snapshot()
	if s.session == session && s.elapsed >= s.duration {
		e.finishSession(session)
	}
}

// Close stops playback and releases the backend.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.stopLocked()
	b := e.backend
	e.mu.Unlock()

	if b == nil {
		return nil
	}
	if err := b.Close(); err != nil {
		return ttypes.NewPlaybackError("failed to close audio backend", err)
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
