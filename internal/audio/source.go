package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/85Ryan/Nebula/internal/pcm"
)

// Source is the source and gain stage of a playback node. It reads a sample
// buffer at a variable effective rate, scales by gain, and emits 16-bit
// little-endian PCM at the device rate. Rate and gain may be changed while
// the node is playing.
type Source struct {
	buf   *pcm.Buffer
	ratio float64 // buffer samples per output sample at rate 1.0

	rate atomic.Uint64 // float64 bits
	gain atomic.Uint64 // float64 bits

	mu       sync.Mutex
	pos      float64 // in buffer samples
	ended    func()
	endOnce  sync.Once
	stopped  atomic.Bool
	finished atomic.Bool
}

// NewSource creates a source positioned at offset seconds of buffer time.
func NewSource(buf *pcm.Buffer, outputRate int, offset, rate, gain float64) *Source {
	s := &Source{
		buf:   buf,
		ratio: float64(buf.SampleRate()) / float64(outputRate),
		pos:   offset * float64(buf.SampleRate()),
	}
	s.SetRate(rate)
	s.SetGain(gain)
	return s
}

// SetRate sets the effective playback rate.
func (s *Source) SetRate(rate float64) {
	s.rate.Store(math.Float64bits(rate))
}

// Rate returns the effective playback rate.
func (s *Source) Rate() float64 {
	return math.Float64frombits(s.rate.Load())
}

// SetGain sets the output gain multiplier.
func (s *Source) SetGain(gain float64) {
	s.gain.Store(math.Float64bits(gain))
}

// Gain returns the output gain multiplier.
func (s *Source) Gain() float64 {
	return math.Float64frombits(s.gain.Load())
}

// Position returns the read position in buffer seconds.
func (s *Source) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos / float64(s.buf.SampleRate())
}

// OnEnded registers fn to run once when the buffer is exhausted. fn runs on
// its own goroutine.
func (s *Source) OnEnded(fn func()) {
	s.mu.Lock()
	s.ended = fn
	s.mu.Unlock()
}

// Stop disconnects the source: it clears the ended callback and makes
// further reads return io.EOF.
func (s *Source) Stop() {
	s.stopped.Store(true)
	s.mu.Lock()
	s.ended = nil
	s.mu.Unlock()
}

// Finished reports whether the source reached the end of its buffer.
func (s *Source) Finished() bool {
	return s.finished.Load()
}

// Read implements io.Reader.
func (s *Source) Read(p []byte) (int, error) {
	if s.stopped.Load() {
		return 0, io.EOF
	}
	if len(p) < 2 {
		return 0, nil
	}

	s.mu.Lock()
	n := s.buf.Len()
	step := s.ratio * s.Rate()
	gain := s.Gain()

	written := 0
	for written+2 <= len(p) && s.pos < float64(n) {
		i := int(s.pos)
		frac := s.pos - float64(i)
		a := float64(s.buf.At(i))
		b := a
		if i+1 < n {
			b = float64(s.buf.At(i + 1))
		}
		v := (a + (b-a)*frac) * gain
		binary.LittleEndian.PutUint16(p[written:], uint16(pcm.Quantize(float32(v))))
		written += 2
		s.pos += step
	}
	done := s.pos >= float64(n)
	s.mu.Unlock()

	if written > 0 {
		return written, nil
	}
	if done {
		s.finish()
	}
	return 0, io.EOF
}

func (s *Source) finish() {
	s.endOnce.Do(func() {
		s.finished.Store(true)
		s.mu.Lock()
		fn := s.ended
		s.mu.Unlock()
		if fn != nil {
			go fn()
		}
	})
}
