package audio

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// MockBackend implements Backend without producing sound. With realtime
// enabled, playing outputs drain their reader at the device rate so the
// source observes its natural end.
type MockBackend struct {
	mu         sync.Mutex
	sampleRate int
	realtime   bool
	outputs    []*MockOutput
	closed     bool

	// FailOpen makes Open return an error, to exercise playback failures.
	FailOpen bool

	// Test helpers
	OutputsOpened int
}

// NewMockBackend creates a mock backend at the given rate.
func NewMockBackend(sampleRate int, realtime bool) *MockBackend {
	return &MockBackend{sampleRate: sampleRate, realtime: realtime}
}

// Open implements Backend.
func (m *MockBackend) Open(r io.Reader) (Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.New("mock audio backend closed")
	}
	if m.FailOpen {
		return nil, errors.New("mock audio device refused to open")
	}

	out := &MockOutput{reader: r, backend: m}
	m.outputs = append(m.outputs, out)
	m.OutputsOpened++
	log.Debug("Created mock audio output", "outputs_opened", m.OutputsOpened)
	return out, nil
}

// SampleRate implements Backend.
func (m *MockBackend) SampleRate() int { return m.sampleRate }

// Close implements Backend.
func (m *MockBackend) Close() error {
	m.mu.Lock()
	outs := m.outputs
	m.outputs = nil
	m.closed = true
	m.mu.Unlock()

	for _, o := range outs {
		_ = o.Close()
	}
	return nil
}

// ActiveOutputs returns the number of outputs not yet closed.
func (m *MockBackend) ActiveOutputs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.outputs {
		if !o.closed.Load() {
			n++
		}
	}
	return n
}

// PlayingOutputs returns the number of outputs currently playing.
func (m *MockBackend) PlayingOutputs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.outputs {
		if o.IsPlaying() {
			n++
		}
	}
	return n
}

// MockOutput implements Output for testing.
type MockOutput struct {
	backend *MockBackend
	reader  io.Reader

	mu      sync.Mutex
	playing atomic.Bool
	closed  atomic.Bool
	stop    chan struct{}

	// Test helpers
	PlayCount  int
	PauseCount int
}

// Play starts or resumes playback.
func (o *MockOutput) Play() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed.Load() || o.playing.Load() {
		return
	}
	o.playing.Store(true)
	o.PlayCount++

	if o.backend.realtime {
		o.stop = make(chan struct{})
		go o.drain(o.stop)
	}
}

// drain reads 20ms of audio every 20ms until paused, closed or EOF.
func (o *MockOutput) drain(stop <-chan struct{}) {
	const frame = 20 * time.Millisecond
	chunk := make([]byte, o.backend.sampleRate*2*int(frame)/int(time.Second))
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := o.reader.Read(chunk); err != nil {
				o.playing.Store(false)
				return
			}
		}
	}
}

// Pause pauses playback.
func (o *MockOutput) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.playing.Load() {
		return
	}
	o.playing.Store(false)
	o.PauseCount++
	if o.stop != nil {
		close(o.stop)
		o.stop = nil
	}
}

// IsPlaying reports whether the output is playing.
func (o *MockOutput) IsPlaying() bool {
	return o.playing.Load() && !o.closed.Load()
}

// Close disconnects the output.
func (o *MockOutput) Close() error {
	o.Pause()
	o.closed.Store(true)
	return nil
}

// Read pulls n bytes from the connected reader, for tests that drive the
// output by hand.
func (o *MockOutput) Read(n int) ([]byte, error) {
	buf := make([]byte, n)
	m, err := o.reader.Read(buf)
	return buf[:m], err
}
