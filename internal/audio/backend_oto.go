//go:build !nocgo
// +build !nocgo

package audio

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process.
var (
	otoOnce    sync.Once
	otoContext *oto.Context
	otoRate    int
	otoErr     error
)

func sharedOtoContext(sampleRate int) (*oto.Context, int, error) {
	otoOnce.Do(func() {
		options := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
		}

		switch runtime.GOOS {
		case "darwin":
			// macOS benefits from larger buffers
			options.BufferSize = 100 * time.Millisecond
		case "windows":
			options.BufferSize = 80 * time.Millisecond
		default:
			options.BufferSize = 50 * time.Millisecond
		}

		log.Debug("Initializing audio context",
			"sample_rate", options.SampleRate,
			"buffer_size", options.BufferSize)

		ctx, ready, err := oto.NewContext(options)
		if err != nil {
			otoErr = fmt.Errorf("failed to create audio context: %w", err)
			return
		}

		select {
		case <-ready:
			otoContext = ctx
			otoRate = sampleRate
		case <-time.After(5 * time.Second):
			otoErr = fmt.Errorf("audio context initialization timeout")
		}
	})
	return otoContext, otoRate, otoErr
}

// OtoBackend plays through the local audio device.
type OtoBackend struct {
	mu         sync.Mutex
	context    *oto.Context
	sampleRate int
	closed     bool
}

// NewOtoBackend opens the audio device. The first call fixes the device rate
// for the life of the process.
func NewOtoBackend(sampleRate int) (*OtoBackend, error) {
	ctx, rate, err := sharedOtoContext(sampleRate)
	if err != nil {
		return nil, err
	}
	if rate != sampleRate {
		log.Debug("Audio context already open at a different rate", "requested", sampleRate, "actual", rate)
	}
	return &OtoBackend{context: ctx, sampleRate: rate}, nil
}

// Open implements Backend.
func (b *OtoBackend) Open(r io.Reader) (Output, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.context == nil {
		return nil, fmt.Errorf("audio context not ready")
	}
	if err := b.context.Err(); err != nil {
		return nil, fmt.Errorf("audio context failed: %w", err)
	}

	p := b.context.NewPlayer(r)
	if p == nil {
		return nil, fmt.Errorf("failed to create audio player")
	}
	return &otoOutput{player: p}, nil
}

// SampleRate implements Backend.
func (b *OtoBackend) SampleRate() int { return b.sampleRate }

// Close implements Backend. The shared context stays alive; oto has no way
// to release it.
func (b *OtoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

type otoOutput struct {
	player *oto.Player
}

func (o *otoOutput) Play()           { o.player.Play() }
func (o *otoOutput) Pause()          { o.player.Pause() }
func (o *otoOutput) IsPlaying() bool { return o.player.IsPlaying() }
func (o *otoOutput) Close() error    { return o.player.Close() }
