//go:build nocgo
// +build nocgo

package audio

import (
	"errors"
	"io"
)

var errNoAudio = errors.New("audio not available in nocgo build")

// OtoBackend is unavailable in nocgo builds.
type OtoBackend struct{}

// NewOtoBackend always fails in nocgo builds.
func NewOtoBackend(int) (*OtoBackend, error) {
	return nil, errNoAudio
}

func (*OtoBackend) Open(io.Reader) (Output, error) { return nil, errNoAudio }
func (*OtoBackend) SampleRate() int                 { return 0 }
func (*OtoBackend) Close() error                    { return nil }
