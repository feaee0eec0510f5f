package audio

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Backend hosts playback outputs. Implementations pull 16-bit little-endian
// mono PCM from the reader passed to Open at SampleRate().
type Backend interface {
	// Open creates a paused output reading from r.
	Open(r io.Reader) (Output, error)

	// SampleRate returns the device rate in Hz.
	SampleRate() int

	// Close releases the backend.
	Close() error
}

// Output is a single connected playback node.
type Output interface {
	Play()
	Pause()
	IsPlaying() bool
	Close() error
}

// BackendKind selects a Backend implementation.
type BackendKind string

const (
	// BackendAuto uses the device unless running in CI or without audio.
	BackendAuto BackendKind = "auto"
	// BackendOto uses the local audio device via oto.
	BackendOto BackendKind = "oto"
	// BackendMock produces no sound.
	BackendMock BackendKind = "mock"
)

// ParseBackendKind validates a backend name from flags or config.
func ParseBackendKind(s string) (BackendKind, error) {
	switch k := BackendKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", BackendAuto:
		return BackendAuto, nil
	case BackendOto, BackendMock:
		return k, nil
	}
	return "", fmt.Errorf("unknown audio backend %q (use auto, oto or mock)", s)
}

// IsCI detects if we're running in a CI environment
func IsCI() bool {
	ciVars := []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"BUILDKITE",
	}

	for _, envVar := range ciVars {
		if val := os.Getenv(envVar); val != "" && val != "false" {
			log.Debug("CI environment detected", "variable", envVar, "value", val)
			return true
		}
	}

	if os.Getenv("NEBULA_MOCK_AUDIO") == "true" {
		log.Debug("Mock audio requested via environment variable")
		return true
	}

	return false
}

// NewBackend creates the requested backend at the given device rate.
func NewBackend(kind BackendKind, sampleRate int) (Backend, error) {
	switch kind {
	case BackendOto:
		log.Debug("Creating oto audio backend", "sample_rate", sampleRate)
		return NewOtoBackend(sampleRate)

	case BackendMock:
		log.Debug("Creating mock audio backend")
		return NewMockBackend(sampleRate, true), nil

	case BackendAuto, "":
		if IsCI() {
			log.Info("Using mock audio backend", "reason", "CI environment")
			return NewMockBackend(sampleRate, true), nil
		}
		b, err := NewOtoBackend(sampleRate)
		if err != nil {
			log.Warn("Failed to open audio device, falling back to mock", "error", err)
			return NewMockBackend(sampleRate, true), nil
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unknown audio backend: %q", kind)
	}
}
