// Package ttypes contains shared types for the speech pipeline.
// This package is used to break import cycles between pcm, wav, audio, speech and synth.
package ttypes

import (
	"fmt"
	"math"
	"strings"
)

// SampleRate is the nominal rate, in Hz, of audio returned by the speech service.
const SampleRate = 24000

// PreviewText is the fixed phrase synthesized for voice previews.
const PreviewText = "星云语音，让交流更有温度。"

// Parameter bounds.
const (
	MinPitch  = -1200
	MaxPitch  = 1200
	MinSpeed  = 0.5
	MaxSpeed  = 2.0
	MinVolume = 0.0
	MaxVolume = 2.0
)

// FormatWAV is the only supported container format.
const FormatWAV = "wav"

// Model identifies a speech synthesis model.
type Model string

const (
	// ModelFlash is the fast, default model.
	ModelFlash Model = "gemini-2.5-flash-preview-tts"

	// ModelPro is the higher quality model.
	ModelPro Model = "gemini-2.5-pro-preview-tts"
)

// DefaultModel is used when a document has no model selected.
const DefaultModel = ModelFlash

// Models returns the supported models.
func Models() []Model {
	return []Model{ModelFlash, ModelPro}
}

// ShortName returns "flash" or "pro".
func (m Model) ShortName() string {
	switch m {
	case ModelFlash:
		return "flash"
	case ModelPro:
		return "pro"
	default:
		return string(m)
	}
}

// ParseModel accepts a full model id or one of the short names.
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "flash", string(ModelFlash):
		return ModelFlash, nil
	case "pro", string(ModelPro):
		return ModelPro, nil
	}
	return "", fmt.Errorf("unknown model %q (use flash or pro)", s)
}

// EffectiveRate returns the combined multiplier of buffer time per wall-clock
// second for the given speed and pitch (in cents).
func EffectiveRate(speed float64, pitch int) float64 {
	if pitch == 0 {
		return speed
	}
	return speed * math.Pow(2, float64(pitch)/1200)
}

// AudioSettings is an immutable value object. Use the With* methods to derive
// a modified copy.
type AudioSettings struct {
	Voice  Voice   `yaml:"voice" mapstructure:"voice" json:"voice"`
	Pitch  int     `yaml:"pitch" mapstructure:"pitch" json:"pitch"`
	Speed  float64 `yaml:"speed" mapstructure:"speed" json:"speed"`
	Volume float64 `yaml:"volume" mapstructure:"volume" json:"volume"`
	Format string  `yaml:"format" mapstructure:"format" json:"format"`
}

// DefaultSettings returns the settings used for new documents.
func DefaultSettings() AudioSettings {
	return AudioSettings{
		Voice:  DefaultVoice,
		Pitch:  0,
		Speed:  1.0,
		Volume: 1.0,
		Format: FormatWAV,
	}
}

// Validate reports the first field that is out of range.
func (s AudioSettings) Validate() error {
	if _, ok := LookupVoice(string(s.Voice)); !ok {
		return fmt.Errorf("unknown voice %q", s.Voice)
	}
	if s.Pitch < MinPitch || s.Pitch > MaxPitch {
		return fmt.Errorf("pitch must be between %d and %d cents, got %d", MinPitch, MaxPitch, s.Pitch)
	}
	if s.Speed < MinSpeed || s.Speed > MaxSpeed {
		return fmt.Errorf("speed must be between %.1f and %.1f, got %.2f", MinSpeed, MaxSpeed, s.Speed)
	}
	if s.Volume < MinVolume || s.Volume > MaxVolume {
		return fmt.Errorf("volume must be between %.1f and %.1f, got %.2f", MinVolume, MaxVolume, s.Volume)
	}
	if s.Format != FormatWAV {
		return fmt.Errorf("unsupported format %q", s.Format)
	}
	return nil
}

// EffectiveRate returns the playback rate implied by speed and pitch.
func (s AudioSettings) EffectiveRate() float64 {
	return EffectiveRate(s.Speed, s.Pitch)
}

// WithVoice returns a copy with the voice replaced.
func (s AudioSettings) WithVoice(v Voice) AudioSettings {
	s.Voice = v
	return s
}

// WithPitch returns a copy with the pitch clamped into range.
func (s AudioSettings) WithPitch(cents int) AudioSettings {
	s.Pitch = min(max(cents, MinPitch), MaxPitch)
	return s
}

// WithSpeed returns a copy with the speed clamped into range.
func (s AudioSettings) WithSpeed(speed float64) AudioSettings {
	s.Speed = math.Round(min(max(speed, MinSpeed), MaxSpeed)*100) / 100
	return s
}

// WithVolume returns a copy with the volume clamped into range.
func (s AudioSettings) WithVolume(volume float64) AudioSettings {
	s.Volume = math.Round(min(max(volume, MinVolume), MaxVolume)*100) / 100
	return s
}

// Normalize fills zero values with defaults, for records written before a
// field existed.
func (s AudioSettings) Normalize() AudioSettings {
	d := DefaultSettings()
	if s.Voice == "" {
		s.Voice = d.Voice
	}
	if s.Speed == 0 {
		s.Speed = d.Speed
	}
	if s.Format == "" {
		s.Format = d.Format
	}
	return s
}

// PlaybackState represents the playback engine state.
type PlaybackState int

const (
	// StateIdle indicates nothing is playing and the position is zero
	StateIdle PlaybackState = iota

	// StatePlaying indicates audio is playing
	StatePlaying

	// StatePaused indicates playback is paused at a stored offset
	StatePaused
)

// String returns the string representation of the state
func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
