// Package pcm decodes raw 16-bit linear PCM into normalized float sample buffers.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/85Ryan/Nebula/internal/ttypes"
)

// Format describes a PCM byte stream.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
	ByteOrder  binary.ByteOrder
}

// DefaultFormat returns the format emitted by the speech service:
// signed 16-bit little-endian mono at 24 kHz.
func DefaultFormat() Format {
	return Format{
		SampleRate: ttypes.SampleRate,
		Channels:   1,
		BitDepth:   16,
		ByteOrder:  binary.LittleEndian,
	}
}

// BytesPerSample returns the number of bytes per sample frame
func (f Format) BytesPerSample() int {
	return f.BitDepth / 8 * f.Channels
}

// ValidateData checks that data is non-empty and aligned to whole samples.
func ValidateData(data []byte, format Format) error {
	if len(data) == 0 {
		return errors.New("empty PCM data")
	}
	if n := format.BytesPerSample(); len(data)%n != 0 {
		return fmt.Errorf("PCM data length %d is not aligned to %d-byte samples", len(data), n)
	}
	return nil
}

// Duration returns the playing time of dataLen bytes in the given format.
func Duration(dataLen int, format Format) time.Duration {
	if format.SampleRate == 0 || format.BytesPerSample() == 0 {
		return 0
	}
	samples := dataLen / format.BytesPerSample()
	return time.Duration(float64(samples) / float64(format.SampleRate) * float64(time.Second))
}

// Buffer is an immutable sequence of normalized mono samples at a fixed rate.
type Buffer struct {
	samples    []float32
	sampleRate int
}

// NewBuffer copies samples into a new buffer.
func NewBuffer(samples []float32, sampleRate int) *Buffer {
	s := make([]float32, len(samples))
	copy(s, samples)
	return &Buffer{samples: s, sampleRate: sampleRate}
}

// wrap takes ownership of samples without copying.
func wrap(samples []float32, sampleRate int) *Buffer {
	return &Buffer{samples: samples, sampleRate: sampleRate}
}

// Len returns the number of samples.
func (b *Buffer) Len() int { return len(b.samples) }

// SampleRate returns the nominal sample rate in Hz.
func (b *Buffer) SampleRate() int { return b.sampleRate }

// At returns sample i.
func (b *Buffer) At(i int) float32 { return b.samples[i] }

// Samples returns a copy of the samples.
func (b *Buffer) Samples() []float32 {
	out := make([]float32, len(b.samples))
	copy(out, b.samples)
	return out
}

// Seconds returns the nominal duration in seconds.
func (b *Buffer) Seconds() float64 {
	if b.sampleRate == 0 {
		return 0
	}
	return float64(len(b.samples)) / float64(b.sampleRate)
}

// Duration returns the nominal duration, at 1.0x and zero pitch.
func (b *Buffer) Duration() time.Duration {
	return time.Duration(b.Seconds() * float64(time.Second))
}

// DecodeBase64 decodes a base64 payload of 16-bit little-endian PCM.
func DecodeBase64(payload string, sampleRate int) (*Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, ttypes.NewDecodeError("malformed base64 audio payload", err)
	}
	return DecodeBytes(raw, sampleRate)
}

// DecodeBytes normalizes 16-bit little-endian PCM into [-1, 1) by dividing
// each sample by 32768. Odd byte lengths are rejected.
func DecodeBytes(raw []byte, sampleRate int) (*Buffer, error) {
	format := DefaultFormat()
	format.SampleRate = sampleRate
	if err := ValidateData(raw, format); err != nil {
		return nil, ttypes.NewDecodeError("invalid PCM stream", err).WithContext("bytes", len(raw))
	}

	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float32(v) / 32768.0
	}
	return wrap(samples, sampleRate), nil
}

// EncodeInt16LE serializes integer samples as little-endian bytes.
func EncodeInt16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Quantize converts a normalized sample to int16 the way PCM encoders do:
// clamp to [-1, 1], scale positives by 32767 and negatives by 32768, and
// round to nearest.
func Quantize(s float32) int16 {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}
	v = max(-1, min(1, v))
	if v < 0 {
		return int16(math.Round(v * 32768))
	}
	return int16(math.Round(v * 32767))
}
