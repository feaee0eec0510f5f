// Package wav serializes sample buffers into RIFF/WAV containers and reads
// them back.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/85Ryan/Nebula/internal/pcm"
	"github.com/85Ryan/Nebula/internal/ttypes"
	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
)

// WAV format constants.
const (
	// HeaderSize is the size of a canonical WAV header in bytes.
	HeaderSize = 44

	// FormatPCM is the audio format code for uncompressed PCM.
	FormatPCM = 1

	// BitsPerSample is the encoder's target depth.
	BitsPerSample = 16

	// MIMEType is served with exported files.
	MIMEType = "audio/wav"
)

// Encode writes buf as a mono 16-bit PCM WAV file.
func Encode(buf *pcm.Buffer) []byte {
	n := buf.Len()
	dataSize := n * 2
	sampleRate := buf.SampleRate()

	out := make([]byte, HeaderSize+dataSize)

	// RIFF header
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")

	// fmt subchunk
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], FormatPCM)
	binary.LittleEndian.PutUint16(out[22:24], 1)
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(out[32:34], 2)
	binary.LittleEndian.PutUint16(out[34:36], BitsPerSample)

	// data subchunk
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))

	data := out[HeaderSize:]
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(pcm.Quantize(buf.At(i))))
	}
	return out
}

// Header holds the fields of a canonical 44-byte WAV header.
type Header struct {
	RIFFSize      uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

// Samples returns the number of sample frames declared by the header.
func (h Header) Samples() int {
	if h.BlockAlign == 0 {
		return 0
	}
	return int(h.DataSize) / int(h.BlockAlign)
}

// Seconds returns the duration declared by the header.
func (h Header) Seconds() float64 {
	if h.SampleRate == 0 {
		return 0
	}
	return float64(h.Samples()) / float64(h.SampleRate)
}

// ParseHeader reads a canonical header. Files with extra chunks before
// "data" are rejected; use Decode for those.
func ParseHeader(blob []byte) (Header, error) {
	if len(blob) < HeaderSize {
		return Header{}, ttypes.NewDecodeError("WAV header truncated", fmt.Errorf("got %d bytes", len(blob)))
	}
	if string(blob[0:4]) != "RIFF" || string(blob[8:12]) != "WAVE" {
		return Header{}, ttypes.NewDecodeError("not a RIFF/WAVE file", nil)
	}
	if string(blob[12:16]) != "fmt " || string(blob[36:40]) != "data" {
		return Header{}, ttypes.NewDecodeError("non-canonical WAV layout", nil)
	}

	le := binary.LittleEndian
	return Header{
		RIFFSize:      le.Uint32(blob[4:8]),
		AudioFormat:   le.Uint16(blob[20:22]),
		Channels:      le.Uint16(blob[22:24]),
		SampleRate:    le.Uint32(blob[24:28]),
		ByteRate:      le.Uint32(blob[28:32]),
		BlockAlign:    le.Uint16(blob[32:34]),
		BitsPerSample: le.Uint16(blob[34:36]),
		DataSize:      le.Uint32(blob[40:44]),
	}, nil
}

// Decode reads any PCM WAV container into a normalized mono buffer. Only the
// first channel of multichannel files is kept.
func Decode(blob []byte) (*pcm.Buffer, error) {
	d := gowav.NewDecoder(bytes.NewReader(blob))
	if !d.IsValidFile() {
		return nil, ttypes.NewDecodeError("unreadable WAV container", d.Err())
	}

	ib, err := d.FullPCMBuffer()
	if err != nil {
		return nil, ttypes.NewDecodeError("failed to read WAV samples", err)
	}
	if ib.Format == nil || ib.Format.NumChannels < 1 {
		return nil, ttypes.NewDecodeError("WAV has no channels", nil)
	}

	depth := ib.SourceBitDepth
	if depth == 0 {
		depth = int(d.BitDepth)
	}
	if depth < 8 || depth > 32 {
		return nil, ttypes.NewDecodeError("unsupported bit depth", fmt.Errorf("%d bits", depth))
	}

	return pcm.NewBuffer(firstChannel(ib, depth), ib.Format.SampleRate), nil
}

// firstChannel scales the first channel of ib into [-1, 1).
func firstChannel(ib *goaudio.IntBuffer, depth int) []float32 {
	channels := ib.Format.NumChannels
	frames := len(ib.Data) / channels
	scale := float64(int64(1) << (depth - 1))
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		v := ib.Data[i*channels]
		if depth == 8 {
			// 8-bit WAV is unsigned
			v -= 128
		}
		samples[i] = float32(float64(v) / scale)
	}
	return samples
}

// Decoder adapts Decode to the playback engine's container decoder interface.
type Decoder struct{}

// Decode implements the container decoder interface.
func (Decoder) Decode(blob []byte) (*pcm.Buffer, error) {
	if len(blob) == 0 {
		return nil, ttypes.NewDecodeError("empty audio blob", errors.New("no data"))
	}
	return Decode(blob)
}
