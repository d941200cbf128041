package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PCM16ToFloat32 decodes little-endian 16-bit PCM bytes into -1..1 float
// samples. Trailing odd bytes are ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(v) / 32768
	}
	return samples
}

// Float32ToPCM16 encodes float samples into little-endian 16-bit PCM,
// clamping to -1..1 and scaling by 32767.
func Float32ToPCM16(samples []float32) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(math.Round(float64(s) * 32767))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}

// Converter turns native-format capture bytes into mono float samples at the
// transcription rate. Only linear16 input is supported; resampling is linear
// interpolation, which is plenty for speech endpointing and recognition.
type Converter struct {
	from   EncodingInfo
	toRate int
	// pos carries the fractional read position into the next buffer; it is
	// negative when the next output sample falls between the previous
	// buffer's last sample and the current buffer's first.
	pos        float64
	lastSample float32
}

func NewConverter(from EncodingInfo, toRate int) (*Converter, error) {
	if from.Format != EncodingLinear16 {
		return nil, fmt.Errorf("unsupported capture format %q", from.Format.Name())
	}
	if from.SampleRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate conversion %d -> %d", from.SampleRate, toRate)
	}

	return &Converter{from: from, toRate: toRate}, nil
}

// Convert consumes one native capture buffer and returns the resampled mono
// float samples. Input buffers must be contiguous audio; the converter keeps
// the last sample across calls to interpolate over buffer seams.
func (c *Converter) Convert(pcm []byte) []float32 {
	in := PCM16ToFloat32(pcm)
	if len(in) == 0 {
		return nil
	}

	if c.from.SampleRate == c.toRate {
		c.lastSample = in[len(in)-1]
		return in
	}

	ratio := float64(c.from.SampleRate) / float64(c.toRate)
	out := make([]float32, 0, int(float64(len(in))/ratio)+1)
	pos := c.pos
	for ; pos <= float64(len(in)-1); pos += ratio {
		idx := int(math.Floor(pos))
		frac := float32(pos - math.Floor(pos))

		cur := c.lastSample
		if idx >= 0 {
			cur = in[idx]
		}
		next := cur
		if idx+1 < len(in) {
			next = in[idx+1]
		}
		out = append(out, cur+(next-cur)*frac)
	}
	c.pos = pos - float64(len(in))
	c.lastSample = in[len(in)-1]
	return out
}

// Reset clears the interpolation state between recordings.
func (c *Converter) Reset() {
	c.pos = 0
	c.lastSample = 0
}
