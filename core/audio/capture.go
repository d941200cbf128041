package audio

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
)

// CaptureClient is implemented by the platform audio clients. Capture
// callbacks deliver native-format PCM bytes from the device callback
// context.
type CaptureClient interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
	EncodingInfo() EncodingInfo
}

// Capture owns the microphone tap: it converts native capture buffers into
// mono float samples at [DefaultSampleRate], appends them to a shared
// [SampleBuffer], and keeps a running normalized level for metering.
//
// The microphone is an exclusive resource; a second Start without an
// intervening Stop fails.
type Capture struct {
	client CaptureClient
	buffer *SampleBuffer

	converter *Converter

	capturing atomic.Bool
	levelBits atomic.Uint32
}

func NewCapture(client CaptureClient) *Capture {
	return &Capture{
		client: client,
		buffer: NewSampleBuffer(),
	}
}

func (c *Capture) Start(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("no capture client configured")
	}

	if !c.capturing.CompareAndSwap(false, true) {
		return fmt.Errorf("capture already running")
	}

	converter, err := NewConverter(c.client.EncodingInfo(), DefaultSampleRate)
	if err != nil {
		c.capturing.Store(false)
		return fmt.Errorf("failed to construct format converter: %w", err)
	}
	c.converter = converter

	if err := c.client.StartCapture(ctx, c.onAudio); err != nil {
		c.capturing.Store(false)
		return fmt.Errorf("failed to start capture: %w", err)
	}

	return nil
}

func (c *Capture) onAudio(pcm []byte) {
	samples := c.converter.Convert(pcm)
	if len(samples) == 0 {
		return
	}

	c.levelBits.Store(math.Float32bits(Level(samples)))
	c.buffer.Append(samples)
}

func (c *Capture) Stop() error {
	if c == nil || !c.capturing.CompareAndSwap(true, false) {
		return nil
	}

	if err := c.client.StopCapture(); err != nil {
		return fmt.Errorf("failed to stop capture: %w", err)
	}
	return nil
}

// Reset clears buffered samples and meter state between turns.
func (c *Capture) Reset() {
	if c == nil {
		return
	}

	c.buffer.Clear()
	c.levelBits.Store(0)
	if c.converter != nil {
		c.converter.Reset()
	}
}

func (c *Capture) IsCapturing() bool { return c != nil && c.capturing.Load() }

// TryDrain returns exactly n buffered samples, or false when not enough are
// available yet.
func (c *Capture) TryDrain(n int) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	return c.buffer.TryDrain(n)
}

// Level reports the normalized 0..1 level of the most recent capture buffer.
func (c *Capture) Level() float32 {
	if c == nil {
		return 0
	}
	return math.Float32frombits(c.levelBits.Load())
}

func (c *Capture) EncodingInfo() EncodingInfo {
	if c == nil || c.client == nil {
		return GetDefaultEncodingInfo()
	}
	return c.client.EncodingInfo()
}
