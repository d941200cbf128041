package miniaudio

import (
	"fmt"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/barnacle-voice/barnacle-core/core/audio"
)

// captureFrames sizes device periods to the VAD chunk (32ms at 16kHz) so
// one callback roughly fills one classification chunk.
const captureFrames = 512

// captureClient owns the malgo capture device. The device runs at the
// pipeline rate in mono S16, so downstream conversion is a straight
// PCM16 decode. The handler is swapped atomically; the device callback
// must never take a lock.
type captureClient struct {
	device  *malgo.Device
	handler atomic.Pointer[func(pcm []byte)]
}

func (c *captureClient) Init(audioCtx *malgo.AllocatedContext) error {
	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = audio.DefaultSampleRate
	config.Capture.Format = malgo.FormatS16
	config.Capture.Channels = 1
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = captureFrames
	config.Periods = 3

	frameBytes := malgo.SampleSizeInBytes(malgo.FormatS16)
	device, err := malgo.InitDevice(audioCtx.Context, config, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			n := int(frameCount) * frameBytes
			if n == 0 || len(input) < n {
				return
			}
			if handler := c.handler.Load(); handler != nil {
				(*handler)(input[:n])
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	c.device = device
	return nil
}

func (c *captureClient) Start(onAudio func(pcm []byte)) error {
	if c.device == nil {
		return fmt.Errorf("capture device not initialized")
	}

	c.handler.Store(&onAudio)
	if c.device.IsStarted() {
		return nil
	}
	if err := c.device.Start(); err != nil {
		c.handler.Store(nil)
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

func (c *captureClient) Stop() error {
	if c.device == nil {
		return fmt.Errorf("capture device not initialized")
	}

	c.handler.Store(nil)
	if !c.device.IsStarted() {
		return nil
	}
	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (c *captureClient) Uninit() error {
	c.handler.Store(nil)
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	return nil
}
