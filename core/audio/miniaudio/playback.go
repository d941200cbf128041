package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/barnacle-voice/barnacle-core/core/audio"
)

type playbackClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	leftoverAudio []byte
	marks         []playbackMark

	mu      sync.Mutex
	audioMu sync.Mutex
	marksMu sync.Mutex
}

type playbackMark struct {
	position int
	callback func()
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sampleRate := uint32(audio.DefaultSampleRate)
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = sampleRate
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	c.config.Periods = 4

	c.audioContext = audioContext

	var err error
	if c.device, err = malgo.InitDevice(
		c.audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return err
	}

	return nil
}

func (c *playbackClient) ensureStarted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if c.device.IsStarted() {
		return nil
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

// Play queues one PCM16 clip and blocks until the device has drained it or
// the context is cancelled. Cancellation clears anything still buffered.
func (c *playbackClient) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}

	if err := c.ensureStarted(); err != nil {
		return err
	}

	done := make(chan struct{})

	c.audioMu.Lock()
	c.leftoverAudio = append(c.leftoverAudio, pcm...)
	clipEnd := len(c.leftoverAudio)
	c.audioMu.Unlock()

	c.marksMu.Lock()
	c.marks = append(c.marks, playbackMark{
		position: clipEnd,
		callback: func() { close(done) },
	})
	c.marksMu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.ClearBuffer()
		return ctx.Err()
	}
}

// StopPlayback halts the device and drops any queued audio.
func (c *playbackClient) StopPlayback() {
	c.ClearBuffer()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil && c.device.IsStarted() {
		_ = c.device.Stop()
	}
}

func (c *playbackClient) ClearBuffer() {
	c.audioMu.Lock()
	c.marksMu.Lock()
	c.leftoverAudio = make([]byte, 0)
	abandoned := c.marks
	c.marks = nil
	c.marksMu.Unlock()
	c.audioMu.Unlock()

	// Release anyone blocked on a dropped clip.
	for _, mark := range abandoned {
		if mark.callback != nil {
			mark.callback()
		}
	}
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	c.device.Uninit()
	c.device = nil

	return nil
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		c.audioMu.Lock()
		if len(c.leftoverAudio) <= need {
			copy(pOutput, c.leftoverAudio)
			consumed := len(c.leftoverAudio)
			c.leftoverAudio = nil
			c.audioMu.Unlock()
			c.processMarks(consumed)
			return
		}

		copy(pOutput, c.leftoverAudio[:need])
		c.leftoverAudio = c.leftoverAudio[need:]
		c.audioMu.Unlock()
		c.processMarks(need)
	}
}

func (c *playbackClient) processMarks(consumed int) {
	c.marksMu.Lock()
	passedMarks := 0
	for i, mark := range c.marks {
		if mark.position > consumed {
			c.marks[i].position -= consumed
		} else {
			passedMarks++
		}
	}
	var toCall []playbackMark
	if passedMarks > 0 {
		toCall = c.marks[:passedMarks]
		c.marks = c.marks[passedMarks:]
	}
	c.marksMu.Unlock()

	if len(toCall) > 0 {
		go func() {
			for _, mark := range toCall {
				mark.callback()
			}
		}()
	}
}
