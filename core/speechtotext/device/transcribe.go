// Package device transcribes speech with an on-device recognizer fed from
// the microphone, with local voice activity detection deciding when the
// utterance is over.
package device

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/barnacle-voice/barnacle-core/core/audio"
	"github.com/barnacle-voice/barnacle-core/core/speechtotext"
	"github.com/barnacle-voice/barnacle-core/core/vad"
)

const drainInterval = 10 * time.Millisecond

// Recognizer is an on-device streaming speech recognizer. Implementations
// are expected to keep a running hypothesis that improves as more samples
// arrive.
type Recognizer interface {
	// Reset discards the current hypothesis and prepares for a new
	// utterance.
	Reset()
	// AcceptSamples feeds mono float32 samples at 16 kHz.
	AcceptSamples(samples []float32) error
	// Hypothesis is the current volatile transcript for the utterance.
	Hypothesis() string
	// FinalResult finalizes the utterance and returns its transcript.
	FinalResult() string
}

type Client struct {
	capture    *audio.Capture
	recognizer Recognizer

	detector       *vad.Detector
	endpointer     *vad.Endpointer
	endpointConfig vad.EndpointConfig

	transcript speechtotext.Transcript

	mu     sync.Mutex
	cancel context.CancelFunc

	state           atomic.Int32
	stopRequested   atomic.Bool
	silenceProgress atomic.Uint64
	finalOnce       sync.Once
}

type Option func(*Client)

// WithEndpointConfig overrides the silence timeouts and the recording cap.
func WithEndpointConfig(config vad.EndpointConfig) Option {
	return func(c *Client) { c.endpointConfig = config }
}

func NewClient(captureClient audio.CaptureClient, recognizer Recognizer, opts ...Option) (*Client, error) {
	if recognizer == nil {
		return nil, fmt.Errorf("no recognizer provided: %w", speechtotext.ErrBackendUnavailable)
	}

	client := &Client{
		capture:        audio.NewCapture(captureClient),
		recognizer:     recognizer,
		detector:       vad.NewDetector(vad.DefaultConfig()),
		endpointConfig: vad.DefaultEndpointConfig(),
	}
	return client, nil
}

func (c *Client) Start(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	if !c.state.CompareAndSwap(int32(speechtotext.StateIdle), int32(speechtotext.StateRecording)) {
		return speechtotext.ErrAlreadyRecording
	}

	options := speechtotext.NewTranscriptionOptions(opts...)

	c.transcript.Reset()
	c.detector.Reset()
	c.endpointer = vad.NewEndpointer(c.endpointConfig)
	c.stopRequested.Store(false)
	c.silenceProgress.Store(0)
	c.finalOnce = sync.Once{}
	c.recognizer.Reset()

	if err := c.capture.Start(ctx); err != nil {
		c.state.Store(int32(speechtotext.StateIdle))
		return fmt.Errorf("failed to start capture: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.endpointer.Start(time.Now())
	go c.run(workerCtx, *options)

	return nil
}

// Stop forces finalization, acting as a manual end of utterance.
func (c *Client) Stop() {
	c.stopRequested.Store(true)
}

func (c *Client) Reset() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	_ = c.capture.Stop()
	c.capture.Reset()
	c.transcript.Reset()
	c.silenceProgress.Store(0)
	c.state.Store(int32(speechtotext.StateIdle))
}

func (c *Client) DisplayText() string { return c.transcript.DisplayText() }

func (c *Client) FinalTranscript() string { return c.transcript.Final() }

// Err is always nil; this variant's failures surface from Start.
func (c *Client) Err() error { return nil }

func (c *Client) AudioLevel() float32 { return c.capture.Level() }

func (c *Client) SilenceProgress() float64 {
	return math.Float64frombits(c.silenceProgress.Load())
}

func (c *Client) State() speechtotext.State {
	return speechtotext.State(c.state.Load())
}

func (c *Client) run(ctx context.Context, options speechtotext.TranscriptionOptions) {
	ctx, span := tracer.Start(ctx, "device.transcribe")
	defer span.End()

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	var lastEvaluation time.Time
	var speechActive bool
	var lastHypothesis string

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if c.stopRequested.Load() {
			c.finalize(options)
			return
		}

		for {
			chunk, ok := c.capture.TryDrain(vad.ChunkSize)
			if !ok {
				break
			}

			result := c.detector.ProcessChunk(chunk)
			switch result.Event {
			case vad.EventSpeechStart:
				speechActive = true
				// Preserve the previous segment before starting a
				// fresh hypothesis.
				if lastHypothesis != "" {
					c.transcript.Commit(c.recognizer.FinalResult())
					lastHypothesis = ""
				}
				c.recognizer.Reset()
				c.endpointer.NoteSpeechStart(time.Now())
				if options.SpeechStartedCallback != nil {
					options.SpeechStartedCallback()
				}
			case vad.EventSpeechEnd:
				speechActive = false
				c.endpointer.NoteSpeechEnd(time.Now())
				if options.SpeechEndedCallback != nil {
					options.SpeechEndedCallback()
				}
			}

			if speechActive || result.Probability > 0.5 {
				if err := c.recognizer.AcceptSamples(chunk); err != nil {
					logger.WarnContext(ctx, "Recognizer rejected samples", "error", err)
				}
			}
		}

		if hypothesis := c.recognizer.Hypothesis(); hypothesis != lastHypothesis {
			lastHypothesis = hypothesis
			c.transcript.SetPartial(hypothesis)
			if hypothesis != "" {
				c.endpointer.NotePartial(time.Now())
			}
			if options.PartialCallback != nil {
				options.PartialCallback(c.transcript.DisplayText())
			}
		}

		if now := time.Now(); now.Sub(lastEvaluation) >= vad.TickInterval {
			lastEvaluation = now
			progress, reason := c.endpointer.Evaluate(now)
			c.silenceProgress.Store(math.Float64bits(progress))
			if reason != vad.StopNone {
				c.finalize(options)
				return
			}
		}
	}
}

func (c *Client) finalize(options speechtotext.TranscriptionOptions) {
	c.finalOnce.Do(func() {
		if err := c.capture.Stop(); err != nil {
			logger.Warn("Failed to stop capture", "error", err)
		}

		c.transcript.Commit(c.recognizer.FinalResult())
		c.silenceProgress.Store(0)
		c.state.Store(int32(speechtotext.StateStopped))

		if options.TranscriptionCallback != nil {
			options.TranscriptionCallback(c.transcript.Final())
		}
	})
}
