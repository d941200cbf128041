// Package whisper records the whole utterance to a WAV file and uploads it
// to an OpenAI-compatible transcription endpoint in one shot. There are no
// partial transcripts; the result arrives after recording stops.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/barnacle-voice/barnacle-core/core/audio"
	"github.com/barnacle-voice/barnacle-core/core/speechtotext"
	"github.com/barnacle-voice/barnacle-core/core/vad"
)

const (
	drainInterval = 10 * time.Millisecond

	// Recording auto-stops after this much continuous quiet once the
	// user has spoken at least once.
	silenceTimeout = 3 * time.Second
	// speechThresholdDB is the level above which a buffer counts as
	// speech.
	speechThresholdDB = -40
)

type Config struct {
	APIKey string
	// Host defaults to api.openai.com.
	Host string
	// Model defaults to whisper-1; gpt-4o-transcribe also works.
	Model string
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "api.openai.com"
	}
	if c.Model == "" {
		c.Model = "whisper-1"
	}
	return c
}

type Client struct {
	capture    *audio.Capture
	config     Config
	httpClient *http.Client

	maxRecording time.Duration

	transcript speechtotext.Transcript

	mu      sync.Mutex
	cancel  context.CancelFunc
	wavPath string
	err     error

	state           atomic.Int32
	stopRequested   atomic.Bool
	silenceProgress atomic.Uint64
	finalOnce       sync.Once
}

type Option func(*Client)

// WithMaxRecording overrides the recording cap.
func WithMaxRecording(limit time.Duration) Option {
	return func(c *Client) { c.maxRecording = limit }
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func NewClient(captureClient audio.CaptureClient, config Config, opts ...Option) (*Client, error) {
	config = config.withDefaults()
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai api key not found")
	}

	client := &Client{
		capture:      audio.NewCapture(captureClient),
		config:       config,
		httpClient:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		maxRecording: vad.DefaultEndpointConfig().MaxRecording,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func (c *Client) Start(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	if !c.state.CompareAndSwap(int32(speechtotext.StateIdle), int32(speechtotext.StateRecording)) {
		return speechtotext.ErrAlreadyRecording
	}

	options := speechtotext.NewTranscriptionOptions(opts...)

	wavPath := filepath.Join(os.TempDir(), uuid.NewString()+".wav")
	file, err := os.Create(wavPath)
	if err != nil {
		c.state.Store(int32(speechtotext.StateIdle))
		return fmt.Errorf("failed to create recording file: %w", err)
	}

	writer, err := audio.NewWAVWriter(file, audio.DefaultSampleRate)
	if err != nil {
		file.Close()
		os.Remove(wavPath)
		c.state.Store(int32(speechtotext.StateIdle))
		return fmt.Errorf("failed to prepare recording file: %w", err)
	}

	c.transcript.Reset()
	c.stopRequested.Store(false)
	c.silenceProgress.Store(0)
	c.finalOnce = sync.Once{}
	c.mu.Lock()
	c.wavPath = wavPath
	c.err = nil
	c.mu.Unlock()

	if err := c.capture.Start(ctx); err != nil {
		file.Close()
		os.Remove(wavPath)
		c.state.Store(int32(speechtotext.StateIdle))
		return fmt.Errorf("failed to start capture: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(workerCtx, file, writer, *options)

	return nil
}

// Stop ends recording and triggers the upload.
func (c *Client) Stop() {
	c.stopRequested.Store(true)
}

func (c *Client) Reset() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	wavPath := c.wavPath
	c.wavPath = ""
	c.err = nil
	c.mu.Unlock()

	_ = c.capture.Stop()
	c.capture.Reset()
	if wavPath != "" {
		os.Remove(wavPath)
	}
	c.transcript.Reset()
	c.silenceProgress.Store(0)
	c.state.Store(int32(speechtotext.StateIdle))
}

func (c *Client) DisplayText() string { return c.transcript.DisplayText() }

func (c *Client) FinalTranscript() string { return c.transcript.Final() }

func (c *Client) AudioLevel() float32 { return c.capture.Level() }

func (c *Client) SilenceProgress() float64 {
	return math.Float64frombits(c.silenceProgress.Load())
}

func (c *Client) State() speechtotext.State {
	return speechtotext.State(c.state.Load())
}

func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Client) run(ctx context.Context, file *os.File, writer *audio.WAVWriter, options speechtotext.TranscriptionOptions) {
	ctx, span := tracer.Start(ctx, "whisper.transcribe")
	defer span.End()

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	startedAt := time.Now()
	var hasSpoken bool
	var quietSince time.Time

	for {
		select {
		case <-ctx.Done():
			file.Close()
			return
		case <-ticker.C:
		}

		for {
			samples, ok := c.capture.TryDrain(vad.ChunkSize)
			if !ok {
				break
			}

			if err := writer.WriteSamples(samples); err != nil {
				logger.WarnContext(ctx, "Failed to write recording", "error", err)
			}

			if audio.Decibels(samples) > speechThresholdDB {
				if !hasSpoken {
					hasSpoken = true
					if options.SpeechStartedCallback != nil {
						options.SpeechStartedCallback()
					}
				}
				quietSince = time.Time{}
			} else if hasSpoken && quietSince.IsZero() {
				quietSince = time.Now()
			}
		}

		if hasSpoken && !quietSince.IsZero() {
			progress := float64(time.Since(quietSince)) / float64(silenceTimeout)
			if progress > 1 {
				progress = 1
			}
			c.silenceProgress.Store(math.Float64bits(progress))
			if progress >= 1 {
				c.finalize(ctx, file, writer, options)
				return
			}
		} else {
			c.silenceProgress.Store(0)
		}

		if c.stopRequested.Load() || time.Since(startedAt) >= c.maxRecording {
			c.finalize(ctx, file, writer, options)
			return
		}
	}
}

func (c *Client) finalize(ctx context.Context, file *os.File, writer *audio.WAVWriter, options speechtotext.TranscriptionOptions) {
	c.finalOnce.Do(func() {
		if err := c.capture.Stop(); err != nil {
			logger.Warn("Failed to stop capture", "error", err)
		}
		if options.SpeechEndedCallback != nil {
			options.SpeechEndedCallback()
		}

		if err := writer.Finalize(); err != nil {
			logger.Warn("Failed to finalize recording", "error", err)
		}
		file.Close()

		c.mu.Lock()
		wavPath := c.wavPath
		c.mu.Unlock()

		transcript, err := c.upload(ctx, wavPath)
		os.Remove(wavPath)
		if err != nil {
			c.setErr(err)
			logger.WarnContext(ctx, "Transcription upload failed", "error", err)
		} else {
			c.transcript.Commit(transcript)
		}

		c.silenceProgress.Store(0)
		c.state.Store(int32(speechtotext.StateStopped))

		if options.TranscriptionCallback != nil {
			options.TranscriptionCallback(c.transcript.Final())
		}
	})
}

func (c *Client) upload(ctx context.Context, wavPath string) (string, error) {
	recording, err := os.Open(wavPath)
	if err != nil {
		return "", fmt.Errorf("failed to open recording: %w", err)
	}
	defer recording.Close()

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	part, err := form.CreateFormFile("file", "recording.wav")
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(part, recording); err != nil {
		return "", fmt.Errorf("failed to read recording: %w", err)
	}
	if err := form.WriteField("model", c.config.Model); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}

	endpoint := c.config.Host
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	endpoint += "/v1/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", speechtotext.ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &speechtotext.StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &speechtotext.DecodingError{Err: err}
	}
	return parsed.Text, nil
}
