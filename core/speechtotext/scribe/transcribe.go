// Package scribe transcribes speech through ElevenLabs' realtime
// speech-to-text socket. The socket is only opened once local voice
// activity is detected, so silent sessions never touch the network.
package scribe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/barnacle-voice/barnacle-core/core/audio"
	"github.com/barnacle-voice/barnacle-core/core/speechtotext"
	"github.com/barnacle-voice/barnacle-core/core/vad"
)

const drainInterval = 10 * time.Millisecond

type Config struct {
	APIKey string
	// Host defaults to api.elevenlabs.io.
	Host string
	// ModelID defaults to scribe_v2_realtime.
	ModelID string
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "api.elevenlabs.io"
	}
	if c.ModelID == "" {
		c.ModelID = "scribe_v2_realtime"
	}
	return c
}

type Client struct {
	capture *audio.Capture
	config  Config

	detector       *vad.Detector
	endpointer     *vad.Endpointer
	endpointConfig vad.EndpointConfig

	transcript speechtotext.Transcript

	connMu     sync.Mutex
	conn       *websocket.Conn
	dialFailed bool

	errMu sync.Mutex
	err   error

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

func NewClient(captureClient audio.CaptureClient, config Config, opts ...Option) (*Client, error) {
	config = config.withDefaults()
	if config.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs api key not found")
	}

	client := &Client{
		capture:        audio.NewCapture(captureClient),
		config:         config,
		detector:       vad.NewDetector(vad.DefaultConfig()),
		endpointConfig: vad.DefaultEndpointConfig(),
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

	c.transcript.Reset()
	c.detector.Reset()
	c.endpointer = vad.NewEndpointer(c.endpointConfig)
	c.stopRequested.Store(false)
	c.silenceProgress.Store(0)
	c.finalOnce = sync.Once{}
	c.connMu.Lock()
	c.dialFailed = false
	c.connMu.Unlock()
	c.errMu.Lock()
	c.err = nil
	c.errMu.Unlock()

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
	c.closeConn()
	c.transcript.Reset()
	c.silenceProgress.Store(0)
	c.errMu.Lock()
	c.err = nil
	c.errMu.Unlock()
	c.state.Store(int32(speechtotext.StateIdle))
}

func (c *Client) DisplayText() string { return c.transcript.DisplayText() }

func (c *Client) FinalTranscript() string { return c.transcript.Final() }

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) AudioLevel() float32 { return c.capture.Level() }

func (c *Client) SilenceProgress() float64 {
	return math.Float64frombits(c.silenceProgress.Load())
}

func (c *Client) State() speechtotext.State {
	return speechtotext.State(c.state.Load())
}

func (c *Client) socketURL() string {
	socketUrl := url.URL{Scheme: "wss", Host: c.config.Host, Path: "/v1/speech-to-text/realtime"}
	queryParams := socketUrl.Query()
	queryParams.Set("model_id", c.config.ModelID)
	queryParams.Set("audio_format", "pcm_16000")
	queryParams.Set("commit_strategy", "vad")
	queryParams.Set("vad_silence_threshold_secs", "1.5")
	socketUrl.RawQuery = queryParams.Encode()
	return socketUrl.String()
}

// ensureConnected dials the realtime socket on first use. A failed dial is
// remembered so the session does not hammer the endpoint on every chunk.
func (c *Client) ensureConnected(ctx context.Context, options speechtotext.TranscriptionOptions) bool {
	c.connMu.Lock()
	if c.conn != nil {
		c.connMu.Unlock()
		return true
	}
	if c.dialFailed {
		c.connMu.Unlock()
		return false
	}
	c.connMu.Unlock()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.socketURL(),
		http.Header{"xi-api-key": {c.config.APIKey}})
	if err != nil {
		c.connMu.Lock()
		c.dialFailed = true
		c.connMu.Unlock()
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			c.setErr(speechtotext.ErrUnauthorized)
			logger.WarnContext(ctx, "Scribe rejected credentials", "error", speechtotext.ErrUnauthorized)
		} else {
			logger.WarnContext(ctx, "Failed to open scribe socket", "error", err)
		}
		return false
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	go c.readAndProcessMessages(ctx, conn, options)
	return true
}

func (c *Client) sendChunk(chunk []float32) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return
	}
	frame := struct {
		MessageType string `json:"message_type"`
		AudioBase64 string `json:"audio_base_64"`
	}{
		MessageType: "input_audio_chunk",
		AudioBase64: base64.StdEncoding.EncodeToString(audio.Float32ToPCM16(chunk)),
	}
	if err := c.conn.WriteJSON(frame); err != nil {
		logger.Warn("Failed to write to scribe socket", "error", err)
	}
}

func (c *Client) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) run(ctx context.Context, options speechtotext.TranscriptionOptions) {
	ctx, span := tracer.Start(ctx, "scribe.transcribe")
	defer span.End()

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	var lastEvaluation time.Time
	var speechActive bool

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
				c.endpointer.NoteSpeechStart(time.Now())
				c.ensureConnected(ctx, options)
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
				c.sendChunk(chunk)
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

func (c *Client) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, options speechtotext.TranscriptionOptions) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("Failed to read scribe socket message", "error", err)
			}
			c.connMu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.connMu.Unlock()
			conn.Close()
			return
		}
		c.processMessage(msg, options)
	}
}

func (c *Client) processMessage(msg []byte, options speechtotext.TranscriptionOptions) {
	var parsedMsg struct {
		MessageType string `json:"message_type"`
		Text        string `json:"text"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("Failed to unmarshal scribe message", "error", err)
		return
	}

	switch parsedMsg.MessageType {
	case "session_started":
		logger.Debug("Scribe session started")

	case "partial_transcript":
		c.transcript.SetPartial(parsedMsg.Text)
		if parsedMsg.Text != "" {
			c.endpointer.NotePartial(time.Now())
		}
		if options.PartialCallback != nil {
			options.PartialCallback(c.transcript.DisplayText())
		}

	case "committed_transcript":
		c.transcript.Commit(parsedMsg.Text)
		c.endpointer.NoteCommit(time.Now())
		if options.PartialCallback != nil {
			options.PartialCallback(c.transcript.DisplayText())
		}
	}
}

func (c *Client) finalize(options speechtotext.TranscriptionOptions) {
	c.finalOnce.Do(func() {
		if err := c.capture.Stop(); err != nil {
			logger.Warn("Failed to stop capture", "error", err)
		}
		c.closeConn()

		c.silenceProgress.Store(0)
		c.state.Store(int32(speechtotext.StateStopped))

		if options.TranscriptionCallback != nil {
			options.TranscriptionCallback(c.transcript.Final())
		}
	})
}
