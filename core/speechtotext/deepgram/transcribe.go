// Package deepgram transcribes speech through Deepgram's realtime listen
// socket, relying on the service's own voice activity events.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"

	"github.com/barnacle-voice/barnacle-core/core/audio"
	"github.com/barnacle-voice/barnacle-core/core/speechtotext"
	"github.com/barnacle-voice/barnacle-core/core/vad"
)

type Config struct {
	// APIKey falls back to the DEEPGRAM_API_KEY environment variable.
	APIKey   string
	Model    string
	Language string
}

func (c Config) withDefaults() Config {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if c.Model == "" {
		c.Model = "nova-3"
	}
	if c.Language == "" {
		c.Language = "en-US"
	}
	return c
}

type Client struct {
	captureClient audio.CaptureClient
	config        Config

	connMu    sync.Mutex
	conn      *websocket.Conn
	lastMsgTs time.Time

	transcript     speechtotext.Transcript
	endpointer     *vad.Endpointer
	endpointConfig vad.EndpointConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	options speechtotext.TranscriptionOptions

	state           atomic.Int32
	stopRequested   atomic.Bool
	silenceProgress atomic.Uint64
	levelBits       atomic.Uint32
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
		return nil, fmt.Errorf("deepgram api key not found")
	}

	client := &Client{
		captureClient:  captureClient,
		config:         config,
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

	encoding, sampleRate, err := wireEncoding(c.captureClient.EncodingInfo())
	if err != nil {
		c.state.Store(int32(speechtotext.StateIdle))
		return fmt.Errorf("invalid encoding: %w", err)
	}

	conn, err := c.connectWebsocket(connectionOptions{
		sampleRate: sampleRate,
		encoding:   encoding,
	})
	if err != nil {
		c.state.Store(int32(speechtotext.StateIdle))
		return err
	}

	c.transcript.Reset()
	c.endpointer = vad.NewEndpointer(c.endpointConfig)
	c.stopRequested.Store(false)
	c.silenceProgress.Store(0)
	c.finalOnce = sync.Once{}

	c.connMu.Lock()
	c.conn = conn
	c.lastMsgTs = time.Now()
	c.connMu.Unlock()

	if err := c.captureClient.StartCapture(ctx, c.onAudio); err != nil {
		conn.Close()
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		c.state.Store(int32(speechtotext.StateIdle))
		return fmt.Errorf("failed to start capture: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.options = *options
	c.mu.Unlock()

	c.endpointer.Start(time.Now())
	go c.readAndProcessMessages(workerCtx, conn, *options)
	go c.monitor(workerCtx, *options)

	return nil
}

type connectionOptions struct {
	sampleRate int
	encoding   string
}

func (c *Client) connectWebsocket(options connectionOptions) (*websocket.Conn, error) {
	listenUrl, _ := url.Parse("wss://api.deepgram.com/v1/listen")
	queryParams := listenUrl.Query()
	queryParams.Set("encoding", options.encoding)
	queryParams.Set("sample_rate", strconv.Itoa(options.sampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", c.config.Model)
	queryParams.Set("language", c.config.Language)
	queryParams.Set("smart_format", "true")
	queryParams.Set("interim_results", "true")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("endpointing", "300")
	queryParams.Set("vad_events", "true")

	listenUrl.RawQuery = queryParams.Encode()
	conn, resp, err := websocket.DefaultDialer.Dial(listenUrl.String(),
		http.Header{"Authorization": {"Token " + c.config.APIKey}})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, speechtotext.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (c *Client) onAudio(pcm []byte) {
	samples := audio.PCM16ToFloat32(pcm)
	c.levelBits.Store(math.Float32bits(audio.Level(samples)))

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return
	}
	c.lastMsgTs = time.Now()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		logger.Warn("Failed to write to deepgram client", "error", err)
	}
}

func (c *Client) sendKeepAlive() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return
	}
	if err := c.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: "KeepAlive"}); err != nil {
		logger.Warn("Failed to write to deepgram client", "error", err)
	}
}

func (c *Client) closeStream() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		if err := c.conn.WriteJSON(struct {
			Type string `json:"type"`
		}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
			logger.Warn("Failed to close deepgram stream", "error", err)
		}
	}
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

	_ = c.captureClient.StopCapture()

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.transcript.Reset()
	c.silenceProgress.Store(0)
	c.levelBits.Store(0)
	c.state.Store(int32(speechtotext.StateIdle))
}

func (c *Client) DisplayText() string { return c.transcript.DisplayText() }

func (c *Client) FinalTranscript() string { return c.transcript.Final() }

// Err is always nil; this variant's failures surface from Start.
func (c *Client) Err() error { return nil }

func (c *Client) AudioLevel() float32 {
	return math.Float32frombits(c.levelBits.Load())
}

func (c *Client) SilenceProgress() float64 {
	return math.Float64frombits(c.silenceProgress.Load())
}

func (c *Client) State() speechtotext.State {
	return speechtotext.State(c.state.Load())
}

func (c *Client) monitor(ctx context.Context, options speechtotext.TranscriptionOptions) {
	ticker := time.NewTicker(vad.TickInterval)
	defer ticker.Stop()

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

		progress, reason := c.endpointer.Evaluate(time.Now())
		c.silenceProgress.Store(math.Float64bits(progress))
		if reason != vad.StopNone {
			c.finalize(options)
			return
		}

		c.connMu.Lock()
		idle := time.Since(c.lastMsgTs) > 5*time.Second
		c.connMu.Unlock()
		if idle {
			c.sendKeepAlive()
		}
	}
}

func (c *Client) finalize(options speechtotext.TranscriptionOptions) {
	c.finalOnce.Do(func() {
		if err := c.captureClient.StopCapture(); err != nil {
			logger.Warn("Failed to stop capture", "error", err)
		}
		c.closeStream()

		c.silenceProgress.Store(0)
		c.state.Store(int32(speechtotext.StateStopped))

		if options.TranscriptionCallback != nil {
			options.TranscriptionCallback(c.transcript.Final())
		}
	})
}

func (c *Client) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, options speechtotext.TranscriptionOptions) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if err.Error() != "websocket: close 1000 (normal)" && ctx.Err() == nil {
				logger.Warn("Failed to read deepgram websocket message", "error", err)
			}

			c.connMu.Lock()
			c.conn = nil
			c.connMu.Unlock()
			conn.Close()
			return
		}
		if msgType != websocket.BinaryMessage {
			c.processMessage(msg, options)
		}
	}
}

func (c *Client) processMessage(msg []byte, options speechtotext.TranscriptionOptions) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("Failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("Failed to unmarshal deepgram message", "error", err)
			return
		}
		if len(msgResp.Channel.Alternatives) == 0 {
			return
		}
		transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		if len(transcript) == 0 {
			return
		}

		if msgResp.IsFinal {
			c.transcript.Commit(transcript)
			c.endpointer.NoteCommit(time.Now())
		} else {
			c.transcript.SetPartial(transcript)
			c.endpointer.NotePartial(time.Now())
		}
		if options.PartialCallback != nil {
			options.PartialCallback(c.transcript.DisplayText())
		}

	case api.TypeUtteranceEndResponse:
		c.endpointer.NoteSpeechEnd(time.Now())
		if options.SpeechEndedCallback != nil {
			options.SpeechEndedCallback()
		}

	case api.TypeSpeechStartedResponse:
		c.endpointer.NoteSpeechStart(time.Now())
		if options.SpeechStartedCallback != nil {
			options.SpeechStartedCallback()
		}
	}
}
