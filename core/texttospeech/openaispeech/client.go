// Package openaispeech synthesizes speech through the OpenAI audio
// endpoint, requesting raw PCM so the audio can go straight to the
// playback sink.
package openaispeech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/barnacle-voice/barnacle-core/core/audio"
	"github.com/barnacle-voice/barnacle-core/core/texttospeech"
)

type Voice string

const (
	VoiceAlloy   Voice = "alloy"
	VoiceAsh     Voice = "ash"
	VoiceCoral   Voice = "coral"
	VoiceEcho    Voice = "echo"
	VoiceFable   Voice = "fable"
	VoiceNova    Voice = "nova"
	VoiceOnyx    Voice = "onyx"
	VoiceShimmer Voice = "shimmer"
)

type Config struct {
	APIKey string
	// Host defaults to api.openai.com.
	Host string
	// Model defaults to gpt-4o-mini-tts.
	Model string
	// Voice defaults to alloy.
	Voice Voice
	// Speed is optional; nil leaves the provider default.
	Speed *float64
	// Instructions steer delivery style on models that support it.
	Instructions string
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "api.openai.com"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini-tts"
	}
	if c.Voice == "" {
		c.Voice = VoiceAlloy
	}
	return c
}

type Client struct {
	config     Config
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func NewClient(config Config, opts ...Option) (*Client, error) {
	config = config.withDefaults()
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai api key not found")
	}

	client := &Client{
		config:     config,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type synthesisRequest struct {
	Model          string   `json:"model"`
	Input          string   `json:"input"`
	Voice          string   `json:"voice"`
	ResponseFormat string   `json:"response_format"`
	Speed          *float64 `json:"speed,omitempty"`
	Instructions   string   `json:"instructions,omitempty"`
}

func (c *Client) endpoint() string {
	host := c.config.Host
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return strings.TrimSuffix(host, "/") + "/v1/audio/speech"
}

func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(synthesisRequest{
		Model:          c.config.Model,
		Input:          text,
		Voice:          string(c.config.Voice),
		ResponseFormat: "pcm",
		Speed:          c.config.Speed,
		Instructions:   c.config.Instructions,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, texttospeech.ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &texttospeech.StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech audio: %w", err)
	}
	if len(pcm) == 0 {
		return nil, texttospeech.ErrEmptyAudio
	}
	return resampleToSink(pcm)
}

// The endpoint produces 24 kHz PCM; the playback sink runs at the pipeline
// rate, so resample before handing the audio over.
func resampleToSink(pcm []byte) ([]byte, error) {
	converter, err := audio.NewConverter(audio.EncodingInfo{
		SampleRate: 24000,
		Format:     audio.EncodingLinear16,
	}, audio.DefaultSampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to construct format converter: %w", err)
	}
	return audio.Float32ToPCM16(converter.Convert(pcm)), nil
}
