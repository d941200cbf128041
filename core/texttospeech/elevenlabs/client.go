// Package elevenlabs synthesizes speech through the ElevenLabs streaming
// endpoint, requesting raw PCM so the audio can go straight to the
// playback sink.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/barnacle-voice/barnacle-core/core/texttospeech"
)

type Model string

const (
	ModelV3    Model = "eleven_v3"
	ModelTurbo Model = "eleven_turbo_v2_5"
	ModelFlash Model = "eleven_flash_v2_5"
)

type Config struct {
	APIKey string
	// Host defaults to api.elevenlabs.io.
	Host    string
	VoiceID string
	// Model defaults to eleven_turbo_v2_5.
	Model         Model
	VoiceSettings texttospeech.VoiceSettings
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "api.elevenlabs.io"
	}
	if c.Model == "" {
		c.Model = ModelTurbo
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
		return nil, fmt.Errorf("elevenlabs api key not found")
	}
	if config.VoiceID == "" {
		return nil, fmt.Errorf("elevenlabs voice id not set")
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

type voiceSettings struct {
	Stability       float64  `json:"stability"`
	SimilarityBoost float64  `json:"similarity_boost"`
	Style           float64  `json:"style"`
	Speed           *float64 `json:"speed,omitempty"`
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

func (c *Client) endpoint() string {
	host := c.config.Host
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return strings.TrimSuffix(host, "/") +
		"/v1/text-to-speech/" + c.config.VoiceID + "/stream?output_format=pcm_16000"
}

func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	settings := c.config.VoiceSettings
	body, err := json.Marshal(synthesisRequest{
		Text:    text,
		ModelID: string(c.config.Model),
		VoiceSettings: voiceSettings{
			Stability:       settings.Stability,
			SimilarityBoost: settings.SimilarityBoost,
			Style:           settings.Style,
			Speed:           settings.Speed,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.config.APIKey)

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
	return pcm, nil
}
