// Package assistant talks to an OpenAI-compatible responses gateway,
// streaming the reply as server-sent events with a non-streaming fallback.
package assistant

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"
)

// ResponsePlaceholder is substituted when the gateway returns a response
// with no extractable text.
const ResponsePlaceholder = "No response"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Config struct {
	// BaseURL is the gateway root, e.g. https://api.openai.com.
	BaseURL string
	APIKey  string
	Model   string
	// Instructions is the system prompt sent with every request.
	Instructions string
}

func (c Config) Validate() error {
	parsed, err := url.Parse(c.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("gateway url %q is not usable: %w", c.BaseURL, ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("no model configured: %w", ErrInvalidConfig)
	}
	return nil
}

type Client struct {
	config     Config
	httpClient *http.Client
	sessionID  string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func NewClient(config Config, opts ...Option) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := &Client{
		config:     config,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		sessionID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type requestBody struct {
	Model        string    `json:"model"`
	Input        []Message `json:"input"`
	Instructions string    `json:"instructions,omitempty"`
	Stream       bool      `json:"stream,omitempty"`
	// MaxOutputTokens is set only by the auth probe.
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`
}

func (c *Client) endpoint() string {
	return strings.TrimSuffix(c.config.BaseURL, "/") + "/v1/responses"
}

func (c *Client) newRequest(ctx context.Context, stream bool, messages []Message) (*http.Request, error) {
	body, err := json.Marshal(requestBody{
		Model:        c.config.Model,
		Input:        messages,
		Instructions: c.config.Instructions,
		Stream:       stream,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-ID", c.sessionID)
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	return req, nil
}

// StreamMessage sends the conversation and yields response events as they
// arrive. The iterator stops after EventDone, on error, or when the caller
// breaks out.
func (c *Client) StreamMessage(ctx context.Context, messages []Message) func(func(Event, error) bool) {
	return func(yield func(Event, error) bool) {
		ctx, span := tracer.Start(ctx, "assistant.stream")
		defer span.End()

		req, err := c.newRequest(ctx, true, messages)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to build request")
			yield(Event{}, err)
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			err = &NetworkError{Err: err}
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to reach gateway")
			yield(Event{}, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := statusError(resp.StatusCode)
			span.RecordError(err)
			span.SetStatus(codes.Error, "gateway rejected request")
			yield(Event{}, err)
			return
		}

		parser := sseParser{}
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			for _, event := range parser.ParseLine(scanner.Text()) {
				if !yield(event, nil) {
					return
				}
				if event.Kind == EventDone {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			err = &NetworkError{Err: err}
			span.RecordError(err)
			span.SetStatus(codes.Error, "stream interrupted")
			yield(Event{}, err)
			return
		}

		for _, event := range parser.Flush() {
			if !yield(event, nil) {
				return
			}
		}
	}
}

// SendMessage is the non-streaming fallback; it returns the full response
// text in one shot.
func (c *Client) SendMessage(ctx context.Context, messages []Message) (string, error) {
	ctx, span := tracer.Start(ctx, "assistant.send")
	defer span.End()

	req, err := c.newRequest(ctx, false, messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build request")
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = &NetworkError{Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reach gateway")
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := statusError(resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway rejected request")
		return "", err
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		err = &DecodingError{Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode response")
		return "", err
	}

	return extractResponseText(payload), nil
}

// extractResponseText digs the response text out of the structured output
// list, falling back to the flat fields some gateways use. A response with
// no recognizable text yields the placeholder rather than an error.
func extractResponseText(payload map[string]any) string {
	if output, ok := payload["output"].([]any); ok {
		var builder strings.Builder
		for _, item := range output {
			itemMap, ok := item.(map[string]any)
			if !ok {
				continue
			}
			content, ok := itemMap["content"].([]any)
			if !ok {
				continue
			}
			for _, part := range content {
				partMap, ok := part.(map[string]any)
				if !ok {
					continue
				}
				if text, ok := partMap["text"].(string); ok {
					builder.WriteString(text)
				}
			}
		}
		if builder.Len() > 0 {
			return builder.String()
		}
	}

	for _, key := range []string{"output_text", "response", "text"} {
		if text, ok := payload[key].(string); ok && text != "" {
			return text
		}
	}

	return ResponsePlaceholder
}

// ValidateAuth performs a one-token round trip through the responses
// endpoint to confirm the credentials and model are usable, not merely
// that the host answers.
func (c *Client) ValidateAuth(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "assistant.validateAuth")
	defer span.End()

	body, err := json.Marshal(requestBody{
		Model:           c.config.Model,
		Input:           []Message{{Role: "user", Content: "ping"}},
		MaxOutputTokens: 1,
	})
	if err != nil {
		return fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-ID", c.sessionID)
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = &NetworkError{Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reach gateway")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := statusError(resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway rejected credentials")
		return err
	}
	return nil
}

// ValidateConnection checks that the gateway is reachable and the
// credentials are accepted.
func (c *Client) ValidateConnection(ctx context.Context) error {
	endpoint := strings.TrimSuffix(c.config.BaseURL, "/") + "/v1/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode)
	}
	return nil
}
