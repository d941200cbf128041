package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func sseHandler(t *testing.T, lines []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n", line)
		}
	}
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "gpt-test",
	})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}
	return client
}

func TestStreamMessageYieldsDeltasUntilDone(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{
		"event: response.output_text.delta",
		`data: {"delta":"Hello"}`,
		"",
		"event: response.output_text.delta",
		`data: {"delta":" there"}`,
		"",
		"event: response.completed",
		"data: {}",
		"",
	}))
	defer server.Close()

	client := newTestClient(t, server)

	var text string
	var done bool
	for event, err := range client.StreamMessage(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}) {
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		switch event.Kind {
		case EventTextDelta:
			text += event.Text
		case EventDone:
			done = true
		}
	}

	if text != "Hello there" {
		t.Errorf("unexpected accumulated text %q", text)
	}
	if !done {
		t.Error("expected done event")
	}
}

func TestStreamMessageTextDoneOverridesDeltas(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{
		"event: response.output_text.delta",
		`data: {"delta":"partial ga"}`,
		"",
		"event: response.output_text.done",
		`data: {"text":"The corrected full text."}`,
		"",
		"data: [DONE]",
		"",
	}))
	defer server.Close()

	client := newTestClient(t, server)

	var text string
	for event, err := range client.StreamMessage(context.Background(), nil) {
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		switch event.Kind {
		case EventTextDelta:
			text += event.Text
		case EventTextDone:
			text = event.Text
		}
	}

	if text != "The corrected full text." {
		t.Errorf("unexpected final text %q", text)
	}
}

func TestStreamMessageStatusErrors(t *testing.T) {
	for _, testCase := range []struct {
		status int
		want   error
	}{
		{status: http.StatusUnauthorized, want: ErrUnauthorized},
		{status: http.StatusTooManyRequests, want: ErrRateLimited},
	} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(testCase.status)
		}))

		client := newTestClient(t, server)

		var streamErr error
		for _, err := range client.StreamMessage(context.Background(), nil) {
			if err != nil {
				streamErr = err
				break
			}
		}
		if !errors.Is(streamErr, testCase.want) {
			t.Errorf("status %d: expected %v, got %v", testCase.status, testCase.want, streamErr)
		}
		server.Close()
	}
}

func TestStreamMessageServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server)

	var streamErr error
	for _, err := range client.StreamMessage(context.Background(), nil) {
		if err != nil {
			streamErr = err
			break
		}
	}

	var serverErr *ServerError
	if !errors.As(streamErr, &serverErr) || serverErr.Code != http.StatusBadGateway {
		t.Errorf("expected server error 502, got %v", streamErr)
	}
}

func TestSendMessageExtractsStructuredOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"output":[{"content":[{"type":"output_text","text":"Part one. "},{"type":"output_text","text":"Part two."}]}]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server)

	text, err := client.SendMessage(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Part one. Part two." {
		t.Errorf("unexpected text %q", text)
	}
}

func TestSendMessageFlatFallbacks(t *testing.T) {
	for _, testCase := range []struct {
		body string
		want string
	}{
		{body: `{"output_text":"flat output"}`, want: "flat output"},
		{body: `{"response":"flat response"}`, want: "flat response"},
		{body: `{"text":"flat text"}`, want: "flat text"},
		{body: `{"something_else":true}`, want: ResponsePlaceholder},
	} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, testCase.body)
		}))

		client := newTestClient(t, server)
		text, err := client.SendMessage(context.Background(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if text != testCase.want {
			t.Errorf("body %s: expected %q, got %q", testCase.body, testCase.want, text)
		}
		server.Close()
	}
}

func TestSendMessageDecodingError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json at all")
	}))
	defer server.Close()

	client := newTestClient(t, server)

	_, err := client.SendMessage(context.Background(), nil)
	var decodingErr *DecodingError
	if !errors.As(err, &decodingErr) {
		t.Errorf("expected decoding error, got %v", err)
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	for _, config := range []Config{
		{BaseURL: "", Model: "gpt-test"},
		{BaseURL: "://bad", Model: "gpt-test"},
		{BaseURL: "https://example.com", Model: ""},
	} {
		if _, err := NewClient(config); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("config %+v: expected invalid config error, got %v", config, err)
		}
	}
}

func TestValidateConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if err := client.ValidateConnection(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			MaxOutputTokens int `json:"max_output_tokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if body.MaxOutputTokens != 1 {
			t.Errorf("expected one-token probe, got max_output_tokens=%d", body.MaxOutputTokens)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"output_text":"pong"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if err := client.ValidateAuth(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateAuthRejectsBadKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	err := client.ValidateAuth(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected unauthorized error, got %v", err)
	}
}
