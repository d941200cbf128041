package openaispeech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/barnacle-voice/barnacle-core/core/audio"
	"github.com/barnacle-voice/barnacle-core/core/texttospeech"
	"github.com/barnacle-voice/barnacle-core/internal/utils"
)

func TestSynthesizeSendsRequest(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		w.Write(audio.Float32ToPCM16(make([]float32, 2400)))
	}))
	defer server.Close()

	client, err := NewClient(Config{
		APIKey:       "test-key",
		Host:         server.URL,
		Voice:        VoiceNova,
		Speed:        utils.Ptr(1.2),
		Instructions: "speak cheerfully",
	})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}

	pcm, err := client.Synthesize(context.Background(), "Hello there.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/v1/audio/speech" {
		t.Errorf("unexpected request path %q", gotPath)
	}
	if gotBody["model"] != "gpt-4o-mini-tts" {
		t.Errorf("unexpected model %v", gotBody["model"])
	}
	if gotBody["input"] != "Hello there." {
		t.Errorf("unexpected input %v", gotBody["input"])
	}
	if gotBody["voice"] != "nova" {
		t.Errorf("unexpected voice %v", gotBody["voice"])
	}
	if gotBody["response_format"] != "pcm" {
		t.Errorf("unexpected response format %v", gotBody["response_format"])
	}
	if gotBody["speed"] != 1.2 {
		t.Errorf("unexpected speed %v", gotBody["speed"])
	}
	if gotBody["instructions"] != "speak cheerfully" {
		t.Errorf("unexpected instructions %v", gotBody["instructions"])
	}

	// 2400 samples at 24 kHz resample to 1600 at the pipeline rate.
	if len(pcm) != 1600*2 {
		t.Errorf("unexpected resampled audio length %d", len(pcm))
	}
}

func TestSynthesizeUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "bad", Host: server.URL})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}

	if _, err := client.Synthesize(context.Background(), "hi"); !errors.Is(err, texttospeech.ErrUnauthorized) {
		t.Errorf("expected unauthorized error, got %v", err)
	}
}

func TestSynthesizeStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "test", Host: server.URL})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}

	_, err = client.Synthesize(context.Background(), "hi")
	var statusErr *texttospeech.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadRequest {
		t.Errorf("expected status error 400, got %v", err)
	}
}
