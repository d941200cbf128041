package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/barnacle-voice/barnacle-core/core/audio"
	"github.com/barnacle-voice/barnacle-core/core/speechtotext"
)

type fakeCaptureClient struct {
	mu      sync.Mutex
	onAudio func([]byte)
}

func (c *fakeCaptureClient) StartCapture(_ context.Context, onAudio func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAudio = onAudio
	return nil
}

func (c *fakeCaptureClient) StopCapture() error { return nil }

func (c *fakeCaptureClient) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (c *fakeCaptureClient) push(samples []float32) {
	c.mu.Lock()
	onAudio := c.onAudio
	c.mu.Unlock()
	if onAudio != nil {
		onAudio(audio.Float32ToPCM16(samples))
	}
}

func constantSamples(value float32, n int) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = value
	}
	return samples
}

func TestWhisperUploadsRecordingOnStop(t *testing.T) {
	var uploadedModel string
	var uploadedFilename string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Fatalf("failed to parse multipart form: %v", err)
		}
		uploadedModel = r.FormValue("model")
		if files := r.MultipartForm.File["file"]; len(files) == 1 {
			uploadedFilename = files[0].Filename
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	}))
	defer server.Close()

	captureClient := &fakeCaptureClient{}
	client, err := NewClient(captureClient, Config{APIKey: "test-key", Host: server.URL})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}

	finalCh := make(chan string, 1)
	err = client.Start(context.Background(),
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			finalCh <- transcript
		}),
	)
	if err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	defer client.Reset()

	captureClient.push(constantSamples(0.5, 1024))
	time.Sleep(50 * time.Millisecond)
	client.Stop()

	select {
	case final := <-finalCh:
		if final != "hello world" {
			t.Errorf("unexpected transcript %q", final)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transcript")
	}

	if uploadedModel != "whisper-1" {
		t.Errorf("unexpected model field %q", uploadedModel)
	}
	if uploadedFilename != "recording.wav" {
		t.Errorf("unexpected upload filename %q", uploadedFilename)
	}
	if err := client.Err(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWhisperReportsUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	captureClient := &fakeCaptureClient{}
	client, err := NewClient(captureClient, Config{APIKey: "bad-key", Host: server.URL})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}

	finalCh := make(chan string, 1)
	err = client.Start(context.Background(),
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			finalCh <- transcript
		}),
	)
	if err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	defer client.Reset()

	client.Stop()

	select {
	case final := <-finalCh:
		if final != "" {
			t.Errorf("expected empty transcript, got %q", final)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for finalization")
	}

	if !errors.Is(client.Err(), speechtotext.ErrUnauthorized) {
		t.Errorf("expected unauthorized error, got %v", client.Err())
	}
}

func TestWhisperAutoStopsAfterSilence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": "done"})
	}))
	defer server.Close()

	captureClient := &fakeCaptureClient{}
	client, err := NewClient(captureClient, Config{APIKey: "test-key", Host: server.URL})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}

	finalCh := make(chan string, 1)
	err = client.Start(context.Background(),
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			finalCh <- transcript
		}),
	)
	if err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	defer client.Reset()

	// Speak, then feed quiet audio; after enough continuous quiet the
	// recording stops on its own.
	captureClient.push(constantSamples(0.5, 1024))
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				captureClient.push(constantSamples(0, 1024))
			}
		}
	}()

	select {
	case final := <-finalCh:
		if final != "done" {
			t.Errorf("unexpected transcript %q", final)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("timed out waiting for silence auto-stop")
	}
}
