package deepgram

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/barnacle-voice/barnacle-core/core/audio"
	"github.com/barnacle-voice/barnacle-core/core/speechtotext"
	"github.com/barnacle-voice/barnacle-core/core/vad"
)

type nopCaptureClient struct{}

func (nopCaptureClient) StartCapture(_ context.Context, _ func([]byte)) error { return nil }
func (nopCaptureClient) StopCapture() error                                   { return nil }
func (nopCaptureClient) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func newTestClient() *Client {
	return &Client{
		config:         Config{APIKey: "test"}.withDefaults(),
		endpointer:     vad.NewEndpointer(vad.DefaultEndpointConfig()),
		endpointConfig: vad.DefaultEndpointConfig(),
	}
}

func TestProcessMessageAccumulatesTranscript(t *testing.T) {
	client := newTestClient()
	client.endpointer.Start(time.Now())

	var lastPartial atomic.Value
	options := *speechtotext.NewTranscriptionOptions(
		speechtotext.WithPartialCallback(func(transcript string) {
			lastPartial.Store(transcript)
		}),
	)

	client.processMessage([]byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hello wor"}]}}`), options)
	if got := client.DisplayText(); got != "hello wor" {
		t.Errorf("expected interim shown, got %q", got)
	}

	client.processMessage([]byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello world"}]}}`), options)
	client.processMessage([]byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"how are you"}]}}`), options)

	if got := client.DisplayText(); got != "hello world how are you" {
		t.Errorf("unexpected accumulated transcript %q", got)
	}
	if got, _ := lastPartial.Load().(string); got != "hello world how are you" {
		t.Errorf("unexpected last partial callback %q", got)
	}
}

func TestProcessMessageIgnoresEmptyAlternatives(t *testing.T) {
	client := newTestClient()
	client.endpointer.Start(time.Now())
	options := *speechtotext.NewTranscriptionOptions()

	client.processMessage([]byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`), options)
	client.processMessage([]byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"   "}]}}`), options)

	if got := client.DisplayText(); got != "" {
		t.Errorf("expected empty transcript, got %q", got)
	}
}

func TestProcessMessageSpeechEvents(t *testing.T) {
	client := newTestClient()
	client.endpointer.Start(time.Now())

	var started, ended atomic.Int32
	options := *speechtotext.NewTranscriptionOptions(
		speechtotext.WithSpeechStartedCallback(func() { started.Add(1) }),
		speechtotext.WithSpeechEndedCallback(func() { ended.Add(1) }),
	)

	client.processMessage([]byte(`{"type":"SpeechStarted"}`), options)
	if got := started.Load(); got != 1 {
		t.Fatalf("expected speech-start callback once, got %d", got)
	}

	if progress, _ := client.endpointer.Evaluate(time.Now().Add(10 * time.Second)); progress != 0 {
		t.Errorf("expected no countdown while speech is active, got %f", progress)
	}

	client.processMessage([]byte(`{"type":"UtteranceEnd"}`), options)
	if got := ended.Load(); got != 1 {
		t.Fatalf("expected speech-end callback once, got %d", got)
	}
}

func TestFinalizeFiresTranscriptionOnce(t *testing.T) {
	client := newTestClient()
	client.captureClient = nopCaptureClient{}
	client.endpointer.Start(time.Now())

	var finals atomic.Int32
	var final atomic.Value
	options := *speechtotext.NewTranscriptionOptions(
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			finals.Add(1)
			final.Store(transcript)
		}),
	)

	client.processMessage([]byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"see you"}]}}`), options)
	client.processMessage([]byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"tomorrow"}]}}`), options)

	client.finalize(options)
	client.finalize(options)

	if got := finals.Load(); got != 1 {
		t.Fatalf("expected transcription callback once, got %d", got)
	}
	if got, _ := final.Load().(string); got != "see you tomorrow" {
		t.Errorf("unexpected final transcript %q", got)
	}
	if client.State() != speechtotext.StateStopped {
		t.Errorf("expected stopped state, got %v", client.State())
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "")
	if _, err := NewClient(nopCaptureClient{}, Config{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
