package scribe

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/barnacle-voice/barnacle-core/core/speechtotext"
	"github.com/barnacle-voice/barnacle-core/core/vad"
)

func newTestClient() *Client {
	return &Client{
		config:         Config{APIKey: "test"}.withDefaults(),
		detector:       vad.NewDetector(vad.DefaultConfig()),
		endpointer:     vad.NewEndpointer(vad.DefaultEndpointConfig()),
		endpointConfig: vad.DefaultEndpointConfig(),
	}
}

func TestSocketURL(t *testing.T) {
	client := newTestClient()
	got := client.socketURL()

	if !strings.HasPrefix(got, "wss://api.elevenlabs.io/v1/speech-to-text/realtime?") {
		t.Errorf("unexpected socket url %q", got)
	}
	for _, param := range []string{
		"model_id=scribe_v2_realtime",
		"audio_format=pcm_16000",
		"commit_strategy=vad",
		"vad_silence_threshold_secs=1.5",
	} {
		if !strings.Contains(got, param) {
			t.Errorf("socket url %q missing %q", got, param)
		}
	}
}

func TestProcessMessagePartialThenCommit(t *testing.T) {
	client := newTestClient()
	client.endpointer.Start(time.Now())

	var lastPartial atomic.Value
	options := *speechtotext.NewTranscriptionOptions(
		speechtotext.WithPartialCallback(func(transcript string) {
			lastPartial.Store(transcript)
		}),
	)

	client.processMessage([]byte(`{"message_type":"partial_transcript","text":"hello wor"}`), options)
	if got := client.DisplayText(); got != "hello wor" {
		t.Errorf("expected partial shown, got %q", got)
	}

	client.processMessage([]byte(`{"message_type":"committed_transcript","text":"hello world"}`), options)
	client.processMessage([]byte(`{"message_type":"partial_transcript","text":"how are"}`), options)

	if got := client.DisplayText(); got != "hello world how are" {
		t.Errorf("unexpected display text %q", got)
	}
	if got, _ := lastPartial.Load().(string); got != "hello world how are" {
		t.Errorf("unexpected last partial callback %q", got)
	}
}

func TestProcessMessageCommitRestartsCountdownWindow(t *testing.T) {
	client := newTestClient()
	start := time.Now()
	client.endpointer.Start(start)
	options := *speechtotext.NewTranscriptionOptions()

	client.processMessage([]byte(`{"message_type":"partial_transcript","text":"hold on"}`), options)
	client.processMessage([]byte(`{"message_type":"committed_transcript","text":"hold on"}`), options)

	// Committed text counts down the longer timeout from the commit.
	if _, reason := client.endpointer.Evaluate(time.Now().Add(1900 * time.Millisecond)); reason != vad.StopNone {
		t.Errorf("expected no finalize before committed timeout, got %v", reason)
	}
	if _, reason := client.endpointer.Evaluate(time.Now().Add(2100 * time.Millisecond)); reason != vad.StopSilence {
		t.Errorf("expected silence finalize after committed timeout, got %v", reason)
	}
}

func TestProcessMessageIgnoresUnknownTypes(t *testing.T) {
	client := newTestClient()
	client.endpointer.Start(time.Now())
	options := *speechtotext.NewTranscriptionOptions()

	client.processMessage([]byte(`{"message_type":"something_else","text":"ignored"}`), options)
	client.processMessage([]byte(`not json`), options)

	if got := client.DisplayText(); got != "" {
		t.Errorf("expected empty transcript, got %q", got)
	}
}

func TestFinalizePromotesLeftoverPartial(t *testing.T) {
	client := newTestClient()
	client.capture = nil
	client.endpointer.Start(time.Now())

	var final atomic.Value
	options := *speechtotext.NewTranscriptionOptions(
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			final.Store(transcript)
		}),
	)

	client.processMessage([]byte(`{"message_type":"committed_transcript","text":"see you"}`), options)
	client.processMessage([]byte(`{"message_type":"partial_transcript","text":"tomorrow"}`), options)

	client.finalize(options)

	if got, _ := final.Load().(string); got != "see you tomorrow" {
		t.Errorf("unexpected final transcript %q", got)
	}
	if client.State() != speechtotext.StateStopped {
		t.Errorf("expected stopped state, got %v", client.State())
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(nil, Config{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
