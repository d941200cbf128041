package config

import (
	"fmt"

	conversation "github.com/barnacle-voice/barnacle-core/core"
	"github.com/barnacle-voice/barnacle-core/core/assistant"
	"github.com/barnacle-voice/barnacle-core/core/audio"
	"github.com/barnacle-voice/barnacle-core/core/audio/miniaudio"
	"github.com/barnacle-voice/barnacle-core/core/audio/portaudio"
	"github.com/barnacle-voice/barnacle-core/core/speechtotext"
	"github.com/barnacle-voice/barnacle-core/core/speechtotext/deepgram"
	"github.com/barnacle-voice/barnacle-core/core/speechtotext/device"
	"github.com/barnacle-voice/barnacle-core/core/speechtotext/scribe"
	"github.com/barnacle-voice/barnacle-core/core/speechtotext/whisper"
	"github.com/barnacle-voice/barnacle-core/core/texttospeech"
	"github.com/barnacle-voice/barnacle-core/core/texttospeech/elevenlabs"
	"github.com/barnacle-voice/barnacle-core/core/texttospeech/openaispeech"
	"github.com/barnacle-voice/barnacle-core/core/vad"
	"github.com/barnacle-voice/barnacle-core/internal/utils"
)

// Engine bundles a built controller with the audio clients backing it.
type Engine struct {
	Controller *conversation.Controller

	closers []func()
}

// Close releases the audio devices. The engine is unusable afterwards.
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

type BuildOptions struct {
	Recognizer device.Recognizer
	Callbacks  conversation.Callbacks
}

type BuildOption func(*BuildOptions)

// WithRecognizer supplies the on-device recognizer required by the
// device backend.
func WithRecognizer(recognizer device.Recognizer) BuildOption {
	return func(o *BuildOptions) { o.Recognizer = recognizer }
}

func WithCallbacks(callbacks conversation.Callbacks) BuildOption {
	return func(o *BuildOptions) { o.Callbacks = callbacks }
}

// Build wires a conversation controller from the configuration: the
// capture client, the selected transcription backend, the assistant
// gateway and, when configured, the speech synthesizer and playback
// sink.
func Build(cfg Config, opts ...BuildOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &BuildOptions{}
	for _, opt := range opts {
		opt(options)
	}

	engine := &Engine{}
	ok := false
	defer func() {
		if !ok {
			engine.Close()
		}
	}()

	speak := cfg.Speech.Provider != SpeechNone

	// Playback always runs on miniaudio; portaudio covers capture only.
	var miniClient *miniaudio.Client
	if cfg.Audio.Driver == DriverMiniaudio || speak {
		var err error
		miniClient, err = miniaudio.NewClient()
		if err != nil {
			return nil, fmt.Errorf("failed to open audio device: %w", err)
		}
		engine.closers = append(engine.closers, miniClient.Close)
	}

	var captureClient audio.CaptureClient = miniClient
	if cfg.Audio.Driver == DriverPortAudio {
		portClient, err := portaudio.NewClient(vad.ChunkSize)
		if err != nil {
			return nil, fmt.Errorf("failed to open capture device: %w", err)
		}
		engine.closers = append(engine.closers, portClient.Close)
		captureClient = portClient
	}

	backend, err := buildBackend(cfg.Transcriber, captureClient, options.Recognizer)
	if err != nil {
		return nil, err
	}

	gateway, err := assistant.NewClient(assistant.Config{
		BaseURL:      cfg.Assistant.BaseURL,
		APIKey:       cfg.Assistant.APIKey,
		Model:        cfg.Assistant.Model,
		Instructions: cfg.Assistant.Instructions,
	})
	if err != nil {
		return nil, err
	}

	controllerOpts := []conversation.Option{
		conversation.WithCallbacks(options.Callbacks),
	}
	if speak {
		synth, err := buildSynthesizer(cfg.Speech)
		if err != nil {
			return nil, err
		}
		controllerOpts = append(controllerOpts,
			conversation.WithSynthesizer(synth),
			conversation.WithAudioSink(miniClient),
		)
		if cfg.Greeting.Enabled {
			controllerOpts = append(controllerOpts, conversation.WithGreeting(&conversation.GreetingCache{
				Text: cfg.Greeting.Text,
				Dir:  cfg.Greeting.Dir,
			}))
		}
	}

	engine.Controller = conversation.NewController(backend, gateway, controllerOpts...)
	ok = true
	return engine, nil
}

func buildBackend(cfg TranscriberConfig, captureClient audio.CaptureClient, recognizer device.Recognizer) (speechtotext.Backend, error) {
	endpointing := vad.EndpointConfig{
		CommittedTimeout: cfg.Endpointing.CommittedTimeout,
		PartialTimeout:   cfg.Endpointing.PartialTimeout,
		MaxRecording:     cfg.Endpointing.MaxRecording,
	}

	switch cfg.Backend {
	case BackendDeepgram:
		return deepgram.NewClient(captureClient, deepgram.Config{
			APIKey:   cfg.Deepgram.APIKey,
			Model:    cfg.Deepgram.Model,
			Language: cfg.Deepgram.Language,
		}, deepgram.WithEndpointConfig(endpointing))
	case BackendScribe:
		return scribe.NewClient(captureClient, scribe.Config{
			APIKey:  cfg.Scribe.APIKey,
			Host:    cfg.Scribe.Host,
			ModelID: cfg.Scribe.ModelID,
		}, scribe.WithEndpointConfig(endpointing))
	case BackendWhisper:
		return whisper.NewClient(captureClient, whisper.Config{
			APIKey: cfg.Whisper.APIKey,
			Host:   cfg.Whisper.Host,
			Model:  cfg.Whisper.Model,
		}, whisper.WithMaxRecording(endpointing.MaxRecording))
	case BackendDevice:
		if recognizer == nil {
			return nil, fmt.Errorf("device backend requires a recognizer")
		}
		return device.NewClient(captureClient, recognizer, device.WithEndpointConfig(endpointing))
	default:
		return nil, fmt.Errorf("unknown transcription backend %q", cfg.Backend)
	}
}

func buildSynthesizer(cfg SpeechConfig) (texttospeech.Synthesizer, error) {
	switch cfg.Provider {
	case SpeechElevenLabs:
		settings := texttospeech.VoiceSettings{
			Stability:       cfg.ElevenLabs.Stability,
			SimilarityBoost: cfg.ElevenLabs.SimilarityBoost,
			Style:           cfg.ElevenLabs.Style,
		}
		if cfg.ElevenLabs.Speed > 0 {
			settings.Speed = utils.Ptr(cfg.ElevenLabs.Speed)
		}
		return elevenlabs.NewClient(elevenlabs.Config{
			APIKey:        cfg.ElevenLabs.APIKey,
			VoiceID:       cfg.ElevenLabs.VoiceID,
			Model:         elevenlabs.Model(cfg.ElevenLabs.Model),
			VoiceSettings: settings,
		})
	case SpeechOpenAI:
		openaiCfg := openaispeech.Config{
			APIKey:       cfg.OpenAI.APIKey,
			Model:        cfg.OpenAI.Model,
			Voice:        openaispeech.Voice(cfg.OpenAI.Voice),
			Instructions: cfg.OpenAI.Instructions,
		}
		if cfg.OpenAI.Speed > 0 {
			openaiCfg.Speed = utils.Ptr(cfg.OpenAI.Speed)
		}
		return openaispeech.NewClient(openaiCfg)
	default:
		return nil, fmt.Errorf("unknown speech provider %q", cfg.Provider)
	}
}
