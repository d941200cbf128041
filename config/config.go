// Package config loads and validates the engine configuration from a
// barnacle.yaml file and BARNACLE_* environment variables, and builds a
// ready-to-run conversation controller from it.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	configName = "barnacle"
	envPrefix  = "BARNACLE"
)

// Backend names accepted in transcriber.backend.
const (
	BackendDeepgram = "deepgram"
	BackendScribe   = "scribe"
	BackendWhisper  = "whisper"
	BackendDevice   = "device"
)

// Speech provider names accepted in speech.provider.
const (
	SpeechElevenLabs = "elevenlabs"
	SpeechOpenAI     = "openai"
	SpeechNone       = "none"
)

// Audio driver names accepted in audio.driver.
const (
	DriverMiniaudio = "miniaudio"
	DriverPortAudio = "portaudio"
)

type Config struct {
	Audio       AudioConfig       `mapstructure:"audio"`
	Transcriber TranscriberConfig `mapstructure:"transcriber"`
	Assistant   AssistantConfig   `mapstructure:"assistant"`
	Speech      SpeechConfig      `mapstructure:"speech"`
	Greeting    GreetingConfig    `mapstructure:"greeting"`
}

type AudioConfig struct {
	// Driver selects the capture/playback host library.
	Driver string `mapstructure:"driver"`
}

type TranscriberConfig struct {
	Backend string `mapstructure:"backend"`

	// Endpointing tunes when an utterance is considered finished.
	Endpointing EndpointingConfig `mapstructure:"endpointing"`

	Deepgram DeepgramConfig `mapstructure:"deepgram"`
	Scribe   ScribeConfig   `mapstructure:"scribe"`
	Whisper  WhisperConfig  `mapstructure:"whisper"`
}

type EndpointingConfig struct {
	CommittedTimeout time.Duration `mapstructure:"committed_timeout"`
	PartialTimeout   time.Duration `mapstructure:"partial_timeout"`
	MaxRecording     time.Duration `mapstructure:"max_recording"`
}

type DeepgramConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
}

type ScribeConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Host    string `mapstructure:"host"`
	ModelID string `mapstructure:"model_id"`
}

type WhisperConfig struct {
	APIKey string `mapstructure:"api_key"`
	Host   string `mapstructure:"host"`
	Model  string `mapstructure:"model"`
}

type AssistantConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	Instructions string `mapstructure:"instructions"`
}

type SpeechConfig struct {
	Provider string `mapstructure:"provider"`

	ElevenLabs ElevenLabsConfig   `mapstructure:"elevenlabs"`
	OpenAI     OpenAISpeechConfig `mapstructure:"openai"`
}

type ElevenLabsConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	VoiceID         string  `mapstructure:"voice_id"`
	Model           string  `mapstructure:"model"`
	Stability       float64 `mapstructure:"stability"`
	SimilarityBoost float64 `mapstructure:"similarity_boost"`
	Style           float64 `mapstructure:"style"`
	// Speed of 0 leaves the provider default.
	Speed float64 `mapstructure:"speed"`
}

type OpenAISpeechConfig struct {
	APIKey       string  `mapstructure:"api_key"`
	Model        string  `mapstructure:"model"`
	Voice        string  `mapstructure:"voice"`
	Speed        float64 `mapstructure:"speed"`
	Instructions string  `mapstructure:"instructions"`
}

type GreetingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Text    string `mapstructure:"text"`
	Dir     string `mapstructure:"dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("audio.driver", DriverMiniaudio)
	v.SetDefault("transcriber.backend", BackendDeepgram)
	v.SetDefault("transcriber.endpointing.committed_timeout", 2*time.Second)
	v.SetDefault("transcriber.endpointing.partial_timeout", 1500*time.Millisecond)
	v.SetDefault("transcriber.endpointing.max_recording", time.Minute)
	v.SetDefault("assistant.base_url", "https://api.openai.com")
	v.SetDefault("assistant.model", "gpt-4o-mini")
	v.SetDefault("speech.provider", SpeechNone)
	v.SetDefault("speech.elevenlabs.stability", 0.5)
	v.SetDefault("speech.elevenlabs.similarity_boost", 0.75)
	v.SetDefault("greeting.enabled", false)

	// Register key-less secrets so env-only overrides reach Unmarshal.
	for _, key := range []string{
		"assistant.api_key",
		"transcriber.deepgram.api_key",
		"transcriber.scribe.api_key",
		"transcriber.whisper.api_key",
		"speech.elevenlabs.api_key",
		"speech.elevenlabs.voice_id",
		"speech.openai.api_key",
	} {
		v.SetDefault(key, "")
	}
}

// Load reads configuration from path when given, otherwise from a
// barnacle.{yaml,toml,json} file in the working directory if one exists.
// Environment variables prefixed with BARNACLE_ override file values,
// with dots replaced by underscores (e.g. BARNACLE_ASSISTANT_API_KEY).
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing implicit file is fine; defaults and env cover it.
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Audio.Driver {
	case DriverMiniaudio, DriverPortAudio:
	default:
		return fmt.Errorf("unknown audio driver %q", c.Audio.Driver)
	}

	switch c.Transcriber.Backend {
	case BackendDeepgram, BackendScribe, BackendWhisper, BackendDevice:
	default:
		return fmt.Errorf("unknown transcription backend %q", c.Transcriber.Backend)
	}

	switch c.Speech.Provider {
	case SpeechElevenLabs, SpeechOpenAI, SpeechNone:
	default:
		return fmt.Errorf("unknown speech provider %q", c.Speech.Provider)
	}

	if c.Speech.Provider == SpeechNone && c.Greeting.Enabled {
		return fmt.Errorf("greeting requires a speech provider")
	}

	ep := c.Transcriber.Endpointing
	if ep.CommittedTimeout <= 0 || ep.PartialTimeout <= 0 || ep.MaxRecording <= 0 {
		return fmt.Errorf("endpointing timeouts must be positive")
	}

	return nil
}
